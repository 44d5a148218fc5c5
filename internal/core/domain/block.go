package domain

import "fmt"

// BlockHeader identifies one block on a chain.
// Values are immutable once fetched; a changed hash at the same height is a new header.
type BlockHeader struct {
	Number    uint64 `json:"number"`
	Hash      string `json:"hash"`
	Timestamp uint64 `json:"timestamp"`
}

func (h BlockHeader) String() string {
	return fmt.Sprintf("#%d %s", h.Number, h.Hash)
}

// ReorgResolution is the outcome of one monitor update cycle.
//
// Data up to LatestBlockWithGoodData is still trusted; the caller should
// (re)scan (LatestBlockWithGoodData, LastLiveBlock].
type ReorgResolution struct {
	LastLiveBlock           uint64
	LatestBlockWithGoodData uint64
	ReorgDetected           bool
}

// RescanFrom returns the first block that must be (re)processed.
func (r ReorgResolution) RescanFrom() uint64 {
	return r.LatestBlockWithGoodData + 1
}
