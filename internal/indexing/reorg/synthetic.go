package reorg

import (
	"context"
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/sha3"

	"github.com/vietddude/reorgscan/internal/core/domain"
)

// SyntheticStrategy is a deterministic in-memory chain with fork injection.
type SyntheticStrategy struct {
	blocks      map[uint64]domain.BlockHeader
	head        uint64
	forks       uint64
	genesisTime uint64
	blockTime   uint64
}

// NewSyntheticStrategy creates an empty chain with 12 second blocks.
func NewSyntheticStrategy() *SyntheticStrategy {
	return &SyntheticStrategy{
		blocks:      make(map[uint64]domain.BlockHeader),
		genesisTime: 1_700_000_000,
		blockTime:   12,
	}
}

func (*SyntheticStrategy) sealed() {}

// ProduceBlocks appends n blocks to the chain.
func (s *SyntheticStrategy) ProduceBlocks(n int) {
	for i := 0; i < n; i++ {
		s.head++
		s.blocks[s.head] = domain.BlockHeader{
			Number:    s.head,
			Hash:      syntheticHash(s.head, 0),
			Timestamp: s.genesisTime + s.head*s.blockTime,
		}
	}
}

// ForkBlock replaces the hash of an existing block.
func (s *SyntheticStrategy) ForkBlock(number uint64) {
	b, ok := s.blocks[number]
	if !ok {
		return
	}
	s.forks++
	b.Hash = syntheticHash(number, s.forks)
	s.blocks[number] = b
}

// Block returns the current header at number.
func (s *SyntheticStrategy) Block(number uint64) (domain.BlockHeader, bool) {
	b, ok := s.blocks[number]
	return b, ok
}

// Snapshot returns every header in ascending order.
func (s *SyntheticStrategy) Snapshot() []domain.BlockHeader {
	out := make([]domain.BlockHeader, 0, s.head)
	for n := uint64(1); n <= s.head; n++ {
		out = append(out, s.blocks[n])
	}
	return out
}

// FetchBlockData returns the stored headers in [start, end].
func (s *SyntheticStrategy) FetchBlockData(_ context.Context, start, end uint64) ([]domain.BlockHeader, error) {
	var out []domain.BlockHeader
	for n := max(start, 1); n <= end && n <= s.head; n++ {
		out = append(out, s.blocks[n])
	}
	return out, nil
}

// LastLiveBlock returns the chain head.
func (s *SyntheticStrategy) LastLiveBlock(context.Context) (uint64, error) {
	return s.head, nil
}

func syntheticHash(number, salt uint64) string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], number)
	binary.BigEndian.PutUint64(buf[8:], salt)

	h := sha3.NewLegacyKeccak256()
	h.Write(buf[:])
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
