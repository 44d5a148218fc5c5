package domain

import "time"

// ScanCursor is the persisted position of a scan loop: the last fully processed block.
type ScanCursor struct {
	Name      string
	LastBlock uint64
	UpdatedAt time.Time
}

// NextBlock returns the first block the scan loop still has to process.
func (c ScanCursor) NextBlock() uint64 {
	return c.LastBlock + 1
}
