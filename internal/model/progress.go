package model

import "sort"

// ScanProgress tracks which blocks have been fully processed for the
// tracked address. It is the resume point after restart.
type ScanProgress struct {
	LastProcessedBlock   uint64
	ProcessedBlocks      map[uint64]struct{}
	StartBlock           uint64
	InitialScanCompleted bool
}

// NewScanProgress returns empty progress floored at startBlock.
func NewScanProgress(startBlock uint64) *ScanProgress {
	p := &ScanProgress{
		ProcessedBlocks: make(map[uint64]struct{}),
		StartBlock:      startBlock,
	}
	p.ClampToStart()
	return p
}

// IsProcessed reports whether the block has already been fully processed.
func (p *ScanProgress) IsProcessed(block uint64) bool {
	_, ok := p.ProcessedBlocks[block]
	return ok
}

// MarkProcessed records a confirmed block and advances the watermark.
func (p *ScanProgress) MarkProcessed(block uint64) {
	if block < p.StartBlock {
		return
	}
	p.ProcessedBlocks[block] = struct{}{}
	if block > p.LastProcessedBlock {
		p.LastProcessedBlock = block
	}
}

// ClampToStart enforces the floor: the watermark never sits below
// startBlock-1 and no processed entry below startBlock survives.
func (p *ScanProgress) ClampToStart() {
	if p.StartBlock > 0 && p.LastProcessedBlock < p.StartBlock-1 {
		p.LastProcessedBlock = p.StartBlock - 1
	}
	for block := range p.ProcessedBlocks {
		if block < p.StartBlock {
			delete(p.ProcessedBlocks, block)
		}
	}
}

// SortedBlocks returns the processed set in ascending order, for
// serialization and deterministic tests.
func (p *ScanProgress) SortedBlocks() []uint64 {
	blocks := make([]uint64, 0, len(p.ProcessedBlocks))
	for block := range p.ProcessedBlocks {
		blocks = append(blocks, block)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i] < blocks[j] })
	return blocks
}
