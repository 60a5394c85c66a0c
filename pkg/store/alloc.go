package store

import (
	"github.com/nainya/chunkstore/pkg/chunk"
)

// allocateChunk finds the byte offset for a new chunk of length bytes,
// per spec.md §4.3: a first-fit scan of a bitset marking blocks 0-1 and
// every block occupied by a still-live chunk (with a one-block gap
// after each, to keep trailing-header blocks discoverable during
// recovery). If no run of the required size is free, the chunk is
// appended at end-of-file.
func (s *Store) allocateChunk(length int) (offset int64, appended bool) {
	requiredBlocks := (length + chunk.BlockSize - 1) / chunk.BlockSize
	requiredBlocks++ // one-block gap, per spec.md §4.3

	bitsetSize := 2 // blocks 0 and 1 are always reserved
	occupied := map[int]bool{0: true, 1: true}

	for _, c := range s.chunks {
		first := int(c.Start / chunk.BlockSize)
		last := int(c.End()/chunk.BlockSize) + 1 // inclusive, one-block gap
		for b := first; b <= last; b++ {
			occupied[b] = true
		}
		if last+1 > bitsetSize {
			bitsetSize = last + 1
		}
	}

	run := 0
	for b := 0; b < bitsetSize; b++ {
		if occupied[b] {
			run = 0
			continue
		}
		run++
		if run == requiredBlocks {
			return int64(b-run+1) * chunk.BlockSize, false
		}
	}
	return int64(bitsetSize) * chunk.BlockSize, true
}

// shrinkFileIfPossible truncates the file when at least minPercent of
// its length is no longer covered by any live chunk and the residual
// gap is at least one block (spec.md §4.3).
func (s *Store) shrinkFileIfPossible(minPercent int) error {
	fileSize, err := s.backend.Size()
	if err != nil {
		return err
	}

	var usedEnd int64
	for _, c := range s.chunks {
		if c.End() > usedEnd {
			usedEnd = c.End()
		}
	}
	if fileSize <= usedEnd {
		return nil
	}

	deadBytes := fileSize - usedEnd
	if deadBytes < chunk.BlockSize {
		return nil
	}
	if fileSize == 0 || 100*deadBytes/fileSize < int64(minPercent) {
		return nil
	}
	return s.backend.Truncate(usedEnd)
}
