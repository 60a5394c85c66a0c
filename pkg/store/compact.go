package store

import (
	"sort"

	"github.com/nainya/chunkstore/pkg/mvmap"
	"github.com/nainya/chunkstore/pkg/page"
)

// Compact rewrites keys out of cold, under-utilized chunks to reclaim
// space, per spec.md §4.4. It returns false without doing any work if
// the store's aggregate fill rate is already at or above fillRate.
func (s *Store) Compact(fillRate int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if s.opts.ReadOnly {
		return false, ErrReadOnly
	}
	return s.compactLocked(fillRate)
}

func (s *Store) compactLocked(fillRate int) (bool, error) {
	var totalLive, totalMax uint64
	for _, c := range s.chunks {
		totalLive += c.MaxLengthLive
		totalMax += c.MaxLength
	}
	if totalMax == 0 {
		return false, nil
	}
	if 100*float64(totalLive)/float64(totalMax) >= float64(fillRate) {
		return false, nil
	}

	now := nowUnix() - s.creationTime

	type candidate struct {
		id       uint64
		priority float64
		live     uint64
	}
	var candidates []candidate
	for id, c := range s.chunks {
		age := now - c.Time
		if age < s.opts.RetentionTime {
			continue
		}
		priority := c.FillRate() / float64(age+1)
		candidates = append(candidates, candidate{id: id, priority: priority, live: c.MaxLengthLive})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].priority < candidates[j].priority })

	avgLive := totalLive / uint64(len(s.chunks))
	selected := map[uint64]bool{}
	var accumulated uint64
	for _, cand := range candidates {
		if accumulated >= avgLive && len(selected) > 0 {
			break
		}
		selected[cand.id] = true
		accumulated += cand.live
	}
	if len(selected) == 0 {
		return false, nil
	}

	for chunkID := range selected {
		if err := s.rewriteLiveKeysInChunk(chunkID, selected); err != nil {
			return false, err
		}
	}

	if _, err := s.commitLocked(); err != nil {
		return false, err
	}
	if err := s.shrinkFileIfPossible(fillRate); err != nil {
		return false, err
	}
	return true, nil
}

// rewriteLiveKeysInChunk walks chunkID's page buffer in order and, for
// every leaf entry whose owning map still exists and whose
// currently-resolved leaf still lives in one of the selected chunks,
// forces a copy-on-write rewrite by deleting and reinserting it
// (spec.md §4.4: "map.put(key, map.remove(key))").
func (s *Store) rewriteLiveKeysInChunk(chunkID uint64, selected map[uint64]bool) error {
	body, err := s.chunkBody(chunkID)
	if err != nil {
		return err
	}

	offset := 0
	for offset < len(body) {
		pg, n, err := page.DecodeN(body[offset:])
		if err != nil {
			return err
		}
		offset += n

		if !pg.Leaf {
			continue
		}

		tree := s.treeForMap(pg.MapID)
		if tree == nil {
			continue
		}

		for _, key := range pg.Keys {
			leafPos, err := tree.LeafPosition(key)
			if err != nil {
				return err
			}
			// Only the live leaf's own chunk membership decides whether
			// to rewrite; the value must come from a fresh Get; the
			// page bytes scanned above may belong to a leaf that key
			// has since moved out of (spec.md §4.4 only rewrites keys
			// whose current resolved page is in the targeted set).
			if leafPos.IsZero() || !selected[leafPos.ChunkID()] {
				continue
			}
			val, found, err := tree.Get(key)
			if err != nil {
				return err
			}
			if !found {
				continue
			}
			if _, err := tree.Delete(key); err != nil {
				return err
			}
			if err := tree.Insert(key, val); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) treeForMap(mapID uint32) *mvmap.Tree {
	if mapID == metaMapID {
		return s.metaTree
	}
	mh, ok := s.maps[mapID]
	if !ok {
		return nil
	}
	return mh.tree
}
