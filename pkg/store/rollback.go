package store

import (
	"fmt"
	"strconv"

	"github.com/nainya/chunkstore/pkg/chunk"
	"github.com/nainya/chunkstore/pkg/mvmap"
	"github.com/nainya/chunkstore/pkg/page"
)

// RollbackTo discards every version after v and reinstalls v's state as
// the live state, per spec.md §8 invariant 8 and §4.7's "rollbackTo".
// Maps created after v are closed and removed; maps that already
// existed at v have their tree reopened at v's historical root.
func (s *Store) RollbackTo(v int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.opts.ReadOnly {
		return ErrReadOnly
	}

	chunkID, ok := s.versionChunk[v]
	if !ok {
		return ErrUnknownVersion
	}
	target, ok := s.chunks[chunkID]
	if !ok {
		return ErrUnknownVersion
	}

	histMeta, err := mvmap.OpenTree(metaMapID, target.MetaRootPos, s, s.freePage)
	if err != nil {
		return err
	}

	for id, mh := range s.maps {
		if mh.createVersion >= v {
			delete(s.maps, id)
			delete(s.names, mh.name)
			continue
		}

		rootVal, found, err := histMeta.Get([]byte(metaKeyRoot(id)))
		if err != nil {
			return err
		}
		var rootPos page.Position
		if found {
			n, err := strconv.ParseUint(string(rootVal), 10, 64)
			if err != nil {
				return fmt.Errorf("store: malformed historical root for map %d: %w", id, err)
			}
			rootPos = page.Position(n)
		}

		tree, err := mvmap.OpenTree(id, rootPos, s, s.freePage)
		if err != nil {
			return err
		}
		if mh.keyCodec != nil {
			tree.SetComparator(mh.keyCodec.Compare)
		}
		// Overwrite in place: Map handles already returned by OpenMap hold
		// this *Tree and must see the rolled-back state.
		*mh.tree = *tree
	}

	s.metaTree = histMeta

	for id, c := range s.chunks {
		if c.Version > v {
			delete(s.chunks, id)
			delete(s.versionChunk, c.Version)
			delete(s.bodies, id)
		}
	}

	// Ledger entries recorded at version v or later belong to changes made
	// after v's commit, which this rollback discards. Target was the newest
	// chunk at v, so none of its pages had been superseded yet.
	for ver := range s.freedChunks {
		if ver >= v {
			delete(s.freedChunks, ver)
		}
	}
	target.MaxLengthLive = target.MaxLength

	s.currentVersion = v

	// Make the rollback durable immediately, without waiting on a
	// subsequent commit: truncate away every chunk newer than target (so
	// the trailing-header candidate recoverHeader reads is target's own,
	// already-valid trailer) and rewrite the leading pair to match. A
	// later Commit() with nothing dirty would otherwise be a no-op and
	// leave the on-disk header still pointing at the version being
	// discarded.
	if err := s.backend.Truncate(target.End()); err != nil {
		return err
	}
	h := &fileHeader{
		CreationTime: s.creationTime,
		Version:      v,
		RootChunk:    target.Start,
		LastMapID:    s.lastMapID,
		FormatWrite:  FormatWrite,
		FormatRead:   FormatRead,
	}
	buf, err := h.encode()
	if err != nil {
		return err
	}
	if err := s.backend.WriteAt(buf, 0); err != nil {
		return err
	}
	if err := s.backend.WriteAt(buf, chunk.BlockSize); err != nil {
		return err
	}
	return s.backend.Sync()
}
