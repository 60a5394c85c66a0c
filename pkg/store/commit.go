package store

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/nainya/chunkstore/pkg/chunk"
	"github.com/nainya/chunkstore/pkg/page"
)

// metaPlaceholderMax is the sentinel magnitude spec.md §4.2 step 3
// describes ("start = MAX, length = MAX") for the not-yet-final
// "chunk.<id>" meta record written before the chunk's real byte range
// is known.
const metaPlaceholderMax = 1<<31 - 1

// Commit writes every map's dirty pages (and the meta map) into one
// new chunk and advances currentVersion, per spec.md §4.2. It is the
// exported "store()". Calling it with nothing dirty is a no-op that
// performs no I/O and returns the unchanged version (spec.md §8
// invariant 9).
func (s *Store) Commit() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if s.opts.ReadOnly {
		return 0, ErrReadOnly
	}
	return s.commitLocked()
}

func (s *Store) commitLocked() (int64, error) {
	if !s.anyDirty() {
		return s.currentVersion, nil
	}

	// Self-heal the previous chunk's meta record: its "chunk.<id>"
	// value was written as a sentinel placeholder when it was new (the
	// current chunk's own true Start/Length can't be known until the
	// allocator runs, long after meta itself is serialized — see
	// DESIGN.md). Now that commit is over, its real numbers are known.
	if s.lastChunkID != 0 {
		if prev, ok := s.chunks[s.lastChunkID]; ok {
			if err := s.metaTree.Insert([]byte(metaKeyChunk(prev.ID)), []byte(prev.Serialize())); err != nil {
				return 0, err
			}
		}
	}

	newVersion := s.currentVersion + 1
	commitTime := nowUnix() - s.creationTime
	if prev, ok := s.chunks[s.lastChunkID]; ok && prev.Time > commitTime {
		commitTime = prev.Time
	}

	newChunkID := s.lastChunkID + 1
	placeholder := &chunk.Chunk{ID: newChunkID, Start: metaPlaceholderMax, Length: metaPlaceholderMax, Version: newVersion, Time: commitTime}
	if err := s.metaTree.Insert([]byte(metaKeyChunk(newChunkID)), []byte(placeholder.Serialize())); err != nil {
		return 0, err
	}

	var dirty []*mapHandle
	for _, mh := range s.maps {
		if mh.tree.Dirty() {
			dirty = append(dirty, mh)
		}
	}
	sort.Slice(dirty, func(i, j int) bool { return dirty[i].id < dirty[j].id })

	for _, mh := range dirty {
		if err := s.metaTree.Insert([]byte(metaKeyRoot(mh.id)), []byte(strconv.Itoa(metaPlaceholderMax))); err != nil {
			return 0, err
		}
	}

	if err := s.applyFreedChunks(newVersion); err != nil {
		return 0, err
	}

	// Mirror every existing chunk's live-byte count, as just updated by
	// the ledger, into its "chunk.<id>" record.
	for id, c := range s.chunks {
		rec := c.Serialize()
		old, found, err := s.metaTree.Get([]byte(metaKeyChunk(id)))
		if err != nil {
			return 0, err
		}
		if !found || string(old) != rec {
			if err := s.metaTree.Insert([]byte(metaKeyChunk(id)), []byte(rec)); err != nil {
				return 0, err
			}
		}
	}

	var pageRegion []byte
	var pageCount uint64
	var maxLength uint64
	appendPage := func(pg *page.Page) (page.Position, error) {
		encoded := pg.Encode()
		offset := len(pageRegion)
		if offset > maxOffsetValue {
			return 0, fmt.Errorf("store: chunk %d page region exceeds addressable offset range", newChunkID)
		}
		pos := page.NewPosition(newChunkID, uint32(offset), len(encoded), pg.Leaf)
		pageRegion = append(pageRegion, encoded...)
		pageCount++
		maxLength += uint64(pos.MaxLength())
		return pos, nil
	}

	for _, mh := range dirty {
		rootPos, err := mh.tree.Persist(appendPage)
		if err != nil {
			return 0, err
		}
		if err := s.metaTree.Insert([]byte(metaKeyRoot(mh.id)), []byte(strconv.FormatUint(uint64(rootPos), 10))); err != nil {
			return 0, err
		}
	}

	metaRootPos, err := s.metaTree.Persist(appendPage)
	if err != nil {
		return 0, err
	}

	sealed, err := s.sealChunkBody(pageRegion)
	if err != nil {
		return 0, err
	}

	bodyEnd := chunk.HeaderSize + len(sealed)
	alignedBodyEnd := ((bodyEnd + chunk.BlockSize - 1) / chunk.BlockSize) * chunk.BlockSize
	totalLength := alignedBodyEnd + chunk.BlockSize

	start, _ := s.allocateChunk(totalLength)

	newChunk := &chunk.Chunk{
		ID:            newChunkID,
		Start:         start,
		Length:        int32(totalLength),
		MetaRootPos:   metaRootPos,
		Version:       newVersion,
		Time:          commitTime,
		PageCount:     pageCount,
		MaxLength:     maxLength,
		MaxLengthLive: maxLength,
		BodyLength:    uint32(len(sealed)),
	}

	out := make([]byte, totalLength)
	copy(out[:chunk.HeaderSize], newChunk.EncodeHeader())
	copy(out[chunk.HeaderSize:], sealed)

	trailer := &fileHeader{
		CreationTime: s.creationTime,
		Version:      newVersion,
		RootChunk:    start,
		LastMapID:    s.lastMapID,
		FormatWrite:  FormatWrite,
		FormatRead:   FormatRead,
	}
	trailerBuf, err := trailer.encode()
	if err != nil {
		return 0, err
	}
	copy(out[totalLength-chunk.BlockSize:], trailerBuf)

	if err := s.backend.WriteAt(out, start); err != nil {
		return 0, err
	}

	// The leading pair is rewritten on every commit, not only when the
	// new chunk reused a gap in the middle of the file: ordinary
	// sequential growth always appends past the end, and recoverHeader
	// picks the highest-version valid candidate among the leading pair
	// and the trailing block — a stale leading pair would make a crash
	// that truncates away the tail fall back to an old version instead
	// of the latest one actually written.
	if err := s.backend.WriteAt(trailerBuf, 0); err != nil {
		return 0, err
	}
	if err := s.backend.WriteAt(trailerBuf, chunk.BlockSize); err != nil {
		return 0, err
	}

	s.chunks[newChunkID] = newChunk
	s.versionChunk[newVersion] = newChunkID
	s.lastChunkID = newChunkID
	s.currentVersion = newVersion

	return newVersion, nil
}

// maxOffsetValue bounds a page's in-chunk byte offset to what
// page.Position's 32-bit offset field can hold.
const maxOffsetValue = 1<<32 - 1

func (s *Store) anyDirty() bool {
	if s.metaTree.Dirty() {
		return true
	}
	for _, mh := range s.maps {
		if mh.tree.Dirty() {
			return true
		}
	}
	return false
}

// applyFreedChunks merges pending per-version ledger entries into each
// chunk's MaxLengthLive, then removes any chunk that has become
// collectable (no live bytes) and aged past the retention window,
// repeating since removing a chunk's own meta record frees more pages
// (spec.md §4.2 step 5, §4.5).
func (s *Store) applyFreedChunks(upToVersion int64) error {
	for {
		applied := false
		for ver, bucket := range s.freedChunks {
			if ver > upToVersion {
				continue
			}
			for chunkID, delta := range bucket {
				c, ok := s.chunks[chunkID]
				if !ok {
					continue
				}
				live := int64(c.MaxLengthLive) + delta
				if live < 0 {
					return ErrNegativeLive
				}
				c.MaxLengthLive = uint64(live)
			}
			delete(s.freedChunks, ver)
			applied = true
		}
		if !applied {
			break
		}
	}

	now := nowUnix() - s.creationTime
	removedAny := false
	for id, c := range s.chunks {
		if !c.Collectable() {
			continue
		}
		if now-c.Time < s.opts.RetentionTime {
			continue
		}
		delete(s.chunks, id)
		delete(s.versionChunk, c.Version)
		delete(s.bodies, id)
		if _, err := s.metaTree.Delete([]byte(metaKeyChunk(id))); err != nil {
			return err
		}
		removedAny = true
	}
	if removedAny {
		// A chunk's removal may itself expose its predecessor's bytes
		// as fully dead once meta.Delete frees the pages that named
		// it; loop once more to catch any newly-collectable chunk.
		return s.applyFreedChunks(upToVersion)
	}
	return nil
}
