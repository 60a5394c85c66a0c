// Package store owns the file, the chunk and map tables, and drives
// commit, compaction, rollback, and recovery (spec.md §2, §4). It is
// the one component that turns pkg/mvmap's in-memory copy-on-write
// trees into durable bytes on disk, and the one place the rest of the
// core's collaborators — pkg/fileio, pkg/chunk, pkg/cache, pkg/page —
// are wired together.
package store

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nainya/chunkstore/pkg/cache"
	"github.com/nainya/chunkstore/pkg/chunk"
	"github.com/nainya/chunkstore/pkg/fileio"
	"github.com/nainya/chunkstore/pkg/mvmap"
	"github.com/nainya/chunkstore/pkg/page"
)

// metaMapID is the reserved map id for the meta map (spec.md §3: "0
// reserved for meta").
const metaMapID uint32 = 0

// mapHandle tracks one live map's store-side bookkeeping alongside its
// tree: the id/name/createVersion triple map.<id> records, and the
// key/value codecs it was opened with.
type mapHandle struct {
	id            uint32
	name          string
	createVersion int64
	tree          *mvmap.Tree
	keyCodec      mvmap.Codec
	valCodec      mvmap.Codec
}

// Store is the top-level handle onto one chunkstore file.
type Store struct {
	mu sync.Mutex

	opts    Options
	backend *fileio.Backend
	cipher  fileio.Cipher
	comp    fileio.Compressor
	cache   *cache.Cache

	creationTime   int64
	currentVersion int64
	lastChunkID    uint64
	lastMapID      uint32

	chunks       map[uint64]*chunk.Chunk
	versionChunk map[int64]uint64

	metaTree *mvmap.Tree
	maps     map[uint32]*mapHandle
	names    map[string]uint32

	// freedChunks is the ledger spec.md §4.5 and §9 describe: version
	// → (chunkId → negative delta against maxLengthLive), applied at
	// the next commit and pruned of any version rollbackTo discards.
	freedChunks map[int64]map[uint64]int64

	// bodies caches each chunk's decompressed/decrypted plaintext page
	// region, keyed by chunk id, so a tree walk touching many pages in
	// the same chunk doesn't re-open it from disk every time.
	bodiesMu sync.Mutex
	bodies   map[uint64][]byte

	closed bool
}

// Open builds or opens a store file per opts.
func Open(opts Options) (*Store, error) {
	backend, err := newBackend(opts)
	if err != nil {
		return nil, err
	}
	if err := backend.Lock(); err != nil {
		backend.Close()
		return nil, err
	}

	cipher, comp, err := buildFilters(opts)
	if err != nil {
		backend.Close()
		return nil, err
	}

	s := &Store{
		opts:         opts,
		backend:      backend,
		cipher:       cipher,
		comp:         comp,
		cache:        cache.New(opts.CacheSizeBytes),
		chunks:       map[uint64]*chunk.Chunk{},
		versionChunk: map[int64]uint64{},
		maps:         map[uint32]*mapHandle{},
		names:        map[string]uint32{},
		freedChunks:  map[int64]map[uint64]int64{},
		bodies:       map[uint64][]byte{},
	}

	size, err := backend.Size()
	if err != nil {
		backend.Close()
		return nil, err
	}

	if size == 0 {
		if err := s.initFresh(); err != nil {
			backend.Close()
			return nil, err
		}
		return s, nil
	}

	if err := s.recover(); err != nil {
		backend.Close()
		return nil, err
	}
	return s, nil
}

func buildFilters(opts Options) (fileio.Cipher, fileio.Compressor, error) {
	var cipher fileio.Cipher = fileio.NoCipher{}
	if len(opts.Encrypt) > 0 {
		salt := []byte("chunkstore-header-salt") // fixed salt: the key is per-file, not per-record
		c, err := fileio.NewChaCha20Cipher(opts.Encrypt, salt)
		if err != nil {
			return nil, nil, err
		}
		cipher = c
	}

	var comp fileio.Compressor = fileio.NoCompressor{}
	if opts.Compress {
		z, err := fileio.NewZstdCompressor()
		if err != nil {
			return nil, nil, err
		}
		comp = z
	}
	return cipher, comp, nil
}

func (s *Store) initFresh() error {
	s.creationTime = nowUnix()
	s.currentVersion = 0
	s.lastChunkID = 0
	s.lastMapID = 0
	s.metaTree = mvmap.NewTree(metaMapID, s, s.freePage)
	if err := s.metaTree.Insert([]byte(metaKeyStoreVersion), []byte(strconv.Itoa(storeSchemaVersion))); err != nil {
		return err
	}

	h := &fileHeader{
		CreationTime: s.creationTime,
		Version:      0,
		RootChunk:    0,
		LastMapID:    0,
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

func (s *Store) recover() error {
	h, err := recoverHeader(s.backend)
	if err != nil {
		return err
	}
	if h.FormatRead > FormatRead {
		return ErrUnsupportedFmt
	}
	if h.FormatWrite > FormatWrite {
		s.opts.ReadOnly = true
	}

	s.creationTime = h.CreationTime
	s.currentVersion = h.Version
	s.lastMapID = h.LastMapID

	if h.RootChunk == 0 && h.Version == 0 {
		// No chunk has ever been committed; meta starts empty.
		s.metaTree = mvmap.NewTree(metaMapID, s, s.freePage)
		return nil
	}

	hdrBuf := make([]byte, chunk.HeaderSize)
	if err := s.backend.ReadAt(hdrBuf, h.RootChunk); err != nil {
		return err
	}
	newest, err := chunk.DecodeHeader(hdrBuf)
	if err != nil {
		return fmt.Errorf("store: decode newest chunk header: %w", err)
	}

	s.lastChunkID = newest.ID
	s.chunks[newest.ID] = newest
	s.versionChunk[newest.Version] = newest.ID

	s.metaTree, err = mvmap.OpenTree(metaMapID, newest.MetaRootPos, s, s.freePage)
	if err != nil {
		return fmt.Errorf("store: open meta tree: %w", err)
	}

	if err := s.loadChunksFromMeta(newest.ID); err != nil {
		return err
	}
	return s.loadMapsFromMeta()
}

// loadChunksFromMeta scans "chunk.<id>" entries, which are accurate
// for every chunk except skipChunkID (the newest, whose own meta
// record stays a sentinel placeholder until the next commit rewrites
// it — see the self-heal step at the start of commitLocked).
func (s *Store) loadChunksFromMeta(skipChunkID uint64) error {
	return s.metaTree.Scan([]byte(metaKeyChunkPrefix), func(k, v []byte) bool {
		key := string(k)
		if len(key) < len(metaKeyChunkPrefix) || key[:len(metaKeyChunkPrefix)] != metaKeyChunkPrefix {
			return false // past the "chunk." prefix range
		}
		c, err := chunk.ParseSerialized(string(v))
		if err != nil {
			return true // skip malformed entries rather than aborting recovery
		}
		if c.ID == skipChunkID {
			return true
		}
		s.chunks[c.ID] = c
		s.versionChunk[c.Version] = c.ID
		return true
	})
}

func (s *Store) loadMapsFromMeta() error {
	return s.metaTree.Scan([]byte(metaKeyMapPrefix), func(k, v []byte) bool {
		key := string(k)
		if len(key) < len(metaKeyMapPrefix) || key[:len(metaKeyMapPrefix)] != metaKeyMapPrefix {
			return false
		}
		idStr := key[len(metaKeyMapPrefix):]
		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			return true
		}
		rec, err := parseMapRecord(string(v))
		if err != nil {
			return true
		}

		rootPos, err := s.readRootPos(uint32(id))
		if err != nil {
			return true
		}
		tree, err := mvmap.OpenTree(uint32(id), rootPos, s, s.freePage)
		if err != nil {
			return true
		}

		mh := &mapHandle{id: uint32(id), name: rec.Name, createVersion: rec.CreateVersion, tree: tree}
		s.maps[mh.id] = mh
		s.names[mh.name] = mh.id
		return true
	})
}

func (s *Store) readRootPos(mapID uint32) (page.Position, error) {
	v, found, err := s.metaTree.Get([]byte(metaKeyRoot(mapID)))
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	n, err := strconv.ParseUint(string(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("store: malformed root position for map %d: %w", mapID, err)
	}
	return page.Position(n), nil
}

// ReadPage implements mvmap.PageSource: consult the page cache, falling
// back to the owning chunk's decompressed/decrypted page region.
func (s *Store) ReadPage(pos page.Position) (*page.Page, error) {
	if pg, ok := s.cache.Get(pos); ok {
		return pg, nil
	}

	body, err := s.chunkBody(pos.ChunkID())
	if err != nil {
		return nil, err
	}
	off := pos.Offset()
	if int(off) > len(body) {
		return nil, fmt.Errorf("store: page offset %d beyond chunk body (%d bytes): %w", off, len(body), ErrChunkNotFound)
	}
	pg, err := page.Decode(body[off:])
	if err != nil {
		return nil, fmt.Errorf("store: decode page at %v: %w", pos, err)
	}
	s.cache.Put(pos, pg)
	return pg, nil
}

// chunkBody returns chunkID's decompressed, decrypted page-region
// bytes, reading and unsealing it from disk on first access and
// caching the result for the life of the Store.
func (s *Store) chunkBody(chunkID uint64) ([]byte, error) {
	s.bodiesMu.Lock()
	defer s.bodiesMu.Unlock()

	if b, ok := s.bodies[chunkID]; ok {
		return b, nil
	}

	c, ok := s.chunks[chunkID]
	if !ok {
		return nil, ErrChunkNotFound
	}

	sealed := make([]byte, c.BodyLength)
	if err := s.backend.ReadAt(sealed, c.Start+chunk.HeaderSize); err != nil {
		return nil, err
	}
	plain, err := s.openChunkBody(sealed)
	if err != nil {
		return nil, err
	}
	s.bodies[chunkID] = plain
	return plain, nil
}

func (s *Store) sealChunkBody(plain []byte) ([]byte, error) {
	compressed, err := s.comp.Compress(plain)
	if err != nil {
		return nil, err
	}
	return s.cipher.Seal(compressed)
}

func (s *Store) openChunkBody(sealed []byte) ([]byte, error) {
	opened, err := s.cipher.Open(sealed)
	if err != nil {
		return nil, err
	}
	return s.comp.Decompress(opened)
}

// freePage implements the freed-page ledger hook every mvmap.Tree in
// this store is constructed with (spec.md §4.5).
func (s *Store) freePage(pos page.Position) {
	if pos.IsZero() {
		return
	}
	s.cache.Remove(pos)

	ver := s.currentVersion
	bucket, ok := s.freedChunks[ver]
	if !ok {
		bucket = map[uint64]int64{}
		s.freedChunks[ver] = bucket
	}
	bucket[pos.ChunkID()] -= int64(pos.MaxLength())
}

// OpenMap returns the live map named name, creating it (reserving the
// next map id) if it does not already exist. A nil codec defaults to
// raw bytes, per mvmap.NewMap.
func (s *Store) OpenMap(name string, keyCodec, valCodec mvmap.Codec) (*mvmap.Map, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	if keyCodec == nil {
		keyCodec = mvmap.BytesCodec{}
	}
	if valCodec == nil {
		valCodec = mvmap.BytesCodec{}
	}

	if id, ok := s.names[name]; ok {
		mh := s.maps[id]
		mh.keyCodec, mh.valCodec = keyCodec, valCodec
		mh.tree.SetComparator(keyCodec.Compare)
		return mvmap.NewMap(mh.id, mh.name, mh.tree, keyCodec, valCodec), nil
	}
	if s.opts.ReadOnly {
		return nil, ErrReadOnly
	}

	s.lastMapID++
	id := s.lastMapID
	tree := mvmap.NewTree(id, s, s.freePage)
	tree.SetComparator(keyCodec.Compare)
	mh := &mapHandle{
		id:            id,
		name:          name,
		createVersion: s.currentVersion,
		tree:          tree,
		keyCodec:      keyCodec,
		valCodec:      valCodec,
	}
	s.maps[id] = mh
	s.names[name] = id

	rec := mapRecord{Name: name, CreateVersion: mh.createVersion}
	if err := s.metaTree.Insert([]byte(metaKeyMap(id)), []byte(rec.serialize())); err != nil {
		return nil, err
	}
	if err := s.metaTree.Insert([]byte(metaKeyName(name)), []byte(strconv.FormatUint(uint64(id), 10))); err != nil {
		return nil, err
	}

	return mvmap.NewMap(mh.id, mh.name, mh.tree, keyCodec, valCodec), nil
}

// OpenMapVersion returns a read-only View of name as of version v,
// materialized by looking up root.<id> in the historical meta snapshot
// the commit that produced v recorded (spec.md §4.7). It fails with
// ErrUnknownVersion when the chunk v's commit wrote has been removed.
// Only that chunk is checked: if an older chunk the snapshot still
// references has been removed, reads through the View fail with
// ErrChunkNotFound instead.
func (s *Store) OpenMapVersion(name string, v int64, keyCodec, valCodec mvmap.Codec) (*mvmap.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	chunkID, ok := s.versionChunk[v]
	if !ok {
		return nil, ErrUnknownVersion
	}
	c, ok := s.chunks[chunkID]
	if !ok {
		return nil, ErrUnknownVersion
	}

	id, ok := s.names[name]
	if !ok {
		return nil, fmt.Errorf("store: map %q does not exist", name)
	}

	histMeta, err := mvmap.OpenTree(metaMapID, c.MetaRootPos, s, nil)
	if err != nil {
		return nil, err
	}
	rootVal, found, err := histMeta.Get([]byte(metaKeyRoot(id)))
	if err != nil {
		return nil, err
	}
	var rootPos page.Position
	if found {
		n, err := strconv.ParseUint(string(rootVal), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("store: malformed historical root: %w", err)
		}
		rootPos = page.Position(n)
	}

	tree, err := mvmap.OpenTree(id, rootPos, s, nil)
	if err != nil {
		return nil, err
	}
	if keyCodec != nil {
		tree.SetComparator(keyCodec.Compare)
	}
	return mvmap.NewView(id, name, v, tree, keyCodec, valCodec), nil
}

// RemoveMap deletes a map and its meta-map records. The meta map has no
// entry in names (it is never reachable through OpenMap/RemoveMap), so
// there is no name a caller could pass here that resolves to it.
func (s *Store) RemoveMap(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.opts.ReadOnly {
		return ErrReadOnly
	}

	id, ok := s.names[name]
	if !ok {
		return fmt.Errorf("store: map %q does not exist", name)
	}

	delete(s.maps, id)
	delete(s.names, name)
	if _, err := s.metaTree.Delete([]byte(metaKeyMap(id))); err != nil {
		return err
	}
	if _, err := s.metaTree.Delete([]byte(metaKeyName(name))); err != nil {
		return err
	}
	if _, err := s.metaTree.Delete([]byte(metaKeyRoot(id))); err != nil {
		return err
	}
	return nil
}

// CurrentVersion returns the store's latest committed version.
func (s *Store) CurrentVersion() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentVersion
}

// LastChunkID returns the id of the most recently committed chunk.
func (s *Store) LastChunkID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastChunkID
}

// StoreVersion returns the user-visible schema version recorded under
// "setting.storeVersion" at file creation (spec.md §3) — distinct from
// CurrentVersion, which is the MVCC commit counter.
func (s *Store) StoreVersion() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, found, err := s.metaTree.Get([]byte(metaKeyStoreVersion))
	if err != nil {
		return 0, err
	}
	if !found {
		// Files written before this key existed have no recorded schema
		// version; treat them as schema version 1, the only one that
		// has ever shipped.
		return 1, nil
	}
	return strconv.Atoi(string(v))
}

// Stat summarizes the store's current space accounting, for the `stat`
// CLI command and metrics gauges.
type Stat struct {
	CurrentVersion int64
	LastChunkID    uint64
	ChunkCount     int
	MaxLength      uint64
	MaxLengthLive  uint64
	CacheBytes     int64
}

func (s *Store) Stat() Stat {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stat{CurrentVersion: s.currentVersion, LastChunkID: s.lastChunkID, ChunkCount: len(s.chunks)}
	for _, c := range s.chunks {
		st.MaxLength += c.MaxLength
		st.MaxLengthLive += c.MaxLengthLive
	}
	st.CacheBytes = s.cache.UsedBytes()
	return st
}

// Close commits any pending writes, optionally auto-compacts, and
// releases the file lock.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if !s.opts.ReadOnly {
		if _, err := s.commitLocked(); err != nil {
			s.backend.Close()
			return err
		}
		if s.opts.AutoCompactFillRate > 0 {
			if _, err := s.compactLocked(s.opts.AutoCompactFillRate); err != nil {
				s.backend.Close()
				return err
			}
		}
	}

	s.cache.Clear()
	return s.backend.Close()
}

func nowUnix() int64 { return time.Now().Unix() }
