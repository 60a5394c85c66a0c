package store

import (
	"github.com/nainya/chunkstore/pkg/cache"
	"github.com/nainya/chunkstore/pkg/fileio"
)

// Options holds the builder's resolved configuration, mirroring the
// "fileName, openMode=r, encrypt=<char[]>, cacheSize=<MiB>, compress=1"
// builder surface spec.md §6 requires. Unknown keys passed to WithOption
// are retained in Extra and otherwise ignored by the core, per spec.md
// §6's "unknown keys are retained and ignored by the core."
type Options struct {
	FileName string
	ReadOnly bool

	Encrypt  []byte // password bytes; zeroed by NewChaCha20Cipher
	Compress bool

	CacheSizeBytes int64

	// RetentionTime is the minimum age, in seconds, before a dead
	// chunk's bytes may be overwritten (spec.md §4.5, §9 glossary
	// "Retention time").
	RetentionTime int64

	// AutoCompactFillRate, if non-zero, is the target fill rate
	// Close() compacts toward before the store shuts down (spec.md
	// §4.4's compact(fillRate), driven automatically rather than only
	// by an explicit operator call).
	AutoCompactFillRate int

	Extra map[string]string
}

// defaultRetentionTime matches spec.md §4.5's "default 45 s".
const defaultRetentionTime = 45

// Builder assembles Options and opens a Store from them, the way the
// teacher's cmd/treestore/main.go assembles server dependencies before
// constructing its top-level service.
type Builder struct {
	opts Options
}

// NewBuilder returns a Builder for the file at fileName.
func NewBuilder(fileName string) *Builder {
	return &Builder{opts: Options{
		FileName:       fileName,
		CacheSizeBytes: cache.DefaultBudgetBytes,
		RetentionTime:  defaultRetentionTime,
		Extra:          map[string]string{},
	}}
}

// ReadOnly opens the store read-only: shared file lock, and store-level
// writes (Commit, Compact, RollbackTo, RemoveMap, opening a new map)
// rejected with ErrReadOnly. Map.Put and Map.Remove still change the
// in-memory tree; those changes are never written to the file.
func (b *Builder) ReadOnly() *Builder {
	b.opts.ReadOnly = true
	return b
}

// Encrypt enables the ChaCha20-Poly1305 file cipher with the given
// password (spec.md §6 "encrypt=<char[]>"). The password bytes are
// zeroed once the cipher derives its key.
func (b *Builder) Encrypt(password []byte) *Builder {
	b.opts.Encrypt = password
	return b
}

// Compress enables the zstd chunk-body compressor (spec.md §6
// "compress=1").
func (b *Builder) Compress() *Builder {
	b.opts.Compress = true
	return b
}

// CacheSize sets the page cache's byte budget (spec.md §6
// "cacheSize=<MiB>"); sizeBytes is whole bytes, not MiB, to keep the
// Go API unit-unambiguous.
func (b *Builder) CacheSize(sizeBytes int64) *Builder {
	b.opts.CacheSizeBytes = sizeBytes
	return b
}

// RetentionTime overrides the default 45s retention window (spec.md
// §4.5).
func (b *Builder) RetentionTime(seconds int64) *Builder {
	b.opts.RetentionTime = seconds
	return b
}

// AutoCompactFillRate sets the target fill rate Close compacts toward.
func (b *Builder) AutoCompactFillRate(percent int) *Builder {
	b.opts.AutoCompactFillRate = percent
	return b
}

// WithOption retains an unrecognized key=value pair, per spec.md §6's
// "unknown keys are retained and ignored by the core."
func (b *Builder) WithOption(key, value string) *Builder {
	b.opts.Extra[key] = value
	return b
}

// Open builds the Store from the accumulated options.
func (b *Builder) Open() (*Store, error) {
	return Open(b.opts)
}

func newBackend(opts Options) (*fileio.Backend, error) {
	return fileio.Open(opts.FileName, opts.ReadOnly)
}
