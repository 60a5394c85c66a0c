// Package fileio is the store's FileBackend: block-aligned positioned
// file I/O, an exclusive/shared OS lock, and the optional compression
// and encryption filters spec.md treats as byte-in/byte-out
// collaborators (spec.md §1, §4.1, §6).
package fileio

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Backend wraps one open database file with positioned reads/writes,
// truncation, size queries, and the OS-level exclusive/shared lock
// spec.md §5 relies on for single-writer, multi-reader safety within one
// process.
type Backend struct {
	path     string
	f        *os.File
	readOnly bool
}

// Open opens (creating if necessary, unless readOnly) the file at path.
func Open(path string, readOnly bool) (*Backend, error) {
	flags := os.O_RDONLY
	if !readOnly {
		flags = os.O_RDWR | os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("fileio: open %s: %w", path, err)
	}
	return &Backend{path: path, f: f, readOnly: readOnly}, nil
}

// Lock acquires the process-scoped advisory lock spec.md §5 requires:
// exclusive for a read-write open, shared for a read-only open. It does
// not block — a second open by this or another process fails fast
// rather than waiting, since chunkstore supports at most one open per
// process (spec.md §5).
func (b *Backend) Lock() error {
	how := unix.LOCK_EX
	if b.readOnly {
		how = unix.LOCK_SH
	}
	if err := unix.Flock(int(b.f.Fd()), how|unix.LOCK_NB); err != nil {
		return fmt.Errorf("fileio: lock %s: %w", b.path, err)
	}
	return nil
}

// ReadAt reads len(buf) bytes starting at offset off.
func (b *Backend) ReadAt(buf []byte, off int64) error {
	_, err := b.f.ReadAt(buf, off)
	if err != nil {
		return fmt.Errorf("fileio: read at %d: %w", off, err)
	}
	return nil
}

// WriteAt writes buf at offset off. The caller is responsible for
// calling Sync when durability is required (spec.md §5: "the design
// does not call fsync automatically").
func (b *Backend) WriteAt(buf []byte, off int64) error {
	if b.readOnly {
		return fmt.Errorf("fileio: write to read-only backend")
	}
	if _, err := b.f.WriteAt(buf, off); err != nil {
		return fmt.Errorf("fileio: write at %d: %w", off, err)
	}
	return nil
}

// Sync flushes the file to stable storage.
func (b *Backend) Sync() error {
	if b.readOnly {
		return nil
	}
	if err := b.f.Sync(); err != nil {
		return fmt.Errorf("fileio: sync: %w", err)
	}
	return nil
}

// Truncate resizes the file, used by shrinkFileIfPossible (spec.md §4.3).
func (b *Backend) Truncate(size int64) error {
	if b.readOnly {
		return fmt.Errorf("fileio: truncate on read-only backend")
	}
	if err := b.f.Truncate(size); err != nil {
		return fmt.Errorf("fileio: truncate to %d: %w", size, err)
	}
	return nil
}

// Size returns the current file size in bytes.
func (b *Backend) Size() (int64, error) {
	fi, err := b.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("fileio: stat: %w", err)
	}
	return fi.Size(), nil
}

// ReadOnly reports whether this backend rejects writes.
func (b *Backend) ReadOnly() bool { return b.readOnly }

// Close releases the lock (implicitly, on fd close) and closes the file.
func (b *Backend) Close() error {
	if err := b.f.Close(); err != nil {
		return fmt.Errorf("fileio: close %s: %w", b.path, err)
	}
	return nil
}
