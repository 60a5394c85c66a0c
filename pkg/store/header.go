package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nainya/chunkstore/pkg/chunk"
	"github.com/nainya/chunkstore/pkg/fileio"
)

// formatTag is the file-header "H" format tag (spec.md §4.1: "currently
// 3").
const formatTag = "3"

// FormatWrite and FormatRead are the versions this build writes and can
// read. Open rejects a file whose formatRead exceeds FormatRead, and
// falls back to read-only if its formatWrite exceeds FormatWrite
// (spec.md §4.1).
const (
	FormatWrite = 1
	FormatRead  = 1
)

// fileHeader is the textual key:value record spec.md §4.1 describes,
// serialized into one BlockSize-byte block and checksummed with
// Fletcher-32.
type fileHeader struct {
	CreationTime int64
	Version      int64
	RootChunk    int64 // byte offset of the newest chunk
	LastMapID    uint32
	FormatWrite  int
	FormatRead   int
}

// preamble is the fixed field order encode/decode agree on. A
// corrupted byte anywhere shifts the reconstructed preamble used for
// the checksum, so recovery naturally rejects it rather than silently
// parsing a wrong value.
func (h *fileHeader) preamble() string {
	return fmt.Sprintf(
		"H:%s,blockSize:%d,format:%d,formatRead:%d,creationTime:%d,version:%d,rootChunk:%d,lastMapId:%d,fletcher:",
		formatTag, chunk.BlockSize, h.FormatWrite, h.FormatRead,
		h.CreationTime, h.Version, h.RootChunk, h.LastMapID,
	)
}

// encode renders h as a BlockSize-byte block, space-padded, with the
// preceding preamble covered by a Fletcher-32 checksum in hex.
func (h *fileHeader) encode() ([]byte, error) {
	pre := h.preamble()
	sum := fileio.Fletcher32([]byte(pre + " "))
	hexSum := fmt.Sprintf("%x", sum)
	if len(hexSum)%2 != 0 {
		hexSum += " "
	}
	line := pre + hexSum

	if len(line) > chunk.BlockSize {
		return nil, ErrHeaderTooLarge
	}
	buf := make([]byte, chunk.BlockSize)
	copy(buf, line)
	for i := len(line); i < len(buf); i++ {
		buf[i] = ' '
	}
	return buf, nil
}

// decodeHeader parses and checksum-validates one candidate header
// block. It returns an error for any block that is not a well-formed,
// checksum-valid header — a corrupt or unrelated block, not a crash —
// so the caller can simply skip it among the three candidates (spec.md
// §4.1).
func decodeHeader(buf []byte) (*fileHeader, error) {
	trimmed := strings.TrimRight(string(buf), " \x00")
	parts := strings.Split(trimmed, ",")
	if len(parts) != 9 {
		return nil, fmt.Errorf("store: header field count %d: %w", len(parts), ErrHeaderCorrupt)
	}

	fletcherPart := parts[8]
	const fletcherPrefix = "fletcher:"
	if !strings.HasPrefix(fletcherPart, fletcherPrefix) {
		return nil, fmt.Errorf("store: missing fletcher field: %w", ErrHeaderCorrupt)
	}
	givenHex := strings.TrimSpace(strings.TrimPrefix(fletcherPart, fletcherPrefix))

	preamble := strings.Join(parts[:8], ",") + "," + fletcherPrefix
	want := fileio.Fletcher32([]byte(preamble + " "))
	given, err := strconv.ParseUint(givenHex, 16, 32)
	if err != nil || uint32(given) != want {
		return nil, fmt.Errorf("store: header checksum mismatch: %w", ErrHeaderCorrupt)
	}

	field := func(idx int, key string) (string, error) {
		kv := strings.SplitN(parts[idx], ":", 2)
		if len(kv) != 2 || kv[0] != key {
			return "", fmt.Errorf("store: expected field %q at %d, got %q: %w", key, idx, parts[idx], ErrHeaderCorrupt)
		}
		return kv[1], nil
	}

	if v, err := field(0, "H"); err != nil || v != formatTag {
		return nil, fmt.Errorf("store: unrecognized format tag %q: %w", v, ErrHeaderCorrupt)
	}
	if v, err := field(1, "blockSize"); err != nil {
		return nil, err
	} else if v != strconv.Itoa(chunk.BlockSize) {
		return nil, fmt.Errorf("store: blockSize mismatch %q: %w", v, ErrHeaderCorrupt)
	}

	h := &fileHeader{}
	parseInt := func(idx int, key string) (int64, error) {
		v, err := field(idx, key)
		if err != nil {
			return 0, err
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("store: field %q not an integer: %w", key, ErrHeaderCorrupt)
		}
		return n, nil
	}

	format, err := parseInt(2, "format")
	if err != nil {
		return nil, err
	}
	formatRead, err := parseInt(3, "formatRead")
	if err != nil {
		return nil, err
	}
	h.FormatWrite, h.FormatRead = int(format), int(formatRead)

	if h.CreationTime, err = parseInt(4, "creationTime"); err != nil {
		return nil, err
	}
	if h.Version, err = parseInt(5, "version"); err != nil {
		return nil, err
	}
	if h.RootChunk, err = parseInt(6, "rootChunk"); err != nil {
		return nil, err
	}
	lastMapID, err := parseInt(7, "lastMapId")
	if err != nil {
		return nil, err
	}
	h.LastMapID = uint32(lastMapID)

	return h, nil
}

// readCandidateHeader reads one BlockSize block at off and decodes it,
// returning (nil, nil) rather than an error when the block is simply
// not a valid header — that is an expected outcome for two of the
// three candidates, not a failure.
func readCandidateHeader(b *fileio.Backend, off int64, fileSize int64) *fileHeader {
	if off < 0 || off+chunk.BlockSize > fileSize {
		return nil
	}
	buf := make([]byte, chunk.BlockSize)
	if err := b.ReadAt(buf, off); err != nil {
		return nil
	}
	h, err := decodeHeader(buf)
	if err != nil {
		return nil
	}
	return h
}

// recoverHeader examines the three candidate blocks spec.md §4.1 names
// — block 0, block 1, and the file's last block — and returns the
// valid candidate with the largest version. Per DESIGN.md's resolution
// of the "trailing header authority" open question, the leading pair
// is only a hint for locating the newest chunk without a full scan;
// the trailing block of the newest chunk is always cross-validated
// against it here by simply being a candidate on equal footing.
func recoverHeader(b *fileio.Backend) (*fileHeader, error) {
	size, err := b.Size()
	if err != nil {
		return nil, err
	}

	candidates := []*fileHeader{
		readCandidateHeader(b, 0, size),
		readCandidateHeader(b, chunk.BlockSize, size),
	}
	if size > 2*chunk.BlockSize {
		lastBlockOff := size - (size % chunk.BlockSize)
		if size%chunk.BlockSize == 0 {
			lastBlockOff = size - chunk.BlockSize
		}
		candidates = append(candidates, readCandidateHeader(b, lastBlockOff, size))
	}

	var best *fileHeader
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if best == nil || c.Version > best.Version {
			best = c
		}
	}
	if best == nil {
		return nil, ErrHeaderCorrupt
	}
	return best, nil
}
