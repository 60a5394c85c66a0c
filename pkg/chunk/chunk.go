// Package chunk describes the immutable, block-aligned byte region a
// single commit writes: its descriptor and the fixed binary header
// re-serialized at the start of its on-disk region (spec.md §3, §6).
package chunk

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/nainya/chunkstore/pkg/page"
)

// BlockSize is the block-alignment unit chunks and the file header are
// rounded to (spec.md §3: "block-aligned to BLOCK_SIZE (4096)").
const BlockSize = 4096

// HeaderSize is the fixed size of a chunk's on-disk header block. spec.md
// §6 sketches a ≤40-byte packed-varint layout but says its exact binary
// form is "opaque to the spec beyond" carrying id/metaRootPos/length/
// pageCount — this module uses a simple fixed-width record instead of
// packed varints so the header never needs to grow to hold a larger
// field, at the cost of a few more bytes than the sketch.
const HeaderSize = 72

// Chunk is the descriptor of one committed chunk: a contiguous,
// block-aligned byte range together with the bookkeeping store() needs
// to account for space and decide what to compact. Chunks are immutable
// once written, except that MaxLengthLive is updated in memory (and
// mirrored into the meta map) as pages inside it are superseded.
type Chunk struct {
	ID            uint64
	Start         int64 // byte offset of the chunk's own region
	Length        int32 // total bytes occupied, including trailing header
	MetaRootPos   page.Position
	Version       int64
	Time          int64 // seconds since store creation
	PageCount     uint64
	MaxLength     uint64 // nominal sum of all page max-lengths
	MaxLengthLive uint64 // sum over still-referenced pages

	// BodyLength is the exact byte length of the sealed (compressed
	// then encrypted) page region, between the chunk header and the
	// padding that precedes the trailing header block. It is needed to
	// read back exactly the sealed blob a commit wrote, since Length
	// also counts padding whose size isn't otherwise recoverable.
	BodyLength uint32
}

// FillRate returns 100*MaxLengthLive/MaxLength, the metric compaction
// ranks candidates by (spec.md §4.4, glossary).
func (c *Chunk) FillRate() float64 {
	if c.MaxLength == 0 {
		return 100
	}
	return 100 * float64(c.MaxLengthLive) / float64(c.MaxLength)
}

// Collectable reports whether c has no remaining live pages.
func (c *Chunk) Collectable() bool {
	return c.MaxLengthLive == 0
}

// End returns the first byte offset after this chunk's region.
func (c *Chunk) End() int64 {
	return c.Start + int64(c.Length)
}

// EncodeHeader serializes the chunk descriptor into a fixed HeaderSize
// byte block, padded with zeros.
func (c *Chunk) EncodeHeader() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint64(buf[0:], c.ID)
	binary.LittleEndian.PutUint64(buf[8:], c.PageCount)
	binary.LittleEndian.PutUint64(buf[16:], c.MaxLength)
	binary.LittleEndian.PutUint64(buf[24:], c.MaxLengthLive)
	binary.LittleEndian.PutUint64(buf[32:], uint64(c.MetaRootPos))
	binary.LittleEndian.PutUint64(buf[40:], uint64(c.Start))
	binary.LittleEndian.PutUint32(buf[48:], uint32(c.Length))
	binary.LittleEndian.PutUint64(buf[52:], uint64(c.Version))
	binary.LittleEndian.PutUint64(buf[60:], uint64(c.Time))
	binary.LittleEndian.PutUint32(buf[68:], c.BodyLength)
	return buf
}

// DecodeHeader parses a chunk header written by EncodeHeader.
func DecodeHeader(buf []byte) (*Chunk, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("chunk: header too short: %d bytes", len(buf))
	}
	c := &Chunk{
		ID:            binary.LittleEndian.Uint64(buf[0:]),
		PageCount:     binary.LittleEndian.Uint64(buf[8:]),
		MaxLength:     binary.LittleEndian.Uint64(buf[16:]),
		MaxLengthLive: binary.LittleEndian.Uint64(buf[24:]),
		MetaRootPos:   page.Position(binary.LittleEndian.Uint64(buf[32:])),
		Start:         int64(binary.LittleEndian.Uint64(buf[40:])),
		Length:        int32(binary.LittleEndian.Uint32(buf[48:])),
		Version:       int64(binary.LittleEndian.Uint64(buf[52:])),
		Time:          int64(binary.LittleEndian.Uint64(buf[60:])),
		BodyLength:    binary.LittleEndian.Uint32(buf[68:]),
	}
	return c, nil
}

// Serialize renders the chunk descriptor as the "chunk.<id>" meta-map
// value: a human-readable key:value record mirroring the file header's
// textual style (spec.md §3, §6), so recovery tooling can read meta
// dumps without a binary parser.
func (c *Chunk) Serialize() string {
	return fmt.Sprintf(
		"id:%d,start:%d,length:%d,metaRoot:%d,version:%d,time:%d,pageCount:%d,maxLength:%d,maxLengthLive:%d,bodyLength:%d",
		c.ID, c.Start, c.Length, uint64(c.MetaRootPos), c.Version, c.Time,
		c.PageCount, c.MaxLength, c.MaxLengthLive, c.BodyLength,
	)
}

// ParseSerialized parses the "chunk.<id>" value produced by Serialize.
func ParseSerialized(s string) (*Chunk, error) {
	fields := map[string]string{}
	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("chunk: malformed field %q", part)
		}
		fields[kv[0]] = kv[1]
	}

	get := func(name string) (int64, error) {
		v, ok := fields[name]
		if !ok {
			return 0, fmt.Errorf("chunk: missing field %q", name)
		}
		return strconv.ParseInt(v, 10, 64)
	}

	id, err := get("id")
	if err != nil {
		return nil, err
	}
	start, err := get("start")
	if err != nil {
		return nil, err
	}
	length, err := get("length")
	if err != nil {
		return nil, err
	}
	metaRoot, err := get("metaRoot")
	if err != nil {
		return nil, err
	}
	version, err := get("version")
	if err != nil {
		return nil, err
	}
	tm, err := get("time")
	if err != nil {
		return nil, err
	}
	pageCount, err := get("pageCount")
	if err != nil {
		return nil, err
	}
	maxLength, err := get("maxLength")
	if err != nil {
		return nil, err
	}
	maxLengthLive, err := get("maxLengthLive")
	if err != nil {
		return nil, err
	}
	bodyLength, err := get("bodyLength")
	if err != nil {
		return nil, err
	}

	return &Chunk{
		ID:            uint64(id),
		Start:         start,
		Length:        int32(length),
		MetaRootPos:   page.Position(uint64(metaRoot)),
		Version:       version,
		Time:          tm,
		PageCount:     uint64(pageCount),
		MaxLength:     uint64(maxLength),
		MaxLengthLive: uint64(maxLengthLive),
		BodyLength:    uint32(bodyLength),
	}, nil
}
