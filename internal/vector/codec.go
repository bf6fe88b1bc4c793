package vector

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/hyperjump/kiku/internal/models"
)

// On-disk layout, little endian:
//
//	magic "KIKU" | version u32 | dimensions u32 | count u32
//	per chunk: id str | document id str | sequence u32 | text str | dimensions*f32
//
// where str is a u32 byte length followed by the bytes.
const (
	indexMagic    = "KIKU"
	indexVersion  = 1
	// maxStringLen bounds a single decoded string.
	maxStringLen  = 16 << 20
	// maxDimensions bounds the vector size read from a header.
	maxDimensions = 1 << 16

	headerLen   = len(indexMagic) + 3*4
	// minChunkLen is a chunk record with empty strings and no vector.
	minChunkLen = 4 * 4
)

var errBadIndexFile = errors.New("bad index file")

func encodeSnapshot(w io.Writer, s *snapshot) error {
	bw := bufio.NewWriter(w)
	enc := &encoder{w: bw}
	enc.bytes([]byte(indexMagic))
	enc.u32(indexVersion)
	enc.u32(uint32(s.dimensions))
	enc.u32(uint32(len(s.chunks)))
	for _, ch := range s.chunks {
		enc.str(ch.ID)
		enc.str(ch.DocumentID)
		enc.u32(uint32(ch.SequenceIndex))
		enc.str(ch.Text)
		for _, v := range ch.Embedding {
			enc.u32(math.Float32bits(v))
		}
	}
	if enc.err != nil {
		return enc.err
	}
	return bw.Flush()
}

// decodeSnapshot reads a snapshot of size bytes. Header counts that cannot
// fit in size are rejected before anything is allocated for them.
func decodeSnapshot(r io.Reader, size int64) (*snapshot, error) {
	dec := &decoder{r: bufio.NewReader(r)}
	magic := dec.fixed(len(indexMagic))
	version := dec.u32()
	dims := int(dec.u32())
	n := int(dec.u32())
	if dec.err != nil {
		return nil, fmt.Errorf("%w: header: %w", errBadIndexFile, dec.err)
	}
	if string(magic) != indexMagic || version != indexVersion {
		return nil, fmt.Errorf("%w: unknown format %q v%d", errBadIndexFile, magic, version)
	}
	if n > 0 && dims == 0 {
		return nil, fmt.Errorf("%w: %d chunks without dimensions", errBadIndexFile, n)
	}
	if dims > maxDimensions {
		return nil, fmt.Errorf("%w: %d dimensions exceeds limit %d", errBadIndexFile, dims, maxDimensions)
	}
	if need := int64(n) * int64(minChunkLen+4*dims); need > size-int64(headerLen) {
		return nil, fmt.Errorf("%w: %d chunks of %d dimensions cannot fit in %d bytes",
			errBadIndexFile, n, dims, size)
	}

	chunks := make([]models.DocumentChunk, 0, min(n, 1<<16))
	for i := 0; i < n; i++ {
		ch := models.DocumentChunk{
			ID:            dec.str(),
			DocumentID:    dec.str(),
			SequenceIndex: int(dec.u32()),
			Text:          dec.str(),
		}
		vec := make([]float32, dims)
		for j := range vec {
			vec[j] = math.Float32frombits(dec.u32())
		}
		if dec.err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %w", errBadIndexFile, i, dec.err)
		}
		ch.Embedding = vec
		chunks = append(chunks, ch)
	}
	s, err := emptySnapshot.withUpsert(chunks)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadIndexFile, err)
	}
	return s, nil
}

type encoder struct {
	w   io.Writer
	err error
	buf [4]byte
}

func (e *encoder) bytes(b []byte) {
	if e.err == nil {
		_, e.err = e.w.Write(b)
	}
}

func (e *encoder) u32(v uint32) {
	binary.LittleEndian.PutUint32(e.buf[:], v)
	e.bytes(e.buf[:])
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.bytes([]byte(s))
}

type decoder struct {
	r   io.Reader
	err error
}

func (d *decoder) fixed(n int) []byte {
	if d.err != nil {
		return nil
	}
	b := make([]byte, n)
	_, d.err = io.ReadFull(d.r, b)
	return b
}

func (d *decoder) u32() uint32 {
	b := d.fixed(4)
	if d.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) str() string {
	n := d.u32()
	if d.err == nil && n > maxStringLen {
		d.err = fmt.Errorf("string length %d exceeds limit", n)
	}
	return string(d.fixed(int(n)))
}
