package vectorindex

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Snapshot format, little endian:
//
//	magic "MKVX", version u16, dims u32, model str, count u32,
//	count × (chunk str, document str, workspace str, revision u64,
//	         hash str, model str, dims × f32)
//
// str is a u32 length followed by bytes. Only live entries are written.
const (
	snapshotMagic   = "MKVX"
	snapshotVersion = 1
	maxStringLen    = 1 << 20
	maxDimensions   = 1 << 16
)

// ErrCorruptSnapshot indicates snapshot bytes that cannot be decoded.
var ErrCorruptSnapshot = errors.New("corrupt index snapshot")

// WriteSnapshot serialises the live entries of the current snapshot.
func (idx *Index) WriteSnapshot(w io.Writer) error {
	s := idx.snap.Load()
	bw := bufio.NewWriter(w)
	enc := &encoder{w: bw}

	enc.bytes([]byte(snapshotMagic))
	enc.u16(snapshotVersion)
	enc.u32(uint32(s.dims))
	enc.str(s.model)
	enc.u32(uint32(len(s.log) - s.dead))

	for _, e := range s.log {
		if !s.isLive(e) {
			continue
		}
		enc.str(e.data.Embedding.ChunkID)
		enc.str(e.data.DocumentID)
		enc.str(e.data.WorkspaceID)
		enc.u64(e.data.Revision)
		enc.str(e.data.Embedding.ContentHash)
		enc.str(e.data.Embedding.Model)
		for _, x := range e.vector {
			enc.u32(math.Float32bits(x))
		}
	}

	if enc.err != nil {
		return fmt.Errorf("writing snapshot: %w", enc.err)
	}
	return bw.Flush()
}

// ReadSnapshot replaces the index contents with a serialised snapshot.
// Entries are re-sequenced in their stored order. The index is untouched
// if decoding fails.
func (idx *Index) ReadSnapshot(r io.Reader) error {
	dec := &decoder{r: bufio.NewReader(r)}

	magic := dec.bytes(len(snapshotMagic))
	version := dec.u16()
	if dec.err == nil && (string(magic) != snapshotMagic || version != snapshotVersion) {
		return fmt.Errorf("%w: bad header", ErrCorruptSnapshot)
	}
	dims := int(dec.u32())
	model := dec.str()
	count := dec.u32()
	if dec.err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptSnapshot, dec.err)
	}
	if dims > maxDimensions || (count > 0 && dims == 0) {
		return fmt.Errorf("%w: %d dimensions for %d entries", ErrCorruptSnapshot, dims, count)
	}

	next := &snapshot{
		tombstones: map[string]uint64{},
		dims:       dims,
		model:      model,
		nextSeq:    1,
	}
	for range count {
		e := &entry{seq: next.nextSeq}
		e.data.Embedding.ChunkID = dec.str()
		e.data.DocumentID = dec.str()
		e.data.WorkspaceID = dec.str()
		e.data.Revision = dec.u64()
		e.data.Embedding.ContentHash = dec.str()
		e.data.Embedding.Model = dec.str()
		e.vector = make([]float32, dims)
		for i := range e.vector {
			e.vector[i] = math.Float32frombits(dec.u32())
		}
		if dec.err != nil {
			return fmt.Errorf("%w: entry %d: %v", ErrCorruptSnapshot, next.nextSeq, dec.err)
		}
		e.data.Embedding.Vector = e.vector
		e.norm = magnitude(e.vector)
		next.log = append(next.log, e)
		next.nextSeq++
	}

	idx.mu.Lock()
	idx.snap.Store(next)
	idx.mu.Unlock()
	return nil
}

type encoder struct {
	w   io.Writer
	buf [8]byte
	err error
}

func (e *encoder) bytes(b []byte) {
	if e.err == nil {
		_, e.err = e.w.Write(b)
	}
}

func (e *encoder) u16(v uint16) {
	binary.LittleEndian.PutUint16(e.buf[:2], v)
	e.bytes(e.buf[:2])
}

func (e *encoder) u32(v uint32) {
	binary.LittleEndian.PutUint32(e.buf[:4], v)
	e.bytes(e.buf[:4])
}

func (e *encoder) u64(v uint64) {
	binary.LittleEndian.PutUint64(e.buf[:8], v)
	e.bytes(e.buf[:8])
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.bytes([]byte(s))
}

type decoder struct {
	r   io.Reader
	err error
}

func (d *decoder) bytes(n int) []byte {
	if d.err != nil {
		return nil
	}
	b := make([]byte, n)
	_, d.err = io.ReadFull(d.r, b)
	return b
}

func (d *decoder) u16() uint16 {
	b := d.bytes(2)
	if d.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *decoder) u32() uint32 {
	b := d.bytes(4)
	if d.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) u64() uint64 {
	b := d.bytes(8)
	if d.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *decoder) str() string {
	n := d.u32()
	if d.err != nil {
		return ""
	}
	if n > maxStringLen {
		d.err = fmt.Errorf("string length %d exceeds limit", n)
		return ""
	}
	return string(d.bytes(int(n)))
}
