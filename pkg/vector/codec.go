package vector

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Serialized index layout, all integers little-endian:
//
//	magic   [4]byte "FVI1"
//	count   uint32
//	dim     uint32
//	entries count times:
//	  plen    uint32
//	  passage [plen]byte UTF-8
//	  vector  [dim]float32
var magic = [4]byte{'F', 'V', 'I', '1'}

// EncodeTo writes the index in the FVI1 binary format. Entries are
// written in insertion order so a decode rebuilds an identical index.
func (ix *Index) EncodeTo(w io.Writer) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.Write(magic[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	dim := 0
	if len(ix.entries) > 0 {
		dim = len(ix.entries[0].Vector)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(ix.entries))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(dim)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}

	for i, e := range ix.entries {
		if len(e.Vector) != dim {
			return fmt.Errorf("entry %d: vector has %d dimensions, index has %d", i, len(e.Vector), dim)
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(e.Passage))); err != nil {
			return fmt.Errorf("entry %d: write passage length: %w", i, err)
		}
		if _, err := bw.WriteString(e.Passage); err != nil {
			return fmt.Errorf("entry %d: write passage: %w", i, err)
		}
		for _, v := range e.Vector {
			if err := binary.Write(bw, binary.LittleEndian, math.Float32bits(v)); err != nil {
				return fmt.Errorf("entry %d: write vector: %w", i, err)
			}
		}
	}

	return bw.Flush()
}

// DecodeFrom reads an FVI1 serialized index and returns it rebuilt in
// the original insertion order. Truncated or corrupt input is reported
// as ErrBadFormat.
func DecodeFrom(r io.Reader) (*Index, error) {
	br := bufio.NewReader(r)

	var header [4]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrBadFormat, err)
	}
	if header != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrBadFormat, header[:])
	}

	var count, dim uint32
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: read count: %v", ErrBadFormat, err)
	}
	if err := binary.Read(br, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("%w: read dimensions: %v", ErrBadFormat, err)
	}

	ix := NewIndex()
	for i := uint32(0); i < count; i++ {
		var plen uint32
		if err := binary.Read(br, binary.LittleEndian, &plen); err != nil {
			return nil, fmt.Errorf("%w: entry %d: read passage length: %v", ErrBadFormat, i, err)
		}
		passage := make([]byte, plen)
		if _, err := io.ReadFull(br, passage); err != nil {
			return nil, fmt.Errorf("%w: entry %d: read passage: %v", ErrBadFormat, i, err)
		}

		vec := make([]float32, dim)
		for j := range vec {
			var bits uint32
			if err := binary.Read(br, binary.LittleEndian, &bits); err != nil {
				return nil, fmt.Errorf("%w: entry %d: read vector: %v", ErrBadFormat, i, err)
			}
			vec[j] = math.Float32frombits(bits)
		}

		ix.Add(string(passage), vec)
	}

	return ix, nil
}
