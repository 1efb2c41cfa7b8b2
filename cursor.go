// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "encoding/binary"

// cursor is a bounds-checked, seekable little-endian reader over a byte
// range. It generalizes the free-standing ReadUint32/ReadUint16/
// ReadBytesAtOffset functions of helper.go into a single type so the
// schema, row-accessor and signature-parsing layers share one bounds-check
// path instead of repeating the "offset+n > size" test at every call site.
type cursor struct {
	data []byte
	pos  uint32
}

// newCursor returns a cursor over data starting at position 0.
func newCursor(data []byte) cursor {
	return cursor{data: data}
}

// newCursorAt returns a cursor over data starting at pos.
func newCursorAt(data []byte, pos uint32) cursor {
	return cursor{data: data, pos: pos}
}

func (c *cursor) remaining() uint32 {
	if uint32(len(c.data)) <= c.pos {
		return 0
	}
	return uint32(len(c.data)) - c.pos
}

func (c *cursor) atEnd() bool {
	return c.pos >= uint32(len(c.data))
}

// u8 reads and advances past a single byte.
func (c *cursor) u8() (uint8, error) {
	if c.remaining() < 1 {
		return 0, ErrOutsideBoundary
	}
	v := c.data[c.pos]
	c.pos++
	return v, nil
}

// u16 reads and advances past a little-endian uint16.
func (c *cursor) u16() (uint16, error) {
	if c.remaining() < 2 {
		return 0, ErrOutsideBoundary
	}
	v := binary.LittleEndian.Uint16(c.data[c.pos:])
	c.pos += 2
	return v, nil
}

// u32 reads and advances past a little-endian uint32.
func (c *cursor) u32() (uint32, error) {
	if c.remaining() < 4 {
		return 0, ErrOutsideBoundary
	}
	v := binary.LittleEndian.Uint32(c.data[c.pos:])
	c.pos += 4
	return v, nil
}

// u64 reads and advances past a little-endian uint64.
func (c *cursor) u64() (uint64, error) {
	if c.remaining() < 8 {
		return 0, ErrOutsideBoundary
	}
	v := binary.LittleEndian.Uint64(c.data[c.pos:])
	c.pos += 8
	return v, nil
}

// bytes reads and advances past n raw bytes, returning a view (not a copy)
// into the underlying slice.
func (c *cursor) bytes(n uint32) ([]byte, error) {
	if c.remaining() < n {
		return nil, ErrOutsideBoundary
	}
	v := c.data[c.pos : c.pos+n]
	c.pos += n
	return v, nil
}

// skip advances the cursor by n bytes without reading.
func (c *cursor) skip(n uint32) error {
	if c.remaining() < n {
		return ErrOutsideBoundary
	}
	c.pos += n
	return nil
}
