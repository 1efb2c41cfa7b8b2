// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

// readCompressedUnsigned decodes the variable-width unsigned integer
// encoding ECMA-335 §II.23.2 uses throughout signature blobs (and, via
// decodeBlobLength in heaps.go, to prefix every #Blob-heap entry): a 1-,
// 2- or 4-byte encoding selected by the top bits of the first byte.
func readCompressedUnsigned(c *cursor) (uint32, error) {
	b0, err := c.u8()
	if err != nil {
		return 0, err
	}
	switch {
	case b0&0x80 == 0:
		return uint32(b0), nil
	case b0&0xC0 == 0x80:
		b1, err := c.u8()
		if err != nil {
			return 0, err
		}
		return (uint32(b0&0x3F) << 8) | uint32(b1), nil
	case b0&0xE0 == 0xC0:
		rest, err := c.bytes(3)
		if err != nil {
			return 0, err
		}
		return (uint32(b0&0x1F) << 24) | (uint32(rest[0]) << 16) |
			(uint32(rest[1]) << 8) | uint32(rest[2]), nil
	default:
		return 0, ErrOutsideBoundary
	}
}

// readCompressedSigned decodes the signed compressed integer encoding of
// ECMA-335 §II.23.2: the unsigned encoding above, right-rotated by one
// bit so the sign rides in bit 0, then sign-extended according to which
// of the three widths was used.
func readCompressedSigned(c *cursor) (int32, error) {
	before := c.pos
	n, err := readCompressedUnsigned(c)
	if err != nil {
		return 0, err
	}
	width := c.pos - before

	if n&1 == 0 {
		return int32(n >> 1), nil
	}
	switch width {
	case 1:
		return int32(n>>1) - 0x40, nil
	case 2:
		return int32(n>>1) - 0x2000, nil
	case 4:
		return int32(n>>1) - 0x10000000, nil
	default:
		return 0, ErrOutsideBoundary
	}
}

// readCodedTypeDefOrRefOrSpec decodes the 2-bit-tagged TypeDefOrRefOrSpec
// encoding signatures use to embed a type token (ECMA-335 §II.23.2.8),
// distinct from the table-level TypeDefOrRef coded index only in that it
// additionally admits TypeSpec and is carried as a compressed unsigned
// integer rather than a fixed-width table column.
func readCodedTypeDefOrRefOrSpec(c *cursor) (RowID, error) {
	n, err := readCompressedUnsigned(c)
	if err != nil {
		return RowID{}, err
	}
	tables := [...]TableID{TypeDef, TypeRef, TypeSpec}
	tag := n & 0x3
	if int(tag) >= len(tables) {
		return RowID{}, ErrOutsideBoundary
	}
	return RowID{Table: tables[tag], Row: n >> 2}, nil
}
