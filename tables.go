// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "encoding/binary"

// RowID names one row of the metadata tables: a table and a 1-based row
// number, the same addressing scheme ECMA-335 tokens use. A zero Row
// means "no row" (a null reference), matching how simple and coded
// indices encode absence.
type RowID struct {
	Table TableID
	Row   uint32
}

// IsNil reports whether id refers to no row.
func (id RowID) IsNil() bool { return id.Row == 0 }

// rowOffset returns the byte offset of row's first column within the
// tables stream, or an error if row is out of range.
func (db *Database) rowOffset(table TableID, row uint32) (uint32, error) {
	if table < 0 || table >= TableCount {
		return 0, ErrOutsideBoundary
	}
	if row == 0 || row > db.rowCounts[table] {
		return 0, ErrOutsideBoundary
	}
	return db.tableOffsets[table] + (row-1)*db.rowSizes[table], nil
}

// rawColumn reads the raw little-endian value of column col of the given
// row, zero-extended to uint32. This is the single decode path every
// typed accessor below goes through; no row is ever materialized as a
// struct, each field is read on demand straight from the mapped file.
func (db *Database) rawColumn(table TableID, row uint32, col int) (uint32, error) {
	off, err := db.rowOffset(table, row)
	if err != nil {
		return 0, err
	}
	cols := tableColumns[table]
	if col < 0 || col >= len(cols) {
		return 0, ErrOutsideBoundary
	}
	coff := off + db.columnOffsets[table][col]
	width := db.columnWidths[table][col]
	if int(coff)+int(width) > len(db.tablesData) {
		return 0, ErrOutsideBoundary
	}
	switch width {
	case 2:
		return uint32(binary.LittleEndian.Uint16(db.tablesData[coff:])), nil
	case 4:
		return binary.LittleEndian.Uint32(db.tablesData[coff:]), nil
	}
	return 0, ErrOutsideBoundary
}

// columnIndex returns the position of a named column within a table's
// schema, or -1 if the table carries no such column.
func columnIndex(table TableID, name string) int {
	for i, cd := range tableColumns[table] {
		if cd.name == name {
			return i
		}
	}
	return -1
}

// U16 reads a fixed 16-bit column by name.
func (db *Database) U16(table TableID, row uint32, name string) (uint16, error) {
	i := columnIndex(table, name)
	if i < 0 {
		return 0, ErrOutsideBoundary
	}
	v, err := db.rawColumn(table, row, i)
	return uint16(v), err
}

// U32 reads a fixed 32-bit column by name.
func (db *Database) U32(table TableID, row uint32, name string) (uint32, error) {
	i := columnIndex(table, name)
	if i < 0 {
		return 0, ErrOutsideBoundary
	}
	return db.rawColumn(table, row, i)
}

// String reads a #Strings-heap column by name.
func (db *Database) String(table TableID, row uint32, name string) (string, error) {
	i := columnIndex(table, name)
	if i < 0 {
		return "", ErrOutsideBoundary
	}
	v, err := db.rawColumn(table, row, i)
	if err != nil {
		return "", err
	}
	return db.strings.String(v)
}

// GUID reads a #GUID-heap column by name.
func (db *Database) GUID(table TableID, row uint32, name string) ([16]byte, error) {
	i := columnIndex(table, name)
	if i < 0 {
		return [16]byte{}, ErrOutsideBoundary
	}
	v, err := db.rawColumn(table, row, i)
	if err != nil {
		return [16]byte{}, err
	}
	return db.guids.GUID(v)
}

// Blob reads a #Blob-heap column by name.
func (db *Database) Blob(table TableID, row uint32, name string) ([]byte, error) {
	i := columnIndex(table, name)
	if i < 0 {
		return nil, ErrOutsideBoundary
	}
	v, err := db.rawColumn(table, row, i)
	if err != nil {
		return nil, err
	}
	return db.blobs.Blob(v)
}

// SimpleIndex reads a single-table row-index column by name, returning
// the referenced row id.
func (db *Database) SimpleIndex(table TableID, row uint32, name string) (RowID, error) {
	i := columnIndex(table, name)
	if i < 0 {
		return RowID{}, ErrOutsideBoundary
	}
	cd := tableColumns[table][i]
	if cd.kind != colSimpleIndex {
		return RowID{}, ErrOutsideBoundary
	}
	v, err := db.rawColumn(table, row, i)
	if err != nil {
		return RowID{}, err
	}
	return RowID{Table: cd.simpleTarget, Row: v}, nil
}

// CodedIndex reads a coded (tagged-union) index column by name, ECMA-335
// §II.24.2.6: the low tagBits bits select the target table from the
// index's table list, the remaining bits are the 1-based row number.
func (db *Database) CodedIndex(table TableID, row uint32, name string) (RowID, error) {
	i := columnIndex(table, name)
	if i < 0 {
		return RowID{}, ErrOutsideBoundary
	}
	cd := tableColumns[table][i]
	if cd.kind != colCodedIndex {
		return RowID{}, ErrOutsideBoundary
	}
	v, err := db.rawColumn(table, row, i)
	if err != nil {
		return RowID{}, err
	}
	return decodeCodedIndex(cd.coded, v)
}

func decodeCodedIndex(c *codedIndexDef, v uint32) (RowID, error) {
	tagMask := uint32(1)<<c.tagBits - 1
	tag := v & tagMask
	rowNum := v >> c.tagBits
	if int(tag) >= len(c.tables) {
		return RowID{}, ErrOutsideBoundary
	}
	return RowID{Table: c.tables[tag], Row: rowNum}, nil
}

// ColumnNames returns the schema's column names for a table, in
// declaration order, for callers that want to enumerate a row generically.
func ColumnNames(table TableID) []string {
	cols := tableColumns[table]
	names := make([]string, len(cols))
	for i, cd := range cols {
		names[i] = cd.name
	}
	return names
}

// DumpRow decodes every column of one row into a name-keyed map, using
// each column's declared kind to pick string/GUID/blob-length/index
// decoding instead of leaving the caller to know the schema. It exists
// for generic inspection (the cmd/clrdump CLI's row dump) rather than
// any hot path, which otherwise always goes through the named accessors
// above.
func (db *Database) DumpRow(table TableID, row uint32) (map[string]any, error) {
	cols := tableColumns[table]
	out := make(map[string]any, len(cols))
	for _, cd := range cols {
		v, err := db.rawColumn(table, row, columnIndex(table, cd.name))
		if err != nil {
			return nil, err
		}
		switch cd.kind {
		case colU16, colU32:
			out[cd.name] = v
		case colStringHeap:
			s, err := db.strings.String(v)
			if err != nil {
				return nil, err
			}
			out[cd.name] = s
		case colGUIDHeap:
			g, err := db.guids.GUID(v)
			if err != nil {
				return nil, err
			}
			out[cd.name] = g
		case colBlobHeap:
			b, err := db.blobs.Blob(v)
			if err != nil {
				return nil, err
			}
			out[cd.name] = b
		case colSimpleIndex:
			out[cd.name] = RowID{Table: cd.simpleTarget, Row: v}
		case colCodedIndex:
			ref, err := decodeCodedIndex(cd.coded, v)
			if err != nil {
				return nil, err
			}
			out[cd.name] = ref
		}
	}
	return out, nil
}
