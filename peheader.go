// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"encoding/binary"

	internallog "github.com/saferwall/clrmeta/internal/log"
)

// COMImageFlagsType is the Flags field of the CLR header.
type COMImageFlagsType uint32

// CLR header flags, grounded on the teacher's COMImageFlagsType constants.
const (
	COMImageFlagsILOnly          COMImageFlagsType = 0x00000001
	COMImageFlags32BitRequired   COMImageFlagsType = 0x00000002
	COMImageFlagsILLibrary       COMImageFlagsType = 0x00000004
	COMImageFlagsStrongNameSigned COMImageFlagsType = 0x00000008
	COMImageFlagsNativeEntrypoint COMImageFlagsType = 0x00000010
	COMImageFlagsTrackDebugData  COMImageFlagsType = 0x00010000
	COMImageFlags32BitPreferred  COMImageFlagsType = 0x00020000
)

// String returns the set bits of a COMImageFlagsType value.
func (t COMImageFlagsType) String() []string {
	m := map[COMImageFlagsType]string{
		COMImageFlagsILOnly:           "ILOnly",
		COMImageFlags32BitRequired:    "32BitRequired",
		COMImageFlagsILLibrary:        "ILLibrary",
		COMImageFlagsStrongNameSigned: "StrongNameSigned",
		COMImageFlagsNativeEntrypoint: "NativeEntrypoint",
		COMImageFlagsTrackDebugData:   "TrackDebugData",
		COMImageFlags32BitPreferred:   "32BitPreferred",
	}
	var out []string
	for k, s := range m {
		if t&k != 0 {
			out = append(out, s)
		}
	}
	return out
}

// ImageCOR20Header is the CLR runtime header (IMAGE_COR20_HEADER), the
// structure the CLR directory entry of the optional header points to.
// Field-for-field from the teacher's dotnet.go, with the nested
// ImageDataDirectory type folded into this package's DataDirectory.
type ImageCOR20Header struct {
	Cb                      uint32
	MajorRuntimeVersion     uint16
	MinorRuntimeVersion     uint16
	MetaData                DataDirectory
	Flags                   COMImageFlagsType
	EntryPointRVAorToken    uint32
	Resources               DataDirectory
	StrongNameSignature     DataDirectory
	CodeManagerTable        DataDirectory
	VTableFixups            DataDirectory
	ExportAddressTableJumps DataDirectory
	ManagedNativeHeader     DataDirectory
}

// metadataRootMagic is the "BSJB" signature opening the metadata root.
const metadataRootMagic = 0x424A5342

// metadataStreamHeader is one entry of the metadata root's stream
// directory: a byte range within the metadata root plus the stream's
// name ("#~", "#Strings", "#GUID", "#Blob", "#US" ...).
type metadataStreamHeader struct {
	offset uint32
	size   uint32
	name   string
}

// tablesStreamHeader is the header of the "#~" (or "#-") tables stream,
// ECMA-335 §II.24.2.6.
type tablesStreamHeader struct {
	majorVersion uint8
	minorVersion uint8
	heapSizes    uint8
	valid        uint64
	sorted       uint64
}

const (
	heapSizeStringsWide = 1 << 0
	heapSizeGUIDWide    = 1 << 1
	heapSizeBlobWide    = 1 << 2
)

// Database is a parsed CLI metadata root: the table schema, row counts,
// precomputed row layout, and the three heaps rows reference into. It is
// the zero-copy replacement for the teacher's eagerly-decoded CLRData:
// rows are not materialized up front, only located.
type Database struct {
	file *File

	// strict and logger mirror the File's Options: strict turns a
	// recoverable anomaly (a duplicate stream name, an unsorted table
	// a lookup requires to be sorted) into a hard error; otherwise the
	// anomaly is logged through logger and parsing or the lookup best-
	// effort continues.
	strict bool
	logger *internallog.Helper

	CLRHeader ImageCOR20Header

	majorVersion, minorVersion uint16
	versionString              string

	streams map[string][]byte

	tsHeader tablesStreamHeader

	tablesData []byte

	rowCounts     [TableCount]uint32
	tableOffsets  [TableCount]uint32
	rowSizes      [TableCount]uint32
	columnOffsets [TableCount][]uint32
	columnWidths  [TableCount][]uint32

	strings stringsHeap
	guids   guidHeap
	blobs   blobHeap
}

// parseCLRHeaderDirectory locates and parses the CLI metadata root
// reached through the CLR data directory entry at rva/size. Grounded on
// the teacher's dotnet.go parseCLRHeaderDirectory, restructured around
// lazy row access instead of eager per-table decoding.
func (f *File) parseCLRHeaderDirectory(rva, size uint32) (*Database, error) {
	offset := f.GetOffsetFromRva(rva)
	var hdr ImageCOR20Header
	if err := f.structUnpack(&hdr, offset, uint32(binary.Size(hdr))); err != nil {
		return nil, err
	}

	if hdr.MetaData.VirtualAddress == 0 || hdr.MetaData.Size == 0 {
		return nil, ErrNoMetadataRoot
	}

	mdOffset := f.GetOffsetFromRva(hdr.MetaData.VirtualAddress)
	root, err := f.ReadBytesAtOffset(mdOffset, hdr.MetaData.Size)
	if err != nil {
		return nil, err
	}

	db := &Database{
		file:      f,
		CLRHeader: hdr,
		streams:   map[string][]byte{},
		strict:    f.opts != nil && f.opts.Strict,
		logger:    f.logger,
	}
	if err := db.parseMetadataRoot(root); err != nil {
		return nil, err
	}
	return db, nil
}

// parseMetadataRoot parses the metadata root header and stream
// directory, stashing each stream's raw bytes, then parses the tables
// stream header and computes every table's row layout.
func (db *Database) parseMetadataRoot(root []byte) error {
	c := newCursor(root)

	sig, err := c.u32()
	if err != nil {
		return err
	}
	if sig != metadataRootMagic {
		return ErrBadMetadataMagic
	}

	major, err := c.u16()
	if err != nil {
		return err
	}
	minor, err := c.u16()
	if err != nil {
		return err
	}
	db.majorVersion, db.minorVersion = major, minor

	if err := c.skip(4); err != nil { // reserved
		return err
	}

	versionLen, err := c.u32()
	if err != nil {
		return err
	}
	versionBytes, err := c.bytes(versionLen)
	if err != nil {
		return err
	}
	db.versionString = string(trimNUL(versionBytes))

	if err := c.skip(2); err != nil { // flags, reserved
		return err
	}
	streamCount, err := c.u16()
	if err != nil {
		return err
	}

	var tablesStreamName string
	for i := uint16(0); i < streamCount; i++ {
		sh, err := readStreamHeader(&c)
		if err != nil {
			return err
		}
		if int(sh.offset)+int(sh.size) > len(root) {
			return ErrOutsideBoundary
		}
		if _, dup := db.streams[sh.name]; dup {
			if db.strict {
				return ErrDuplicateStream
			}
			if db.logger != nil {
				db.logger.Warnf("metadata root: duplicate stream %q, keeping the last one seen", sh.name)
			}
		}
		db.streams[sh.name] = root[sh.offset : sh.offset+sh.size]
		if sh.name == "#~" || sh.name == "#-" {
			tablesStreamName = sh.name
		}
	}

	if tablesStreamName == "" {
		return ErrNoTablesStream
	}

	// The "#US" (user strings) stream is captured above like any other
	// named stream but deliberately left undecoded: user-string decoding
	// is out of scope for this core (spec Non-goals).
	db.strings = newStringsHeap(db.streams["#Strings"])
	db.guids = newGUIDHeap(db.streams["#GUID"])
	db.blobs = newBlobHeap(db.streams["#Blob"])

	return db.parseTablesStream(db.streams[tablesStreamName])
}

// readStreamHeader reads one StreamHeader entry: offset, size, then a
// NUL-terminated name padded to a 4-byte boundary.
func readStreamHeader(c *cursor) (metadataStreamHeader, error) {
	var sh metadataStreamHeader
	offset, err := c.u32()
	if err != nil {
		return sh, err
	}
	size, err := c.u32()
	if err != nil {
		return sh, err
	}
	sh.offset, sh.size = offset, size

	start := c.pos
	for {
		b, err := c.u8()
		if err != nil {
			return sh, err
		}
		if b == 0 {
			break
		}
	}
	nameLen := c.pos - start - 1
	sh.name = string(c.data[start : start+nameLen])

	padded := (nameLen + 1 + 3) &^ 3
	if err := c.skip(padded - nameLen - 1); err != nil {
		return sh, err
	}
	return sh, nil
}

// parseTablesStream parses the "#~"/"#-" header and computes, for every
// table whose bit is set in Valid, its row count, row size, per-column
// byte offsets within a row, and the table's starting offset within the
// stream — the precomputed layout every row accessor in tables.go reads
// against instead of re-walking the stream.
func (db *Database) parseTablesStream(data []byte) error {
	db.tablesData = data
	c := newCursor(data)

	if err := c.skip(4); err != nil { // reserved
		return err
	}
	major, err := c.u8()
	if err != nil {
		return err
	}
	minor, err := c.u8()
	if err != nil {
		return err
	}
	heapSizes, err := c.u8()
	if err != nil {
		return err
	}
	if err := c.skip(1); err != nil { // reserved
		return err
	}
	valid, err := c.u64()
	if err != nil {
		return err
	}
	sorted, err := c.u64()
	if err != nil {
		return err
	}
	db.tsHeader = tablesStreamHeader{majorVersion: major, minorVersion: minor, heapSizes: heapSizes, valid: valid, sorted: sorted}

	for t := TableID(0); t < TableCount; t++ {
		if !IsBitSet(valid, int(t)) {
			continue
		}
		rc, err := c.u32()
		if err != nil {
			return err
		}
		db.rowCounts[t] = rc
	}

	offset := c.pos
	for t := TableID(0); t < TableCount; t++ {
		if !IsBitSet(valid, int(t)) {
			continue
		}
		cols := tableColumns[t]
		offsets := make([]uint32, len(cols))
		widths := make([]uint32, len(cols))
		var rowSize uint32
		for i, cd := range cols {
			w := db.columnWidth(cd)
			offsets[i] = rowSize
			widths[i] = w
			rowSize += w
		}
		db.columnOffsets[t] = offsets
		db.columnWidths[t] = widths
		db.rowSizes[t] = rowSize
		db.tableOffsets[t] = offset
		offset += rowSize * db.rowCounts[t]
	}

	return nil
}

// columnWidth returns the on-disk byte width of a column, resolving
// heap-index and table-index columns against the row counts already
// read (heap widths from the stream header's heap_sizes byte, table
// index widths from ECMA-335 §II.24.2.6's "large index" rule: 4 bytes
// once any referenced table could exceed a 16-bit row number).
func (db *Database) columnWidth(cd columnDef) uint32 {
	switch cd.kind {
	case colU16:
		return 2
	case colU32:
		return 4
	case colStringHeap:
		if db.tsHeader.heapSizes&heapSizeStringsWide != 0 {
			return 4
		}
		return 2
	case colGUIDHeap:
		if db.tsHeader.heapSizes&heapSizeGUIDWide != 0 {
			return 4
		}
		return 2
	case colBlobHeap:
		if db.tsHeader.heapSizes&heapSizeBlobWide != 0 {
			return 4
		}
		return 2
	case colSimpleIndex:
		if db.rowCounts[cd.simpleTarget] > 0xFFFF {
			return 4
		}
		return 2
	case colCodedIndex:
		var maxRows uint32
		for _, t := range cd.coded.tables {
			if db.rowCounts[t] > maxRows {
				maxRows = db.rowCounts[t]
			}
		}
		if maxRows >= (uint32(1) << (16 - cd.coded.tagBits)) {
			return 4
		}
		return 2
	}
	return 0
}

func trimNUL(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}

// RowCount returns the number of rows table holds, zero if the table's
// bit is unset in the Valid mask.
func (db *Database) RowCount(table TableID) uint32 {
	if table < 0 || table >= TableCount {
		return 0
	}
	return db.rowCounts[table]
}

// HasTable reports whether table's bit is set in the tables stream's
// Valid mask.
func (db *Database) HasTable(table TableID) bool {
	return IsBitSet(db.tsHeader.valid, int(table))
}

// IsSorted reports whether table's bit is set in the tables stream's
// Sorted mask, the precondition for the binary-search lookups in
// relations.go.
func (db *Database) IsSorted(table TableID) bool {
	return IsBitSet(db.tsHeader.sorted, int(table))
}

// VersionString is the runtime version string recorded in the metadata
// root ("v4.0.30319" and similar).
func (db *Database) VersionString() string { return db.versionString }

// assemblyContentTypeMask and assemblyContentTypeWindowsRuntime decode a
// non-standard extension to AssemblyFlags, ECMA-335 §II.23.1.2: bits
// 9..11, unused by the standard, carry 0x0200 in a .winmd file's single
// Assembly row to mark it as Windows Runtime metadata.
const (
	assemblyContentTypeMask            = 0x0E00
	assemblyContentTypeWindowsRuntime  = 0x0200
)

// IsWindowsRuntime reports whether this database's Assembly row (there
// is at most one) carries the Windows Runtime content-type mask, i.e.
// this metadata was read from a .winmd file rather than an ordinary
// managed assembly.
func (db *Database) IsWindowsRuntime() (bool, error) {
	if db.RowCount(Assembly) == 0 {
		return false, nil
	}
	flags, err := db.U32(Assembly, 1, "Flags")
	if err != nil {
		return false, err
	}
	return flags&assemblyContentTypeMask == assemblyContentTypeWindowsRuntime, nil
}
