// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"bytes"
	"encoding/binary"
)

// The retrieval pack carries no sample PE/assembly binaries, so every test
// in this package builds its own minimal fixture bytes instead of loading
// one from disk. encoding/binary packs these structs with no padding in
// both directions, so a buffer built field-by-field here round-trips
// exactly through structUnpack's binary.Read.

// buildImageDOSHeader returns a valid-looking DOS header whose
// AddressOfNewEXEHeader points at lfanew.
func buildImageDOSHeader(lfanew uint32) ImageDOSHeader {
	return ImageDOSHeader{
		Magic:                 ImageDOSSignature,
		AddressOfNewEXEHeader: lfanew,
	}
}

func writeStruct(buf *bytes.Buffer, v any) {
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
}

// peFixture assembles a minimal, well-formed PE32 image: DOS header, NT
// headers (PE32 optional header), one section, and optionally a CLR
// runtime header plus metadata root placed inside that section.
type peFixture struct {
	sectionName    [8]byte
	sectionData    []byte
	clrHeader      *ImageCOR20Header
	clrHeaderBytes []byte // overrides clrHeader when set, for malformed-header tests
}

// buildPEImage lays out: DOS header, lfanew-aligned NT headers, a single
// section header, then the section's raw data (sectionData, with the CLR
// header and metadata root spliced in at the front when present).
func (fx *peFixture) buildPEImage() []byte {
	const lfanew = dosHeaderSizeConst

	var fileHeader ImageFileHeader
	fileHeader.Machine = ImageFileHeaderMachineType(ImageFileMachineI386)
	fileHeader.NumberOfSections = 1

	var opt ImageOptionalHeader32
	opt.Magic = ImageNtOptionalHeader32Magic
	opt.FileAlignment = 0x200
	// Kept equal to FileAlignment (and below adjustSectionAlignment's 0x1000
	// floor) so RVA and file offset coincide for this fixture's single
	// section: adjustSectionAlignment falls back to FileAlignment whenever
	// SectionAlignment is under 0x1000.
	opt.SectionAlignment = 0x200
	opt.SizeOfHeaders = 0x200

	fileHeaderSize := uint32(binary.Size(fileHeader))
	optSize := uint32(binary.Size(opt))
	fileHeader.SizeOfOptionalHeader = uint16(optSize)

	sectionDataOffset := uint32(0x200)

	payload := fx.sectionData
	if fx.clrHeaderBytes != nil {
		payload = append(append([]byte{}, fx.clrHeaderBytes...), payload...)
	} else if fx.clrHeader != nil {
		var hb bytes.Buffer
		writeStruct(&hb, *fx.clrHeader)
		payload = append(hb.Bytes(), payload...)
	}

	buf := new(bytes.Buffer)

	dos := buildImageDOSHeader(lfanew)
	writeStruct(buf, dos)
	buf.Write(make([]byte, int(lfanew)-buf.Len()))

	binary.Write(buf, binary.LittleEndian, uint32(ImageNTSignature))
	writeStruct(buf, fileHeader)
	writeStruct(buf, opt)

	name := fx.sectionName
	if name == ([8]byte{}) {
		copy(name[:], ".cliheap")
	}
	sect := ImageSectionHeader{
		Name:             name,
		VirtualSize:      uint32(len(payload)),
		VirtualAddress:   sectionDataOffset,
		SizeOfRawData:    uint32(len(payload)),
		PointerToRawData: sectionDataOffset,
	}
	writeStruct(buf, sect)

	buf.Write(make([]byte, int(sectionDataOffset)-buf.Len()))
	buf.Write(payload)

	// Pad to the minimum size New/NewBytes requires.
	for buf.Len() < minPESize {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// withCLRDirectory patches the data directory entry for the CLR header to
// point rva/size bytes into the section payload (the offset of the CLR
// header within sectionDataOffset's section, which buildPEImage always
// places at the very front of the section).
func (fx *peFixture) withCLRDirectory(img []byte, size uint32) []byte {
	const sectionDataOffset = 0x200
	var dd DataDirectory
	dd.VirtualAddress = sectionDataOffset
	dd.Size = size

	// DataDirectory[ImageDirectoryEntryCLR] sits at a fixed offset within
	// ImageOptionalHeader32: everything up to the DataDirectory array.
	ddOffset := dosHeaderSizeConst + 4 + uint32(binary.Size(ImageFileHeader{})) +
		offsetOfDataDirectoryArray() + uint32(ImageDirectoryEntryCLR)*8

	var b bytes.Buffer
	writeStruct(&b, dd)
	copy(img[ddOffset:], b.Bytes())
	return img
}

const dosHeaderSizeConst = 64

// offsetOfDataDirectoryArray returns the byte offset of DataDirectory
// within ImageOptionalHeader32, computed from the struct layout rather
// than hand-counted so it stays correct if a field is ever added above it.
func offsetOfDataDirectoryArray() uint32 {
	var opt ImageOptionalHeader32
	full := uint32(binary.Size(opt))
	arr := uint32(binary.Size(opt.DataDirectory))
	return full - arr
}

// buildStringsHeap packs strs NUL-terminated back to back, offset 0 always
// the empty string per ECMA-335 §II.24.2.3. Returns the heap bytes and each
// string's offset, in order.
func buildStringsHeap(strs ...string) ([]byte, []uint32) {
	buf := []byte{0}
	offsets := make([]uint32, len(strs))
	for i, s := range strs {
		offsets[i] = uint32(len(buf))
		buf = append(buf, []byte(s)...)
		buf = append(buf, 0)
	}
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	return buf, offsets
}

// buildGUIDHeap packs guids back to back (1-based indexing, index 0 means
// "none" and is not itself present in the backing bytes).
func buildGUIDHeap(guids ...[16]byte) []byte {
	buf := make([]byte, 0, 16*len(guids))
	for _, g := range guids {
		buf = append(buf, g[:]...)
	}
	return buf
}

// encodeCompressedUnsigned mirrors readCompressedUnsigned's encoding for
// building signature/blob fixtures by hand.
func encodeCompressedUnsigned(n uint32) []byte {
	switch {
	case n <= 0x7F:
		return []byte{byte(n)}
	case n <= 0x3FFF:
		return []byte{byte(n>>8) | 0x80, byte(n)}
	default:
		return []byte{byte(n>>24) | 0xC0, byte(n >> 16), byte(n >> 8), byte(n)}
	}
}

// buildBlobHeap packs blobs back to back, each prefixed with its
// compressed length per ECMA-335 §II.24.2.4 (offset 0 is reserved empty).
func buildBlobHeap(blobs ...[]byte) ([]byte, []uint32) {
	buf := []byte{0}
	offsets := make([]uint32, len(blobs))
	for i, b := range blobs {
		offsets[i] = uint32(len(buf))
		buf = append(buf, encodeCompressedUnsigned(uint32(len(b)))...)
		buf = append(buf, b...)
	}
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	return buf, offsets
}

// tableRow is a name-keyed set of raw column values used to build a
// tables-stream fixture row; values are resolved against each column's
// on-disk width by buildTablesStream.
type tableRow map[string]uint32

// buildTablesStream serializes a "#~" stream for exactly the given tables
// and rows. heapWide sets the heap_sizes byte (which heaps use 4-byte
// rather than 2-byte offsets); sortedMask marks which table bits are set
// in the Sorted bitmask (FindEqualRange requires this).
func buildTablesStream(heapWide uint8, sortedMask uint64, rows map[TableID][]tableRow) []byte {
	var valid uint64
	rowCounts := [TableCount]uint32{}
	for t, rs := range rows {
		if len(rs) == 0 {
			continue
		}
		valid |= 1 << uint(t)
		rowCounts[t] = uint32(len(rs))
	}

	tmp := &Database{tsHeader: tablesStreamHeader{heapSizes: heapWide}}
	tmp.rowCounts = rowCounts

	buf := new(bytes.Buffer)
	buf.Write([]byte{0, 0, 0, 0}) // reserved
	buf.WriteByte(2)              // major
	buf.WriteByte(0)              // minor
	buf.WriteByte(heapWide)
	buf.WriteByte(0) // reserved
	binary.Write(buf, binary.LittleEndian, valid)
	binary.Write(buf, binary.LittleEndian, sortedMask)

	for t := TableID(0); t < TableCount; t++ {
		if valid&(1<<uint(t)) == 0 {
			continue
		}
		binary.Write(buf, binary.LittleEndian, rowCounts[t])
	}

	for t := TableID(0); t < TableCount; t++ {
		if valid&(1<<uint(t)) == 0 {
			continue
		}
		for _, row := range rows[t] {
			buf.Write(buildRowBytes(tmp, t, row))
		}
	}

	return buf.Bytes()
}

// buildRowBytes serializes one row of table t against the column widths
// db (built with the final heap_sizes/row_counts already set) computes,
// defaulting any column absent from vals to zero.
func buildRowBytes(db *Database, t TableID, vals tableRow) []byte {
	cols := tableColumns[t]
	out := make([]byte, 0, len(cols)*4)
	for _, cd := range cols {
		w := db.columnWidth(cd)
		v := vals[cd.name]
		switch w {
		case 2:
			out = append(out, byte(v), byte(v>>8))
		case 4:
			out = append(out, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
		}
	}
	return out
}

// buildMetadataRoot assembles a "BSJB" metadata root: the fixed header,
// version string, stream directory, then each named stream's bytes. The
// order streams are listed in is the order they are written and the order
// their directory entries appear.
func buildMetadataRoot(version string, streams []struct {
	name string
	data []byte
}) []byte {
	verBytes := append([]byte(version), 0)
	for len(verBytes)%4 != 0 {
		verBytes = append(verBytes, 0)
	}

	var dir bytes.Buffer
	var body bytes.Buffer
	// Streams start immediately after the header + stream directory; the
	// directory's total size must be known before offsets can be computed,
	// so it is built into headerLen first using placeholder math.
	headerFixed := 4 + 2 + 2 + 4 + 4 + len(verBytes) + 2 + 2
	var dirLen int
	for _, s := range streams {
		nameBytes := append([]byte(s.name), 0)
		for len(nameBytes)%4 != 0 {
			nameBytes = append(nameBytes, 0)
		}
		dirLen += 4 + 4 + len(nameBytes)
	}

	offset := uint32(headerFixed + dirLen)
	for _, s := range streams {
		binary.Write(&dir, binary.LittleEndian, offset)
		binary.Write(&dir, binary.LittleEndian, uint32(len(s.data)))
		nameBytes := append([]byte(s.name), 0)
		for len(nameBytes)%4 != 0 {
			nameBytes = append(nameBytes, 0)
		}
		dir.Write(nameBytes)

		body.Write(s.data)
		for body.Len()%4 != 0 {
			body.WriteByte(0)
		}
		offset = uint32(headerFixed+dirLen) + uint32(body.Len())
	}

	var root bytes.Buffer
	binary.Write(&root, binary.LittleEndian, uint32(metadataRootMagic))
	binary.Write(&root, binary.LittleEndian, uint16(1)) // major
	binary.Write(&root, binary.LittleEndian, uint16(1)) // minor
	binary.Write(&root, binary.LittleEndian, uint32(0)) // reserved
	binary.Write(&root, binary.LittleEndian, uint32(len(verBytes)))
	root.Write(verBytes)
	binary.Write(&root, binary.LittleEndian, uint16(0)) // flags/reserved
	binary.Write(&root, binary.LittleEndian, uint16(len(streams)))
	root.Write(dir.Bytes())
	root.Write(body.Bytes())

	return root.Bytes()
}
