// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"bytes"
	"encoding/binary"
	"errors"

	"golang.org/x/text/encoding/unicode"
)

const (
	// fileAlignmentHardcodedValue is the value PointerToRawData must be at
	// least equal to, or it is rounded to zero. Below 0x200 it is rounded
	// down regardless of file alignment.
	fileAlignmentHardcodedValue = 0x200
)

// Sentinel errors returned while walking the PE container and the CLI
// metadata root embedded within it.
var (
	ErrInvalidPESize         = errors.New("clrmeta: not a PE file, smaller than the minimum possible size")
	ErrDOSMagicNotFound      = errors.New("clrmeta: DOS header magic not found")
	ErrInvalidElfanewValue   = errors.New("clrmeta: invalid e_lfanew value, probably not a PE file")
	ErrInvalidNtHeaderOffset = errors.New("clrmeta: invalid NT header offset, signature not found")
	ErrImageNtSignatureNotFound = errors.New(
		"clrmeta: not a valid PE signature, PE magic not found")
	ErrImageNtOptionalHeaderMagicNotFound = errors.New(
		"clrmeta: optional header magic is neither PE32 nor PE32+")
	ErrOutsideBoundary  = errors.New("clrmeta: read outside file boundary")
	ErrNoCLRHeader      = errors.New("clrmeta: image carries no CLR runtime header")
	ErrNoMetadataRoot   = errors.New("clrmeta: CLR header does not reference a metadata root")
	ErrBadMetadataMagic = errors.New("clrmeta: metadata root signature (BSJB) not found")
	ErrNoTablesStream   = errors.New("clrmeta: metadata root carries no #~ or #- tables stream")
	ErrDuplicateStream  = errors.New("clrmeta: metadata root declares the same stream name twice")
	ErrTableNotSorted   = errors.New("clrmeta: table required to be sorted is not marked Sorted")
)

func max32(x, y uint32) uint32 {
	if x < y {
		return y
	}
	return x
}

// getSectionByRva returns the section containing the given address.
func (f *File) getSectionByRva(rva uint32) *Section {
	for i := range f.Sections {
		if f.Sections[i].Contains(rva, f) {
			return &f.Sections[i]
		}
	}
	return nil
}

func (f *File) getSectionByOffset(offset uint32) *Section {
	for i := range f.Sections {
		section := &f.Sections[i]
		if section.Header.PointerToRawData == 0 {
			continue
		}
		adjustedPointer := f.adjustFileAlignment(section.Header.PointerToRawData)
		if adjustedPointer <= offset && offset < (adjustedPointer+section.Header.SizeOfRawData) {
			return section
		}
	}
	return nil
}

// GetOffsetFromRva returns the file offset corresponding to an RVA.
func (f *File) GetOffsetFromRva(rva uint32) uint32 {
	section := f.getSectionByRva(rva)
	if section == nil {
		if rva < uint32(len(f.data)) {
			return rva
		}
		return ^uint32(0)
	}
	sectionAlignment := f.adjustSectionAlignment(section.Header.VirtualAddress)
	fileAlignment := f.adjustFileAlignment(section.Header.PointerToRawData)
	return rva - sectionAlignment + fileAlignment
}

// GetRVAFromOffset returns the RVA corresponding to a file offset.
func (f *File) GetRVAFromOffset(offset uint32) uint32 {
	section := f.getSectionByOffset(offset)
	if section == nil {
		if len(f.Sections) == 0 {
			return offset
		}
		minAddr := ^uint32(0)
		for i := range f.Sections {
			vaddr := f.adjustSectionAlignment(f.Sections[i].Header.VirtualAddress)
			if vaddr < minAddr {
				minAddr = vaddr
			}
		}
		if offset < minAddr {
			return offset
		}
		return ^uint32(0)
	}
	sectionAlignment := f.adjustSectionAlignment(section.Header.VirtualAddress)
	fileAlignment := f.adjustFileAlignment(section.Header.PointerToRawData)
	return offset - fileAlignment + sectionAlignment
}

// GetData returns the data chunk located at the given RVA, regardless of
// which section (if any) it lies in.
func (f *File) GetData(rva, length uint32) ([]byte, error) {
	section := f.getSectionByRva(rva)

	var end uint32
	if length > 0 {
		end = rva + length
	}

	if section == nil {
		if rva < uint32(len(f.Header)) {
			return f.Header[rva:end], nil
		}
		if rva < uint32(len(f.data)) {
			return f.data[rva:end], nil
		}
		return nil, ErrOutsideBoundary
	}
	return section.Data(rva, length, f), nil
}

// adjustFileAlignment rounds a raw file offset per the FileAlignment field
// of the optional header; values below the hardcoded minimum are rounded
// to zero, matching the loader's own behavior.
func (f *File) adjustFileAlignment(va uint32) uint32 {
	fileAlignment := f.optionalHeaderFileAlignment()
	if fileAlignment < fileAlignmentHardcodedValue {
		return va
	}
	return (va / 0x200) * 0x200
}

// adjustSectionAlignment rounds a virtual address per the SectionAlignment
// field of the optional header.
func (f *File) adjustSectionAlignment(va uint32) uint32 {
	fileAlignment := f.optionalHeaderFileAlignment()
	sectionAlignment := f.optionalHeaderSectionAlignment()

	if sectionAlignment < 0x1000 {
		sectionAlignment = fileAlignment
	}
	if sectionAlignment != 0 && va%sectionAlignment != 0 {
		return sectionAlignment * (va / sectionAlignment)
	}
	return va
}

func (f *File) optionalHeaderFileAlignment() uint32 {
	if f.Is64 {
		return f.NtHeader.OptionalHeader.(ImageOptionalHeader64).FileAlignment
	}
	return f.NtHeader.OptionalHeader.(ImageOptionalHeader32).FileAlignment
}

func (f *File) optionalHeaderSectionAlignment() uint32 {
	if f.Is64 {
		return f.NtHeader.OptionalHeader.(ImageOptionalHeader64).SectionAlignment
	}
	return f.NtHeader.OptionalHeader.(ImageOptionalHeader32).SectionAlignment
}

// GetStringFromData returns the NUL-terminated ASCII run starting at
// offset within data.
func (f *File) GetStringFromData(offset uint32, data []byte) []byte {
	dataSize := uint32(len(data))
	if dataSize == 0 || offset > dataSize {
		return nil
	}
	end := offset
	for end < dataSize && data[end] != 0 {
		end++
	}
	return data[offset:end]
}

func (f *File) structUnpack(iface interface{}, offset, size uint32) error {
	totalSize := offset + size

	// Integer overflow.
	if (totalSize > offset) != (size > 0) {
		return ErrOutsideBoundary
	}
	if offset >= f.size || totalSize > f.size {
		return ErrOutsideBoundary
	}

	buf := bytes.NewReader(f.data[offset : offset+size])
	return binary.Read(buf, binary.LittleEndian, iface)
}

// ReadUint64 reads a little-endian uint64 at offset.
func (f *File) ReadUint64(offset uint32) (uint64, error) {
	if offset+8 > f.size {
		return 0, ErrOutsideBoundary
	}
	return binary.LittleEndian.Uint64(f.data[offset:]), nil
}

// ReadUint32 reads a little-endian uint32 at offset.
func (f *File) ReadUint32(offset uint32) (uint32, error) {
	if f.size < 4 || offset > f.size-4 {
		return 0, ErrOutsideBoundary
	}
	return binary.LittleEndian.Uint32(f.data[offset:]), nil
}

// ReadUint16 reads a little-endian uint16 at offset.
func (f *File) ReadUint16(offset uint32) (uint16, error) {
	if f.size < 2 || offset > f.size-2 {
		return 0, ErrOutsideBoundary
	}
	return binary.LittleEndian.Uint16(f.data[offset:]), nil
}

// ReadUint8 reads a single byte at offset.
func (f *File) ReadUint8(offset uint32) (uint8, error) {
	if offset+1 > f.size {
		return 0, ErrOutsideBoundary
	}
	return f.data[offset], nil
}

// ReadBytesAtOffset returns a byte slice view (not a copy) of size bytes
// at offset.
func (f *File) ReadBytesAtOffset(offset, size uint32) ([]byte, error) {
	totalSize := offset + size
	if (totalSize > offset) != (size > 0) {
		return nil, ErrOutsideBoundary
	}
	if offset >= f.size || totalSize > f.size {
		return nil, ErrOutsideBoundary
	}
	return f.data[offset : offset+size], nil
}

// DecodeUTF16String decodes a NUL-terminated UTF-16LE run into a Go string.
func DecodeUTF16String(b []byte) (string, error) {
	n := bytes.Index(b, []byte{0, 0})
	if n == 0 {
		return "", nil
	}
	if n < 0 {
		n = len(b) - 1
	}
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	s, err := decoder.Bytes(b[0 : n+1])
	if err != nil {
		return "", err
	}
	return string(s), nil
}

// IsBitSet reports whether the bit at pos is set in n.
func IsBitSet(n uint64, pos int) bool {
	return n&(1<<pos) > 0
}

