// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"encoding/binary"
	"sort"
	"strings"
)

// ImageSectionHeader is part of the section table; the section table is an
// array of ImageSectionHeader, each describing one section of the image:
// its name, virtual placement and raw-data placement on disk. The array
// size is the NumberOfSections field of the COFF file header.
// Binary spec: each struct is 40 bytes, no padding.
type ImageSectionHeader struct {

	// An 8-byte, null-padded UTF-8 encoded string naming the section.
	Name [8]uint8

	// The total size of the section when loaded into memory.
	VirtualSize uint32

	// The address of the first byte of the section relative to the image
	// base when the section is loaded into memory.
	VirtualAddress uint32

	// The size of the initialized data on disk. Must be a multiple of
	// FileAlignment from the optional header.
	SizeOfRawData uint32

	// The file pointer to the first page of the section within the file.
	PointerToRawData uint32

	// The file pointer to the beginning of relocation entries. Zero for
	// executable images.
	PointerToRelocations uint32

	// The file pointer to the beginning of line-number entries. Deprecated,
	// should be zero.
	PointerToLineNumbers uint32

	// The number of relocation entries. Zero for executable images.
	NumberOfRelocations uint16

	// The number of line-number entries. Deprecated, should be zero.
	NumberOfLineNumbers uint16

	// The flags describing the characteristics of the section.
	Characteristics uint32
}

// Section is a located PE section: its header. It does not hold the file
// it was read from; the methods that translate RVAs or read section bytes
// take the parent File as a parameter.
type Section struct {
	Header ImageSectionHeader
}

// ParseSectionHeader reads the section header table. Each row is, in
// effect, a section header, and the table immediately follows the
// optional header.
func (f *File) ParseSectionHeader() error {
	optionalHeaderOffset := f.DOSHeader.AddressOfNewEXEHeader + 4 +
		uint32(binary.Size(f.NtHeader.FileHeader))
	offset := optionalHeaderOffset +
		uint32(f.NtHeader.FileHeader.SizeOfOptionalHeader)

	secHeader := ImageSectionHeader{}
	numberOfSections := f.NtHeader.FileHeader.NumberOfSections
	secHeaderSize := uint32(binary.Size(secHeader))

	// Section ordering in the table is one-based and defined by the
	// linker; sections follow one another contiguously.
	for i := uint16(0); i < numberOfSections; i++ {
		if err := f.structUnpack(&secHeader, offset, secHeaderSize); err != nil {
			return err
		}

		if secEnd := int64(secHeader.PointerToRawData) + int64(secHeader.SizeOfRawData); secEnd > f.overlayOffset {
			f.overlayOffset = secEnd
		}

		f.Sections = append(f.Sections, Section{Header: secHeader})
		offset += secHeaderSize
	}

	// Sort sections by VirtualAddress so RVA lookups can use the
	// fast path of a linear scan over an ascending sequence.
	sort.Sort(byVirtualAddress(f.Sections))

	return nil
}

// String stringifies the section name, stripping the null padding.
func (section *Section) String() string {
	return strings.Replace(string(section.Header.Name[:]), "\x00", "", -1)
}

// nextHeaderAddr returns the VirtualAddress of the section following this
// one within f, or 0 if this is the last section.
func (section *Section) nextHeaderAddr(f *File) uint32 {
	for i := range f.Sections {
		if f.Sections[i].Header.VirtualAddress == section.Header.VirtualAddress {
			if i == len(f.Sections)-1 {
				return 0
			}
			return f.Sections[i+1].Header.VirtualAddress
		}
	}
	return 0
}

// Contains reports whether the section covers the given RVA.
func (section *Section) Contains(rva uint32, f *File) bool {
	var size uint32
	adjustedPointer := f.adjustFileAlignment(section.Header.PointerToRawData)
	if uint32(len(f.data))-adjustedPointer < section.Header.SizeOfRawData {
		size = section.Header.VirtualSize
	} else {
		size = max32(section.Header.SizeOfRawData, section.Header.VirtualSize)
	}
	vaAdj := f.adjustSectionAlignment(section.Header.VirtualAddress)

	// Cut the section short if the next section's start falls inside the
	// calculated range; malformed section tables can overlap.
	if next := section.nextHeaderAddr(f); next != 0 && next > section.Header.VirtualAddress && vaAdj+size > next {
		size = next - vaAdj
	}

	return vaAdj <= rva && rva < vaAdj+size
}

// Data returns a data chunk from the section, starting at the given RVA
// (or at the section start, if start is zero) and extending for length
// bytes (or to the end of raw data, if length is zero).
func (section *Section) Data(start, length uint32, f *File) []byte {
	pointerToRawDataAdj := f.adjustFileAlignment(section.Header.PointerToRawData)
	virtualAddressAdj := f.adjustSectionAlignment(section.Header.VirtualAddress)

	var offset uint32
	if start == 0 {
		offset = pointerToRawDataAdj
	} else {
		offset = (start - virtualAddressAdj) + pointerToRawDataAdj
	}

	if offset > f.size {
		return nil
	}

	var end uint32
	if length != 0 {
		end = offset + length
	} else {
		end = offset + section.Header.SizeOfRawData
	}

	if end > section.Header.PointerToRawData+section.Header.SizeOfRawData &&
		section.Header.PointerToRawData+section.Header.SizeOfRawData > offset {
		end = section.Header.PointerToRawData + section.Header.SizeOfRawData
	}

	if end > f.size {
		end = f.size
	}

	return f.data[offset:end]
}

// byVirtualAddress sorts sections by VirtualAddress.
type byVirtualAddress []Section

func (s byVirtualAddress) Len() int      { return len(s) }
func (s byVirtualAddress) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s byVirtualAddress) Less(i, j int) bool {
	return s[i].Header.VirtualAddress < s[j].Header.VirtualAddress
}
