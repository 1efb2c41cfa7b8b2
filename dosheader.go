// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"encoding/binary"
)

// ImageDOSHeader is the MS-DOS stub every PE file begins with.
type ImageDOSHeader struct {
	Magic                    uint16     `json:"magic"`
	BytesOnLastPageOfFile    uint16     `json:"bytes_on_last_page_of_file"`
	PagesInFile              uint16     `json:"pages_in_file"`
	Relocations              uint16     `json:"relocations"`
	SizeOfHeader             uint16     `json:"size_of_header"`
	MinExtraParagraphsNeeded uint16     `json:"min_extra_paragraphs_needed"`
	MaxExtraParagraphsNeeded uint16     `json:"max_extra_paragraphs_needed"`
	InitialSS                uint16    `json:"initial_ss"`
	InitialSP                uint16    `json:"initial_sp"`
	Checksum                 uint16    `json:"checksum"`
	InitialIP                uint16    `json:"initial_ip"`
	InitialCS                uint16    `json:"initial_cs"`
	AddressOfRelocationTable uint16     `json:"address_of_relocation_table"`
	OverlayNumber            uint16     `json:"overlay_number"`
	ReservedWords1           [4]uint16  `json:"reserved_words_1"`
	OEMIdentifier            uint16     `json:"oem_identifier"`
	OEMInformation           uint16     `json:"oem_information"`
	ReservedWords2           [10]uint16 `json:"reserved_words_2"`

	// AddressOfNewEXEHeader (e_lfanew) is the file offset of IMAGE_NT_HEADERS.
	AddressOfNewEXEHeader uint32 `json:"address_of_new_exe_header"`
}

// ParseDOSHeader parses the DOS header stub that precedes every PE file.
func (f *File) ParseDOSHeader() error {
	offset := uint32(0)
	size := uint32(binary.Size(f.DOSHeader))
	if err := f.structUnpack(&f.DOSHeader, offset, size); err != nil {
		return err
	}

	if f.DOSHeader.Magic != ImageDOSSignature && f.DOSHeader.Magic != ImageDOSZMSignature {
		return ErrDOSMagicNotFound
	}

	// e_lfanew is the only required element (besides the signature) to turn
	// the EXE into a PE; it cannot be null or the signatures would overlap.
	if f.DOSHeader.AddressOfNewEXEHeader < 4 || f.DOSHeader.AddressOfNewEXEHeader > f.size {
		return ErrInvalidElfanewValue
	}

	f.HasDOSHdr = true
	return nil
}
