// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildManagedImage assembles a PE image whose CLR data directory points at
// an ImageCOR20Header immediately followed by a minimal metadata root (one
// Module row, one string, one GUID) — enough to exercise the full
// File.Parse -> parseCLRHeaderDirectory -> parseMetadataRoot chain without
// any on-disk fixture binary.
func buildManagedImage(t *testing.T) []byte {
	t.Helper()

	strs, strOffs := buildStringsHeap("TestModule")
	guids := buildGUIDHeap([16]byte{1, 2, 3, 4})
	blobs, _ := buildBlobHeap()

	tables := buildTablesStream(0, 0, map[TableID][]tableRow{
		Module: {{"Generation": 0, "Name": strOffs[0], "Mvid": 1, "EncId": 0, "EncBaseId": 0}},
	})

	root := buildMetadataRoot("v4.0.30319", []struct {
		name string
		data []byte
	}{
		{"#~", tables},
		{"#Strings", strs},
		{"#GUID", guids},
		{"#Blob", blobs},
	})

	var hdr ImageCOR20Header
	hdrSize := uint32(binary.Size(hdr))
	hdr.Cb = hdrSize
	hdr.MajorRuntimeVersion = 2
	hdr.MinorRuntimeVersion = 5
	hdr.Flags = COMImageFlagsILOnly
	hdr.MetaData = DataDirectory{VirtualAddress: 0x200 + hdrSize, Size: uint32(len(root))}

	var hb bytes.Buffer
	writeStruct(&hb, hdr)

	fx := &peFixture{clrHeaderBytes: append(hb.Bytes(), root...)}
	img := fx.buildPEImage()
	img = fx.withCLRDirectory(img, hdrSize)
	return img
}

func TestParseManagedImage(t *testing.T) {
	img := buildManagedImage(t)

	f, err := NewBytes(img, nil)
	if err != nil {
		t.Fatalf("NewBytes: %v", err)
	}
	defer f.Close()

	if !f.HasCLR {
		t.Fatal("HasCLR = false, want true")
	}
	if f.CLR == nil {
		t.Fatal("CLR is nil")
	}
	if f.CLR.VersionString() != "v4.0.30319" {
		t.Fatalf("VersionString() = %q", f.CLR.VersionString())
	}
	if got := f.CLR.RowCount(Module); got != 1 {
		t.Fatalf("RowCount(Module) = %d, want 1", got)
	}
	name, err := f.CLR.String(Module, 1, "Name")
	if err != nil {
		t.Fatalf("String(Module,1,Name): %v", err)
	}
	if name != "TestModule" {
		t.Fatalf("Module name = %q, want TestModule", name)
	}
}

func TestParseNativeImageHasNoCLR(t *testing.T) {
	img := (&peFixture{sectionData: []byte("plain native image")}).buildPEImage()
	f, err := NewBytes(img, nil)
	if err != nil {
		t.Fatalf("NewBytes: %v", err)
	}
	if f.HasCLR || f.CLR != nil {
		t.Fatal("native image reported CLR metadata")
	}
}

func TestNewBytesTooSmall(t *testing.T) {
	_, err := NewBytes(make([]byte, 4), nil)
	if err != ErrInvalidPESize {
		t.Fatalf("err = %v, want %v", err, ErrInvalidPESize)
	}
}
