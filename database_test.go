// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "testing"

// parseRootFixture builds a Database directly from a hand-built metadata
// root, bypassing the PE container entirely — a same-package white-box
// shortcut available because parseMetadataRoot needs nothing from File.
func parseRootFixture(t *testing.T, root []byte) *Database {
	t.Helper()
	db := &Database{streams: map[string][]byte{}}
	if err := db.parseMetadataRoot(root); err != nil {
		t.Fatalf("parseMetadataRoot: %v", err)
	}
	return db
}

func simpleModuleRoot() []byte {
	strs, strOffs := buildStringsHeap("Test.dll")
	guids := buildGUIDHeap([16]byte{9, 9, 9, 9})
	blobs, _ := buildBlobHeap()
	tables := buildTablesStream(0, 0, map[TableID][]tableRow{
		Module: {{"Generation": 0, "Name": strOffs[0], "Mvid": 1}},
	})
	return buildMetadataRoot("v4.0.30319", []struct {
		name string
		data []byte
	}{
		{"#~", tables},
		{"#Strings", strs},
		{"#GUID", guids},
		{"#Blob", blobs},
	})
}

func TestParseMetadataRootBasics(t *testing.T) {
	db := parseRootFixture(t, simpleModuleRoot())

	if db.VersionString() != "v4.0.30319" {
		t.Fatalf("VersionString() = %q", db.VersionString())
	}
	if !db.HasTable(Module) {
		t.Fatal("HasTable(Module) = false")
	}
	if db.HasTable(TypeDef) {
		t.Fatal("HasTable(TypeDef) = true, want false (not present in fixture)")
	}
	if got := db.RowCount(Module); got != 1 {
		t.Fatalf("RowCount(Module) = %d, want 1", got)
	}
	if got := db.RowCount(TypeRef); got != 0 {
		t.Fatalf("RowCount(TypeRef) = %d, want 0", got)
	}

	name, err := db.String(Module, 1, "Name")
	if err != nil {
		t.Fatalf("String: %v", err)
	}
	if name != "Test.dll" {
		t.Fatalf("Module.Name = %q, want Test.dll", name)
	}

	mvid, err := db.GUID(Module, 1, "Mvid")
	if err != nil {
		t.Fatalf("GUID: %v", err)
	}
	if mvid != ([16]byte{9, 9, 9, 9}) {
		t.Fatalf("Mvid = %v", mvid)
	}
}

func TestParseMetadataRootBadMagic(t *testing.T) {
	root := simpleModuleRoot()
	root[0] = 0
	db := &Database{streams: map[string][]byte{}}
	if err := db.parseMetadataRoot(root); err != ErrBadMetadataMagic {
		t.Fatalf("err = %v, want %v", err, ErrBadMetadataMagic)
	}
}

func TestParseMetadataRootNoTablesStream(t *testing.T) {
	strs, _ := buildStringsHeap()
	root := buildMetadataRoot("v4.0.30319", []struct {
		name string
		data []byte
	}{
		{"#Strings", strs},
	})
	db := &Database{streams: map[string][]byte{}}
	if err := db.parseMetadataRoot(root); err != ErrNoTablesStream {
		t.Fatalf("err = %v, want %v", err, ErrNoTablesStream)
	}
}

func duplicateStreamRoot() []byte {
	strsA, _ := buildStringsHeap("A")
	strsB, offB := buildStringsHeap("B")
	tables := buildTablesStream(0, 0, map[TableID][]tableRow{
		Module: {{"Generation": 0, "Name": offB[0], "Mvid": 0}},
	})
	return buildMetadataRoot("v4.0.30319", []struct {
		name string
		data []byte
	}{
		{"#Strings", strsA},
		{"#~", tables},
		{"#Strings", strsB},
	})
}

// TestParseMetadataRootDuplicateStream covers the Options.Strict
// distinction for a duplicate stream name: outside strict mode it is a
// logged anomaly and the last occurrence wins; in strict mode it is a
// hard error.
func TestParseMetadataRootDuplicateStream(t *testing.T) {
	db := parseRootFixture(t, duplicateStreamRoot())
	name, err := db.String(Module, 1, "Name")
	if err != nil {
		t.Fatalf("String: %v", err)
	}
	if name != "B" {
		t.Fatalf("Module.Name = %q, want B (last #Strings wins)", name)
	}
}

func TestParseMetadataRootDuplicateStreamStrict(t *testing.T) {
	db := &Database{streams: map[string][]byte{}, strict: true}
	if err := db.parseMetadataRoot(duplicateStreamRoot()); err != ErrDuplicateStream {
		t.Fatalf("err = %v, want %v", err, ErrDuplicateStream)
	}
}

func TestDumpRow(t *testing.T) {
	db := parseRootFixture(t, simpleModuleRoot())
	row, err := db.DumpRow(Module, 1)
	if err != nil {
		t.Fatalf("DumpRow: %v", err)
	}
	if row["Name"] != "Test.dll" {
		t.Fatalf("row[Name] = %v, want Test.dll", row["Name"])
	}
	if row["Generation"] != uint32(0) {
		t.Fatalf("row[Generation] = %v, want 0", row["Generation"])
	}
}

func TestColumnNames(t *testing.T) {
	names := ColumnNames(Module)
	want := []string{"Generation", "Name", "Mvid", "EncId", "EncBaseId"}
	if len(names) != len(want) {
		t.Fatalf("len(names) = %d, want %d", len(names), len(want))
	}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("names[%d] = %q, want %q", i, names[i], n)
		}
	}
}

func assemblyRoot(flags uint32) []byte {
	strs, strOffs := buildStringsHeap("MyAssembly", "")
	blobs, _ := buildBlobHeap()
	tables := buildTablesStream(0, 0, map[TableID][]tableRow{
		Assembly: {{
			"HashAlgId": 0x8004, "MajorVersion": 1, "MinorVersion": 0,
			"BuildNumber": 0, "RevisionNumber": 0, "Flags": flags,
			"Name": strOffs[0], "Culture": strOffs[1],
		}},
	})
	return buildMetadataRoot("v4.0.30319", []struct {
		name string
		data []byte
	}{
		{"#~", tables},
		{"#Strings", strs},
		{"#Blob", blobs},
	})
}

func TestIsWindowsRuntime(t *testing.T) {
	tests := []struct {
		name  string
		flags uint32
		want  bool
	}{
		{"ordinary assembly", 0, false},
		{"winmd content type", assemblyContentTypeWindowsRuntime, true},
		{"unrelated flag bits set", 0x0001, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := parseRootFixture(t, assemblyRoot(tt.flags))
			got, err := db.IsWindowsRuntime()
			if err != nil {
				t.Fatalf("IsWindowsRuntime: %v", err)
			}
			if got != tt.want {
				t.Fatalf("IsWindowsRuntime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsWindowsRuntimeNoAssemblyRow(t *testing.T) {
	db := parseRootFixture(t, simpleModuleRoot())
	got, err := db.IsWindowsRuntime()
	if err != nil {
		t.Fatalf("IsWindowsRuntime: %v", err)
	}
	if got {
		t.Fatal("IsWindowsRuntime() = true with no Assembly row")
	}
}

func TestWideHeapColumnWidths(t *testing.T) {
	// With the string-heap-wide bit set, a #Strings index column should be
	// read as 4 bytes instead of 2, even for a tiny heap.
	strs, strOffs := buildStringsHeap("X")
	guids := buildGUIDHeap()
	blobs, _ := buildBlobHeap()
	tables := buildTablesStream(heapSizeStringsWide, 0, map[TableID][]tableRow{
		Module: {{"Generation": 0, "Name": strOffs[0], "Mvid": 0}},
	})
	root := buildMetadataRoot("v2.0.50727", []struct {
		name string
		data []byte
	}{
		{"#~", tables},
		{"#Strings", strs},
		{"#GUID", guids},
		{"#Blob", blobs},
	})
	db := parseRootFixture(t, root)
	name, err := db.String(Module, 1, "Name")
	if err != nil {
		t.Fatalf("String: %v", err)
	}
	if name != "X" {
		t.Fatalf("Name = %q, want X", name)
	}
}
