// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

// TableID identifies one of 45 metadata table ids: the 38 tables defined
// by ECMA-335 §II.22 plus the five *Ptr indirection tables and ENCLog/
// ENCMap. The numeric values are the table's row-reference tag, the same
// ordinal the teacher's dotnet.go constants used.
type TableID int

// Metadata table identifiers.
const (
	Module TableID = iota
	TypeRef
	TypeDef
	FieldPtr
	Field
	MethodPtr
	MethodDef
	ParamPtr
	Param
	InterfaceImpl
	MemberRef
	Constant
	CustomAttribute
	FieldMarshal
	DeclSecurity
	ClassLayout
	FieldLayout
	StandAloneSig
	EventMap
	EventPtr
	Event
	PropertyMap
	PropertyPtr
	Property
	MethodSemantics
	MethodImpl
	ModuleRef
	TypeSpec
	ImplMap
	FieldRVA
	ENCLog
	ENCMap
	Assembly
	AssemblyProcessor
	AssemblyOS
	AssemblyRef
	AssemblyRefProcessor
	AssemblyRefOS
	FileTable
	ExportedType
	ManifestResource
	NestedClass
	GenericParam
	MethodSpec
	GenericParamConstraint

	// TableCount is the number of table IDs above, one past the highest
	// valid TableID.
	TableCount
)

var tableNames = [TableCount]string{
	Module:                 "Module",
	TypeRef:                "TypeRef",
	TypeDef:                "TypeDef",
	FieldPtr:               "FieldPtr",
	Field:                  "Field",
	MethodPtr:              "MethodPtr",
	MethodDef:              "MethodDef",
	ParamPtr:               "ParamPtr",
	Param:                  "Param",
	InterfaceImpl:          "InterfaceImpl",
	MemberRef:              "MemberRef",
	Constant:               "Constant",
	CustomAttribute:        "CustomAttribute",
	FieldMarshal:           "FieldMarshal",
	DeclSecurity:           "DeclSecurity",
	ClassLayout:            "ClassLayout",
	FieldLayout:            "FieldLayout",
	StandAloneSig:          "StandAloneSig",
	EventMap:               "EventMap",
	EventPtr:               "EventPtr",
	Event:                  "Event",
	PropertyMap:            "PropertyMap",
	PropertyPtr:            "PropertyPtr",
	Property:               "Property",
	MethodSemantics:        "MethodSemantics",
	MethodImpl:             "MethodImpl",
	ModuleRef:              "ModuleRef",
	TypeSpec:               "TypeSpec",
	ImplMap:                "ImplMap",
	FieldRVA:               "FieldRVA",
	ENCLog:                 "ENCLog",
	ENCMap:                 "ENCMap",
	Assembly:               "Assembly",
	AssemblyProcessor:      "AssemblyProcessor",
	AssemblyOS:             "AssemblyOS",
	AssemblyRef:            "AssemblyRef",
	AssemblyRefProcessor:   "AssemblyRefProcessor",
	AssemblyRefOS:          "AssemblyRefOS",
	FileTable:              "File",
	ExportedType:           "ExportedType",
	ManifestResource:       "ManifestResource",
	NestedClass:            "NestedClass",
	GenericParam:           "GenericParam",
	MethodSpec:             "MethodSpec",
	GenericParamConstraint: "GenericParamConstraint",
}

// String returns the ECMA-335 name of the table, or "" for an unrecognized
// or out-of-range id. Grounded on the teacher's MetadataTableIndexToString.
func (t TableID) String() string {
	if t < 0 || t >= TableCount {
		return ""
	}
	return tableNames[t]
}

// columnKind classifies how a column's raw on-disk value is interpreted.
type columnKind int

const (
	colU16 columnKind = iota
	colU32
	colStringHeap
	colGUIDHeap
	colBlobHeap
	colSimpleIndex
	colCodedIndex
)

// columnDef describes one column of a table row: its storage kind and,
// for index columns, what it indexes into.
type columnDef struct {
	name         string
	kind         columnKind
	simpleTarget TableID
	coded        *codedIndexDef
}

// codedIndexDef is one of the coded (tagged-union) indices of ECMA-335
// §II.24.2.6: tagBits low bits of the stored value select one of tables,
// the remaining bits are a 1-based row number into that table. Lifted
// verbatim (tag widths, target-table lists) from the teacher's
// dotnet_helper.go codedidx table.
type codedIndexDef struct {
	name   string
	tagBits uint8
	tables []TableID
}

var (
	codedTypeDefOrRef = &codedIndexDef{"TypeDefOrRef", 2, []TableID{TypeDef, TypeRef, TypeSpec}}
	codedResolutionScope = &codedIndexDef{"ResolutionScope", 2, []TableID{Module, ModuleRef, AssemblyRef, TypeRef}}
	codedMemberRefParent = &codedIndexDef{"MemberRefParent", 3, []TableID{TypeDef, TypeRef, ModuleRef, MethodDef, TypeSpec}}
	codedHasConstant = &codedIndexDef{"HasConstant", 2, []TableID{Field, Param, Property}}
	codedHasCustomAttribute = &codedIndexDef{"HasCustomAttribute", 5, []TableID{
		Field, TypeRef, TypeDef, Param, InterfaceImpl, MemberRef, Module, Property, Event,
		StandAloneSig, ModuleRef, TypeSpec, Assembly, AssemblyRef, FileTable, ExportedType, ManifestResource,
	}}
	codedCustomAttributeType = &codedIndexDef{"CustomAttributeType", 3, []TableID{MethodDef, MemberRef}}
	codedHasFieldMarshal = &codedIndexDef{"HasFieldMarshal", 1, []TableID{Field, Param}}
	codedHasDeclSecurity = &codedIndexDef{"HasDeclSecurity", 2, []TableID{TypeDef, MethodDef, Assembly}}
	codedHasSemantics = &codedIndexDef{"HasSemantics", 1, []TableID{Event, Property}}
	codedMethodDefOrRef = &codedIndexDef{"MethodDefOrRef", 1, []TableID{MethodDef, MemberRef}}
	codedMemberForwarded = &codedIndexDef{"MemberForwarded", 1, []TableID{Field, MethodDef}}
	codedImplementation = &codedIndexDef{"Implementation", 2, []TableID{FileTable, AssemblyRef, ExportedType}}
	codedTypeOrMethodDef = &codedIndexDef{"TypeOrMethodDef", 1, []TableID{TypeDef, MethodDef}}
)

func col(name string, kind columnKind) columnDef { return columnDef{name: name, kind: kind} }
func colIdx(name string, target TableID) columnDef {
	return columnDef{name: name, kind: colSimpleIndex, simpleTarget: target}
}
func colCoded(name string, c *codedIndexDef) columnDef {
	return columnDef{name: name, kind: colCodedIndex, coded: c}
}

// tableColumns is the static column schema of every table, computed once
// and shared across every Database instance — this replaces the teacher's
// sequential parseMetadataXxxTable functions (each eagerly decoding a
// whole table into a row slice) with the spec's precomputed-offset,
// random-access column layout.
var tableColumns = [TableCount][]columnDef{
	Module: {
		col("Generation", colU16),
		col("Name", colStringHeap),
		col("Mvid", colGUIDHeap),
		col("EncId", colGUIDHeap),
		col("EncBaseId", colGUIDHeap),
	},
	TypeRef: {
		colCoded("ResolutionScope", codedResolutionScope),
		col("TypeName", colStringHeap),
		col("TypeNamespace", colStringHeap),
	},
	TypeDef: {
		col("Flags", colU32),
		col("TypeName", colStringHeap),
		col("TypeNamespace", colStringHeap),
		colCoded("Extends", codedTypeDefOrRef),
		colIdx("FieldList", Field),
		colIdx("MethodList", MethodDef),
	},
	FieldPtr: {
		colIdx("Field", Field),
	},
	Field: {
		col("Flags", colU16),
		col("Name", colStringHeap),
		col("Signature", colBlobHeap),
	},
	MethodPtr: {
		colIdx("Method", MethodDef),
	},
	MethodDef: {
		col("RVA", colU32),
		col("ImplFlags", colU16),
		col("Flags", colU16),
		col("Name", colStringHeap),
		col("Signature", colBlobHeap),
		colIdx("ParamList", Param),
	},
	ParamPtr: {
		colIdx("Param", Param),
	},
	Param: {
		col("Flags", colU16),
		col("Sequence", colU16),
		col("Name", colStringHeap),
	},
	InterfaceImpl: {
		colIdx("Class", TypeDef),
		colCoded("Interface", codedTypeDefOrRef),
	},
	MemberRef: {
		colCoded("Class", codedMemberRefParent),
		col("Name", colStringHeap),
		col("Signature", colBlobHeap),
	},
	Constant: {
		col("Type", colU16),
		colCoded("Parent", codedHasConstant),
		col("Value", colBlobHeap),
	},
	CustomAttribute: {
		colCoded("Parent", codedHasCustomAttribute),
		colCoded("Type", codedCustomAttributeType),
		col("Value", colBlobHeap),
	},
	FieldMarshal: {
		colCoded("Parent", codedHasFieldMarshal),
		col("NativeType", colBlobHeap),
	},
	DeclSecurity: {
		col("Action", colU16),
		colCoded("Parent", codedHasDeclSecurity),
		col("PermissionSet", colBlobHeap),
	},
	ClassLayout: {
		col("PackingSize", colU16),
		col("ClassSize", colU32),
		colIdx("Parent", TypeDef),
	},
	FieldLayout: {
		col("Offset", colU32),
		colIdx("Field", Field),
	},
	StandAloneSig: {
		col("Signature", colBlobHeap),
	},
	EventMap: {
		colIdx("Parent", TypeDef),
		colIdx("EventList", Event),
	},
	EventPtr: {
		colIdx("Event", Event),
	},
	Event: {
		col("EventFlags", colU16),
		col("Name", colStringHeap),
		colCoded("EventType", codedTypeDefOrRef),
	},
	PropertyMap: {
		colIdx("Parent", TypeDef),
		colIdx("PropertyList", Property),
	},
	PropertyPtr: {
		colIdx("Property", Property),
	},
	Property: {
		col("Flags", colU16),
		col("Name", colStringHeap),
		col("Type", colBlobHeap),
	},
	MethodSemantics: {
		col("Semantics", colU16),
		colIdx("Method", MethodDef),
		colCoded("Association", codedHasSemantics),
	},
	MethodImpl: {
		colIdx("Class", TypeDef),
		colCoded("MethodBody", codedMethodDefOrRef),
		colCoded("MethodDeclaration", codedMethodDefOrRef),
	},
	ModuleRef: {
		col("Name", colStringHeap),
	},
	TypeSpec: {
		col("Signature", colBlobHeap),
	},
	ImplMap: {
		col("MappingFlags", colU16),
		colCoded("MemberForwarded", codedMemberForwarded),
		col("ImportName", colStringHeap),
		colIdx("ImportScope", ModuleRef),
	},
	FieldRVA: {
		col("RVA", colU32),
		colIdx("Field", Field),
	},
	ENCLog: {
		col("Token", colU32),
		col("FuncCode", colU32),
	},
	ENCMap: {
		col("Token", colU32),
	},
	Assembly: {
		col("HashAlgId", colU32),
		col("MajorVersion", colU16),
		col("MinorVersion", colU16),
		col("BuildNumber", colU16),
		col("RevisionNumber", colU16),
		col("Flags", colU32),
		col("PublicKey", colBlobHeap),
		col("Name", colStringHeap),
		col("Culture", colStringHeap),
	},
	AssemblyProcessor: {
		col("Processor", colU32),
	},
	AssemblyOS: {
		col("OSPlatformID", colU32),
		col("OSMajorVersion", colU32),
		col("OSMinorVersion", colU32),
	},
	AssemblyRef: {
		col("MajorVersion", colU16),
		col("MinorVersion", colU16),
		col("BuildNumber", colU16),
		col("RevisionNumber", colU16),
		col("Flags", colU32),
		col("PublicKeyOrToken", colBlobHeap),
		col("Name", colStringHeap),
		col("Culture", colStringHeap),
		col("HashValue", colBlobHeap),
	},
	AssemblyRefProcessor: {
		col("Processor", colU32),
		colIdx("AssemblyRef", AssemblyRef),
	},
	AssemblyRefOS: {
		col("OSPlatformID", colU32),
		col("OSMajorVersion", colU32),
		col("OSMinorVersion", colU32),
		colIdx("AssemblyRef", AssemblyRef),
	},
	FileTable: {
		col("Flags", colU32),
		col("Name", colStringHeap),
		col("HashValue", colBlobHeap),
	},
	ExportedType: {
		col("Flags", colU32),
		col("TypeDefId", colU32),
		col("TypeName", colStringHeap),
		col("TypeNamespace", colStringHeap),
		colCoded("Implementation", codedImplementation),
	},
	ManifestResource: {
		col("Offset", colU32),
		col("Flags", colU32),
		col("Name", colStringHeap),
		colCoded("Implementation", codedImplementation),
	},
	NestedClass: {
		colIdx("NestedClass", TypeDef),
		colIdx("EnclosingClass", TypeDef),
	},
	GenericParam: {
		col("Number", colU16),
		col("Flags", colU16),
		colCoded("Owner", codedTypeOrMethodDef),
		col("Name", colStringHeap),
	},
	MethodSpec: {
		colCoded("Method", codedMethodDefOrRef),
		col("Instantiation", colBlobHeap),
	},
	GenericParamConstraint: {
		colIdx("Owner", GenericParam),
		colCoded("Constraint", codedTypeDefOrRef),
	},
}
