// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

// TableMask is a bitmask over TableID, one bit per table, used to state
// which tables a Token is allowed to reference.
type TableMask uint64

// NewTableMask ORs the bit for each given table into a TableMask.
func NewTableMask(tables ...TableID) TableMask {
	var m TableMask
	for _, t := range tables {
		m |= 1 << uint(t)
	}
	return m
}

func (m TableMask) has(t TableID) bool { return IsBitSet(uint64(m), int(t)) }

// TableSet is implemented by a phantom marker type naming the set of
// tables a Token[M] may reference. Go has no constant bitmask type
// parameter, so the host language's compile-time-checked coded-index tag
// is modeled as a type parameter constrained to TableSet instead: each
// coded index family (TypeDefOrRef, ResolutionScope, ...) gets its own
// zero-size marker type, and Token[TypeDefOrRefMask] and
// Token[MethodRowMask] are distinct, non-interchangeable Go types even though both simply
// wrap a RowID at runtime.
type TableSet interface {
	Mask() TableMask
}

// Token is a metadata row reference restricted, at compile time via M,
// to one of a known set of tables — the same role ECMA-335's coded and
// simple indices play on disk, carried into the API as a typed handle
// instead of a bare RowID a caller could point at the wrong table.
type Token[M TableSet] struct {
	id RowID
}

// NewToken wraps id as a Token[M], failing if id's table is not a member
// of M's mask.
func NewToken[M TableSet](id RowID) (Token[M], error) {
	var m M
	if id.Row != 0 && !m.Mask().has(id.Table) {
		return Token[M]{}, ErrOutsideBoundary
	}
	return Token[M]{id: id}, nil
}

// Row returns the underlying table/row pair.
func (t Token[M]) Row() RowID { return t.id }

// IsNil reports whether t references no row.
func (t Token[M]) IsNil() bool { return t.id.Row == 0 }

// Widen converts a Token[S] to a Token[T] when T's table set is a
// superset of S's — e.g. a Token[MethodDefOrRefMask] used where the
// broader Token[HasCustomAttributeMask] is expected.
func Widen[S TableSet, T TableSet](t Token[S]) (Token[T], error) {
	var sm S
	var tm T
	if sm.Mask()&^tm.Mask() != 0 {
		return Token[T]{}, ErrOutsideBoundary
	}
	if t.id.Row != 0 && !tm.Mask().has(t.id.Table) {
		return Token[T]{}, ErrOutsideBoundary
	}
	return Token[T]{id: t.id}, nil
}

// AsTable returns the table a Token currently references.
func AsTable[M TableSet](t Token[M]) TableID { return t.id.Table }

// TokenOrBlob represents a column that is either a Token[M] into one of
// M's tables or a raw heap blob — the shape of ManifestResource's
// Implementation coded index, which is null (the resource's bytes live
// in this module's own #Blob-adjacent resource stream) exactly when no
// table row is referenced.
type TokenOrBlob[M TableSet] struct {
	token   Token[M]
	blob    []byte
	isToken bool
}

// TokenValue wraps t as a TokenOrBlob referencing a row.
func TokenValue[M TableSet](t Token[M]) TokenOrBlob[M] {
	return TokenOrBlob[M]{token: t, isToken: true}
}

// BlobValue wraps b as a TokenOrBlob referencing raw bytes.
func BlobValue[M TableSet](b []byte) TokenOrBlob[M] {
	return TokenOrBlob[M]{blob: b}
}

// Token returns the wrapped token and true if this value holds a token.
func (v TokenOrBlob[M]) Token() (Token[M], bool) { return v.token, v.isToken }

// Blob returns the wrapped bytes and true if this value holds a blob.
func (v TokenOrBlob[M]) Blob() ([]byte, bool) { return v.blob, !v.isToken }

// Marker types for every coded index family ECMA-335 defines plus the
// single-table "simple index" families, each naming the TableMask a
// Token[M] built over it may reference. Grounded on the codedidx table
// in the teacher's dotnet_helper.go.

type TypeDefOrRefMask struct{}

func (TypeDefOrRefMask) Mask() TableMask { return NewTableMask(TypeDef, TypeRef, TypeSpec) }

type ResolutionScopeMask struct{}

func (ResolutionScopeMask) Mask() TableMask {
	return NewTableMask(Module, ModuleRef, AssemblyRef, TypeRef)
}

type MemberRefParentMask struct{}

func (MemberRefParentMask) Mask() TableMask {
	return NewTableMask(TypeDef, TypeRef, ModuleRef, MethodDef, TypeSpec)
}

type HasConstantMask struct{}

func (HasConstantMask) Mask() TableMask { return NewTableMask(Field, Param, Property) }

type HasCustomAttributeMask struct{}

func (HasCustomAttributeMask) Mask() TableMask {
	return NewTableMask(
		MethodDef, Field, TypeRef, TypeDef, Param, InterfaceImpl, MemberRef, Module, Property, Event,
		StandAloneSig, ModuleRef, TypeSpec, Assembly, AssemblyRef, FileTable, ExportedType, ManifestResource,
	)
}

type CustomAttributeTypeMask struct{}

func (CustomAttributeTypeMask) Mask() TableMask { return NewTableMask(MethodDef, MemberRef) }

type HasFieldMarshalMask struct{}

func (HasFieldMarshalMask) Mask() TableMask { return NewTableMask(Field, Param) }

type HasDeclSecurityMask struct{}

func (HasDeclSecurityMask) Mask() TableMask { return NewTableMask(TypeDef, MethodDef, Assembly) }

type HasSemanticsMask struct{}

func (HasSemanticsMask) Mask() TableMask { return NewTableMask(Event, Property) }

type MethodDefOrRefMask struct{}

func (MethodDefOrRefMask) Mask() TableMask { return NewTableMask(MethodDef, MemberRef) }

type MemberForwardedMask struct{}

func (MemberForwardedMask) Mask() TableMask { return NewTableMask(Field, MethodDef) }

type ImplementationMask struct{}

func (ImplementationMask) Mask() TableMask {
	return NewTableMask(FileTable, AssemblyRef, ExportedType)
}

type TypeOrMethodDefMask struct{}

func (TypeOrMethodDefMask) Mask() TableMask { return NewTableMask(TypeDef, MethodDef) }

type FieldRowMask struct{}

func (FieldRowMask) Mask() TableMask { return NewTableMask(Field) }

type MethodRowMask struct{}

func (MethodRowMask) Mask() TableMask { return NewTableMask(MethodDef) }

type ParamRowMask struct{}

func (ParamRowMask) Mask() TableMask { return NewTableMask(Param) }

type TypeDefRowMask struct{}

func (TypeDefRowMask) Mask() TableMask { return NewTableMask(TypeDef) }

type EventRowMask struct{}

func (EventRowMask) Mask() TableMask { return NewTableMask(Event) }

type PropertyRowMask struct{}

func (PropertyRowMask) Mask() TableMask { return NewTableMask(Property) }

type ModuleRefRowMask struct{}

func (ModuleRefRowMask) Mask() TableMask { return NewTableMask(ModuleRef) }

type GenericParamRowMask struct{}

func (GenericParamRowMask) Mask() TableMask { return NewTableMask(GenericParam) }

// TypeDefOrTypeRefMask is the narrower sibling of TypeDefOrRefMask that
// excludes TypeSpec: the type-policy entry point (typepolicy.go) takes a
// Token[TypeDefOrTypeRefMask] or a raw TypeSpec signature Blob as two
// separate cases rather than letting a coded-index token stand for both.
type TypeDefOrTypeRefMask struct{}

func (TypeDefOrTypeRefMask) Mask() TableMask { return NewTableMask(TypeDef, TypeRef) }
