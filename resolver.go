// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

// TypeResolver is the abstract set of operations this core consumes but
// does not implement: resolving a reference outside the current
// database into a concrete declaration. A caller supplies an
// implementation (typically a reflection layer holding a table of
// loaded assemblies); this core never resolves assemblies by name
// itself.
type TypeResolver interface {
	// ResolveType resolves a TypeRef row to the TypeDef or TypeSpec it
	// names, possibly in a different Database.
	ResolveType(scope *Database, ref Token[TypeDefOrRefMask]) (*Database, Token[TypeDefOrRefMask], error)

	// ResolveMember resolves a MemberRef row to the Field or MethodDef
	// it names. The returned declaration is uninstantiated even when
	// the MemberRef's owning type is a generic instantiation; callers
	// that need the instantiated form re-resolve through the declaring
	// type themselves.
	ResolveMember(scope *Database, ref Token[MemberRefParentMask]) (*Database, RowID, error)

	// ResolveFundamentalType resolves an ECMA-335 primitive element type
	// (ELEMENT_TYPE_I4, ELEMENT_TYPE_STRING, ...) to its backing TypeDef,
	// e.g. for box/unbox and boxed-value comparisons.
	ResolveFundamentalType(elem ElementType) (*Database, Token[TypeDefRowMask], error)
}
