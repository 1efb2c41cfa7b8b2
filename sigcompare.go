// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

// EqualTypes reports whether a and b are structurally equivalent per
// ECMA-335 §II.8.6.1.6: same element type, same nested shape, and
// (for VALUETYPE/CLASS and GENERICINST) the same underlying type
// identity as resolved by resolver. scopeA/scopeB are the databases a
// and b's TypeRef/Generic tokens are relative to.
func EqualTypes(scopeA *Database, a *Type, scopeB *Database, b *Type, resolver TypeResolver) (bool, error) {
	if a == nil || b == nil {
		return a == b, nil
	}
	if a.Elem != b.Elem {
		return false, nil
	}

	switch a.Elem {
	case ElemValueType, ElemClass:
		return equalTypeRef(scopeA, a.TypeRef, scopeB, b.TypeRef, resolver)

	case ElemVar, ElemMVar, ElemAnnotatedVar, ElemAnnotatedMVar:
		return a.GenericParamIndex == b.GenericParamIndex, nil

	case ElemCrossModuleTypeRef:
		return equalRowID(a.CrossModuleRef, b.CrossModuleRef), nil

	case ElemPtr, ElemByRef, ElemSZArray, ElemPinned:
		return EqualTypes(scopeA, a.Inner, scopeB, b.Inner, resolver)

	case ElemArray:
		if !equalArrayShape(a.Array, b.Array) {
			return false, nil
		}
		return EqualTypes(scopeA, a.Inner, scopeB, b.Inner, resolver)

	case ElemGenericInst:
		return equalGenericInst(scopeA, a.Generic, scopeB, b.Generic, resolver)

	case ElemFnPtr:
		return equalMethodSig(scopeA, a.FnPtr, scopeB, b.FnPtr, resolver)

	default:
		// Primitive element types carry no further payload: equal
		// Elem already settled it.
		return true, nil
	}
}

func equalRowID(a, b RowID) bool { return a == b }

func equalArrayShape(a, b *ArrayShape) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Rank != b.Rank || len(a.Sizes) != len(b.Sizes) || len(a.LoBounds) != len(b.LoBounds) {
		return false
	}
	for i := range a.Sizes {
		if a.Sizes[i] != b.Sizes[i] {
			return false
		}
	}
	for i := range a.LoBounds {
		if a.LoBounds[i] != b.LoBounds[i] {
			return false
		}
	}
	return true
}

// equalTypeRef resolves both VALUETYPE/CLASS references to their
// canonical TypeDef through resolver (following TypeRef indirection,
// possibly across databases) and compares the resolved identities.
func equalTypeRef(scopeA *Database, a RowID, scopeB *Database, b RowID, resolver TypeResolver) (bool, error) {
	rdA, rowA, err := canonicalType(scopeA, a, resolver)
	if err != nil {
		return false, err
	}
	rdB, rowB, err := canonicalType(scopeB, b, resolver)
	if err != nil {
		return false, err
	}
	return rdA == rdB && rowA == rowB, nil
}

func canonicalType(scope *Database, ref RowID, resolver TypeResolver) (*Database, RowID, error) {
	if ref.Table != TypeRef || resolver == nil {
		return scope, ref, nil
	}
	tok, err := NewToken[TypeDefOrRefMask](ref)
	if err != nil {
		return nil, RowID{}, err
	}
	rscope, resolved, err := resolver.ResolveType(scope, tok)
	if err != nil {
		return nil, RowID{}, err
	}
	return rscope, resolved.Row(), nil
}

func equalGenericInst(scopeA *Database, a *GenericInst, scopeB *Database, b *GenericInst, resolver TypeResolver) (bool, error) {
	if a == nil || b == nil {
		return a == b, nil
	}
	if a.IsValueType != b.IsValueType || len(a.Args) != len(b.Args) {
		return false, nil
	}
	eq, err := equalTypeRef(scopeA, a.Generic, scopeB, b.Generic, resolver)
	if err != nil || !eq {
		return false, err
	}
	for i := range a.Args {
		eq, err := EqualTypes(scopeA, &a.Args[i], scopeB, &b.Args[i], resolver)
		if err != nil || !eq {
			return false, err
		}
	}
	return true, nil
}

func equalMethodSig(scopeA *Database, a *MethodSig, scopeB *Database, b *MethodSig, resolver TypeResolver) (bool, error) {
	if a == nil || b == nil {
		return a == b, nil
	}
	if a.CallConv != b.CallConv || len(a.Params) != len(b.Params) {
		return false, nil
	}
	if a.GenericParamCount != b.GenericParamCount {
		return false, nil
	}
	eq, err := equalParam(scopeA, &a.RetType, scopeB, &b.RetType, resolver)
	if err != nil || !eq {
		return false, err
	}
	for i := range a.Params {
		eq, err := equalParam(scopeA, &a.Params[i], scopeB, &b.Params[i], resolver)
		if err != nil || !eq {
			return false, err
		}
	}
	return true, nil
}

func equalParam(scopeA *Database, a *ParamSig, scopeB *Database, b *ParamSig, resolver TypeResolver) (bool, error) {
	if a.ByRef != b.ByRef || a.Sentinel != b.Sentinel {
		return false, nil
	}
	if a.Sentinel {
		return true, nil
	}
	return EqualTypes(scopeA, a.Type, scopeB, b.Type, resolver)
}
