// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

// InstantiationArg is one generic argument supplied to Instantiate*: the
// argument's type plus the database it was resolved from. Scope matters
// because a VALUETYPE/CLASS argument's coded index is only meaningful
// relative to its own database's tables; splicing it into a signature
// scoped to a different database would silently misresolve, so an
// argument from a foreign scope is tagged ElemCrossModuleTypeRef instead
// of spliced in directly.
type InstantiationArg struct {
	Scope *Database
	Type  Type
}

// CrossModuleRef is one entry of the side table Instantiate* returns
// alongside an instantiated signature: the out-of-scope type an
// ElemCrossModuleTypeRef placeholder stands for, keyed by its 1-based
// position (Type.CrossModuleRef.Row).
type CrossModuleRef struct {
	Scope *Database
	Type  Type
}

// InstantiateMethodSig substitutes generic type/method parameters (VAR/
// MVAR) throughout sig — scoped to scope — with the supplied arguments,
// producing a new, fully- or partially-instantiated signature. A VAR/
// MVAR index beyond the supplied argument list is preserved as an
// annotated variable (ElemAnnotatedVar/ElemAnnotatedMVar) rather than
// left as a bare VAR/MVAR, so a partially-instantiated signature
// re-parses unambiguously and running Instantiate again on it is a
// no-op (idempotent).
func InstantiateMethodSig(scope *Database, sig *MethodSig, typeArgs, methodArgs []InstantiationArg) (*MethodSig, []CrossModuleRef, error) {
	var cross []CrossModuleRef
	out, err := instantiateMethodSig(scope, sig, typeArgs, methodArgs, &cross)
	if err != nil {
		return nil, nil, err
	}
	return out, cross, nil
}

// InstantiateType substitutes generic parameters throughout t the same
// way InstantiateMethodSig does for a whole signature.
func InstantiateType(scope *Database, t *Type, typeArgs, methodArgs []InstantiationArg) (*Type, []CrossModuleRef, error) {
	var cross []CrossModuleRef
	out, err := instantiateType(scope, t, typeArgs, methodArgs, &cross)
	if err != nil {
		return nil, nil, err
	}
	return out, cross, nil
}

// RequiresInstantiation reports whether t contains at least one VAR or
// MVAR occurrence, recursing through every nested shape Instantiate*
// walks. A false result means instantiating t would be a byte-for-byte
// no-op, letting a caller skip the walk entirely for a concrete
// signature.
func RequiresInstantiation(t *Type) bool {
	if t == nil {
		return false
	}
	switch t.Elem {
	case ElemVar, ElemMVar:
		return true
	case ElemPtr, ElemByRef, ElemSZArray, ElemPinned, ElemArray:
		return RequiresInstantiation(t.Inner)
	case ElemGenericInst:
		if t.Generic == nil {
			return false
		}
		for i := range t.Generic.Args {
			if RequiresInstantiation(&t.Generic.Args[i]) {
				return true
			}
		}
		return false
	case ElemFnPtr:
		return RequiresInstantiationMethodSig(t.FnPtr)
	default:
		return false
	}
}

// RequiresInstantiationMethodSig is RequiresInstantiation over a whole
// method signature's return and parameter types.
func RequiresInstantiationMethodSig(sig *MethodSig) bool {
	if sig == nil {
		return false
	}
	if !sig.RetType.Sentinel && RequiresInstantiation(sig.RetType.Type) {
		return true
	}
	for i := range sig.Params {
		p := &sig.Params[i]
		if p.Sentinel {
			continue
		}
		if RequiresInstantiation(p.Type) {
			return true
		}
	}
	return false
}

func instantiateMethodSig(scope *Database, sig *MethodSig, typeArgs, methodArgs []InstantiationArg, cross *[]CrossModuleRef) (*MethodSig, error) {
	if sig == nil {
		return nil, nil
	}
	ret, err := instantiateParam(scope, &sig.RetType, typeArgs, methodArgs, cross)
	if err != nil {
		return nil, err
	}
	params := make([]ParamSig, len(sig.Params))
	for i := range sig.Params {
		p, err := instantiateParam(scope, &sig.Params[i], typeArgs, methodArgs, cross)
		if err != nil {
			return nil, err
		}
		params[i] = *p
	}
	return &MethodSig{
		CallConv:          sig.CallConv,
		GenericParamCount: sig.GenericParamCount,
		RetType:           *ret,
		Params:            params,
	}, nil
}

func instantiateParam(scope *Database, p *ParamSig, typeArgs, methodArgs []InstantiationArg, cross *[]CrossModuleRef) (*ParamSig, error) {
	if p.Sentinel {
		cp := *p
		return &cp, nil
	}
	t, err := instantiateType(scope, p.Type, typeArgs, methodArgs, cross)
	if err != nil {
		return nil, err
	}
	return &ParamSig{Mods: p.Mods, ByRef: p.ByRef, Type: t}, nil
}

func instantiateType(scope *Database, t *Type, typeArgs, methodArgs []InstantiationArg, cross *[]CrossModuleRef) (*Type, error) {
	if t == nil {
		return nil, nil
	}

	switch t.Elem {
	case ElemVar:
		return substituteGenericParam(scope, t, typeArgs, ElemAnnotatedVar, cross)

	case ElemMVar:
		return substituteGenericParam(scope, t, methodArgs, ElemAnnotatedMVar, cross)

	case ElemPtr, ElemByRef, ElemSZArray, ElemPinned:
		inner, err := instantiateType(scope, t.Inner, typeArgs, methodArgs, cross)
		if err != nil {
			return nil, err
		}
		return &Type{Mods: t.Mods, Elem: t.Elem, Inner: inner}, nil

	case ElemArray:
		inner, err := instantiateType(scope, t.Inner, typeArgs, methodArgs, cross)
		if err != nil {
			return nil, err
		}
		return &Type{Mods: t.Mods, Elem: t.Elem, Inner: inner, Array: t.Array}, nil

	case ElemGenericInst:
		args := make([]Type, len(t.Generic.Args))
		for i := range t.Generic.Args {
			a, err := instantiateType(scope, &t.Generic.Args[i], typeArgs, methodArgs, cross)
			if err != nil {
				return nil, err
			}
			args[i] = *a
		}
		return &Type{
			Mods: t.Mods,
			Elem: t.Elem,
			Generic: &GenericInst{
				IsValueType: t.Generic.IsValueType,
				Generic:     t.Generic.Generic,
				Args:        args,
			},
		}, nil

	case ElemFnPtr:
		sig, err := instantiateMethodSig(scope, t.FnPtr, typeArgs, methodArgs, cross)
		if err != nil {
			return nil, err
		}
		return &Type{Mods: t.Mods, Elem: t.Elem, FnPtr: sig}, nil

	default:
		// Primitives, VALUETYPE/CLASS, and already-instantiated
		// placeholders (ElemAnnotatedVar/MVar, ElemCrossModuleTypeRef)
		// carry no generic parameter underneath: copy unchanged. This
		// is what makes a second Instantiate pass over already-
		// instantiated output a no-op.
		cp := *t
		return &cp, nil
	}
}

// substituteGenericParam resolves one VAR/MVAR occurrence against args.
// An argument scoped to a different Database than scope cannot be
// spliced in directly — its VALUETYPE/CLASS coded indices are only
// meaningful relative to its own tables — so it is recorded in cross
// and replaced with an ElemCrossModuleTypeRef placeholder carrying the
// entry's 1-based position instead.
func substituteGenericParam(scope *Database, t *Type, args []InstantiationArg, annotated ElementType, cross *[]CrossModuleRef) (*Type, error) {
	idx := t.GenericParamIndex
	if int(idx) >= len(args) {
		return &Type{Mods: t.Mods, Elem: annotated, GenericParamIndex: idx}, nil
	}

	arg := args[idx]
	if arg.Scope == scope {
		cp := arg.Type
		cp.Mods = append(append([]CustomMod{}, t.Mods...), cp.Mods...)
		return &cp, nil
	}

	*cross = append(*cross, CrossModuleRef{Scope: arg.Scope, Type: arg.Type})
	return &Type{
		Mods:           t.Mods,
		Elem:           ElemCrossModuleTypeRef,
		CrossModuleRef: RowID{Table: TableID(0), Row: uint32(len(*cross))},
	}, nil
}
