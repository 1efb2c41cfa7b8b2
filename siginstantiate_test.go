// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "testing"

func TestInstantiateTypeSubstitutesVar(t *testing.T) {
	db := &Database{}
	typ := &Type{Elem: ElemVar, GenericParamIndex: 0}
	args := []InstantiationArg{{Scope: db, Type: Type{Elem: ElemI4}}}

	out, cross, err := InstantiateType(db, typ, args, nil)
	if err != nil {
		t.Fatalf("InstantiateType: %v", err)
	}
	if len(cross) != 0 {
		t.Fatalf("cross = %v, want none", cross)
	}
	if out.Elem != ElemI4 {
		t.Fatalf("out.Elem = %v, want ElemI4", out.Elem)
	}
}

func TestInstantiateTypeBeyondArgListBecomesAnnotated(t *testing.T) {
	db := &Database{}
	typ := &Type{Elem: ElemVar, GenericParamIndex: 2}
	out, _, err := InstantiateType(db, typ, nil, nil)
	if err != nil {
		t.Fatalf("InstantiateType: %v", err)
	}
	if out.Elem != ElemAnnotatedVar {
		t.Fatalf("out.Elem = %v, want ElemAnnotatedVar", out.Elem)
	}
	if out.GenericParamIndex != 2 {
		t.Fatalf("GenericParamIndex = %d, want 2", out.GenericParamIndex)
	}
}

func TestInstantiateTypeMVar(t *testing.T) {
	db := &Database{}
	typ := &Type{Elem: ElemMVar, GenericParamIndex: 0}
	args := []InstantiationArg{{Scope: db, Type: Type{Elem: ElemString}}}

	out, _, err := InstantiateType(db, typ, nil, args)
	if err != nil {
		t.Fatalf("InstantiateType: %v", err)
	}
	if out.Elem != ElemString {
		t.Fatalf("out.Elem = %v, want ElemString", out.Elem)
	}
}

func TestInstantiateTypeCrossModuleRef(t *testing.T) {
	dbHome := &Database{}
	dbForeign := &Database{}
	typ := &Type{Elem: ElemVar, GenericParamIndex: 0}
	args := []InstantiationArg{{Scope: dbForeign, Type: Type{Elem: ElemI4, TypeRef: RowID{Table: TypeDef, Row: 7}}}}

	out, cross, err := InstantiateType(dbHome, typ, args, nil)
	if err != nil {
		t.Fatalf("InstantiateType: %v", err)
	}
	if out.Elem != ElemCrossModuleTypeRef {
		t.Fatalf("out.Elem = %v, want ElemCrossModuleTypeRef", out.Elem)
	}
	if len(cross) != 1 {
		t.Fatalf("len(cross) = %d, want 1", len(cross))
	}
	if cross[0].Scope != dbForeign || cross[0].Type.TypeRef != (RowID{Table: TypeDef, Row: 7}) {
		t.Fatalf("cross[0] = %+v", cross[0])
	}
	if out.CrossModuleRef.Row != uint32(len(cross)) {
		t.Fatalf("CrossModuleRef.Row = %d, want %d", out.CrossModuleRef.Row, len(cross))
	}
}

func TestInstantiateTypeNested(t *testing.T) {
	db := &Database{}
	typ := &Type{Elem: ElemSZArray, Inner: &Type{Elem: ElemVar, GenericParamIndex: 0}}
	args := []InstantiationArg{{Scope: db, Type: Type{Elem: ElemBoolean}}}

	out, _, err := InstantiateType(db, typ, args, nil)
	if err != nil {
		t.Fatalf("InstantiateType: %v", err)
	}
	if out.Elem != ElemSZArray || out.Inner == nil || out.Inner.Elem != ElemBoolean {
		t.Fatalf("out = %+v", out)
	}
}

func TestInstantiateTypePrimitiveIsCopiedUnchanged(t *testing.T) {
	db := &Database{}
	typ := &Type{Elem: ElemI4}
	out, _, err := InstantiateType(db, typ, nil, nil)
	if err != nil {
		t.Fatalf("InstantiateType: %v", err)
	}
	if out == typ {
		t.Fatal("InstantiateType returned the same pointer, want a copy")
	}
	if out.Elem != ElemI4 {
		t.Fatalf("out.Elem = %v, want ElemI4", out.Elem)
	}
}

func TestInstantiateTypeIdempotentSecondPass(t *testing.T) {
	db := &Database{}
	typ := &Type{Elem: ElemVar, GenericParamIndex: 5}

	first, _, err := InstantiateType(db, typ, nil, nil)
	if err != nil {
		t.Fatalf("first InstantiateType: %v", err)
	}
	if first.Elem != ElemAnnotatedVar {
		t.Fatalf("first.Elem = %v, want ElemAnnotatedVar", first.Elem)
	}

	second, _, err := InstantiateType(db, first, nil, nil)
	if err != nil {
		t.Fatalf("second InstantiateType: %v", err)
	}
	if second.Elem != first.Elem || second.GenericParamIndex != first.GenericParamIndex {
		t.Fatalf("second pass changed an already-instantiated type: %+v vs %+v", second, first)
	}
}

func TestInstantiateMethodSigSubstitutesThroughoutParams(t *testing.T) {
	db := &Database{}
	sig := &MethodSig{
		CallConv: CallConvDefault,
		RetType:  ParamSig{Type: &Type{Elem: ElemVar, GenericParamIndex: 0}},
		Params: []ParamSig{
			{Type: &Type{Elem: ElemMVar, GenericParamIndex: 0}},
			{Sentinel: true},
		},
	}
	typeArgs := []InstantiationArg{{Scope: db, Type: Type{Elem: ElemString}}}
	methodArgs := []InstantiationArg{{Scope: db, Type: Type{Elem: ElemI4}}}

	out, cross, err := InstantiateMethodSig(db, sig, typeArgs, methodArgs)
	if err != nil {
		t.Fatalf("InstantiateMethodSig: %v", err)
	}
	if len(cross) != 0 {
		t.Fatalf("cross = %v, want none", cross)
	}
	if out.RetType.Type.Elem != ElemString {
		t.Fatalf("RetType.Elem = %v, want ElemString", out.RetType.Type.Elem)
	}
	if out.Params[0].Type.Elem != ElemI4 {
		t.Fatalf("Params[0].Elem = %v, want ElemI4", out.Params[0].Type.Elem)
	}
	if !out.Params[1].Sentinel || out.Params[1].Type != nil {
		t.Fatalf("Params[1] = %+v, want preserved sentinel", out.Params[1])
	}
}

func TestSubstituteGenericParamPreservesLeadingMods(t *testing.T) {
	db := &Database{}
	modRef := RowID{Table: TypeRef, Row: 3}
	typ := &Type{
		Elem:              ElemVar,
		GenericParamIndex: 0,
		Mods:              []CustomMod{{Required: true, Type: modRef}},
	}
	args := []InstantiationArg{{Scope: db, Type: Type{Elem: ElemI4}}}

	out, _, err := InstantiateType(db, typ, args, nil)
	if err != nil {
		t.Fatalf("InstantiateType: %v", err)
	}
	if len(out.Mods) != 1 || out.Mods[0].Type != modRef {
		t.Fatalf("Mods = %+v, want leading mod preserved", out.Mods)
	}
}

func TestRequiresInstantiation(t *testing.T) {
	cases := []struct {
		name string
		t    *Type
		want bool
	}{
		{"nil", nil, false},
		{"primitive", &Type{Elem: ElemI4}, false},
		{"bare var", &Type{Elem: ElemVar, GenericParamIndex: 0}, true},
		{"bare mvar", &Type{Elem: ElemMVar, GenericParamIndex: 0}, true},
		{"already annotated var is concrete", &Type{Elem: ElemAnnotatedVar, GenericParamIndex: 0}, false},
		{
			"var nested in szarray",
			&Type{Elem: ElemSZArray, Inner: &Type{Elem: ElemVar, GenericParamIndex: 0}},
			true,
		},
		{
			"concrete szarray",
			&Type{Elem: ElemSZArray, Inner: &Type{Elem: ElemI4}},
			false,
		},
		{
			"generic inst with var argument",
			&Type{Elem: ElemGenericInst, Generic: &GenericInst{
				Args: []Type{{Elem: ElemI4}, {Elem: ElemVar, GenericParamIndex: 1}},
			}},
			true,
		},
		{
			"generic inst fully concrete",
			&Type{Elem: ElemGenericInst, Generic: &GenericInst{
				Args: []Type{{Elem: ElemI4}, {Elem: ElemString}},
			}},
			false,
		},
		{
			"fnptr with mvar param",
			&Type{Elem: ElemFnPtr, FnPtr: &MethodSig{
				RetType: ParamSig{Type: &Type{Elem: ElemVoid}},
				Params:  []ParamSig{{Type: &Type{Elem: ElemMVar, GenericParamIndex: 0}}},
			}},
			true,
		},
		{
			"fnptr fully concrete",
			&Type{Elem: ElemFnPtr, FnPtr: &MethodSig{
				RetType: ParamSig{Type: &Type{Elem: ElemVoid}},
				Params:  []ParamSig{{Type: &Type{Elem: ElemI4}}},
			}},
			false,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := RequiresInstantiation(c.t); got != c.want {
				t.Fatalf("RequiresInstantiation(%+v) = %v, want %v", c.t, got, c.want)
			}
		})
	}
}

func TestRequiresInstantiationMethodSigSentinelSkipped(t *testing.T) {
	sig := &MethodSig{
		RetType: ParamSig{Type: &Type{Elem: ElemVoid}},
		Params: []ParamSig{
			{Type: &Type{Elem: ElemI4}},
			{Sentinel: true},
		},
	}
	if RequiresInstantiationMethodSig(sig) {
		t.Fatal("RequiresInstantiationMethodSig(concrete sig with sentinel) = true, want false")
	}

	sig.Params[1] = ParamSig{Type: &Type{Elem: ElemVar, GenericParamIndex: 0}}
	if !RequiresInstantiationMethodSig(sig) {
		t.Fatal("RequiresInstantiationMethodSig(sig with var param) = false, want true")
	}
}
