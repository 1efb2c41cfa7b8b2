// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

// CustomMod is one modopt/modreq prefix of a signature's type, ECMA-335
// §II.23.2.7: a flag for required-vs-optional plus the modifier type.
type CustomMod struct {
	Required bool
	Type     RowID
}

// ArrayShape is the rank/bound information following ELEMENT_TYPE_ARRAY,
// ECMA-335 §II.23.2.13.
type ArrayShape struct {
	Rank     uint32
	Sizes    []uint32
	LoBounds []int32
}

// GenericInst is a GENERICINST type, ECMA-335 §II.23.2.12: a generic
// type definition/reference instantiated with concrete arguments.
type GenericInst struct {
	IsValueType bool
	Generic     RowID
	Args        []Type
}

// Type is a fully decoded Type production (ECMA-335 §II.23.2.12),
// recursively parsed: a signature rarely nests deeply enough that eager
// recursive descent costs more than the part-addressed byte range it
// was read from, so only a method signature's parameter list (ParamIter,
// below) is offered as a lazy iterator; field types, generic arguments,
// array sizes and bounds, and custom-modifier lists are decoded eagerly.
type Type struct {
	Mods []CustomMod
	Elem ElementType

	// Valid when Elem is ElemValueType or ElemClass.
	TypeRef RowID

	// Valid when Elem is ElemVar, ElemMVar, ElemAnnotatedVar or
	// ElemAnnotatedMVar: the 0-based generic parameter index.
	GenericParamIndex uint32

	// Valid when Elem is ElemCrossModuleTypeRef: the referenced type in
	// a scope produced only by this module's own instantiation step.
	CrossModuleRef RowID

	// Valid when Elem is ElemPtr, ElemByRef, ElemSZArray, ElemArray or
	// ElemPinned: the pointee/element type.
	Inner *Type

	// Valid when Elem is ElemArray.
	Array *ArrayShape

	// Valid when Elem is ElemGenericInst.
	Generic *GenericInst

	// Valid when Elem is ElemFnPtr.
	FnPtr *MethodSig
}

// ParamSig is one parameter (or the return type) of a method, property
// or field signature: leading custom mods, an optional BYREF marker, and
// the parameter's type.
type ParamSig struct {
	Mods  []CustomMod
	ByRef bool

	// Sentinel marks the "..." separator in a vararg call-site
	// signature (ECMA-335 §II.23.2.2); Type is nil when Sentinel is set.
	Sentinel bool

	Type *Type
}

// MethodSig is a decoded MethodDefSig/MethodRefSig, ECMA-335 §II.23.2.1.
type MethodSig struct {
	CallConv          CallingConvention
	GenericParamCount uint32
	RetType           ParamSig
	Params            []ParamSig
}

// FieldSig is a decoded FieldSig, ECMA-335 §II.23.2.4.
type FieldSig struct {
	Mods []CustomMod
	Type Type
}

// PropertySig is a decoded PropertySig, ECMA-335 §II.23.2.5.
type PropertySig struct {
	HasThis bool
	Mods    []CustomMod
	Type    Type
	Params  []ParamSig
}

// ParseFieldSig parses a Field row's Signature blob.
func ParseFieldSig(blob []byte) (*FieldSig, error) {
	c := newCursor(blob)
	b, err := c.u8()
	if err != nil {
		return nil, err
	}
	if CallingConvention(b).Kind() != CallConvField {
		return nil, ErrOutsideBoundary
	}
	mods, err := readCustomMods(&c)
	if err != nil {
		return nil, err
	}
	t, err := readType(&c)
	if err != nil {
		return nil, err
	}
	return &FieldSig{Mods: mods, Type: *t}, nil
}

// ParseMethodSig parses a MethodDef/MemberRef row's Signature blob, or a
// MethodSig embedded in a FnPtr type.
func ParseMethodSig(blob []byte) (*MethodSig, error) {
	c := newCursor(blob)
	return readMethodSig(&c)
}

// ParsePropertySig parses a Property row's Type blob.
func ParsePropertySig(blob []byte) (*PropertySig, error) {
	c := newCursor(blob)
	b, err := c.u8()
	if err != nil {
		return nil, err
	}
	cc := CallingConvention(b)
	if cc.Kind() != CallConvProperty {
		return nil, ErrOutsideBoundary
	}
	paramCount, err := readCompressedUnsigned(&c)
	if err != nil {
		return nil, err
	}
	mods, err := readCustomMods(&c)
	if err != nil {
		return nil, err
	}
	t, err := readType(&c)
	if err != nil {
		return nil, err
	}
	params := make([]ParamSig, 0, paramCount)
	for i := uint32(0); i < paramCount; i++ {
		p, err := readParam(&c)
		if err != nil {
			return nil, err
		}
		params = append(params, *p)
	}
	return &PropertySig{HasThis: cc.HasThis(), Mods: mods, Type: *t, Params: params}, nil
}

// ParseLocalVarSig parses a StandAloneSig row's Signature blob when it
// describes method locals (LOCAL_SIG, ECMA-335 §II.23.2.6).
func ParseLocalVarSig(blob []byte) ([]ParamSig, error) {
	c := newCursor(blob)
	b, err := c.u8()
	if err != nil {
		return nil, err
	}
	if CallingConvention(b).Kind() != CallConvLocalSig {
		return nil, ErrOutsideBoundary
	}
	count, err := readCompressedUnsigned(&c)
	if err != nil {
		return nil, err
	}
	locals := make([]ParamSig, 0, count)
	for i := uint32(0); i < count; i++ {
		p, err := readParam(&c)
		if err != nil {
			return nil, err
		}
		locals = append(locals, *p)
	}
	return locals, nil
}

func readMethodSig(c *cursor) (*MethodSig, error) {
	b, err := c.u8()
	if err != nil {
		return nil, err
	}
	cc := CallingConvention(b)

	var genCount uint32
	if cc.IsGeneric() {
		genCount, err = readCompressedUnsigned(c)
		if err != nil {
			return nil, err
		}
	}

	paramCount, err := readCompressedUnsigned(c)
	if err != nil {
		return nil, err
	}

	ret, err := readParam(c)
	if err != nil {
		return nil, err
	}

	params := make([]ParamSig, 0, paramCount)
	for i := uint32(0); i < paramCount; i++ {
		p, err := readParam(c)
		if err != nil {
			return nil, err
		}
		params = append(params, *p)
	}

	return &MethodSig{CallConv: cc, GenericParamCount: genCount, RetType: *ret, Params: params}, nil
}

// readParam decodes one ParamSig: optional custom mods, an optional
// BYREF or the vararg sentinel, then (unless this was the sentinel) a
// Type.
func readParam(c *cursor) (*ParamSig, error) {
	mods, err := readCustomMods(c)
	if err != nil {
		return nil, err
	}

	b, err := peekByte(c)
	if err != nil {
		return nil, err
	}
	if ElementType(b) == ElemSentinel {
		c.pos++
		return &ParamSig{Mods: mods, Sentinel: true}, nil
	}

	byRef := false
	if ElementType(b) == ElemByRef {
		c.pos++
		byRef = true
	}

	t, err := readType(c)
	if err != nil {
		return nil, err
	}
	return &ParamSig{Mods: mods, ByRef: byRef, Type: t}, nil
}

func peekByte(c *cursor) (byte, error) {
	if c.remaining() < 1 {
		return 0, ErrOutsideBoundary
	}
	return c.data[c.pos], nil
}

func readCustomMods(c *cursor) ([]CustomMod, error) {
	var mods []CustomMod
	for {
		b, err := peekByte(c)
		if err != nil {
			return nil, err
		}
		et := ElementType(b)
		if et != ElemCModReqd && et != ElemCModOpt {
			return mods, nil
		}
		c.pos++
		ref, err := readCodedTypeDefOrRefOrSpec(c)
		if err != nil {
			return nil, err
		}
		mods = append(mods, CustomMod{Required: et == ElemCModReqd, Type: ref})
	}
}

// readType decodes one Type production, ECMA-335 §II.23.2.12.
func readType(c *cursor) (*Type, error) {
	mods, err := readCustomMods(c)
	if err != nil {
		return nil, err
	}

	b, err := c.u8()
	if err != nil {
		return nil, err
	}
	et := ElementType(b)
	if et.IsPrivate() {
		return nil, ErrOutsideBoundary
	}

	t := &Type{Mods: mods, Elem: et}

	switch et {
	case ElemVoid, ElemBoolean, ElemChar, ElemI1, ElemU1, ElemI2, ElemU2,
		ElemI4, ElemU4, ElemI8, ElemU8, ElemR4, ElemR8, ElemString,
		ElemI, ElemU, ElemObject, ElemTypedByRef:
		return t, nil

	case ElemValueType, ElemClass:
		ref, err := readCodedTypeDefOrRefOrSpec(c)
		if err != nil {
			return nil, err
		}
		t.TypeRef = ref
		return t, nil

	case ElemVar, ElemMVar:
		idx, err := readCompressedUnsigned(c)
		if err != nil {
			return nil, err
		}
		t.GenericParamIndex = idx
		return t, nil

	case ElemPtr, ElemByRef, ElemPinned:
		inner, err := readType(c)
		if err != nil {
			return nil, err
		}
		t.Inner = inner
		return t, nil

	case ElemSZArray:
		inner, err := readType(c)
		if err != nil {
			return nil, err
		}
		t.Inner = inner
		return t, nil

	case ElemArray:
		elem, err := readType(c)
		if err != nil {
			return nil, err
		}
		shape, err := readArrayShape(c)
		if err != nil {
			return nil, err
		}
		t.Inner = elem
		t.Array = shape
		return t, nil

	case ElemGenericInst:
		kindByte, err := c.u8()
		if err != nil {
			return nil, err
		}
		isValueType := ElementType(kindByte) == ElemValueType
		ref, err := readCodedTypeDefOrRefOrSpec(c)
		if err != nil {
			return nil, err
		}
		argCount, err := readCompressedUnsigned(c)
		if err != nil {
			return nil, err
		}
		args := make([]Type, 0, argCount)
		for i := uint32(0); i < argCount; i++ {
			a, err := readType(c)
			if err != nil {
				return nil, err
			}
			args = append(args, *a)
		}
		t.Generic = &GenericInst{IsValueType: isValueType, Generic: ref, Args: args}
		return t, nil

	case ElemFnPtr:
		sig, err := readMethodSig(c)
		if err != nil {
			return nil, err
		}
		t.FnPtr = sig
		return t, nil

	default:
		return nil, ErrOutsideBoundary
	}
}

func readArrayShape(c *cursor) (*ArrayShape, error) {
	rank, err := readCompressedUnsigned(c)
	if err != nil {
		return nil, err
	}
	numSizes, err := readCompressedUnsigned(c)
	if err != nil {
		return nil, err
	}
	sizes := make([]uint32, numSizes)
	for i := range sizes {
		sizes[i], err = readCompressedUnsigned(c)
		if err != nil {
			return nil, err
		}
	}
	numLoBounds, err := readCompressedUnsigned(c)
	if err != nil {
		return nil, err
	}
	loBounds := make([]int32, numLoBounds)
	for i := range loBounds {
		loBounds[i], err = readCompressedSigned(c)
		if err != nil {
			return nil, err
		}
	}
	return &ArrayShape{Rank: rank, Sizes: sizes, LoBounds: loBounds}, nil
}

// ParamIter lazily walks a MethodSig's parameter list one ParamSig at a
// time, reading directly from the original blob range instead of the
// eagerly-decoded Params slice.
type ParamIter struct {
	c         cursor
	remaining uint32
}

// ParamsIter returns a lazy iterator over sig's parameter list, re-parsing
// from the signature's original byte range.
func (sig *MethodSig) ParamsIter(blob []byte, paramOffset uint32, count uint32) *ParamIter {
	return &ParamIter{c: newCursorAt(blob, paramOffset), remaining: count}
}

// Next decodes and returns the next parameter, or (nil, nil) once
// exhausted.
func (it *ParamIter) Next() (*ParamSig, error) {
	if it == nil || it.remaining == 0 {
		return nil, nil
	}
	p, err := readParam(&it.c)
	if err != nil {
		return nil, err
	}
	it.remaining--
	return p, nil
}
