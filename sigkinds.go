// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

// ElementType is the 1-byte tag opening a type reference within a
// signature blob, ECMA-335 §II.23.1.16.
type ElementType byte

// Standard element types.
const (
	ElemEnd         ElementType = 0x00
	ElemVoid        ElementType = 0x01
	ElemBoolean     ElementType = 0x02
	ElemChar        ElementType = 0x03
	ElemI1          ElementType = 0x04
	ElemU1          ElementType = 0x05
	ElemI2          ElementType = 0x06
	ElemU2          ElementType = 0x07
	ElemI4          ElementType = 0x08
	ElemU4          ElementType = 0x09
	ElemI8          ElementType = 0x0a
	ElemU8          ElementType = 0x0b
	ElemR4          ElementType = 0x0c
	ElemR8          ElementType = 0x0d
	ElemString      ElementType = 0x0e
	ElemPtr         ElementType = 0x0f
	ElemByRef       ElementType = 0x10
	ElemValueType   ElementType = 0x11
	ElemClass       ElementType = 0x12
	ElemVar         ElementType = 0x13
	ElemArray       ElementType = 0x14
	ElemGenericInst ElementType = 0x15
	ElemTypedByRef  ElementType = 0x16
	ElemI           ElementType = 0x18
	ElemU           ElementType = 0x19
	ElemFnPtr       ElementType = 0x1b
	ElemObject      ElementType = 0x1c
	ElemSZArray     ElementType = 0x1d
	ElemMVar        ElementType = 0x1e
	ElemCModReqd    ElementType = 0x1f
	ElemCModOpt     ElementType = 0x20
	ElemInternal    ElementType = 0x21
	ElemModifier    ElementType = 0x40
	ElemSentinel    ElementType = 0x41
	ElemPinned      ElementType = 0x45

	// Implementation-private codes resolving the spec's generic-
	// instantiation element-type Open Question. ECMA-335 §II.23.1.16
	// defines nothing at these values; a conforming reader must reject
	// them if encountered in bytes read from a file, since they only
	// ever occur in already-instantiated signatures this module itself
	// produced.
	ElemAnnotatedVar         ElementType = 0x42
	ElemAnnotatedMVar        ElementType = 0x43
	ElemCrossModuleTypeRef   ElementType = 0x5F
)

// IsPrivate reports whether t is one of the implementation-private codes
// that may legally appear only in an instantiated signature, never in
// bytes read directly from a file.
func (t ElementType) IsPrivate() bool {
	switch t {
	case ElemAnnotatedVar, ElemAnnotatedMVar, ElemCrossModuleTypeRef:
		return true
	default:
		return false
	}
}

// CallingConvention is the low nibble (plus flag bits) of a method
// signature's leading byte, ECMA-335 §II.23.2.3.
type CallingConvention byte

// Calling convention bits.
const (
	CallConvDefault   CallingConvention = 0x0
	CallConvC         CallingConvention = 0x1
	CallConvStdCall   CallingConvention = 0x2
	CallConvThisCall  CallingConvention = 0x3
	CallConvFastCall  CallingConvention = 0x4
	CallConvVarArg    CallingConvention = 0x5
	CallConvField     CallingConvention = 0x6
	CallConvLocalSig  CallingConvention = 0x7
	CallConvProperty  CallingConvention = 0x8
	CallConvGeneric   CallingConvention = 0x10

	callConvMaskKind  CallingConvention = 0x0f
	callConvHasThis   CallingConvention = 0x20
	callConvExplicit  CallingConvention = 0x40
)

// Kind returns the calling-convention bits with the HASTHIS/EXPLICITTHIS
// flags masked off.
func (c CallingConvention) Kind() CallingConvention { return c & callConvMaskKind }

// HasThis reports whether the HASTHIS bit is set.
func (c CallingConvention) HasThis() bool { return c&callConvHasThis != 0 }

// ExplicitThis reports whether the EXPLICITTHIS bit is set.
func (c CallingConvention) ExplicitThis() bool { return c&callConvExplicit != 0 }

// IsGeneric reports whether the GENERIC bit is set.
func (c CallingConvention) IsGeneric() bool { return c&CallConvGeneric != 0 }
