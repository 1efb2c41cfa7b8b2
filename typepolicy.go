// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

// TypeKind names one of the eight closed-set shapes a type reference can
// take. Dispatch on Kind is a plain switch rather than a method-table
// hierarchy: the set of shapes is fixed by ECMA-335 and never grows, so a
// virtual-dispatch layer would buy nothing but indirection.
type TypeKind int

// Type policies.
const (
	KindPrimitive TypeKind = iota
	KindArray
	KindByRef
	KindPointer
	KindGenericInstance
	KindClassType
	KindVariable
	KindDefOrRef
)

func (k TypeKind) String() string {
	switch k {
	case KindPrimitive:
		return "Primitive"
	case KindArray:
		return "Array"
	case KindByRef:
		return "ByRef"
	case KindPointer:
		return "Pointer"
	case KindGenericInstance:
		return "GenericInstance"
	case KindClassType:
		return "ClassType"
	case KindVariable:
		return "Variable"
	case KindDefOrRef:
		return "DefOrRef"
	default:
		return "Unknown"
	}
}

// TypeVisibility is the low 3 bits of TypeDef.Flags, ECMA-335 §II.23.1.15
// tdVisibilityMask.
type TypeVisibility uint32

const typeVisibilityMask = 0x7

// Type visibility values.
const (
	VisibilityNotPublic         TypeVisibility = 0x0
	VisibilityPublic            TypeVisibility = 0x1
	VisibilityNestedPublic      TypeVisibility = 0x2
	VisibilityNestedPrivate     TypeVisibility = 0x3
	VisibilityNestedFamily      TypeVisibility = 0x4
	VisibilityNestedAssembly    TypeVisibility = 0x5
	VisibilityNestedFamANDAssem TypeVisibility = 0x6
	VisibilityNestedFamORAssem  TypeVisibility = 0x7
)

// TypeLayout is bits 3..4 of TypeDef.Flags, ECMA-335 §II.23.1.15
// tdLayoutMask.
type TypeLayout uint32

const typeLayoutMask = 0x18

// Type layout values.
const (
	LayoutAuto       TypeLayout = 0x0
	LayoutSequential TypeLayout = 0x8
	LayoutExplicit   TypeLayout = 0x10
)

// TypePolicy answers "what is this type?" for a Token[TypeDef|TypeRef] or
// a TypeSpec signature Blob, per spec.md §4.8: category booleans plus
// structural queries, with shapes that don't own an identity of their
// own (array, by-ref, pointer, a generic instance's arguments, a type
// variable) deferring the structural queries to a recursive resolution
// step that walks down to the nearest TypeDef.
type TypePolicy struct {
	kind     TypeKind
	db       *Database
	resolver TypeResolver

	// Valid when kind is KindDefOrRef.
	tok Token[TypeDefOrTypeRefMask]

	// Valid for every other kind: the decoded top-level Type the input
	// blob parsed to.
	typ *Type
}

// NewTypePolicy classifies in — either a Token[TypeDef|TypeRef] or a raw
// TypeSpec Signature blob — into one of the eight policies.
func NewTypePolicy(db *Database, resolver TypeResolver, in TokenOrBlob[TypeDefOrTypeRefMask]) (*TypePolicy, error) {
	if tok, ok := in.Token(); ok {
		if tok.IsNil() {
			return nil, ErrOutsideBoundary
		}
		return &TypePolicy{kind: KindDefOrRef, db: db, resolver: resolver, tok: tok}, nil
	}

	blob, _ := in.Blob()
	t, err := classifyBlob(blob)
	if err != nil {
		return nil, err
	}
	return &TypePolicy{kind: classifyElem(t.Elem), db: db, resolver: resolver, typ: t}, nil
}

func classifyBlob(blob []byte) (*Type, error) {
	c := newCursor(blob)
	return readType(&c)
}

func classifyElem(elem ElementType) TypeKind {
	switch elem {
	case ElemArray, ElemSZArray:
		return KindArray
	case ElemByRef:
		return KindByRef
	case ElemPtr:
		return KindPointer
	case ElemGenericInst:
		return KindGenericInstance
	case ElemValueType, ElemClass:
		return KindClassType
	case ElemVar, ElemMVar, ElemAnnotatedVar, ElemAnnotatedMVar:
		return KindVariable
	default:
		return KindPrimitive
	}
}

// Kind returns which of the eight policies p dispatched to.
func (p *TypePolicy) Kind() TypeKind { return p.kind }

// IsArray reports an ARRAY or SZARRAY shape.
func (p *TypePolicy) IsArray() bool { return p.kind == KindArray }

// IsByRef reports a BYREF shape.
func (p *TypePolicy) IsByRef() bool { return p.kind == KindByRef }

// IsPointer reports a PTR shape.
func (p *TypePolicy) IsPointer() bool { return p.kind == KindPointer }

// IsPrimitive reports an ECMA-335 built-in element type (I4, STRING,
// OBJECT, ...), as opposed to a named VALUETYPE/CLASS.
func (p *TypePolicy) IsPrimitive() bool { return p.kind == KindPrimitive }

// IsGenericInstance reports a GENERICINST shape.
func (p *TypePolicy) IsGenericInstance() bool { return p.kind == KindGenericInstance }

// IsGenericParameter reports a VAR/MVAR (or its annotated, post-
// instantiation form).
func (p *TypePolicy) IsGenericParameter() bool { return p.kind == KindVariable }

// nameRef returns the RowID this policy's primary/namespace name reads
// from, for the three kinds that carry one directly.
func (p *TypePolicy) nameRef() (RowID, error) {
	switch p.kind {
	case KindDefOrRef:
		return p.tok.Row(), nil
	case KindClassType:
		return p.typ.TypeRef, nil
	case KindGenericInstance:
		return p.typ.Generic.Generic, nil
	default:
		return RowID{}, ErrOutsideBoundary
	}
}

// Name returns the type's primary (unqualified) name.
func (p *TypePolicy) Name() (string, error) {
	ref, err := p.nameRef()
	if err != nil {
		return "", err
	}
	name, _, err := typeRefName(p.db, ref)
	return name, err
}

// Namespace returns the type's namespace, which is empty for a nested
// type (its namespace is its enclosing type's).
func (p *TypePolicy) Namespace() (string, error) {
	ref, err := p.nameRef()
	if err != nil {
		return "", err
	}
	_, ns, err := typeRefName(p.db, ref)
	return ns, err
}

// typeRefName reads TypeName/TypeNamespace off ref directly for a
// TypeDef or TypeRef row, or recurses into a TypeSpec's own top-level
// type (CLASS/VALUETYPE or the head of a GENERICINST) to find one.
func typeRefName(db *Database, ref RowID) (name, namespace string, err error) {
	switch ref.Table {
	case TypeDef, TypeRef:
		name, err = db.String(ref.Table, ref.Row, "TypeName")
		if err != nil {
			return "", "", err
		}
		namespace, err = db.String(ref.Table, ref.Row, "TypeNamespace")
		return name, namespace, err

	case TypeSpec:
		blob, err := db.Blob(TypeSpec, ref.Row, "Signature")
		if err != nil {
			return "", "", err
		}
		t, err := classifyBlob(blob)
		if err != nil {
			return "", "", err
		}
		switch t.Elem {
		case ElemValueType, ElemClass:
			return typeRefName(db, t.TypeRef)
		case ElemGenericInst:
			return typeRefName(db, t.Generic.Generic)
		default:
			return "", "", ErrOutsideBoundary
		}

	default:
		return "", "", ErrOutsideBoundary
	}
}

// typeDefRef is the recursive resolution step spec.md §4.8 describes: it
// walks from whatever this policy directly references down to the
// canonical TypeDef that owns Flags/Extends/nesting, possibly crossing
// into a different Database through resolver. A generic instance defers
// to its head type definition; a primitive defers to
// resolver.ResolveFundamentalType; array/by-ref/pointer/variable own no
// such identity and fail.
func (p *TypePolicy) typeDefRef() (*Database, RowID, error) {
	switch p.kind {
	case KindDefOrRef:
		return resolveTypeDef(p.db, p.resolver, p.tok.Row())
	case KindClassType:
		return resolveTypeDef(p.db, p.resolver, p.typ.TypeRef)
	case KindGenericInstance:
		return resolveTypeDef(p.db, p.resolver, p.typ.Generic.Generic)
	case KindPrimitive:
		if p.resolver == nil {
			return nil, RowID{}, ErrOutsideBoundary
		}
		scope, tok, err := p.resolver.ResolveFundamentalType(p.typ.Elem)
		if err != nil {
			return nil, RowID{}, err
		}
		return scope, tok.Row(), nil
	default:
		return nil, RowID{}, ErrOutsideBoundary
	}
}

// resolveTypeDef follows ref down to a TypeDef row, hopping through
// TypeRef.ResolveType (possibly into another Database) and unwrapping a
// TypeSpec's own CLASS/VALUETYPE/GENERICINST head.
func resolveTypeDef(db *Database, resolver TypeResolver, ref RowID) (*Database, RowID, error) {
	switch ref.Table {
	case TypeDef:
		return db, ref, nil

	case TypeRef:
		if resolver == nil {
			return nil, RowID{}, ErrOutsideBoundary
		}
		tok, err := NewToken[TypeDefOrRefMask](ref)
		if err != nil {
			return nil, RowID{}, err
		}
		rscope, resolved, err := resolver.ResolveType(db, tok)
		if err != nil {
			return nil, RowID{}, err
		}
		return resolveTypeDef(rscope, resolver, resolved.Row())

	case TypeSpec:
		blob, err := db.Blob(TypeSpec, ref.Row, "Signature")
		if err != nil {
			return nil, RowID{}, err
		}
		t, err := classifyBlob(blob)
		if err != nil {
			return nil, RowID{}, err
		}
		switch t.Elem {
		case ElemValueType, ElemClass:
			return resolveTypeDef(db, resolver, t.TypeRef)
		case ElemGenericInst:
			return resolveTypeDef(db, resolver, t.Generic.Generic)
		default:
			return nil, RowID{}, ErrOutsideBoundary
		}

	default:
		return nil, RowID{}, ErrOutsideBoundary
	}
}

// Attributes returns the resolved TypeDef's raw Flags column.
func (p *TypePolicy) Attributes() (uint32, error) {
	scope, row, err := p.typeDefRef()
	if err != nil {
		return 0, err
	}
	return scope.U32(TypeDef, row.Row, "Flags")
}

// Visibility returns the resolved TypeDef's visibility bits.
func (p *TypePolicy) Visibility() (TypeVisibility, error) {
	flags, err := p.Attributes()
	if err != nil {
		return 0, err
	}
	return TypeVisibility(flags & typeVisibilityMask), nil
}

// Layout returns the resolved TypeDef's layout bits.
func (p *TypePolicy) Layout() (TypeLayout, error) {
	flags, err := p.Attributes()
	if err != nil {
		return 0, err
	}
	return TypeLayout(flags & typeLayoutMask), nil
}

// BaseType returns the resolved TypeDef's Extends coded index: the type
// it derives from, or a nil token for one with no base (System.Object
// and every interface).
func (p *TypePolicy) BaseType() (*Database, Token[TypeDefOrRefMask], error) {
	scope, row, err := p.typeDefRef()
	if err != nil {
		return nil, Token[TypeDefOrRefMask]{}, err
	}
	ext, err := scope.CodedIndex(TypeDef, row.Row, "Extends")
	if err != nil {
		return nil, Token[TypeDefOrRefMask]{}, err
	}
	tok, err := NewToken[TypeDefOrRefMask](ext)
	return scope, tok, err
}

// DeclaringType returns the resolved TypeDef's enclosing type, per the
// NestedClass table, and false if it is not a nested type.
func (p *TypePolicy) DeclaringType() (*Database, Token[TypeDefOrTypeRefMask], bool, error) {
	scope, row, err := p.typeDefRef()
	if err != nil {
		return nil, Token[TypeDefOrTypeRefMask]{}, false, err
	}
	first, last, err := scope.FindEqualRange(NestedClass, "NestedClass", row.Row)
	if err != nil {
		return nil, Token[TypeDefOrTypeRefMask]{}, false, err
	}
	if first > last {
		return nil, Token[TypeDefOrTypeRefMask]{}, false, nil
	}
	enclosing, err := scope.SimpleIndex(NestedClass, first, "EnclosingClass")
	if err != nil {
		return nil, Token[TypeDefOrTypeRefMask]{}, false, err
	}
	tok, err := NewToken[TypeDefOrTypeRefMask](enclosing)
	return scope, tok, true, err
}
