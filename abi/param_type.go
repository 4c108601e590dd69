// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package abi

import "fmt"

// ParamType is the fully instantiated shape of a type: generic parameters are
// substituted and every nested component is resolved. It is what drives the
// binary decoder and encoder.
//
// Components holds struct fields, tuple elements, enum or option variant
// payloads, and the single element of an array or vector.
type ParamType struct {
	Kind       Kind
	Name       string
	Components []ParamType
	// Len is the element count of an array or the byte length of a str[N].
	Len int
}

// Elem returns the element shape of an array or vector.
func (p ParamType) Elem() ParamType {
	if len(p.Components) == 0 {
		return ParamType{Kind: KindUnknown}
	}
	return p.Components[0]
}

// UnitVariantsOnly returns true for enums whose variants carry no payload.
func (p ParamType) UnitVariantsOnly() bool {
	for _, c := range p.Components {
		if c.Kind != KindUnit {
			return false
		}
	}
	return true
}

func (p ParamType) String() string {
	switch p.Kind {
	case KindStruct, KindEnum, KindOption:
		return fmt.Sprintf("%s %s", p.Kind, p.Name)
	case KindArray:
		return fmt.Sprintf("[%s; %d]", p.Elem(), p.Len)
	case KindStr:
		return fmt.Sprintf("str[%d]", p.Len)
	default:
		return p.Kind.String()
	}
}

// resolver instantiates ParamTypes out of the declarations of one catalog.
type resolver struct {
	decls []*TypeDecl
	// visiting holds the non-generic declarations on the current path. Generic
	// declarations are instantiated fresh on each use, so Option<Option<T>>
	// is not a cycle.
	visiting map[int]bool
}

func newResolver(decls []*TypeDecl) *resolver {
	return &resolver{
		decls:    decls,
		visiting: make(map[int]bool),
	}
}

func (r *resolver) resolve(typeID int, args []Component, bindings map[int]ParamType) (ParamType, error) {
	if typeID < 0 || typeID >= len(r.decls) {
		return ParamType{}, fmt.Errorf("%w: %d", ErrUnknownTypeID, typeID)
	}
	decl := r.decls[typeID]

	if decl.Kind == KindGeneric {
		p, ok := bindings[typeID]
		if !ok {
			return ParamType{}, fmt.Errorf("%w: unbound generic parameter %q", ErrUnimplementedType, decl.Type)
		}
		return p, nil
	}

	local := map[int]ParamType(nil)
	if len(decl.TypeParameters) > 0 {
		if len(args) != len(decl.TypeParameters) {
			return ParamType{}, fmt.Errorf("%w: %q expects %d type arguments, got %d",
				ErrMalformedABI, decl.Type, len(decl.TypeParameters), len(args))
		}
		local = make(map[int]ParamType, len(args))
		for i, param := range decl.TypeParameters {
			p, err := r.resolve(args[i].TypeID, args[i].TypeArguments, bindings)
			if err != nil {
				return ParamType{}, err
			}
			local[param] = p
		}
	} else {
		if r.visiting[typeID] {
			return ParamType{}, fmt.Errorf("%w: %q", ErrCyclicType, decl.Type)
		}
		r.visiting[typeID] = true
		defer delete(r.visiting, typeID)
	}

	p := ParamType{Kind: decl.Kind, Name: decl.Name, Len: decl.Len}
	switch decl.Kind {
	case KindUnit, KindBool, KindU8, KindU16, KindU32, KindU64, KindU128, KindU256, KindB256, KindStr,
		KindString, KindBytes, KindRawPtr, KindRawSlice, KindRawVec:
		// Opaque or scalar. U256 declared as a struct has no components worth
		// resolving.
		return p, nil
	case KindVector:
		if len(local) == 1 {
			p.Components = []ParamType{local[decl.TypeParameters[0]]}
		}
		return p, nil
	case KindStruct, KindEnum, KindOption, KindTuple, KindArray:
		p.Components = make([]ParamType, 0, len(decl.Components))
		for _, c := range decl.Components {
			cp, err := r.resolve(c.TypeID, c.TypeArguments, local)
			if err != nil {
				return ParamType{}, fmt.Errorf("%s.%s: %w", decl.Type, c.Name, err)
			}
			p.Components = append(p.Components, cp)
		}
		if decl.Kind == KindArray && len(p.Components) != 1 {
			return ParamType{}, fmt.Errorf("%w: array %q needs exactly one element component", ErrMalformedABI, decl.Type)
		}
		return p, nil
	default:
		return ParamType{}, fmt.Errorf("%w: %q", ErrUnimplementedType, decl.Type)
	}
}
