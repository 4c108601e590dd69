// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package abi

import "fmt"

// Resolve returns the declaration a component refers to.
func (c *Catalog) Resolve(comp Component) (*TypeDecl, error) {
	return c.Declaration(comp.TypeID)
}

// OptionPayload returns the component carried by the Some variant of the
// option [comp], using the instantiation's type arguments when present.
func (c *Catalog) OptionPayload(comp Component) (Component, error) {
	decl, err := c.Declaration(comp.TypeID)
	if err != nil {
		return Component{}, err
	}
	if !decl.IsOption() {
		return Component{}, fmt.Errorf("%w: %q is not an option", ErrUnimplementedType, decl.Type)
	}
	if len(comp.TypeArguments) == 1 {
		arg := comp.TypeArguments[0]
		arg.Name = comp.Name
		return arg, nil
	}
	some := decl.SomeIndex()
	if some < 0 {
		return Component{}, fmt.Errorf("%w: %q has no Some variant", ErrMalformedABI, decl.Type)
	}
	payload := decl.Components[some]
	if inner, err := c.Declaration(payload.TypeID); err != nil || inner.Kind == KindGeneric {
		return Component{}, fmt.Errorf("%w: uninstantiated option %q", ErrUnimplementedType, decl.Type)
	}
	payload.Name = comp.Name
	return payload, nil
}

// Unwrap strips one level of Option from [comp]. It returns the payload
// component and true when [comp] is an option, or [comp] itself and false.
func (c *Catalog) Unwrap(comp Component) (Component, bool, error) {
	decl, err := c.Declaration(comp.TypeID)
	if err != nil {
		return Component{}, false, err
	}
	if !decl.IsOption() {
		return comp, false, nil
	}
	payload, err := c.OptionPayload(comp)
	return payload, true, err
}

// ArrayElement returns the element of the array [comp] with one level of
// Option stripped, and whether the slots are options. [Option<T>; N] is how
// programs spell a resizable list of T.
func (c *Catalog) ArrayElement(comp Component) (Component, bool, error) {
	decl, err := c.Declaration(comp.TypeID)
	if err != nil {
		return Component{}, false, err
	}
	elem, ok := decl.ArrayElement()
	if !ok {
		return Component{}, false, fmt.Errorf("%w: %q is not an array", ErrUnimplementedType, decl.Type)
	}
	return c.Unwrap(elem)
}

// IsEntityComponent returns true if [comp], with one level of Option
// stripped, is persisted as a row of its own.
func (c *Catalog) IsEntityComponent(comp Component) bool {
	inner, _, err := c.Unwrap(comp)
	if err != nil {
		return false
	}
	decl, err := c.Declaration(inner.TypeID)
	return err == nil && decl.IsEntity()
}

func (c *Catalog) anyField(decl *TypeDecl, pred func(*TypeDecl) bool) bool {
	for _, comp := range decl.Components {
		field, err := c.Declaration(comp.TypeID)
		if err == nil && pred(field) {
			return true
		}
	}
	return false
}

// HasNestedStruct returns true if a direct field of [decl] is a struct.
func (c *Catalog) HasNestedStruct(decl *TypeDecl) bool {
	return c.anyField(decl, (*TypeDecl).IsStruct)
}

// HasNestedEnum returns true if a direct field of [decl] is an enum or an
// option.
func (c *Catalog) HasNestedEnum(decl *TypeDecl) bool {
	return c.anyField(decl, func(d *TypeDecl) bool { return d.IsEnum() || d.IsOption() })
}

// HasNestedArray returns true if a direct field of [decl] is an array.
func (c *Catalog) HasNestedArray(decl *TypeDecl) bool {
	return c.anyField(decl, (*TypeDecl).IsArray)
}

// ContainsEntity returns true if values of type [typeID] transitively hold a
// struct or enum that is persisted as a row.
func (c *Catalog) ContainsEntity(typeID int) bool {
	return c.containsEntity(typeID, make(map[int]bool))
}

func (c *Catalog) containsEntity(typeID int, seen map[int]bool) bool {
	if seen[typeID] {
		return false
	}
	seen[typeID] = true
	decl, err := c.Declaration(typeID)
	if err != nil {
		return false
	}
	if decl.IsEntity() {
		return true
	}
	for _, comp := range decl.Components {
		if c.containsEntity(comp.TypeID, seen) {
			return true
		}
		for _, arg := range comp.TypeArguments {
			if c.containsEntity(arg.TypeID, seen) {
				return true
			}
		}
	}
	return false
}
