// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package abi

const (
	optionNone = "None"
	optionSome = "Some"
)

// Component is a named, typed member of a declaration: a struct field, an
// enum variant, an array element or a tuple element. TypeArguments is set for
// generic instantiations such as Option<T>.
type Component struct {
	Name          string
	TypeID        int
	TypeArguments []Component
}

// TypeDecl is one entry of the "types" section of a program ABI.
type TypeDecl struct {
	TypeID int
	// Type is the display string, e.g. "struct Point" or "[_; 3]".
	Type string
	Kind Kind
	// Name is the un-prefixed struct or enum name.
	Name           string
	Components     []Component
	TypeParameters []int
	// Len is the element count of an array or the byte length of a str[N].
	Len int
}

func (d *TypeDecl) IsUnit() bool   { return d.Kind == KindUnit }
func (d *TypeDecl) IsStruct() bool { return d.Kind == KindStruct }
func (d *TypeDecl) IsEnum() bool   { return d.Kind == KindEnum }
func (d *TypeDecl) IsOption() bool { return d.Kind == KindOption }
func (d *TypeDecl) IsArray() bool  { return d.Kind == KindArray }
func (d *TypeDecl) IsTuple() bool  { return d.Kind == KindTuple }
func (d *TypeDecl) IsU256() bool   { return d.Kind == KindU256 }

// IsGeneric returns true for uninstantiated generic declarations, which never
// get a table or a statement of their own.
func (d *TypeDecl) IsGeneric() bool {
	return d.Kind == KindGeneric || len(d.TypeParameters) > 0
}

// IsMarker returns true for declarations whose values carry no
// information: the unit type and structs without fields.
func (d *TypeDecl) IsMarker() bool {
	return d.Kind == KindUnit || (d.Kind == KindStruct && len(d.Components) == 0)
}

// IsEntity returns true if values of this declaration are persisted as rows
// of their own table. Markers never are.
func (d *TypeDecl) IsEntity() bool {
	return (d.Kind == KindStruct || d.Kind == KindEnum) && len(d.TypeParameters) == 0 && !d.IsMarker()
}

// IsScalar returns true if values of this declaration are stored as a single
// column value.
func (d *TypeDecl) IsScalar() bool { return d.Kind.IsScalar() }

// VariantIndex returns the index of the variant named [name], or -1.
func (d *TypeDecl) VariantIndex(name string) int {
	for i, c := range d.Components {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// SomeIndex returns the index of the Some variant of an Option declaration.
func (d *TypeDecl) SomeIndex() int { return d.VariantIndex(optionSome) }

// NoneIndex returns the index of the None variant of an Option declaration.
func (d *TypeDecl) NoneIndex() int { return d.VariantIndex(optionNone) }

// ArrayElement returns the element component of an array declaration.
func (d *TypeDecl) ArrayElement() (Component, bool) {
	if d.Kind != KindArray || len(d.Components) != 1 {
		return Component{}, false
	}
	return d.Components[0], true
}
