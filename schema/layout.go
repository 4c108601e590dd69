// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package schema

import (
	"fmt"

	"github.com/lib/pq"

	"github.com/ava-labs/abistore/abi"
)

// Shape tells how the value of a field or enum variant maps onto columns.
type Shape uint8

const (
	// ShapeUnit fields carry no information and have no column.
	ShapeUnit Shape = iota
	// ShapeScalar fields are stored in one column of their scalar type.
	ShapeScalar
	// ShapeReference fields are rows of their own, referenced by id.
	ShapeReference
	// ShapeBytes fields are [u8; N] or [Option<u8>; N] stored as BYTEA.
	ShapeBytes
	// ShapeTuple fields are flattened into one column per element.
	ShapeTuple
	// ShapeOwnedArray fields are arrays of rows that point back at their
	// owner. The owner's table keeps a digest of the whole array so that
	// owners differing only in their elements are distinct rows.
	ShapeOwnedArray
	// ShapeFlag enum variants carry no payload. The column is TRUE when the
	// variant is active.
	ShapeFlag
	// ShapeHeap fields (String, Bytes, Vec) have a BYTEA column but no
	// supported value encoding.
	ShapeHeap
)

const (
	sqlBoolean = "BOOLEAN"
	sqlInteger = "INTEGER"
	sqlBigint  = "BIGINT"
	sqlNumeric = "NUMERIC(20, 0)"
	sqlText    = "TEXT"
	sqlBytea   = "BYTEA"

	idColumn        = "id"
	referenceSuffix = "Id"
	ownerSuffix     = "_id"
	indexSuffix     = "_index"
	digestSuffix    = "_digest"
)

// Column is one table column.
type Column struct {
	Name string
	// Type is the SQL column type without constraints.
	Type string
	// Scalar is the kind stored by scalar, tuple and flag columns.
	Scalar abi.Kind
	// References is the referenced table of a foreign key column.
	References string
	NotNull    bool
}

// Field maps one struct field or enum variant onto its columns.
type Field struct {
	Name  string
	Shape Shape
	// TypeID is the referenced or element entity type for ShapeReference and
	// ShapeOwnedArray.
	TypeID int
	// Optional is set for Option<T> fields and for arrays of Option<T>.
	Optional bool
	// Len is the element count of array fields.
	Len     int
	Columns []Column
}

// Owner is a back-reference from an owned element table to the table of the
// struct whose array holds it. Index holds the array slot of the element.
type Owner struct {
	TypeID int
	Table  string
	Column Column
	Index  Column
}

// Table is the relational layout of one struct or enum type.
type Table struct {
	Name string
	// Namespace is the PostgreSQL schema holding the table, empty for the
	// search path.
	Namespace string
	TypeID    int
	Enum      bool
	// Fields holds one entry per declared component, in declaration order.
	Fields []Field
	Owners []Owner
}

// Ident returns the quoted, namespace qualified name of [t].
func (t *Table) Ident() string {
	return qualify(t.Namespace, t.Name)
}

func qualify(namespace, name string) string {
	if namespace == "" {
		return pq.QuoteIdentifier(name)
	}
	return pq.QuoteIdentifier(namespace) + "." + pq.QuoteIdentifier(name)
}

// Columns returns every column after id, in table order.
func (t *Table) Columns() []Column {
	var columns []Column
	for _, f := range t.Fields {
		columns = append(columns, f.Columns...)
	}
	for _, o := range t.Owners {
		columns = append(columns, o.Column, o.Index)
	}
	return columns
}

// Owner returns the back-reference to owner type [typeID].
func (t *Table) Owner(typeID int) (Owner, bool) {
	for _, o := range t.Owners {
		if o.TypeID == typeID {
			return o, true
		}
	}
	return Owner{}, false
}

// dependencies returns the entity types this table holds a foreign key to,
// owners excluded.
func (t *Table) dependencies() []int {
	var deps []int
	for _, f := range t.Fields {
		if f.Shape == ShapeReference {
			deps = append(deps, f.TypeID)
		}
	}
	return deps
}

// scalarType maps a scalar kind to its column type. u32 needs BIGINT since
// INTEGER is signed, and u64 needs NUMERIC for the same reason.
func scalarType(k abi.Kind) (string, error) {
	switch k {
	case abi.KindBool:
		return sqlBoolean, nil
	case abi.KindU8, abi.KindU16:
		return sqlInteger, nil
	case abi.KindU32:
		return sqlBigint, nil
	case abi.KindU64:
		return sqlNumeric, nil
	case abi.KindU128, abi.KindU256, abi.KindB256, abi.KindStr:
		return sqlText, nil
	default:
		return "", fmt.Errorf("%w: no column type for %s", abi.ErrUnimplementedType, k)
	}
}

func isHeap(k abi.Kind) bool {
	return k == abi.KindString || k == abi.KindBytes || k == abi.KindVector
}

// fieldLayout classifies struct field [comp] of [owner].
func fieldLayout(c *abi.Catalog, owner *abi.TypeDecl, comp abi.Component) (Field, error) {
	decl, err := c.Resolve(comp)
	if err != nil {
		return Field{}, err
	}
	f := Field{Name: comp.Name, TypeID: comp.TypeID}

	switch {
	case decl.IsMarker():
		f.Shape = ShapeUnit
		return f, nil
	case decl.IsOption():
		payload, err := c.OptionPayload(comp)
		if err != nil {
			return Field{}, err
		}
		inner, err := c.Resolve(payload)
		if err != nil {
			return Field{}, err
		}
		switch {
		case inner.IsEntity():
			f = referenceField(comp.Name, inner, false)
		case inner.IsScalar():
			if f, err = scalarField(comp.Name, inner.Kind, false); err != nil {
				return Field{}, err
			}
		default:
			return Field{}, fmt.Errorf("%w: %s.%s is an option of %q", abi.ErrUnimplementedType, owner.Name, comp.Name, inner.Type)
		}
		f.Optional = true
		return f, nil
	case decl.IsEntity():
		return referenceField(comp.Name, decl, true), nil
	case decl.IsScalar():
		return scalarField(comp.Name, decl.Kind, true)
	case decl.IsArray():
		return arrayField(c, owner, comp, decl)
	case decl.IsTuple():
		return tupleField(c, owner, comp, decl)
	case isHeap(decl.Kind):
		f.Shape = ShapeHeap
		f.Columns = []Column{{Name: comp.Name, Type: sqlBytea}}
		return f, nil
	default:
		return Field{}, fmt.Errorf("%w: %s.%s of type %q", abi.ErrUnimplementedType, owner.Name, comp.Name, decl.Type)
	}
}

func referenceField(name string, decl *abi.TypeDecl, notNull bool) Field {
	return Field{
		Name:   name,
		Shape:  ShapeReference,
		TypeID: decl.TypeID,
		Columns: []Column{{
			Name:       name + referenceSuffix,
			Type:       sqlInteger,
			References: decl.Name,
			NotNull:    notNull,
		}},
	}
}

func scalarField(name string, k abi.Kind, notNull bool) (Field, error) {
	typ, err := scalarType(k)
	if err != nil {
		return Field{}, err
	}
	return Field{
		Name:    name,
		Shape:   ShapeScalar,
		Columns: []Column{{Name: name, Type: typ, Scalar: k, NotNull: notNull}},
	}, nil
}

func arrayField(c *abi.Catalog, owner *abi.TypeDecl, comp abi.Component, decl *abi.TypeDecl) (Field, error) {
	elem, optional, err := c.ArrayElement(comp)
	if err != nil {
		return Field{}, err
	}
	elemDecl, err := c.Resolve(elem)
	if err != nil {
		return Field{}, err
	}
	f := Field{
		Name:     comp.Name,
		TypeID:   elemDecl.TypeID,
		Optional: optional,
		Len:      decl.Len,
	}
	switch {
	case elemDecl.Kind == abi.KindU8:
		f.Shape = ShapeBytes
		f.Columns = []Column{{Name: comp.Name, Type: sqlBytea, Scalar: abi.KindU8, NotNull: true}}
	case elemDecl.IsEntity():
		f.Shape = ShapeOwnedArray
		f.Columns = []Column{{Name: comp.Name + digestSuffix, Type: sqlText, NotNull: true}}
	default:
		return Field{}, fmt.Errorf("%w: %s.%s is an array of %q", abi.ErrUnimplementedType, owner.Name, comp.Name, elemDecl.Type)
	}
	return f, nil
}

func tupleField(c *abi.Catalog, owner *abi.TypeDecl, comp abi.Component, decl *abi.TypeDecl) (Field, error) {
	f := Field{Name: comp.Name, TypeID: comp.TypeID, Shape: ShapeTuple}
	for i, elem := range decl.Components {
		elemDecl, err := c.Resolve(elem)
		if err != nil {
			return Field{}, err
		}
		if !elemDecl.IsScalar() {
			return Field{}, fmt.Errorf("%w: %s.%s holds a %q", abi.ErrUnimplementedType, owner.Name, comp.Name, elemDecl.Type)
		}
		typ, err := scalarType(elemDecl.Kind)
		if err != nil {
			return Field{}, err
		}
		f.Columns = append(f.Columns, Column{
			Name:    fmt.Sprintf("%s_%d", comp.Name, i),
			Type:    typ,
			Scalar:  elemDecl.Kind,
			NotNull: true,
		})
	}
	return f, nil
}

// variantLayout classifies variant [comp] of enum [owner]. Variant columns
// are always nullable: only the active variant's column is set.
func variantLayout(c *abi.Catalog, owner *abi.TypeDecl, comp abi.Component) (Field, error) {
	decl, err := c.Resolve(comp)
	if err != nil {
		return Field{}, err
	}
	switch {
	case decl.IsMarker():
		return Field{
			Name:    comp.Name,
			Shape:   ShapeFlag,
			Columns: []Column{{Name: comp.Name, Type: sqlBoolean, Scalar: abi.KindBool}},
		}, nil
	case decl.IsEntity():
		return referenceField(comp.Name, decl, false), nil
	case decl.IsScalar():
		return scalarField(comp.Name, decl.Kind, false)
	case decl.IsArray():
		f, err := arrayField(c, owner, comp, decl)
		if err != nil {
			return Field{}, err
		}
		if f.Shape != ShapeBytes {
			return Field{}, fmt.Errorf("%w: %s::%s carries an array of rows", abi.ErrUnimplementedType, owner.Name, comp.Name)
		}
		f.Columns[0].NotNull = false
		return f, nil
	default:
		return Field{}, fmt.Errorf("%w: %s::%s carries a %q", abi.ErrUnimplementedType, owner.Name, comp.Name, decl.Type)
	}
}
