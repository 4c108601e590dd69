// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statement

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/ava-labs/abistore/abi"
	"github.com/ava-labs/abistore/codec"
	"github.com/ava-labs/abistore/schema"
)

const (
	// noop terminates a batch. A list of common table expressions is not a
	// statement on its own.
	noop = "SELECT 1 WHERE FALSE"

	// maxIdentLen is PostgreSQL's identifier limit in bytes. Longer names are
	// truncated by the server, which could make two fragment names collide.
	maxIdentLen = 63
	insertKind  = "new_row"
	resolveKind = "id"
)

// Builder generates save batches for the values of one catalog.
type Builder struct {
	catalog *abi.Catalog
	layout  *schema.Layout
}

// NewBuilder returns a Builder over [c] and its table layout [l].
func NewBuilder(c *abi.Catalog, l *schema.Layout) *Builder {
	return &Builder{catalog: c, layout: l}
}

type fragment struct {
	name string
	body string
}

// Batch is an ordered list of named fragments that, run as one statement,
// inserts every row of a value that does not exist yet.
type Batch struct {
	fragments []fragment
	names     map[string]struct{}
	inserts   []string
	root      string
}

func newBatch() *Batch {
	return &Batch{names: make(map[string]struct{})}
}

// add appends a fragment unless one with the same name was already added.
func (b *Batch) add(name, body string) bool {
	if _, ok := b.names[name]; ok {
		return false
	}
	b.names[name] = struct{}{}
	b.fragments = append(b.fragments, fragment{name: name, body: body})
	return true
}

// Len returns the number of fragments.
func (b *Batch) Len() int { return len(b.fragments) }

// Root returns the name of the fragment resolving the root row id, or "" if
// the saved value has no row of its own.
func (b *Batch) Root() string { return b.root }

// Inserts returns the names of the conditional insert fragments.
func (b *Batch) Inserts() []string { return b.inserts }

func (b *Batch) with() string {
	parts := make([]string, len(b.fragments))
	for i, f := range b.fragments {
		parts[i] = pq.QuoteIdentifier(f.name) + " AS (" + f.body + ")"
	}
	return "WITH " + strings.Join(parts, ", ") + " "
}

// Statement returns the batch ending with a no-op selection.
func (b *Batch) Statement() string {
	if len(b.fragments) == 0 {
		return noop
	}
	return b.with() + noop
}

// ResolvingStatement returns the batch ending with a selection of the root
// row id (NULL without a root row) and the number of rows inserted.
func (b *Batch) ResolvingStatement() string {
	id := "NULL::INTEGER"
	if b.root != "" {
		id = "(SELECT id FROM " + pq.QuoteIdentifier(b.root) + ")"
	}
	inserted := "0"
	if len(b.inserts) > 0 {
		counts := make([]string, len(b.inserts))
		for i, name := range b.inserts {
			counts[i] = "(SELECT count(*) FROM " + pq.QuoteIdentifier(name) + ")"
		}
		inserted = strings.Join(counts, " + ")
	}
	selection := "SELECT " + id + " AS id, " + inserted + " AS inserted"
	if len(b.fragments) == 0 {
		return selection
	}
	return b.with() + selection
}

// owner is the row an owned array element points back at, and the slot the
// element fills.
type owner struct {
	typeID   int
	resolver string
	index    int
}

type generator struct {
	catalog *abi.Catalog
	layout  *schema.Layout
	batch   *Batch
}

// Generate builds the batch that saves [v] as a value of type [typeID].
func (b *Builder) Generate(typeID int, v codec.Value) (*Batch, error) {
	g := &generator{
		catalog: b.catalog,
		layout:  b.layout,
		batch:   newBatch(),
	}
	root, err := g.save(abi.Component{TypeID: typeID}, v, nil)
	if err != nil {
		return nil, err
	}
	g.batch.root = root
	return g.batch, nil
}

// GenerateStatement returns the statement text that saves [v].
func (b *Builder) GenerateStatement(typeID int, v codec.Value) (string, error) {
	batch, err := b.Generate(typeID, v)
	if err != nil {
		return "", err
	}
	return batch.Statement(), nil
}

func mismatch(decl *abi.TypeDecl, v codec.Value) error {
	return fmt.Errorf("%w: %T for %q", codec.ErrSchemaMismatch, v, decl.Type)
}

// present unwraps [v], a value of option type [decl]. It returns false for
// None.
func present(decl *abi.TypeDecl, v codec.Value) (codec.Value, bool, error) {
	en, ok := v.(codec.Enum)
	if !ok {
		return nil, false, mismatch(decl, v)
	}
	switch en.Variant {
	case decl.SomeIndex():
		return en.Value, true, nil
	case decl.NoneIndex():
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("%w: %q has no variant %d", codec.ErrSchemaMismatch, decl.Type, en.Variant)
	}
}

// save dispatches on the declared type of [comp] and returns the resolver
// fragment of the row [v] ends up in, if any.
func (g *generator) save(comp abi.Component, v codec.Value, o *owner) (string, error) {
	decl, err := g.catalog.Resolve(comp)
	if err != nil {
		return "", err
	}
	switch {
	case decl.IsOption():
		inner, ok, err := present(decl, v)
		if err != nil || !ok {
			return "", err
		}
		payload, err := g.catalog.OptionPayload(comp)
		if err != nil {
			return "", err
		}
		return g.save(payload, inner, o)
	case decl.IsArray():
		elems, ok := v.(codec.Array)
		if !ok || len(elems) != decl.Len {
			return "", mismatch(decl, v)
		}
		elem, _ := decl.ArrayElement()
		for i, e := range elems {
			slot := o
			if o != nil {
				slot = &owner{typeID: o.typeID, resolver: o.resolver, index: i}
			}
			if _, err := g.save(elem, e, slot); err != nil {
				return "", err
			}
		}
		return "", nil
	case decl.IsTuple():
		elems, ok := v.(codec.Tuple)
		if !ok || len(elems) != len(decl.Components) {
			return "", mismatch(decl, v)
		}
		for i, e := range elems {
			if _, err := g.save(decl.Components[i], e, o); err != nil {
				return "", err
			}
		}
		return "", nil
	case decl.IsEntity():
		return g.entity(decl, v, o)
	case decl.IsMarker(), decl.IsScalar():
		return "", nil
	default:
		return "", fmt.Errorf("%w: can't save %q", abi.ErrUnimplementedType, decl.Type)
	}
}

// row collects the columns of one row being saved.
type row struct {
	columns []string
	values  []string
}

func (r *row) set(column, value string) {
	r.columns = append(r.columns, column)
	r.values = append(r.values, value)
}

func (r *row) where() string {
	if len(r.columns) == 0 {
		return "TRUE"
	}
	conds := make([]string, len(r.columns))
	for i, col := range r.columns {
		conds[i] = equals(col, r.values[i])
	}
	return strings.Join(conds, " AND ")
}

// ownedArray is an array field saved once its owner's fragments exist.
type ownedArray struct {
	comp  abi.Component
	value codec.Value
}

func (g *generator) entity(decl *abi.TypeDecl, v codec.Value, o *owner) (string, error) {
	table, err := g.layout.Table(decl.TypeID)
	if err != nil {
		return "", err
	}

	var (
		r     row
		owned []ownedArray
	)
	if table.Enum {
		en, ok := v.(codec.Enum)
		if !ok || en.Variant < 0 || en.Variant >= len(table.Fields) {
			return "", mismatch(decl, v)
		}
		for i, f := range table.Fields {
			if i != en.Variant {
				for _, col := range f.Columns {
					r.set(col.Name, sqlNull)
				}
				continue
			}
			if err := g.field(&r, decl, decl.Components[i], f, en.Value); err != nil {
				return "", err
			}
		}
	} else {
		fields, ok := v.(codec.Struct)
		if !ok || len(fields) != len(table.Fields) {
			return "", mismatch(decl, v)
		}
		for i, f := range table.Fields {
			if f.Shape == schema.ShapeOwnedArray {
				// The elements live in their own table. The digest keeps
				// them part of the owner's identity.
				digest, err := codec.Digest(fields[i])
				if err != nil {
					return "", err
				}
				r.set(f.Columns[0].Name, quoteText(digest))
				owned = append(owned, ownedArray{comp: decl.Components[i], value: fields[i]})
				continue
			}
			if err := g.field(&r, decl, decl.Components[i], f, fields[i]); err != nil {
				return "", err
			}
		}
	}

	scope := ""
	for _, ow := range table.Owners {
		if o != nil && o.typeID == ow.TypeID {
			scope = fmt.Sprintf("%s[%d]", o.resolver, o.index)
			r.set(ow.Column.Name, "(SELECT id FROM "+pq.QuoteIdentifier(o.resolver)+")")
			r.set(ow.Index.Name, strconv.Itoa(o.index))
		} else {
			r.set(ow.Column.Name, sqlNull)
			r.set(ow.Index.Name, sqlNull)
		}
	}

	h, err := codec.Hash(table.Name, scope, v)
	if err != nil {
		return "", err
	}
	insert := fragmentName(table.Name, insertKind, h)
	resolver := fragmentName(table.Name, resolveKind, h)

	tableName := table.Ident()
	where := r.where()
	if g.batch.add(insert, g.insertBody(tableName, &r, where)) {
		g.batch.inserts = append(g.batch.inserts, insert)
	}
	g.batch.add(resolver, fmt.Sprintf("SELECT id FROM %s UNION ALL SELECT id FROM %s WHERE %s LIMIT 1",
		pq.QuoteIdentifier(insert), tableName, where))

	self := &owner{typeID: decl.TypeID, resolver: resolver}
	for _, a := range owned {
		if _, err := g.save(a.comp, a.value, self); err != nil {
			return "", err
		}
	}
	return resolver, nil
}

// fragmentName returns "<table>_<kind>_<h>", with the table name cut so the
// longest kind still fits in one identifier.
func fragmentName(table, kind, h string) string {
	max := maxIdentLen - len(insertKind) - len(h) - 2
	if len(table) > max {
		cut := 0
		for i := range table {
			if i > max {
				break
			}
			cut = i
		}
		table = table[:cut]
	}
	return table + "_" + kind + "_" + h
}

func (g *generator) insertBody(tableName string, r *row, where string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(tableName)
	if len(r.columns) > 0 {
		quoted := make([]string, len(r.columns))
		for i, col := range r.columns {
			quoted[i] = pq.QuoteIdentifier(col)
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(quoted, ", "))
		b.WriteString(")")
	}
	b.WriteString(" SELECT ")
	b.WriteString(strings.Join(r.values, ", "))
	b.WriteString(" WHERE NOT EXISTS (SELECT 1 FROM ")
	b.WriteString(tableName)
	b.WriteString(" WHERE ")
	b.WriteString(where)
	b.WriteString(") RETURNING id")
	return b.String()
}

// field sets the columns of struct field or enum variant [f], declared as
// [comp], holding [v].
func (g *generator) field(r *row, decl *abi.TypeDecl, comp abi.Component, f schema.Field, v codec.Value) error {
	if f.Optional && f.Shape != schema.ShapeBytes {
		optDecl, err := g.catalog.Resolve(comp)
		if err != nil {
			return err
		}
		inner, ok, err := present(optDecl, v)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", decl.Name, f.Name, err)
		}
		if !ok {
			for _, col := range f.Columns {
				r.set(col.Name, sqlNull)
			}
			return nil
		}
		v = inner
	}

	switch f.Shape {
	case schema.ShapeUnit:
		return nil
	case schema.ShapeFlag:
		r.set(f.Columns[0].Name, sqlTrue)
	case schema.ShapeScalar:
		lit, err := literal(f.Columns[0].Scalar, v)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", decl.Name, f.Name, err)
		}
		r.set(f.Columns[0].Name, lit)
	case schema.ShapeReference:
		refDecl, err := g.catalog.Declaration(f.TypeID)
		if err != nil {
			return err
		}
		resolver, err := g.entity(refDecl, v, nil)
		if err != nil {
			return err
		}
		r.set(f.Columns[0].Name, "(SELECT id FROM "+pq.QuoteIdentifier(resolver)+")")
	case schema.ShapeBytes:
		b, err := g.arrayBytes(comp, f, v)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", decl.Name, f.Name, err)
		}
		r.set(f.Columns[0].Name, byteaLiteral(b))
	case schema.ShapeTuple:
		elems, ok := v.(codec.Tuple)
		if !ok || len(elems) != len(f.Columns) {
			return fmt.Errorf("%w: %T for tuple %s.%s", codec.ErrSchemaMismatch, v, decl.Name, f.Name)
		}
		for i, col := range f.Columns {
			lit, err := literal(col.Scalar, elems[i])
			if err != nil {
				return fmt.Errorf("%s.%s: %w", decl.Name, f.Name, err)
			}
			r.set(col.Name, lit)
		}
	default:
		return fmt.Errorf("%w: can't save %s.%s", abi.ErrUnimplementedType, decl.Name, f.Name)
	}
	return nil
}

// arrayBytes flattens a [u8; N] or [Option<u8>; N] value of array type
// [comp]. Absent slots are dropped.
func (g *generator) arrayBytes(comp abi.Component, f schema.Field, v codec.Value) ([]byte, error) {
	elems, ok := v.(codec.Array)
	if !ok || len(elems) != f.Len {
		return nil, fmt.Errorf("%w: %T for a %d byte array", codec.ErrSchemaMismatch, v, f.Len)
	}
	var slot *abi.TypeDecl
	if f.Optional {
		arrayDecl, err := g.catalog.Resolve(comp)
		if err != nil {
			return nil, err
		}
		elem, _ := arrayDecl.ArrayElement()
		if slot, err = g.catalog.Resolve(elem); err != nil {
			return nil, err
		}
	}
	b := make([]byte, 0, len(elems))
	for _, e := range elems {
		if slot != nil {
			inner, ok, err := present(slot, e)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			e = inner
		}
		n, ok := e.(codec.U8)
		if !ok {
			return nil, fmt.Errorf("%w: %T for a byte", codec.ErrSchemaMismatch, e)
		}
		b = append(b, byte(n))
	}
	return b, nil
}
