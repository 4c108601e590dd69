// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package schema

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/ava-labs/abistore/abi"
)

// Layout is the relational layout of every struct and enum of a catalog,
// in creation order.
type Layout struct {
	namespace string
	tables    map[int]*Table
	order     []*Table
}

// Build lays out a table for every concrete struct and enum of [c] and
// orders them so that every table is created after the tables it references.
// Tables are left unqualified.
func Build(c *abi.Catalog) (*Layout, error) {
	return BuildNamespaced(c, "")
}

// BuildNamespaced is Build with every table placed in the PostgreSQL schema
// [namespace].
func BuildNamespaced(c *abi.Catalog, namespace string) (*Layout, error) {
	b := &constructor{
		catalog:   c,
		namespace: namespace,
		tables:  make(map[int]*Table),
		names:   make(map[string]int),
		state:   make(map[int]emitState),
		isDefer: make(map[int]bool),
	}
	if err := b.layout(); err != nil {
		return nil, err
	}
	for _, decl := range c.Declarations() {
		if _, ok := b.tables[decl.TypeID]; !ok {
			continue
		}
		if err := b.emit(decl.TypeID); err != nil {
			return nil, err
		}
	}
	return &Layout{
		namespace: namespace,
		tables:    b.tables,
		order:     append(b.primary, b.deferred...),
	}, nil
}

// Table returns the layout of entity type [typeID].
func (l *Layout) Table(typeID int) (*Table, error) {
	t, ok := l.tables[typeID]
	if !ok {
		return nil, fmt.Errorf("%w: type %d has no table", abi.ErrUnimplementedType, typeID)
	}
	return t, nil
}

// Tables returns every table in creation order.
func (l *Layout) Tables() []*Table { return l.order }

// Namespace returns the PostgreSQL schema of the tables.
func (l *Layout) Namespace() string { return l.namespace }

// Statements returns one CREATE TABLE IF NOT EXISTS statement per table, in
// creation order, preceded by the creation of the namespace if there is one.
func (l *Layout) Statements() []string {
	stmts := make([]string, 0, len(l.order)+1)
	if l.namespace != "" {
		stmts = append(stmts, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(l.namespace))
	}
	for _, t := range l.order {
		stmts = append(stmts, t.CreateStatement())
	}
	return stmts
}

// CreateStatement returns the DDL of [t].
func (t *Table) CreateStatement() string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(t.Ident())
	b.WriteString(" (")
	b.WriteString(idColumn)
	b.WriteString(" SERIAL PRIMARY KEY")
	for _, f := range t.Fields {
		for _, col := range f.Columns {
			b.WriteString(", ")
			writeColumn(&b, t.Namespace, col)
		}
	}
	for _, o := range t.Owners {
		b.WriteString(", ")
		writeColumn(&b, t.Namespace, o.Column)
		b.WriteString(" ON DELETE CASCADE, ")
		writeColumn(&b, t.Namespace, o.Index)
	}
	b.WriteString(")")
	return b.String()
}

func writeColumn(b *strings.Builder, namespace string, col Column) {
	b.WriteString(pq.QuoteIdentifier(col.Name))
	b.WriteString(" ")
	b.WriteString(col.Type)
	if col.NotNull {
		b.WriteString(" NOT NULL")
	}
	if col.References != "" {
		b.WriteString(" REFERENCES ")
		b.WriteString(qualify(namespace, col.References))
		b.WriteString("(")
		b.WriteString(idColumn)
		b.WriteString(")")
	}
}

// OwnerColumn returns the name of the back-reference column an element table
// holds for owner table [owner].
func OwnerColumn(owner string) string { return owner + ownerSuffix }

// IndexColumn returns the name of the column holding the array slot of an
// element owned by a row of table [owner].
func IndexColumn(owner string) string { return owner + indexSuffix }

type emitState uint8

const (
	unvisited emitState = iota
	visiting
	emitted
)

type constructor struct {
	catalog   *abi.Catalog
	namespace string
	tables    map[int]*Table
	// table name => type id
	names map[string]int
	state map[int]emitState

	// primary holds tables that only reference primary tables. deferred holds
	// owned element tables and every table that references one, in emission
	// order.
	primary  []*Table
	deferred []*Table
	isDefer  map[int]bool
}

func (b *constructor) layout() error {
	for _, decl := range b.catalog.Declarations() {
		if !decl.IsEntity() {
			continue
		}
		if other, ok := b.names[decl.Name]; ok {
			return fmt.Errorf("%w: types %d and %d share table %q", abi.ErrMalformedABI, other, decl.TypeID, decl.Name)
		}
		b.names[decl.Name] = decl.TypeID

		t := &Table{
			Name:      decl.Name,
			Namespace: b.namespace,
			TypeID:    decl.TypeID,
			Enum:      decl.IsEnum(),
			Fields:    make([]Field, len(decl.Components)),
		}
		for i, comp := range decl.Components {
			var (
				f   Field
				err error
			)
			if t.Enum {
				f, err = variantLayout(b.catalog, decl, comp)
			} else {
				f, err = fieldLayout(b.catalog, decl, comp)
			}
			if err != nil {
				return err
			}
			t.Fields[i] = f
		}
		b.tables[decl.TypeID] = t
	}

	// Back-references are added once every owner is known.
	for _, decl := range b.catalog.Declarations() {
		owner, ok := b.tables[decl.TypeID]
		if !ok {
			continue
		}
		for _, f := range owner.Fields {
			if f.Shape != ShapeOwnedArray {
				continue
			}
			elem := b.tables[f.TypeID]
			if _, ok := elem.Owner(owner.TypeID); ok {
				// Elements of both arrays would share one back-reference.
				return fmt.Errorf("%w: %s holds more than one array of %s", abi.ErrUnimplementedType, owner.Name, elem.Name)
			}
			elem.Owners = append(elem.Owners, Owner{
				TypeID: owner.TypeID,
				Table:  owner.Name,
				Column: Column{
					Name:       OwnerColumn(owner.Name),
					Type:       sqlInteger,
					References: owner.Name,
				},
				Index: Column{
					Name: IndexColumn(owner.Name),
					Type: sqlInteger,
				},
			})
		}
	}
	return nil
}

// emit appends the table of [typeID] after its owners and the tables it
// references.
func (b *constructor) emit(typeID int) error {
	switch b.state[typeID] {
	case emitted:
		return nil
	case visiting:
		return fmt.Errorf("%w: table %q depends on itself", abi.ErrCyclicType, b.tables[typeID].Name)
	}
	b.state[typeID] = visiting

	t := b.tables[typeID]
	deferred := len(t.Owners) > 0
	for _, o := range t.Owners {
		if err := b.emit(o.TypeID); err != nil {
			return err
		}
	}
	for _, dep := range t.dependencies() {
		if err := b.emit(dep); err != nil {
			return err
		}
		deferred = deferred || b.isDefer[dep]
	}

	b.state[typeID] = emitted
	b.isDefer[typeID] = deferred
	if deferred {
		b.deferred = append(b.deferred, t)
	} else {
		b.primary = append(b.primary, t)
	}
	return nil
}
