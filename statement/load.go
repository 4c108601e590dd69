// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/ava-labs/abistore/abi"
	"github.com/ava-labs/abistore/codec"
	"github.com/ava-labs/abistore/schema"
)

// ErrNotFound is returned when no stored row matches a load.
var ErrNotFound = errors.New("no stored value found")

// Querier runs read queries. *sqlx.DB, *sqlx.Conn and *sqlx.Tx implement it.
type Querier interface {
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
}

type scanKind uint8

const (
	scanInt scanKind = iota
	scanNumeric
	scanText
	scanBool
	scanBytes
)

func scanKindOf(sqlType string) scanKind {
	switch sqlType {
	case "NUMERIC(20, 0)":
		return scanNumeric
	case "TEXT":
		return scanText
	case "BOOLEAN":
		return scanBool
	case "BYTEA":
		return scanBytes
	default:
		return scanInt
	}
}

// node is one joined table occurrence.
type node struct {
	table *schema.Table
	alias string
	// id is the select position of the occurrence's id.
	id     int
	fields []fieldPlan
}

type fieldPlan struct {
	field schema.Field
	comp  abi.Component
	// columns are the select positions of the field's columns.
	columns []int
	child   *node
}

// Plan is the join query reading values of one root type.
type Plan struct {
	root    *node
	selects []string
	scans   []scanKind
	from    string
	joins   []string

	// owner is set for plans reading owned elements. index is the select
	// position of their slot.
	owner *schema.Owner
	index int
}

type planner struct {
	catalog *abi.Catalog
	layout  *schema.Layout
	plan    *Plan
	// table name => occurrences so far
	aliases map[string]int
}

// NewPlan joins every table reachable from entity type [typeID] through
// foreign keys. Each occurrence of a table gets its own alias.
func NewPlan(c *abi.Catalog, l *schema.Layout, typeID int) (*Plan, error) {
	decl, err := c.Declaration(typeID)
	if err != nil {
		return nil, err
	}
	if !decl.IsEntity() {
		return nil, fmt.Errorf("%w: %q is not stored as a row", abi.ErrUnimplementedType, decl.Type)
	}
	table, err := l.Table(typeID)
	if err != nil {
		return nil, err
	}
	p := &planner{
		catalog: c,
		layout:  l,
		plan:    &Plan{index: -1},
		aliases: make(map[string]int),
	}
	alias := p.alias(table.Name)
	p.plan.from = table.Ident() + " AS " + pq.QuoteIdentifier(alias)
	root, err := p.node(decl, table, alias)
	if err != nil {
		return nil, err
	}
	p.plan.root = root
	return p.plan, nil
}

// NewOwnedPlan is NewPlan for the elements of an array owned by a row of
// type [ownerTypeID]. The slot of every element is selected last.
func NewOwnedPlan(c *abi.Catalog, l *schema.Layout, typeID, ownerTypeID int) (*Plan, error) {
	plan, err := NewPlan(c, l, typeID)
	if err != nil {
		return nil, err
	}
	owner, ok := plan.root.table.Owner(ownerTypeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not owned by type %d", abi.ErrUnimplementedType, plan.root.table.Name, ownerTypeID)
	}
	plan.owner = &owner
	plan.selects = append(plan.selects, pq.QuoteIdentifier(plan.root.alias)+"."+pq.QuoteIdentifier(owner.Index.Name))
	plan.scans = append(plan.scans, scanInt)
	plan.index = len(plan.selects) - 1
	return plan, nil
}

func (p *planner) alias(name string) string {
	n := p.aliases[name]
	p.aliases[name] = n + 1
	return name + "_" + strconv.Itoa(n)
}

func (p *planner) column(alias, column string, kind scanKind) int {
	p.plan.selects = append(p.plan.selects, pq.QuoteIdentifier(alias)+"."+pq.QuoteIdentifier(column))
	p.plan.scans = append(p.plan.scans, kind)
	return len(p.plan.selects) - 1
}

func (p *planner) node(decl *abi.TypeDecl, table *schema.Table, alias string) (*node, error) {
	n := &node{
		table:  table,
		alias:  alias,
		id:     p.column(alias, "id", scanInt),
		fields: make([]fieldPlan, len(table.Fields)),
	}
	for i, f := range table.Fields {
		fp := fieldPlan{field: f, comp: decl.Components[i]}
		switch f.Shape {
		case schema.ShapeUnit, schema.ShapeOwnedArray:
		case schema.ShapeScalar, schema.ShapeFlag, schema.ShapeBytes, schema.ShapeTuple:
			for _, col := range f.Columns {
				fp.columns = append(fp.columns, p.column(alias, col.Name, scanKindOf(col.Type)))
			}
		case schema.ShapeReference:
			childDecl, err := p.catalog.Declaration(f.TypeID)
			if err != nil {
				return nil, err
			}
			childTable, err := p.layout.Table(f.TypeID)
			if err != nil {
				return nil, err
			}
			childAlias := p.alias(childTable.Name)
			p.plan.joins = append(p.plan.joins, fmt.Sprintf("LEFT JOIN %s AS %s ON %s.id = %s.%s",
				childTable.Ident(),
				pq.QuoteIdentifier(childAlias),
				pq.QuoteIdentifier(childAlias),
				pq.QuoteIdentifier(alias),
				pq.QuoteIdentifier(f.Columns[0].Name),
			))
			if fp.child, err = p.node(childDecl, childTable, childAlias); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: can't load %s.%s", abi.ErrUnimplementedType, decl.Name, f.Name)
		}
		n.fields[i] = fp
	}
	return n, nil
}

func (p *Plan) query(where, order string, limit int) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(p.selects, ", "))
	b.WriteString(" FROM ")
	b.WriteString(p.from)
	for _, join := range p.joins {
		b.WriteString(" ")
		b.WriteString(join)
	}
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(order)
	b.WriteString(" LIMIT ")
	b.WriteString(strconv.Itoa(limit))
	return b.String()
}

func (p *Plan) rootColumn(column string) string {
	return pq.QuoteIdentifier(p.root.alias) + "." + column
}

// Query selects the first stored value.
func (p *Plan) Query() string { return p.query("", p.rootColumn("id"), 1) }

// QueryByID selects the value stored in row $1.
func (p *Plan) QueryByID() string {
	return p.query(p.rootColumn("id")+" = $1", p.rootColumn("id"), 1)
}

// QueryByOwner selects, in slot order, up to [limit] elements owned by row
// $1. It is only valid for plans built by NewOwnedPlan.
func (p *Plan) QueryByOwner(limit int) string {
	return p.query(
		p.rootColumn(pq.QuoteIdentifier(p.owner.Column.Name))+" = $1",
		p.rootColumn(pq.QuoteIdentifier(p.owner.Index.Name)),
		limit,
	)
}

func (p *Plan) targets() []interface{} {
	targets := make([]interface{}, len(p.scans))
	for i, kind := range p.scans {
		switch kind {
		case scanInt:
			targets[i] = new(sql.NullInt64)
		case scanNumeric:
			targets[i] = new(decimal.NullDecimal)
		case scanText:
			targets[i] = new(sql.NullString)
		case scanBool:
			targets[i] = new(sql.NullBool)
		case scanBytes:
			targets[i] = new([]byte)
		}
	}
	return targets
}

// Loader reconstructs stored values.
type Loader struct {
	catalog *abi.Catalog
	layout  *schema.Layout
	db      Querier
}

// NewLoader returns a Loader reading the tables of [l] through [db].
func NewLoader(c *abi.Catalog, l *schema.Layout, db Querier) *Loader {
	return &Loader{catalog: c, layout: l, db: db}
}

// Load reconstructs the stored value of type [typeID] with the lowest row
// id.
func (l *Loader) Load(ctx context.Context, typeID int) (codec.Value, error) {
	plan, err := NewPlan(l.catalog, l.layout, typeID)
	if err != nil {
		return nil, err
	}
	return l.one(ctx, plan, plan.Query())
}

// LoadByID reconstructs the value of type [typeID] stored in row [id].
func (l *Loader) LoadByID(ctx context.Context, typeID int, id int64) (codec.Value, error) {
	plan, err := NewPlan(l.catalog, l.layout, typeID)
	if err != nil {
		return nil, err
	}
	return l.one(ctx, plan, plan.QueryByID(), id)
}

func (l *Loader) one(ctx context.Context, plan *Plan, query string, args ...interface{}) (codec.Value, error) {
	rows, err := l.fetch(ctx, plan, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, plan.root.table.Name)
	}
	return l.reconstruct(ctx, plan.root, rows[0])
}

// fetch reads every result row before any follow-up query runs.
func (l *Loader) fetch(ctx context.Context, plan *Plan, query string, args ...interface{}) ([][]interface{}, error) {
	rows, err := l.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("couldn't load %s: %w", plan.root.table.Name, err)
	}
	defer rows.Close()

	var result [][]interface{}
	for rows.Next() {
		targets := plan.targets()
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("couldn't scan %s: %w", plan.root.table.Name, err)
		}
		result = append(result, targets)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("couldn't load %s: %w", plan.root.table.Name, err)
	}
	return result, nil
}

// owned loads the elements of an owned array field into their slots. Empty
// slots are left nil.
func (l *Loader) owned(ctx context.Context, owner *node, ownerID int64, f schema.Field) ([]codec.Value, error) {
	plan, err := NewOwnedPlan(l.catalog, l.layout, f.TypeID, owner.table.TypeID)
	if err != nil {
		return nil, err
	}
	rows, err := l.fetch(ctx, plan, plan.QueryByOwner(f.Len), ownerID)
	if err != nil {
		return nil, err
	}
	slots := make([]codec.Value, f.Len)
	for _, row := range rows {
		index, ok := rowID(row, plan.index)
		if !ok || index < 0 || index >= int64(f.Len) || slots[index] != nil {
			return nil, fmt.Errorf("%w: bad slot in %s.%s of row %d", codec.ErrSchemaMismatch, owner.table.Name, f.Name, ownerID)
		}
		if slots[index], err = l.reconstruct(ctx, plan.root, row); err != nil {
			return nil, err
		}
	}
	return slots, nil
}

func nullColumn(n *node, f schema.Field) error {
	return fmt.Errorf("%w: %s.%s is NULL", codec.ErrSchemaMismatch, n.table.Name, f.Name)
}

func rowID(row []interface{}, pos int) (int64, bool) {
	id := row[pos].(*sql.NullInt64)
	return id.Int64, id.Valid
}

// reconstruct walks the declared type of [n] in lockstep with [row].
func (l *Loader) reconstruct(ctx context.Context, n *node, row []interface{}) (codec.Value, error) {
	id, ok := rowID(row, n.id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, n.table.Name)
	}

	if n.table.Enum {
		for i, fp := range n.fields {
			v, ok, err := l.variant(ctx, fp, row)
			if err != nil {
				return nil, err
			}
			if ok {
				return codec.Enum{Variant: i, Value: v}, nil
			}
		}
		return nil, fmt.Errorf("%w: %s row %d has no active variant", codec.ErrSchemaMismatch, n.table.Name, id)
	}

	fields := make(codec.Struct, len(n.fields))
	for i, fp := range n.fields {
		v, err := l.field(ctx, n, id, fp, row)
		if err != nil {
			return nil, err
		}
		fields[i] = v
	}
	return fields, nil
}

// variant returns the payload of enum variant [fp] and whether it is the
// active one.
func (l *Loader) variant(ctx context.Context, fp fieldPlan, row []interface{}) (codec.Value, bool, error) {
	f := fp.field
	switch f.Shape {
	case schema.ShapeFlag:
		flag := row[fp.columns[0]].(*sql.NullBool)
		if !flag.Valid || !flag.Bool {
			return nil, false, nil
		}
		v, err := l.marker(fp.comp)
		return v, err == nil, err
	case schema.ShapeReference:
		if _, ok := rowID(row, fp.child.id); !ok {
			return nil, false, nil
		}
		v, err := l.reconstruct(ctx, fp.child, row)
		return v, err == nil, err
	case schema.ShapeScalar:
		v, ok, err := scalar(f.Columns[0].Scalar, row[fp.columns[0]])
		return v, ok, err
	case schema.ShapeBytes:
		b := *row[fp.columns[0]].(*[]byte)
		if b == nil {
			return nil, false, nil
		}
		v, err := l.byteArray(fp, b)
		return v, err == nil, err
	default:
		return nil, false, fmt.Errorf("%w: can't load variant %s", abi.ErrUnimplementedType, f.Name)
	}
}

// marker returns the only value of marker type [comp].
func (l *Loader) marker(comp abi.Component) (codec.Value, error) {
	decl, err := l.catalog.Resolve(comp)
	if err != nil {
		return nil, err
	}
	if decl.IsStruct() {
		return codec.Struct{}, nil
	}
	return codec.Unit{}, nil
}

// option wraps [v] in the option type of [comp].
func (l *Loader) option(comp abi.Component, v codec.Value) (codec.Value, error) {
	decl, err := l.catalog.Resolve(comp)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return codec.Enum{Variant: decl.NoneIndex(), Value: codec.Unit{}}, nil
	}
	return codec.Enum{Variant: decl.SomeIndex(), Value: v}, nil
}

func (l *Loader) field(ctx context.Context, n *node, id int64, fp fieldPlan, row []interface{}) (codec.Value, error) {
	f := fp.field
	var (
		v   codec.Value
		err error
	)
	switch f.Shape {
	case schema.ShapeUnit:
		return l.marker(fp.comp)
	case schema.ShapeScalar:
		if v, _, err = scalar(f.Columns[0].Scalar, row[fp.columns[0]]); err != nil {
			return nil, err
		}
	case schema.ShapeReference:
		if _, ok := rowID(row, fp.child.id); ok {
			if v, err = l.reconstruct(ctx, fp.child, row); err != nil {
				return nil, err
			}
		}
	case schema.ShapeTuple:
		elems := make(codec.Tuple, len(f.Columns))
		for i, col := range f.Columns {
			e, ok, err := scalar(col.Scalar, row[fp.columns[i]])
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, nullColumn(n, f)
			}
			elems[i] = e
		}
		return elems, nil
	case schema.ShapeBytes:
		b := *row[fp.columns[0]].(*[]byte)
		if b == nil {
			return nil, nullColumn(n, f)
		}
		return l.byteArray(fp, b)
	case schema.ShapeOwnedArray:
		elems, err := l.owned(ctx, n, id, f)
		if err != nil {
			return nil, err
		}
		return l.array(fp, elems)
	default:
		return nil, fmt.Errorf("%w: can't load %s.%s", abi.ErrUnimplementedType, n.table.Name, f.Name)
	}

	if f.Optional {
		return l.option(fp.comp, v)
	}
	if v == nil {
		return nil, nullColumn(n, f)
	}
	return v, nil
}

// array fills an array field with [elems], where nil marks an empty slot.
// Arrays of options hold None in empty and missing slots.
func (l *Loader) array(fp fieldPlan, elems []codec.Value) (codec.Value, error) {
	f := fp.field
	if !f.Optional {
		if len(elems) != f.Len {
			return nil, fmt.Errorf("%w: %s holds %d of %d elements", codec.ErrSchemaMismatch, f.Name, len(elems), f.Len)
		}
		for i, e := range elems {
			if e == nil {
				return nil, fmt.Errorf("%w: slot %d of %s is empty", codec.ErrSchemaMismatch, i, f.Name)
			}
		}
		return codec.Array(elems), nil
	}
	arrayDecl, err := l.catalog.Resolve(fp.comp)
	if err != nil {
		return nil, err
	}
	slot, _ := arrayDecl.ArrayElement()
	out := make(codec.Array, f.Len)
	for i := range out {
		var e codec.Value
		if i < len(elems) {
			e = elems[i]
		}
		if out[i], err = l.option(slot, e); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (l *Loader) byteArray(fp fieldPlan, b []byte) (codec.Value, error) {
	if len(b) > fp.field.Len {
		return nil, fmt.Errorf("%w: %d bytes stored for %s", codec.ErrSchemaMismatch, len(b), fp.field.Name)
	}
	elems := make([]codec.Value, len(b))
	for i, c := range b {
		elems[i] = codec.U8(c)
	}
	return l.array(fp, elems)
}

// scalar converts a scanned column into a value of kind [k]. It returns false
// for NULL.
func scalar(k abi.Kind, target interface{}) (codec.Value, bool, error) {
	switch t := target.(type) {
	case *sql.NullBool:
		if !t.Valid {
			return nil, false, nil
		}
		if k == abi.KindBool {
			return codec.Bool(t.Bool), true, nil
		}
	case *sql.NullInt64:
		if !t.Valid {
			return nil, false, nil
		}
		n := t.Int64
		switch {
		case k == abi.KindU8 && n >= 0 && n <= math.MaxUint8:
			return codec.U8(n), true, nil
		case k == abi.KindU16 && n >= 0 && n <= math.MaxUint16:
			return codec.U16(n), true, nil
		case k == abi.KindU32 && n >= 0 && n <= math.MaxUint32:
			return codec.U32(n), true, nil
		}
	case *decimal.NullDecimal:
		if !t.Valid {
			return nil, false, nil
		}
		n := t.Decimal.BigInt()
		if k == abi.KindU64 && n.Sign() >= 0 && n.IsUint64() {
			return codec.U64(n.Uint64()), true, nil
		}
	case *sql.NullString:
		if !t.Valid {
			return nil, false, nil
		}
		var (
			v   codec.Value
			err error
		)
		switch k {
		case abi.KindU128:
			v, err = codec.U128FromHex(t.String)
		case abi.KindU256:
			v, err = codec.U256FromHex(t.String)
		case abi.KindB256:
			v, err = codec.B256FromHex(t.String)
		case abi.KindStr:
			v = codec.Str(t.String)
		default:
			return nil, false, fmt.Errorf("%w: text column for %s", codec.ErrSchemaMismatch, k)
		}
		return v, err == nil, err
	}
	return nil, false, fmt.Errorf("%w: stored value out of range for %s", codec.ErrSchemaMismatch, k)
}
