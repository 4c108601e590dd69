// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package indexer

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/abistore/abi"
	"github.com/ava-labs/abistore/codec"
	"github.com/ava-labs/abistore/statement"
)

const (
	pointID = 12
	colorID = 14
)

func newTestEngine(t *testing.T) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	e, err := New(sqlx.NewDb(db, "sqlmock"), memdb.New(), Config{}, prometheus.NewRegistry())
	require.NoError(t, err)
	return e, mock
}

// expectSchema expects the table statements of [doc] to run once.
func expectSchema(t *testing.T, mock sqlmock.Sqlmock, doc []byte) {
	t.Helper()
	p, err := NewProgram("blocks", doc)
	require.NoError(t, err)
	mock.ExpectBegin()
	for _, stmt := range p.Layout.Statements() {
		mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()
}

func registerTestProgram(t *testing.T, e *Engine, mock sqlmock.Sqlmock) *Program {
	t.Helper()
	doc := testDocument(t)
	expectSchema(t, mock, doc)
	programID, err := e.Register(context.Background(), "blocks", doc)
	require.NoError(t, err)
	p, err := e.Program(programID)
	require.NoError(t, err)
	return p
}

func TestRegister(t *testing.T) {
	require := require.New(t)
	e, mock := newTestEngine(t)
	ctx := context.Background()

	p := registerTestProgram(t, e, mock)

	// Registering again runs no statements.
	programID, err := e.Register(ctx, "blocks", p.Document)
	require.NoError(err)
	require.Equal(p.ID, programID)

	programs, err := e.Programs()
	require.NoError(err)
	require.Equal([]ids.ID{p.ID}, programs)

	stmts, err := e.Schema(p.ID)
	require.NoError(err)
	require.Len(stmts, 11)
	require.Equal(`CREATE SCHEMA IF NOT EXISTS "`+Namespace(p.ID)+`"`, stmts[0])

	typeID, err := e.TypeID(p.ID, "Point")
	require.NoError(err)
	require.Equal(pointID, typeID)

	_, err = e.Register(ctx, "broken", []byte(`{"types": [`))
	require.ErrorIs(err, abi.ErrMalformedABI)

	_, err = e.Schema(ids.GenerateTestID())
	require.ErrorIs(err, ErrUnknownProgram)

	require.NoError(mock.ExpectationsWereMet())
}

func TestProgramsDoNotShareTables(t *testing.T) {
	require := require.New(t)
	e, mock := newTestEngine(t)
	ctx := context.Background()

	// Both programs declare a Point, with different fields.
	pairs := []byte(`{"types": [
		{"typeId": 0, "type": "u32"},
		{"typeId": 1, "type": "struct Point", "components": [{"name": "x", "type": 0}, {"name": "y", "type": 0}]}
	], "loggedTypes": []}`)
	flags := []byte(`{"types": [
		{"typeId": 0, "type": "bool"},
		{"typeId": 1, "type": "struct Point", "components": [{"name": "z", "type": 0}]}
	], "loggedTypes": []}`)

	var programs []*Program
	for _, doc := range [][]byte{pairs, flags} {
		expectSchema(t, mock, doc)
		programID, err := e.Register(ctx, "points", doc)
		require.NoError(err)
		p, err := e.Program(programID)
		require.NoError(err)
		programs = append(programs, p)
	}
	first, second := programs[0], programs[1]
	require.NotEqual(first.Layout.Namespace(), second.Layout.Namespace())

	firstTable, err := first.Layout.Table(1)
	require.NoError(err)
	secondTable, err := second.Layout.Table(1)
	require.NoError(err)
	require.Equal(`"`+Namespace(first.ID)+`"."Point"`, firstTable.Ident())
	require.Equal(`CREATE TABLE IF NOT EXISTS "`+Namespace(second.ID)+`"."Point" `+
		`(id SERIAL PRIMARY KEY, "z" BOOLEAN NOT NULL)`, secondTable.CreateStatement())

	// Saves land in the table of their own program.
	flag := codec.Struct{codec.Bool(true)}
	batch, err := second.builder.Generate(1, flag)
	require.NoError(err)
	require.Contains(batch.Statement(), `INSERT INTO "`+Namespace(second.ID)+`"."Point" ("z")`)
	mock.ExpectQuery(batch.ResolvingStatement()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow(int64(1), int64(1)))
	_, err = e.SaveValue(ctx, second.ID, 1, flag)
	require.NoError(err)

	require.NoError(mock.ExpectationsWereMet())
}

func TestRegisterFailureLeavesNoProgram(t *testing.T) {
	require := require.New(t)
	e, mock := newTestEngine(t)

	doc := testDocument(t)
	mock.ExpectBegin().WillReturnError(sqlmock.ErrCancelled)
	_, err := e.Register(context.Background(), "blocks", doc)
	require.Error(err)

	_, err = e.Program(ProgramID(doc))
	require.ErrorIs(err, ErrUnknownProgram)
	require.NoError(mock.ExpectationsWereMet())
}

func TestSaveAndLoad(t *testing.T) {
	require := require.New(t)
	e, mock := newTestEngine(t)
	ctx := context.Background()
	p := registerTestProgram(t, e, mock)

	point := codec.Struct{codec.U32(1), codec.U32(2)}
	data, err := codec.Encode(p.Catalog, pointID, point)
	require.NoError(err)

	batch, err := statement.NewBuilder(p.Catalog, p.Layout).Generate(pointID, point)
	require.NoError(err)
	mock.ExpectQuery(batch.ResolvingStatement()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow(int64(1), int64(1)))
	mock.ExpectQuery(batch.ResolvingStatement()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow(int64(1), int64(0)))

	result, err := e.Save(ctx, p.ID, pointID, data)
	require.NoError(err)
	require.Equal(SaveResult{RowID: 1, HasRow: true, Inserted: 1}, result)

	// The point is logged under log id 1.
	result, err = e.SaveLog(ctx, p.ID, 1, data)
	require.NoError(err)
	require.Equal(SaveResult{RowID: 1, HasRow: true}, result)

	plan, err := statement.NewPlan(p.Catalog, p.Layout, pointID)
	require.NoError(err)
	mock.ExpectQuery(plan.QueryByID()).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "x", "y"}).AddRow(int64(1), int64(1), int64(2)))
	loaded, err := e.LoadByID(ctx, p.ID, pointID, 1)
	require.NoError(err)
	require.Equal(data, loaded)

	mock.ExpectQuery(plan.Query()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "x", "y"}))
	_, err = e.Load(ctx, p.ID, pointID)
	require.ErrorIs(err, statement.ErrNotFound)

	require.NoError(mock.ExpectationsWereMet())
}

func TestSaveErrors(t *testing.T) {
	require := require.New(t)
	e, mock := newTestEngine(t)
	ctx := context.Background()
	p := registerTestProgram(t, e, mock)

	_, err := e.Save(ctx, p.ID, pointID, []byte{1, 2, 3})
	require.ErrorIs(err, codec.ErrDecode)

	_, err = e.SaveLog(ctx, p.ID, 42, nil)
	require.ErrorIs(err, abi.ErrUnknownLogID)

	_, err = e.SaveValue(ctx, p.ID, colorID, codec.Struct{})
	require.ErrorIs(err, codec.ErrSchemaMismatch)

	_, err = e.Save(ctx, ids.GenerateTestID(), pointID, nil)
	require.ErrorIs(err, ErrUnknownProgram)

	// No statement reached the database.
	require.NoError(mock.ExpectationsWereMet())
}
