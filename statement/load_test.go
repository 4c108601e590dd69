// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statement

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/abistore/abi"
	"github.com/ava-labs/abistore/codec"
	"github.com/ava-labs/abistore/schema"
)

const (
	pointQuery = `SELECT "Point_0"."id", "Point_0"."x", "Point_0"."y" FROM "Point" AS "Point_0"`

	blockQuery = `SELECT "FuelBlock_0"."id", ` +
		`"Header_0"."id", "Header_0"."height", "Header_0"."da_height", "Header_0"."block_id", "Header_0"."prev_root", ` +
		`"Point_0"."id", "Point_0"."x", "Point_0"."y" ` +
		`FROM "FuelBlock" AS "FuelBlock_0" ` +
		`LEFT JOIN "Header" AS "Header_0" ON "Header_0".id = "FuelBlock_0"."headerId" ` +
		`LEFT JOIN "Point" AS "Point_0" ON "Point_0".id = "FuelBlock_0"."producerId"`

	transactionColumns = `SELECT "Transaction_0"."id", ` +
		`"Mint_0"."id", "Mint_0"."amount", "Mint_0"."asset_id", ` +
		`"Script_0"."id", "Script_0"."gas_limit", "Script_0"."receipts_root", "Script_0"."maturity", ` +
		`"Transaction_0"."Empty"`
	transactionFrom = ` FROM "Transaction" AS "Transaction_0" ` +
		`LEFT JOIN "Mint" AS "Mint_0" ON "Mint_0".id = "Transaction_0"."MintId" ` +
		`LEFT JOIN "Script" AS "Script_0" ON "Script_0".id = "Transaction_0"."ScriptId"`

	ownedTransactionQuery = transactionColumns + `, "Transaction_0"."FuelBlock_index"` + transactionFrom +
		` WHERE "Transaction_0"."FuelBlock_id" = $1 ORDER BY "Transaction_0"."FuelBlock_index" LIMIT 3`
)

var transactionRow = []string{
	"id", "id", "amount", "asset_id", "id", "gas_limit", "receipts_root", "maturity", "Empty", "FuelBlock_index",
}

func newTestLoader(t *testing.T) (*Loader, sqlmock.Sqlmock) {
	t.Helper()
	c, l, _ := newTestBuilder(t)
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewLoader(c, l, sqlx.NewDb(db, "sqlmock")), mock
}

func TestPlanQueries(t *testing.T) {
	require := require.New(t)
	c, l, _ := newTestBuilder(t)

	plan, err := NewPlan(c, l, pointID)
	require.NoError(err)
	require.Equal(pointQuery+` ORDER BY "Point_0".id LIMIT 1`, plan.Query())
	require.Equal(pointQuery+` WHERE "Point_0".id = $1 ORDER BY "Point_0".id LIMIT 1`, plan.QueryByID())

	// Both ends of a line join the point table under their own alias.
	plan, err = NewPlan(c, l, lineID)
	require.NoError(err)
	require.Equal(`SELECT "Line_0"."id", "Point_0"."id", "Point_0"."x", "Point_0"."y", `+
		`"Point_1"."id", "Point_1"."x", "Point_1"."y" FROM "Line" AS "Line_0" `+
		`LEFT JOIN "Point" AS "Point_0" ON "Point_0".id = "Line_0"."startId" `+
		`LEFT JOIN "Point" AS "Point_1" ON "Point_1".id = "Line_0"."endId" `+
		`ORDER BY "Line_0".id LIMIT 1`, plan.Query())

	plan, err = NewPlan(c, l, transactionID)
	require.NoError(err)
	require.Equal(transactionColumns+transactionFrom+` ORDER BY "Transaction_0".id LIMIT 1`, plan.Query())

	plan, err = NewOwnedPlan(c, l, transactionID, fuelBlockID)
	require.NoError(err)
	require.Equal(ownedTransactionQuery, plan.QueryByOwner(3))

	_, err = NewOwnedPlan(c, l, pointID, fuelBlockID)
	require.ErrorIs(err, abi.ErrUnimplementedType)

	_, err = NewPlan(c, l, u64ID)
	require.ErrorIs(err, abi.ErrUnimplementedType)
	_, err = NewPlan(c, l, 99)
	require.ErrorIs(err, abi.ErrUnknownTypeID)
}

func TestLoadPoint(t *testing.T) {
	require := require.New(t)
	loader, mock := newTestLoader(t)
	ctx := context.Background()

	mock.ExpectQuery(pointQuery + ` ORDER BY "Point_0".id LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "x", "y"}).AddRow(int64(1), int64(1), int64(4294967295)))
	v, err := loader.Load(ctx, pointID)
	require.NoError(err)
	require.Equal(codec.Struct{codec.U32(1), codec.U32(4294967295)}, v)

	mock.ExpectQuery(pointQuery+` WHERE "Point_0".id = $1 ORDER BY "Point_0".id LIMIT 1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "x", "y"}))
	_, err = loader.LoadByID(ctx, pointID, 7)
	require.ErrorIs(err, ErrNotFound)

	require.NoError(mock.ExpectationsWereMet())
}

func TestLoadRejectsOutOfRange(t *testing.T) {
	require := require.New(t)
	loader, mock := newTestLoader(t)

	mock.ExpectQuery(pointQuery + ` ORDER BY "Point_0".id LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "x", "y"}).AddRow(int64(1), int64(-1), int64(2)))
	_, err := loader.Load(context.Background(), pointID)
	require.ErrorIs(err, codec.ErrSchemaMismatch)
	require.NoError(mock.ExpectationsWereMet())
}

// expectBlockRow expects the block query for row 5 and returns the rows of
// its transactions.
func expectBlockRow(mock sqlmock.Sqlmock, transactions *sqlmock.Rows) {
	header := testHeader()
	mock.ExpectQuery(blockQuery+` WHERE "FuelBlock_0".id = $1 ORDER BY "FuelBlock_0".id LIMIT 1`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "id", "height", "da_height", "block_id", "prev_root", "id", "x", "y",
		}).AddRow(
			int64(5), int64(2), int64(10), "11", header[2].(codec.B256).Hex(), header[3].(codec.B256).Hex(), nil, nil, nil,
		))
	mock.ExpectQuery(ownedTransactionQuery).
		WithArgs(int64(5)).
		WillReturnRows(transactions)
}

func mintRow(rows *sqlmock.Rows, id, index int64) *sqlmock.Rows {
	return rows.AddRow(id, int64(3), "100", codec.B256{2}.Hex(), nil, nil, nil, nil, nil, index)
}

func emptyRow(rows *sqlmock.Rows, id, index int64) *sqlmock.Rows {
	return rows.AddRow(id, nil, nil, nil, nil, nil, nil, nil, true, index)
}

func TestLoadBlock(t *testing.T) {
	require := require.New(t)
	loader, mock := newTestLoader(t)

	rows := sqlmock.NewRows(transactionRow)
	expectBlockRow(mock, emptyRow(mintRow(rows, 8, 0), 9, 1))

	v, err := loader.LoadByID(context.Background(), fuelBlockID, 5)
	require.NoError(err)
	require.Equal(testBlock(), v)
	require.NoError(mock.ExpectationsWereMet())
}

func TestLoadOwnedSlots(t *testing.T) {
	mint := codec.Some(codec.Enum{Variant: 0, Value: testMint()})
	empty := codec.Some(codec.Enum{Variant: 2, Value: codec.Unit{}})

	tests := []struct {
		name         string
		transactions *sqlmock.Rows
		want         codec.Array
		err          error
	}{
		{
			name:         "gap",
			transactions: mintRow(emptyRow(sqlmock.NewRows(transactionRow), 9, 2), 8, 0),
			want:         codec.Array{mint, codec.None(), empty},
		},
		{
			name:         "repeated element",
			transactions: emptyRow(emptyRow(sqlmock.NewRows(transactionRow), 8, 0), 9, 1),
			want:         codec.Array{empty, empty, codec.None()},
		},
		{
			name:         "no elements",
			transactions: sqlmock.NewRows(transactionRow),
			want:         codec.Array{codec.None(), codec.None(), codec.None()},
		},
		{
			name:         "shared slot",
			transactions: emptyRow(emptyRow(sqlmock.NewRows(transactionRow), 8, 1), 9, 1),
			err:          codec.ErrSchemaMismatch,
		},
		{
			name:         "slot out of range",
			transactions: emptyRow(sqlmock.NewRows(transactionRow), 8, 3),
			err:          codec.ErrSchemaMismatch,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)
			loader, mock := newTestLoader(t)
			expectBlockRow(mock, test.transactions)

			v, err := loader.LoadByID(context.Background(), fuelBlockID, 5)
			require.ErrorIs(err, test.err)
			if test.err == nil {
				require.Equal(codec.Struct{testHeader(), test.want, codec.None()}, v)
			}
			require.NoError(mock.ExpectationsWereMet())
		})
	}
}

func TestLoadNamespaced(t *testing.T) {
	require := require.New(t)
	c, _, _ := newTestBuilder(t)
	l, err := schema.BuildNamespaced(c, "blocks")
	require.NoError(err)

	plan, err := NewPlan(c, l, lineID)
	require.NoError(err)
	require.Equal(`SELECT "Line_0"."id", "Point_0"."id", "Point_0"."x", "Point_0"."y", `+
		`"Point_1"."id", "Point_1"."x", "Point_1"."y" FROM "blocks"."Line" AS "Line_0" `+
		`LEFT JOIN "blocks"."Point" AS "Point_0" ON "Point_0".id = "Line_0"."startId" `+
		`LEFT JOIN "blocks"."Point" AS "Point_1" ON "Point_1".id = "Line_0"."endId" `+
		`ORDER BY "Line_0".id LIMIT 1`, plan.Query())
}

func TestMarkerValues(t *testing.T) {
	require := require.New(t)
	c, err := abi.Parse([]byte(`{"types": [
		{"typeId": 0, "type": "u8"},
		{"typeId": 1, "type": "struct Marker", "components": []},
		{"typeId": 2, "type": "struct S", "components": [{"name": "a", "type": 0}, {"name": "m", "type": 1}]},
		{"typeId": 3, "type": "enum E", "components": [{"name": "A", "type": 0}, {"name": "M", "type": 1}]}
	], "loggedTypes": []}`))
	require.NoError(err)
	l, err := schema.Build(c)
	require.NoError(err)

	s := codec.Struct{codec.U8(7), codec.Struct{}}
	batch, err := NewBuilder(c, l).Generate(2, s)
	require.NoError(err)
	require.Equal(2, batch.Len())
	require.Contains(batch.Statement(), `INSERT INTO "S" ("a") SELECT 7 WHERE`)

	batch, err = NewBuilder(c, l).Generate(1, codec.Struct{})
	require.NoError(err)
	require.Zero(batch.Len())

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(err)
	defer db.Close()
	loader := NewLoader(c, l, sqlx.NewDb(db, "sqlmock"))
	ctx := context.Background()

	mock.ExpectQuery(`SELECT "S_0"."id", "S_0"."a" FROM "S" AS "S_0" ORDER BY "S_0".id LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "a"}).AddRow(int64(1), int64(7)))
	v, err := loader.Load(ctx, 2)
	require.NoError(err)
	require.Equal(s, v)

	mock.ExpectQuery(`SELECT "E_0"."id", "E_0"."A", "E_0"."M" FROM "E" AS "E_0" ORDER BY "E_0".id LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "A", "M"}).AddRow(int64(1), nil, true))
	v, err = loader.Load(ctx, 3)
	require.NoError(err)
	require.Equal(codec.Enum{Variant: 1, Value: codec.Struct{}}, v)

	require.NoError(mock.ExpectationsWereMet())
}

func TestLoadEnumWithoutVariant(t *testing.T) {
	require := require.New(t)
	loader, mock := newTestLoader(t)

	mock.ExpectQuery(`SELECT "Color_0"."id", "Color_0"."Red", "Color_0"."Green", "Color_0"."Blue" ` +
		`FROM "Color" AS "Color_0" ORDER BY "Color_0".id LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "Red", "Green", "Blue"}).AddRow(int64(1), nil, nil, nil))
	_, err := loader.Load(context.Background(), colorID)
	require.ErrorIs(err, codec.ErrSchemaMismatch)
	require.NoError(mock.ExpectationsWereMet())
}
