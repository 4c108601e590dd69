// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// e2e implements the e2e tests against a live PostgreSQL database.
package e2e_test

import (
	"context"
	"flag"
	"fmt"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	ginkgo "github.com/onsi/ginkgo/v2"
	"github.com/onsi/ginkgo/v2/formatter"
	"github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ava-labs/abistore/client"
	"github.com/ava-labs/abistore/codec"
	"github.com/ava-labs/abistore/indexer"
	"github.com/ava-labs/abistore/store"
)

const databaseURLEnv = "ABISTORE_TEST_DATABASE_URL"

var (
	requestTimeout time.Duration
	driver         string
	abiPath        string
)

func init() {
	flag.DurationVar(
		&requestTimeout,
		"request-timeout",
		30*time.Second,
		"timeout for each request",
	)
	flag.StringVar(
		&driver,
		"db-driver",
		store.DriverPQ,
		"database driver, postgres or pgx",
	)
	flag.StringVar(
		&abiPath,
		"abi-path",
		"../../abi/testdata/block-indexer-abi.json",
		"program ABI document to register",
	)
}

func TestE2e(t *testing.T) {
	if os.Getenv(databaseURLEnv) == "" {
		t.Skip(databaseURLEnv + " not set")
	}
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "abistore e2e test suites")
}

const (
	pointID       = 12
	lineID        = 13
	colorID       = 14
	transactionID = 21
	fuelBlockID   = 23
)

var (
	db        *sqlx.DB
	server    *httptest.Server
	cli       client.Client
	program   *indexer.Program
	programID ids.ID
)

var _ = ginkgo.BeforeSuite(func() {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	cfg := store.DefaultConfig(os.Getenv(databaseURLEnv))
	cfg.Driver = driver
	var err error
	db, err = store.Open(ctx, cfg)
	gomega.Expect(err).Should(gomega.BeNil())

	document, err := os.ReadFile(abiPath)
	gomega.Expect(err).Should(gomega.BeNil())
	program, err = indexer.NewProgram("blocks", document)
	gomega.Expect(err).Should(gomega.BeNil())

	ginkgo.By("dropping tables left by earlier runs", func() {
		_, err := db.ExecContext(ctx, "DROP SCHEMA IF EXISTS "+pq.QuoteIdentifier(program.Layout.Namespace())+" CASCADE")
		gomega.Expect(err).Should(gomega.BeNil())
	})

	engine, err := indexer.New(db, memdb.New(), indexer.Config{}, prometheus.NewRegistry())
	gomega.Expect(err).Should(gomega.BeNil())
	handler, err := indexer.NewHandler(engine)
	gomega.Expect(err).Should(gomega.BeNil())
	server = httptest.NewServer(handler)
	cli = client.New(server.URL)

	ginkgo.By("registering the program", func() {
		programID, err = cli.RegisterABI(ctx, "blocks", document)
		gomega.Expect(err).Should(gomega.BeNil())
		gomega.Expect(programID).Should(gomega.Equal(program.ID))
		outf("{{green}}registered program:{{/}} %s\n", programID)
	})
})

var _ = ginkgo.AfterSuite(func() {
	if server != nil {
		server.Close()
	}
	if db != nil {
		gomega.Expect(db.Close()).Should(gomega.BeNil())
	}
})

func encode(typeID int, v codec.Value) []byte {
	data, err := codec.Encode(program.Catalog, typeID, v)
	gomega.Expect(err).Should(gomega.BeNil())
	return data
}

// table returns the qualified name of the table of [typeID].
func table(typeID int) string {
	t, err := program.Layout.Table(typeID)
	gomega.Expect(err).Should(gomega.BeNil())
	return t.Ident()
}

func count(ctx context.Context, query string) int {
	var n int
	gomega.Expect(db.GetContext(ctx, &n, query)).Should(gomega.BeNil())
	return n
}

var _ = ginkgo.Describe("[Schema]", func() {
	ginkgo.It("can apply the schema twice", func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		stmts, err := cli.GetSchema(ctx, programID)
		gomega.Expect(err).Should(gomega.BeNil())
		gomega.Expect(store.ApplySchema(ctx, db, stmts)).Should(gomega.BeNil())
		gomega.Expect(store.ApplySchema(ctx, db, stmts)).Should(gomega.BeNil())
	})
})

var _ = ginkgo.Describe("[Save]", func() {
	ginkgo.It("saves a value once", func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		data := encode(pointID, codec.Struct{codec.U32(1), codec.U32(2)})
		first, err := cli.Save(ctx, programID, pointID, data)
		gomega.Expect(err).Should(gomega.BeNil())
		gomega.Expect(first.HasRow).Should(gomega.BeTrue())
		gomega.Expect(first.Inserted).Should(gomega.Equal(int64(1)))

		second, err := cli.Save(ctx, programID, pointID, data)
		gomega.Expect(err).Should(gomega.BeNil())
		gomega.Expect(second.RowID).Should(gomega.Equal(first.RowID))
		gomega.Expect(second.Inserted).Should(gomega.BeZero())

		loaded, err := cli.LoadByID(ctx, programID, pointID, first.RowID)
		gomega.Expect(err).Should(gomega.BeNil())
		gomega.Expect(loaded).Should(gomega.Equal(data))
	})

	ginkgo.It("stores equal nested values in one row", func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		point := codec.Struct{codec.U32(7), codec.U32(7)}
		result, err := cli.Save(ctx, programID, lineID, encode(lineID, codec.Struct{point, point}))
		gomega.Expect(err).Should(gomega.BeNil())

		gomega.Expect(count(ctx, `SELECT count(*) FROM `+table(pointID)+` WHERE "x" = 7 AND "y" = 7`)).Should(gomega.Equal(1))
		gomega.Expect(count(ctx, fmt.Sprintf(
			`SELECT count(*) FROM %s WHERE id = %d AND "startId" = "endId"`, table(lineID), result.RowID,
		))).Should(gomega.Equal(1))
	})

	ginkgo.It("sets exactly one enum variant", func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		green := codec.Enum{Variant: 1, Value: codec.Unit{}}
		result, err := cli.Save(ctx, programID, colorID, encode(colorID, green))
		gomega.Expect(err).Should(gomega.BeNil())
		gomega.Expect(count(ctx, fmt.Sprintf(
			`SELECT count(*) FROM %s WHERE id = %d AND "Red" IS NULL AND "Green" AND "Blue" IS NULL`, table(colorID), result.RowID,
		))).Should(gomega.Equal(1))

		mint := codec.Enum{Variant: 0, Value: codec.Struct{codec.U64(5), codec.B256{9}}}
		result, err = cli.Save(ctx, programID, transactionID, encode(transactionID, mint))
		gomega.Expect(err).Should(gomega.BeNil())
		gomega.Expect(count(ctx, fmt.Sprintf(
			`SELECT count(*) FROM %s WHERE id = %d AND "MintId" IS NOT NULL AND "ScriptId" IS NULL AND "Empty" IS NULL`,
			table(transactionID), result.RowID,
		))).Should(gomega.Equal(1))
	})

	ginkgo.It("round trips a block with owned transactions", func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		header := codec.Struct{codec.U32(1), codec.U64(18446744073709551615), codec.B256{1}, codec.B256{2}}
		block := codec.Struct{
			header,
			codec.Array{
				codec.Some(codec.Enum{Variant: 1, Value: codec.Struct{codec.U64(21000), codec.B256{3}, codec.U32(4)}}),
				codec.Some(codec.Enum{Variant: 2, Value: codec.Unit{}}),
				codec.None(),
			},
			codec.Some(codec.Struct{codec.U32(8), codec.U32(9)}),
		}
		data := encode(fuelBlockID, block)

		// Block and transactions are logged under log id 0.
		result, err := cli.SaveLog(ctx, programID, 0, data)
		gomega.Expect(err).Should(gomega.BeNil())
		gomega.Expect(result.HasRow).Should(gomega.BeTrue())

		loaded, err := cli.LoadByID(ctx, programID, fuelBlockID, result.RowID)
		gomega.Expect(err).Should(gomega.BeNil())
		gomega.Expect(loaded).Should(gomega.Equal(data))

		again, err := cli.SaveLog(ctx, programID, 0, data)
		gomega.Expect(err).Should(gomega.BeNil())
		gomega.Expect(again.RowID).Should(gomega.Equal(result.RowID))
		gomega.Expect(again.Inserted).Should(gomega.BeZero())
	})
})

// Outputs to stdout.
//
// e.g.,
//   Out("{{green}}{{bold}}hi there %q{{/}}", "aa")
//   Out("{{magenta}}{{bold}}hi therea{{/}} {{cyan}}{{underline}}b{{/}}")
//
// ref.
// https://github.com/onsi/ginkgo/blob/v2.0.0/formatter/formatter.go#L52-L73
func outf(format string, args ...interface{}) {
	s := formatter.F(format, args...)
	fmt.Fprint(formatter.ColorableStdOut, s)
}
