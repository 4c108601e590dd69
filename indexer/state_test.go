// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package indexer

import (
	"os"
	"testing"

	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDocument(t *testing.T) []byte {
	t.Helper()
	doc, err := os.ReadFile("../abi/testdata/block-indexer-abi.json")
	require.NoError(t, err)
	return doc
}

func TestProgramID(t *testing.T) {
	doc := testDocument(t)
	p, err := NewProgram("blocks", doc)
	require.NoError(t, err)
	assert.Equal(t, ProgramID(doc), p.ID)
	assert.NotEqual(t, ids.Empty, p.ID)
	assert.NotEqual(t, ProgramID(append([]byte(" "), doc...)), p.ID)
}

func TestStatePutGet(t *testing.T) {
	require := require.New(t)

	db := memdb.New()
	s, err := NewState(db, 2, prometheus.NewRegistry())
	require.NoError(err)

	p, err := NewProgram("blocks", testDocument(t))
	require.NoError(err)

	_, err = s.GetProgram(p.ID)
	require.ErrorIs(err, ErrUnknownProgram)

	require.NoError(s.PutProgram(p))
	require.NoError(s.SetApplied(p.ID))
	require.NoError(s.Commit())

	// Served from the cache.
	got, err := s.GetProgram(p.ID)
	require.NoError(err)
	require.Same(p, got)

	// Rebuilt from the stored record.
	s.ClearCache()
	got, err = s.GetProgram(p.ID)
	require.NoError(err)
	require.Equal("blocks", got.Name)
	require.Equal(p.Document, got.Document)
	require.Equal(p.Layout.Statements(), got.Layout.Statements())

	applied, err := s.IsApplied(p.ID)
	require.NoError(err)
	require.True(applied)

	programIDs, err := s.ProgramIDs()
	require.NoError(err)
	require.Equal([]ids.ID{p.ID}, programIDs)

	// A fresh registry over the same database sees the committed program.
	reopened, err := NewState(db, 2, prometheus.NewRegistry())
	require.NoError(err)
	has, err := reopened.HasProgram(p.ID)
	require.NoError(err)
	require.True(has)
}

func TestStateAbort(t *testing.T) {
	require := require.New(t)

	s, err := NewState(memdb.New(), 0, prometheus.NewRegistry())
	require.NoError(err)

	p, err := NewProgram("blocks", testDocument(t))
	require.NoError(err)
	require.NoError(s.PutProgram(p))
	s.Abort()

	has, err := s.HasProgram(p.ID)
	require.NoError(err)
	require.False(has)
	applied, err := s.IsApplied(p.ID)
	require.NoError(err)
	require.False(applied)
}
