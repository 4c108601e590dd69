// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package indexer

import (
	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/prefixdb"
	"github.com/ava-labs/avalanchego/database/versiondb"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Each sub state lives under its own key prefix.
	programStatePrefix = []byte("program")
	schemaStatePrefix  = []byte("schema")

	_ State = &state{}
)

// State is the program registry. Writes are buffered until Commit.
type State interface {
	ProgramState
	SchemaState

	Commit() error
	Abort()
	Close() error
}

type state struct {
	ProgramState
	SchemaState

	baseDB *versiondb.Database
}

func NewState(db database.Database, cacheSize int, registerer prometheus.Registerer) (State, error) {
	baseDB := versiondb.New(db)

	programState, err := NewProgramState(prefixdb.New(programStatePrefix, baseDB), cacheSize, registerer)
	if err != nil {
		return nil, err
	}
	return &state{
		ProgramState: programState,
		SchemaState:  NewSchemaState(prefixdb.New(schemaStatePrefix, baseDB)),
		baseDB:       baseDB,
	}, nil
}

// Commit writes pending operations to the underlying database
func (s *state) Commit() error {
	return s.baseDB.Commit()
}

// Abort drops pending operations
func (s *state) Abort() {
	s.baseDB.Abort()
	s.ClearCache()
}

// Close closes the underlying database
func (s *state) Close() error {
	return s.baseDB.Close()
}
