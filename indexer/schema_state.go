// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package indexer

import (
	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/ids"
)

var _ SchemaState = (*schemaState)(nil)

// SchemaState records which programs have had their tables created in the
// store.
type SchemaState interface {
	IsApplied(programID ids.ID) (bool, error)
	SetApplied(programID ids.ID) error
}

type schemaState struct {
	schemaDB database.Database
}

func NewSchemaState(db database.Database) SchemaState {
	return &schemaState{
		schemaDB: db,
	}
}

func (s *schemaState) IsApplied(programID ids.ID) (bool, error) {
	return s.schemaDB.Has(programID[:])
}

func (s *schemaState) SetApplied(programID ids.ID) error {
	return s.schemaDB.Put(programID[:], nil)
}
