// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package indexer

import (
	"encoding/hex"

	"github.com/ava-labs/avalanchego/codec"
	"github.com/ava-labs/avalanchego/codec/linearcodec"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/hashing"
	"github.com/ava-labs/avalanchego/utils/wrappers"

	"github.com/ava-labs/abistore/abi"
	"github.com/ava-labs/abistore/schema"
	"github.com/ava-labs/abistore/statement"
)

const (
	recordVersion = 0

	// namespacePrefix starts the PostgreSQL schema name of every program.
	namespacePrefix = "abi_"
	namespaceIDLen  = 8
)

// Codec serializes program records into the registry
var Codec codec.Manager

func init() {
	c := linearcodec.NewDefault()
	Codec = codec.NewDefaultManager()

	errs := wrappers.Errs{}
	errs.Add(
		c.RegisterType(&programRecord{}),
		Codec.RegisterCodec(recordVersion, c),
	)
	if errs.Errored() {
		panic(errs.Err)
	}
}

// programRecord is the persisted form of a registered program. The catalog
// and layout are rebuilt from the document on read.
type programRecord struct {
	Name     string `serialize:"true"`
	Document []byte `serialize:"true"`
}

// Program is a registered ABI with everything derived from it.
type Program struct {
	ID       ids.ID
	Name     string
	Document []byte

	Catalog *abi.Catalog
	Layout  *schema.Layout

	builder *statement.Builder
}

// ProgramID returns the id of the program described by [document].
func ProgramID(document []byte) ids.ID {
	return ids.ID(hashing.ComputeHash256Array(document))
}

// Namespace returns the PostgreSQL schema holding the tables of program
// [programID]. Programs never share tables.
func Namespace(programID ids.ID) string {
	return namespacePrefix + hex.EncodeToString(programID[:namespaceIDLen])
}

// NewProgram parses [document] and lays out its tables in the program's own
// namespace.
func NewProgram(name string, document []byte) (*Program, error) {
	c, err := abi.Parse(document)
	if err != nil {
		return nil, err
	}
	id := ProgramID(document)
	l, err := schema.BuildNamespaced(c, Namespace(id))
	if err != nil {
		return nil, err
	}
	return &Program{
		ID:       id,
		Name:     name,
		Document: document,
		Catalog:  c,
		Layout:   l,
		builder:  statement.NewBuilder(c, l),
	}, nil
}

func (p *Program) record() *programRecord {
	return &programRecord{Name: p.Name, Document: p.Document}
}
