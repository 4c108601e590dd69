// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package client

import (
	"context"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/formatting"
	"github.com/ava-labs/avalanchego/utils/rpc"

	cjson "github.com/ava-labs/avalanchego/utils/json"

	"github.com/ava-labs/abistore/indexer"
)

// Client defines indexer client operations.
type Client interface {
	// RegisterABI registers the program described by [document] and returns
	// its id
	RegisterABI(ctx context.Context, name string, document []byte) (ids.ID, error)

	// ListPrograms returns the ids of every registered program
	ListPrograms(ctx context.Context) ([]ids.ID, error)

	// GetSchema returns the table statements of a program
	GetSchema(ctx context.Context, programID ids.ID) ([]string, error)

	// TypeID resolves a type name of a program
	TypeID(ctx context.Context, programID ids.ID, name string) (int, error)

	// Save persists the encoded value [data] of type [typeID]
	Save(ctx context.Context, programID ids.ID, typeID int, data []byte) (indexer.SaveResult, error)

	// SaveLog persists the encoded value [data] logged under [logID]
	SaveLog(ctx context.Context, programID ids.ID, logID uint64, data []byte) (indexer.SaveResult, error)

	// Load fetches the encoding of the stored value of type [typeID] with
	// the lowest row id
	Load(ctx context.Context, programID ids.ID, typeID int) ([]byte, error)

	// LoadByID fetches the encoding of the value stored in row [rowID]
	LoadByID(ctx context.Context, programID ids.ID, typeID int, rowID int64) ([]byte, error)
}

// New creates a new client object for the service at [uri], for example
// http://127.0.0.1:9650/ext/indexer.
func New(uri string) Client {
	req := rpc.NewEndpointRequester(uri, "", indexer.Name)
	return &client{req: req}
}

type client struct {
	req rpc.EndpointRequester
}

func (cli *client) send(ctx context.Context, method string, args, reply interface{}) error {
	return cli.req.SendRequest(ctx, method, args, reply)
}

func (cli *client) RegisterABI(ctx context.Context, name string, document []byte) (ids.ID, error) {
	resp := new(indexer.ProgramReply)
	err := cli.send(ctx, "registerABI", &indexer.RegisterABIArgs{
		Name:     name,
		Document: string(document),
	}, resp)
	return resp.ProgramID, err
}

func (cli *client) ListPrograms(ctx context.Context) ([]ids.ID, error) {
	resp := new(indexer.ListProgramsReply)
	err := cli.send(ctx, "listPrograms", &struct{}{}, resp)
	return resp.ProgramIDs, err
}

func (cli *client) GetSchema(ctx context.Context, programID ids.ID) ([]string, error) {
	resp := new(indexer.GetSchemaReply)
	err := cli.send(ctx, "getSchema", &indexer.ProgramArgs{ProgramID: programID}, resp)
	return resp.Statements, err
}

func (cli *client) TypeID(ctx context.Context, programID ids.ID, name string) (int, error) {
	resp := new(indexer.TypeIDReply)
	err := cli.send(ctx, "typeID", &indexer.TypeIDArgs{ProgramID: programID, Name: name}, resp)
	return resp.TypeID, err
}

func (cli *client) Save(ctx context.Context, programID ids.ID, typeID int, data []byte) (indexer.SaveResult, error) {
	hex, err := formatting.EncodeWithChecksum(formatting.Hex, data)
	if err != nil {
		return indexer.SaveResult{}, err
	}
	resp := new(indexer.SaveReply)
	err = cli.send(ctx, "save", &indexer.SaveArgs{ProgramID: programID, TypeID: typeID, Data: hex}, resp)
	if err != nil {
		return indexer.SaveResult{}, err
	}
	return saveResult(resp), nil
}

func (cli *client) SaveLog(ctx context.Context, programID ids.ID, logID uint64, data []byte) (indexer.SaveResult, error) {
	hex, err := formatting.EncodeWithChecksum(formatting.Hex, data)
	if err != nil {
		return indexer.SaveResult{}, err
	}
	resp := new(indexer.SaveReply)
	err = cli.send(ctx, "saveLog", &indexer.SaveLogArgs{
		ProgramID: programID,
		LogID:     cjson.Uint64(logID),
		Data:      hex,
	}, resp)
	if err != nil {
		return indexer.SaveResult{}, err
	}
	return saveResult(resp), nil
}

func saveResult(resp *indexer.SaveReply) indexer.SaveResult {
	result := indexer.SaveResult{Inserted: int64(resp.Inserted)}
	if resp.RowID != nil {
		result.RowID = int64(*resp.RowID)
		result.HasRow = true
	}
	return result
}

func (cli *client) Load(ctx context.Context, programID ids.ID, typeID int) ([]byte, error) {
	return cli.load(ctx, &indexer.LoadArgs{ProgramID: programID, TypeID: typeID})
}

func (cli *client) LoadByID(ctx context.Context, programID ids.ID, typeID int, rowID int64) ([]byte, error) {
	id := cjson.Uint64(rowID)
	return cli.load(ctx, &indexer.LoadArgs{ProgramID: programID, TypeID: typeID, RowID: &id})
}

func (cli *client) load(ctx context.Context, args *indexer.LoadArgs) ([]byte, error) {
	resp := new(indexer.LoadReply)
	if err := cli.send(ctx, "load", args, resp); err != nil {
		return nil, err
	}
	return formatting.Decode(formatting.Hex, resp.Data)
}
