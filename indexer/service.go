// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package indexer

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/formatting"
	"github.com/gorilla/rpc/v2"

	cjson "github.com/ava-labs/avalanchego/utils/json"
)

var errNoDocument = errors.New("no abi document")

// Service is the JSON-RPC surface of an Engine. Binary values travel hex
// encoded.
type Service struct{ engine *Engine }

// NewHandler returns the JSON-RPC handler serving [e] under the service name
// "indexer".
func NewHandler(e *Engine) (http.Handler, error) {
	server := rpc.NewServer()
	codec := cjson.NewCodec()
	server.RegisterCodec(codec, "application/json")
	server.RegisterCodec(codec, "application/json;charset=UTF-8")
	return server, server.RegisterService(&Service{engine: e}, Name)
}

// RegisterABIArgs are arguments for RegisterABI
type RegisterABIArgs struct {
	Name string `json:"name"`
	// Document is the ABI JSON document.
	Document string `json:"document"`
}

// ProgramReply identifies a program
type ProgramReply struct {
	ProgramID ids.ID `json:"programID"`
}

// RegisterABI registers a program and creates its tables
func (s *Service) RegisterABI(r *http.Request, args *RegisterABIArgs, reply *ProgramReply) error {
	if args.Document == "" {
		return errNoDocument
	}
	programID, err := s.engine.Register(r.Context(), args.Name, []byte(args.Document))
	if err != nil {
		return err
	}
	reply.ProgramID = programID
	return nil
}

// ListProgramsReply is the reply from ListPrograms
type ListProgramsReply struct {
	ProgramIDs []ids.ID `json:"programIDs"`
}

func (s *Service) ListPrograms(_ *http.Request, _ *struct{}, reply *ListProgramsReply) error {
	programIDs, err := s.engine.Programs()
	if err != nil {
		return err
	}
	reply.ProgramIDs = programIDs
	return nil
}

// ProgramArgs name a program
type ProgramArgs struct {
	ProgramID ids.ID `json:"programID"`
}

// GetSchemaReply is the reply from GetSchema
type GetSchemaReply struct {
	Namespace  string   `json:"namespace"`
	Statements []string `json:"statements"`
}

// GetSchema returns the table statements of a program
func (s *Service) GetSchema(_ *http.Request, args *ProgramArgs, reply *GetSchemaReply) error {
	p, err := s.engine.Program(args.ProgramID)
	if err != nil {
		return err
	}
	reply.Namespace = p.Layout.Namespace()
	reply.Statements = p.Layout.Statements()
	return nil
}

// TypeIDArgs are arguments for TypeID
type TypeIDArgs struct {
	ProgramID ids.ID `json:"programID"`
	Name      string `json:"name"`
}

// TypeIDReply is the reply from TypeID
type TypeIDReply struct {
	TypeID int `json:"typeID"`
}

// TypeID resolves a type name
func (s *Service) TypeID(_ *http.Request, args *TypeIDArgs, reply *TypeIDReply) error {
	typeID, err := s.engine.TypeID(args.ProgramID, args.Name)
	if err != nil {
		return err
	}
	reply.TypeID = typeID
	return nil
}

// SaveArgs are arguments for Save
type SaveArgs struct {
	ProgramID ids.ID `json:"programID"`
	TypeID    int    `json:"typeID"`
	Data      string `json:"data"`
}

// SaveLogArgs are arguments for SaveLog
type SaveLogArgs struct {
	ProgramID ids.ID       `json:"programID"`
	LogID     cjson.Uint64 `json:"logID"`
	Data      string       `json:"data"`
}

// SaveReply is the reply from Save and SaveLog
type SaveReply struct {
	// RowID is omitted for values without a row of their own
	RowID    *cjson.Uint64 `json:"rowID,omitempty"`
	Inserted cjson.Uint64  `json:"inserted"`
}

func (r *SaveReply) set(result SaveResult) {
	if result.HasRow {
		id := cjson.Uint64(result.RowID)
		r.RowID = &id
	}
	r.Inserted = cjson.Uint64(result.Inserted)
}

// Save persists a hex encoded value
func (s *Service) Save(r *http.Request, args *SaveArgs, reply *SaveReply) error {
	data, err := formatting.Decode(formatting.Hex, args.Data)
	if err != nil {
		return fmt.Errorf("couldn't decode data: %w", err)
	}
	result, err := s.engine.Save(r.Context(), args.ProgramID, args.TypeID, data)
	if err != nil {
		return err
	}
	reply.set(result)
	return nil
}

// SaveLog persists a hex encoded logged value
func (s *Service) SaveLog(r *http.Request, args *SaveLogArgs, reply *SaveReply) error {
	data, err := formatting.Decode(formatting.Hex, args.Data)
	if err != nil {
		return fmt.Errorf("couldn't decode data: %w", err)
	}
	result, err := s.engine.SaveLog(r.Context(), args.ProgramID, uint64(args.LogID), data)
	if err != nil {
		return err
	}
	reply.set(result)
	return nil
}

// LoadArgs are arguments for Load. Without a row id the value with the
// lowest id is returned.
type LoadArgs struct {
	ProgramID ids.ID        `json:"programID"`
	TypeID    int           `json:"typeID"`
	RowID     *cjson.Uint64 `json:"rowID,omitempty"`
}

// LoadReply is the reply from Load
type LoadReply struct {
	Data string `json:"data"`
}

// Load returns a stored value, hex encoded
func (s *Service) Load(r *http.Request, args *LoadArgs, reply *LoadReply) error {
	var (
		data []byte
		err  error
	)
	if args.RowID == nil {
		data, err = s.engine.Load(r.Context(), args.ProgramID, args.TypeID)
	} else {
		data, err = s.engine.LoadByID(r.Context(), args.ProgramID, args.TypeID, int64(*args.RowID))
	}
	if err != nil {
		return err
	}
	reply.Data, err = formatting.EncodeWithChecksum(formatting.Hex, data)
	return err
}
