// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package indexer

import (
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/cache"
	"github.com/ava-labs/avalanchego/cache/metercacher"
	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultProgramCacheSize = 64

var (
	// ErrUnknownProgram is returned for a program id nothing was registered
	// under.
	ErrUnknownProgram = errors.New("unknown program")

	errProgramWrongVersion = errors.New("wrong program record version")

	_ ProgramState = &programState{}
)

type ProgramState interface {
	GetProgram(programID ids.ID) (*Program, error)
	PutProgram(p *Program) error
	HasProgram(programID ids.ID) (bool, error)
	ProgramIDs() ([]ids.ID, error)

	ClearCache()
}

type programState struct {
	// programID -> *Program, parsed from the stored document
	programCache cache.Cacher
	programDB    database.Database
}

func NewProgramState(db database.Database, cacheSize int, registerer prometheus.Registerer) (ProgramState, error) {
	if cacheSize <= 0 {
		cacheSize = defaultProgramCacheSize
	}
	programCache, err := metercacher.New(
		"program_cache",
		registerer,
		&cache.LRU{Size: cacheSize},
	)
	if err != nil {
		return nil, err
	}
	return &programState{
		programCache: programCache,
		programDB:    db,
	}, nil
}

func (s *programState) GetProgram(programID ids.ID) (*Program, error) {
	if p, ok := s.programCache.Get(programID); ok {
		return p.(*Program), nil
	}

	recordBytes, err := s.programDB.Get(programID[:])
	if err == database.ErrNotFound {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProgram, programID)
	}
	if err != nil {
		return nil, err
	}

	record := programRecord{}
	parsedVersion, err := Codec.Unmarshal(recordBytes, &record)
	if err != nil {
		return nil, err
	}
	if parsedVersion != recordVersion {
		return nil, errProgramWrongVersion
	}

	p, err := NewProgram(record.Name, record.Document)
	if err != nil {
		return nil, fmt.Errorf("couldn't rebuild program %s: %w", programID, err)
	}
	s.programCache.Put(programID, p)
	return p, nil
}

func (s *programState) PutProgram(p *Program) error {
	bytes, err := Codec.Marshal(recordVersion, p.record())
	if err != nil {
		return err
	}
	s.programCache.Put(p.ID, p)
	return s.programDB.Put(p.ID[:], bytes)
}

func (s *programState) HasProgram(programID ids.ID) (bool, error) {
	if _, ok := s.programCache.Get(programID); ok {
		return true, nil
	}
	return s.programDB.Has(programID[:])
}

// ProgramIDs lists registered programs in key order.
func (s *programState) ProgramIDs() ([]ids.ID, error) {
	it := s.programDB.NewIterator()
	defer it.Release()

	var programIDs []ids.ID
	for it.Next() {
		programID, err := ids.ToID(it.Key())
		if err != nil {
			return nil, err
		}
		programIDs = append(programIDs, programID)
	}
	return programIDs, it.Error()
}

func (s *programState) ClearCache() {
	s.programCache.Flush()
}
