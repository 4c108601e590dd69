// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package indexer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/version"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	log "github.com/inconshreveable/log15"

	"github.com/ava-labs/abistore/codec"
	"github.com/ava-labs/abistore/statement"
	"github.com/ava-labs/abistore/store"
)

const Name = "indexer"

var Version = version.NewDefaultVersion(0, 1, 0)

// Config tunes an Engine.
type Config struct {
	// ProgramCacheSize bounds the number of parsed programs kept in memory.
	ProgramCacheSize int `json:"programCacheSize"`
}

// SaveResult reports where a saved value ended up.
type SaveResult struct {
	// RowID is the row the value resolved to. HasRow is false for values
	// without a table of their own, such as scalars.
	RowID  int64
	HasRow bool
	// Inserted counts the rows the save created. Zero when every row
	// already existed.
	Inserted int64
}

// Engine serves the host calls of registered programs against one
// PostgreSQL database.
type Engine struct {
	// lock serializes registrations
	lock sync.Mutex

	db      *sqlx.DB
	state   State
	metrics *metrics
	log     log.Logger
}

// New returns an Engine persisting values through [db] and keeping its
// program registry in [registry].
func New(db *sqlx.DB, registry database.Database, cfg Config, registerer prometheus.Registerer) (*Engine, error) {
	state, err := NewState(registry, cfg.ProgramCacheSize, registerer)
	if err != nil {
		return nil, fmt.Errorf("couldn't create registry: %w", err)
	}
	m, err := newMetrics(registerer)
	if err != nil {
		return nil, fmt.Errorf("couldn't register metrics: %w", err)
	}
	return &Engine{
		db:      db,
		state:   state,
		metrics: m,
		log:     log.New("module", Name),
	}, nil
}

// Register adds the program described by the ABI [document] and creates
// its tables. Registering the same document again returns the same id.
func (e *Engine) Register(ctx context.Context, name string, document []byte) (ids.ID, error) {
	p, err := NewProgram(name, document)
	if err != nil {
		e.metrics.failures.WithLabelValues("register").Inc()
		return ids.Empty, err
	}

	e.lock.Lock()
	defer e.lock.Unlock()

	applied, err := e.state.IsApplied(p.ID)
	if err != nil {
		return ids.Empty, err
	}
	if applied {
		e.log.Debug("program already registered", "programID", p.ID, "name", name)
		return p.ID, nil
	}

	stmts := p.Layout.Statements()
	if err := store.ApplySchema(ctx, e.db, stmts); err != nil {
		e.metrics.failures.WithLabelValues("register").Inc()
		return ids.Empty, err
	}
	if err := e.commitProgram(p); err != nil {
		return ids.Empty, err
	}

	e.metrics.registered.Inc()
	e.log.Info("registered program", "programID", p.ID, "name", name, "tables", len(stmts))
	return p.ID, nil
}

func (e *Engine) commitProgram(p *Program) error {
	if err := e.state.PutProgram(p); err != nil {
		e.state.Abort()
		return err
	}
	if err := e.state.SetApplied(p.ID); err != nil {
		e.state.Abort()
		return err
	}
	if err := e.state.Commit(); err != nil {
		e.state.Abort()
		return fmt.Errorf("couldn't commit program %s: %w", p.ID, err)
	}
	return nil
}

// Program returns the registered program [programID].
func (e *Engine) Program(programID ids.ID) (*Program, error) {
	return e.state.GetProgram(programID)
}

// Programs lists the ids of every registered program.
func (e *Engine) Programs() ([]ids.ID, error) {
	return e.state.ProgramIDs()
}

// Schema returns the table statements of program [programID] in the order
// they run.
func (e *Engine) Schema(programID ids.ID) ([]string, error) {
	p, err := e.Program(programID)
	if err != nil {
		return nil, err
	}
	return p.Layout.Statements(), nil
}

// TypeID resolves a type name of program [programID].
func (e *Engine) TypeID(programID ids.ID, name string) (int, error) {
	p, err := e.Program(programID)
	if err != nil {
		return 0, err
	}
	return p.Catalog.TypeID(name)
}

// Save decodes [data] as a value of type [typeID] and persists it.
func (e *Engine) Save(ctx context.Context, programID ids.ID, typeID int, data []byte) (SaveResult, error) {
	p, err := e.Program(programID)
	if err != nil {
		return SaveResult{}, err
	}
	v, err := codec.Decode(p.Catalog, typeID, data)
	if err != nil {
		e.metrics.failures.WithLabelValues("save").Inc()
		return SaveResult{}, err
	}
	return e.save(ctx, p, typeID, v)
}

// SaveLog persists [data] as a value of the type logged under [logID].
func (e *Engine) SaveLog(ctx context.Context, programID ids.ID, logID uint64, data []byte) (SaveResult, error) {
	p, err := e.Program(programID)
	if err != nil {
		return SaveResult{}, err
	}
	typeID, err := p.Catalog.LoggedType(logID)
	if err != nil {
		e.metrics.failures.WithLabelValues("save").Inc()
		return SaveResult{}, err
	}
	return e.Save(ctx, programID, typeID, data)
}

// SaveValue persists an already decoded value of type [typeID].
func (e *Engine) SaveValue(ctx context.Context, programID ids.ID, typeID int, v codec.Value) (SaveResult, error) {
	p, err := e.Program(programID)
	if err != nil {
		return SaveResult{}, err
	}
	return e.save(ctx, p, typeID, v)
}

func (e *Engine) save(ctx context.Context, p *Program, typeID int, v codec.Value) (SaveResult, error) {
	start := time.Now()
	batch, err := p.builder.Generate(typeID, v)
	if err != nil {
		e.metrics.failures.WithLabelValues("save").Inc()
		return SaveResult{}, err
	}
	generated := time.Since(start)

	start = time.Now()
	r, err := store.Resolve(ctx, e.db, batch.ResolvingStatement())
	if err != nil {
		e.metrics.failures.WithLabelValues("save").Inc()
		return SaveResult{}, err
	}
	executed := time.Since(start)

	e.metrics.saves.Inc()
	e.metrics.rowsInserted.Add(float64(r.Inserted))
	e.metrics.generateTime.Observe(generated.Seconds())
	e.metrics.executeTime.Observe(executed.Seconds())
	e.log.Debug("saved value",
		"programID", p.ID,
		"typeID", typeID,
		"fragments", batch.Len(),
		"inserted", r.Inserted,
		"generate", generated,
		"execute", executed,
	)
	return SaveResult{
		RowID:    r.ID.Int64,
		HasRow:   r.ID.Valid,
		Inserted: r.Inserted,
	}, nil
}

// Load returns the encoding of the stored value of type [typeID] with the
// lowest row id.
func (e *Engine) Load(ctx context.Context, programID ids.ID, typeID int) ([]byte, error) {
	return e.load(ctx, programID, typeID, func(l *statement.Loader) (codec.Value, error) {
		return l.Load(ctx, typeID)
	})
}

// LoadByID returns the encoding of the value of type [typeID] stored in row
// [rowID].
func (e *Engine) LoadByID(ctx context.Context, programID ids.ID, typeID int, rowID int64) ([]byte, error) {
	return e.load(ctx, programID, typeID, func(l *statement.Loader) (codec.Value, error) {
		return l.LoadByID(ctx, typeID, rowID)
	})
}

func (e *Engine) load(
	ctx context.Context,
	programID ids.ID,
	typeID int,
	read func(*statement.Loader) (codec.Value, error),
) ([]byte, error) {
	p, err := e.Program(programID)
	if err != nil {
		return nil, err
	}
	v, err := read(statement.NewLoader(p.Catalog, p.Layout, e.db))
	if err != nil {
		e.metrics.failures.WithLabelValues("load").Inc()
		return nil, err
	}
	data, err := codec.Encode(p.Catalog, typeID, v)
	if err != nil {
		e.metrics.failures.WithLabelValues("load").Inc()
		return nil, err
	}
	e.metrics.loads.Inc()
	return data, nil
}

// Close releases the program registry. The database handle is owned by the
// caller.
func (e *Engine) Close() error {
	return e.state.Close()
}
