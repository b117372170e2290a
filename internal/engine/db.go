// Package engine implements the top-level Database facade spec.md §6
// describes: relation lifecycle (createRelation/removeRelation/relationSchema)
// and query execution (query/processQuery), wiring catalog.FileManager,
// bufferpool.Pool, queryexec.Executor and planopt together. Grounded on this
// file's own prior shape (a thin Database struct owning the storage
// manager and exposing table lifecycle + a Close hook), reworked to own the
// slotted-page storage stack instead of the heap/StorageManager pair it
// used to wrap.
package engine

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/tuannm99/novasql/internal/bufferpool"
	"github.com/tuannm99/novasql/internal/catalog"
	"github.com/tuannm99/novasql/internal/dbschema"
	"github.com/tuannm99/novasql/internal/planopt"
	"github.com/tuannm99/novasql/internal/queryexec"
)

var ErrDatabaseClosed = errors.New("novasql: database is closed")

const (
	// DefaultPageSize is the page size a relation is formatted with absent
	// an explicit Config override.
	DefaultPageSize = 4096
	// DefaultPoolCapacity is the buffer pool's default frame count.
	DefaultPoolCapacity = 64
)

// Config tunes the two capacity knobs spec.md §6 exposes: the page size a
// relation is formatted with, and the buffer pool's frame count.
type Config struct {
	PageSize     int
	PoolCapacity int
}

// Optimizer bundles the statistics view and the two-pass rewrite
// (pushdown then DP join-ordering) spec.md §4.5 describes into one call.
type Optimizer struct {
	Stats planopt.Stats
}

// Optimize runs pushdown followed by join-order selection against plan.
func (o Optimizer) Optimize(plan planopt.Node) (planopt.Node, error) {
	pushed := planopt.Pushdown(plan)
	return planopt.PickJoinOrder(pushed, o.Stats)
}

// Database is the runtime surface spec.md §6 describes: relation lifecycle
// plus query execution through the optimizer and operator pipeline.
type Database struct {
	mu     sync.RWMutex
	closed bool

	Files     *catalog.FileManager
	Pool      *bufferpool.Pool
	Executor  *queryexec.Executor
	Optimizer Optimizer
}

// NewDatabase creates (or reopens) a Database rooted at dataDir.
func NewDatabase(dataDir string, cfg Config) (*Database, error) {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PoolCapacity <= 0 {
		cfg.PoolCapacity = DefaultPoolCapacity
	}

	files, err := catalog.New(dataDir, cfg.PageSize)
	if err != nil {
		return nil, fmt.Errorf("engine: open: %w", err)
	}
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("engine: open: %w", err)
	}
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".rel")
		if !ok || e.IsDir() {
			continue
		}
		if _, err := files.OpenRelation(name); err != nil {
			return nil, fmt.Errorf("engine: open relation %s: %w", name, err)
		}
	}
	pool := bufferpool.NewPool(cfg.PoolCapacity)
	pool.SetReader(files)

	return &Database{
		Files:     files,
		Pool:      pool,
		Executor:  &queryexec.Executor{Files: files, Pool: pool},
		Optimizer: Optimizer{Stats: planopt.Stats{Files: files}},
	}, nil
}

func (db *Database) ensureOpen() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ErrDatabaseClosed
	}
	return nil
}

// CreateRelation formats a new relation file with the given schema.
func (db *Database) CreateRelation(name string, schema dbschema.Schema) error {
	if err := db.ensureOpen(); err != nil {
		return err
	}
	_, err := db.Files.CreateRelation(name, schema)
	return err
}

// RemoveRelation deletes a relation's backing file.
func (db *Database) RemoveRelation(name string) error {
	if err := db.ensureOpen(); err != nil {
		return err
	}
	return db.Files.RemoveRelation(name)
}

// RelationSchema returns the schema a relation was created with.
func (db *Database) RelationSchema(name string) (dbschema.Schema, error) {
	if err := db.ensureOpen(); err != nil {
		return dbschema.Schema{}, err
	}
	return db.Files.RelationSchema(name)
}

// Relations lists every currently-open relation name.
func (db *Database) Relations() []string {
	return db.Files.Relations()
}

// Query optimizes plan (pushdown + join-order selection) and executes it.
func (db *Database) Query(plan planopt.Node) (queryexec.Relation, error) {
	if err := db.ensureOpen(); err != nil {
		return queryexec.Relation{}, err
	}
	optimized, err := db.Optimizer.Optimize(plan)
	if err != nil {
		return queryexec.Relation{}, fmt.Errorf("engine: optimize: %w", err)
	}
	return db.ProcessQuery(optimized)
}

// ProcessQuery compiles and executes plan as-is, bypassing the optimizer —
// for callers (EXPLAIN, a pre-optimized plan) that want to skip the rewrite.
func (db *Database) ProcessQuery(plan planopt.Node) (queryexec.Relation, error) {
	if err := db.ensureOpen(); err != nil {
		return queryexec.Relation{}, err
	}
	op, err := plan.Compile(db.Executor)
	if err != nil {
		return queryexec.Relation{}, fmt.Errorf("engine: compile: %w", err)
	}
	return op.Execute(db.Executor)
}

// Scan streams every tuple of a Relation previously produced by Query.
func (db *Database) Scan(rel queryexec.Relation, fn func(values []any) error) error {
	if err := db.ensureOpen(); err != nil {
		return err
	}
	return rel.Scan(db.Executor, fn)
}

// Close flushes every dirty page and closes all open relation files.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrDatabaseClosed
	}
	db.closed = true

	var firstErr error
	if err := db.Pool.FlushAll(); err != nil {
		firstErr = err
	}
	if err := db.Files.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
