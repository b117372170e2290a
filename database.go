// Package novasql is the top-level facade for the NovaSQL storage and
// query execution engine: relation lifecycle and query execution sit on
// internal/engine.Database; this file only re-exports the constructor so
// callers never need to import internal/engine directly.
package novasql

import (
	"github.com/tuannm99/novasql/internal/engine"
)

// Config re-exports engine.Config: the page size relations are formatted
// with, and the buffer pool's frame count.
type Config = engine.Config

// Open creates (or reopens) a Database rooted at dataDir.
func Open(dataDir string, cfg Config) (*Database, error) {
	return engine.NewDatabase(dataDir, cfg)
}
