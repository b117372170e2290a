// Package catalog owns the mapping from relation name to on-disk
// storagefile.StorageFile, and implements bufferpool.Reader so a buffer
// pool can load/flush pages without holding a direct reference back to the
// FileManager's name table (see internal/bufferpool for the other half of
// that inversion).
//
// Grounded on this module's database.go (relation lookup by name) and
// heap/table.go (per-table file handle lifecycle), adapted to own a
// directory of storagefile.StorageFile instead of the teacher's heap files.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tuannm99/novasql/internal/dberrors"
	"github.com/tuannm99/novasql/internal/dbschema"
	"github.com/tuannm99/novasql/internal/ids"
	"github.com/tuannm99/novasql/internal/page"
	"github.com/tuannm99/novasql/internal/storagefile"
)

const relationFileExt = ".rel"

// FileManager tracks every open relation file under one base directory.
type FileManager struct {
	mu         sync.RWMutex
	baseDir    string
	nextFileId ids.FileId
	byName     map[string]ids.FileId
	byId       map[ids.FileId]*storagefile.StorageFile
	pageSize   int
}

// New creates a FileManager rooted at baseDir (created if absent). pageSize
// is used for every relation created through this manager.
func New(baseDir string, pageSize int) (*FileManager, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("catalog: %w: mkdir %s: %v", dberrors.ErrIOFailure, baseDir, err)
	}
	return &FileManager{
		baseDir:  baseDir,
		byName:   make(map[string]ids.FileId),
		byId:     make(map[ids.FileId]*storagefile.StorageFile),
		pageSize: pageSize,
	}, nil
}

func (fm *FileManager) relationPath(name string) string {
	return filepath.Join(fm.baseDir, name+relationFileExt)
}

// CreateRelation formats a brand new relation file and registers it.
func (fm *FileManager) CreateRelation(name string, schema dbschema.Schema) (ids.FileId, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if _, exists := fm.byName[name]; exists {
		return 0, fmt.Errorf("catalog: relation %q already exists", name)
	}
	fm.nextFileId++
	fid := fm.nextFileId

	sf, err := storagefile.Create(fm.relationPath(name), fid, schema, fm.pageSize)
	if err != nil {
		fm.nextFileId--
		return 0, err
	}
	fm.byName[name] = fid
	fm.byId[fid] = sf
	return fid, nil
}

// OpenRelation registers an already-existing relation file on disk under
// name, reading its embedded schema. A no-op if already registered.
func (fm *FileManager) OpenRelation(name string) (ids.FileId, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if fid, ok := fm.byName[name]; ok {
		return fid, nil
	}
	fm.nextFileId++
	fid := fm.nextFileId

	sf, err := storagefile.Open(fm.relationPath(name), fid)
	if err != nil {
		fm.nextFileId--
		return 0, err
	}
	fm.byName[name] = fid
	fm.byId[fid] = sf
	return fid, nil
}

// RemoveRelation closes and deletes a relation's backing file.
func (fm *FileManager) RemoveRelation(name string) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	fid, ok := fm.byName[name]
	if !ok {
		return fmt.Errorf("catalog: relation %q not found", name)
	}
	sf := fm.byId[fid]
	delete(fm.byName, name)
	delete(fm.byId, fid)
	return sf.Remove()
}

// RelationFile returns the FileId and StorageFile backing name.
func (fm *FileManager) RelationFile(name string) (ids.FileId, *storagefile.StorageFile, error) {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	fid, ok := fm.byName[name]
	if !ok {
		return 0, nil, fmt.Errorf("catalog: relation %q not found", name)
	}
	return fid, fm.byId[fid], nil
}

// FileByID looks up an open StorageFile by its FileId.
func (fm *FileManager) FileByID(fid ids.FileId) (*storagefile.StorageFile, error) {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	sf, ok := fm.byId[fid]
	if !ok {
		return nil, fmt.Errorf("catalog: %w: unknown file id %d", dberrors.ErrInvalidPageId, fid)
	}
	return sf, nil
}

// RelationSchema returns the schema of an open relation.
func (fm *FileManager) RelationSchema(name string) (dbschema.Schema, error) {
	_, sf, err := fm.RelationFile(name)
	if err != nil {
		return dbschema.Schema{}, err
	}
	return sf.Schema(), nil
}

// Relations lists every currently-registered relation name.
func (fm *FileManager) Relations() []string {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	out := make([]string, 0, len(fm.byName))
	for name := range fm.byName {
		out = append(out, name)
	}
	return out
}

// ReadPage and WritePage implement bufferpool.Reader, routing a pool's
// cache-miss loads and evict-time flushes to the right underlying file.
func (fm *FileManager) ReadPage(pid ids.PageId) (*page.SlottedPage, error) {
	sf, err := fm.FileByID(pid.File)
	if err != nil {
		return nil, err
	}
	return sf.ReadPage(pid)
}

func (fm *FileManager) WritePage(pid ids.PageId, p *page.SlottedPage) error {
	sf, err := fm.FileByID(pid.File)
	if err != nil {
		return err
	}
	return sf.WritePage(p)
}

// Close closes every open relation file.
func (fm *FileManager) Close() error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	var firstErr error
	for _, sf := range fm.byId {
		if err := sf.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
