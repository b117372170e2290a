package storagefile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/tuannm99/novasql/internal/dberrors"
	"github.com/tuannm99/novasql/internal/dbschema"
	"github.com/tuannm99/novasql/internal/ids"
	"github.com/tuannm99/novasql/internal/page"
)

// PageCache is the narrow view of a buffer pool that StorageFile.InsertTuple
// needs. Accepting it as a parameter (rather than storing it on StorageFile)
// avoids a StorageFile <-> BufferPool reference cycle: a FileManager can
// implement bufferpool.Reader to feed pages *into* the pool, while callers
// that already hold a pool pass it in here to route inserts *through* it.
type PageCache interface {
	GetPage(pid ids.PageId, pin bool) (*page.SlottedPage, error)
	WritePage(pid ids.PageId, p *page.SlottedPage) error
	UnpinPage(pid ids.PageId) error
}

// StorageFile is one open on-disk relation file: a FileHeader followed by a
// contiguous run of fixed-size slotted pages, plus an in-memory free-space
// list (one entry per page) used to pick an insertion target without
// scanning the whole file, per _examples/original_source/dbsys-hw1/Storage/File.py.
type StorageFile struct {
	fileId    ids.FileId
	path      string
	header    FileHeader
	f         *os.File
	freeSpace []int
}

func pageCapacity(h FileHeader) int { return h.PageSize }

func tupleSize(h FileHeader) int { return h.Schema.Size() }

// Create formats a new, empty relation file at path.
func Create(path string, fileId ids.FileId, schema dbschema.Schema, pageSize int) (*StorageFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storagefile: %w: create %s: %v", dberrors.ErrIOFailure, path, err)
	}
	header := FileHeader{PageSize: pageSize, PageClassTag: "slotted", Schema: schema}
	if _, err := f.WriteAt(header.Pack(), 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("storagefile: %w: write header: %v", dberrors.ErrIOFailure, err)
	}
	slog.Info("storagefile created", "path", path, "fileId", fileId, "pageSize", pageSize, "schema", schema.Name)
	return &StorageFile{fileId: fileId, path: path, header: header, f: f, freeSpace: nil}, nil
}

// Open reopens an existing relation file, reading its header and
// reconstructing the free-space list by inspecting every page already on
// disk (there is no separately persisted free-space index).
func Open(path string, fileId ids.FileId) (*StorageFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storagefile: %w: open %s: %v", dberrors.ErrIOFailure, path, err)
	}

	prefix := make([]byte, 2)
	if _, err := f.ReadAt(prefix, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("storagefile: %w: read header length: %v", dberrors.ErrCorruptHeader, err)
	}
	headerLen, err := PeekHeaderLen(prefix)
	if err != nil {
		f.Close()
		return nil, err
	}
	raw := make([]byte, headerLen)
	if _, err := f.ReadAt(raw, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("storagefile: %w: read header: %v", dberrors.ErrCorruptHeader, err)
	}
	header, err := UnpackFileHeader(raw)
	if err != nil {
		f.Close()
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("storagefile: %w: stat: %v", dberrors.ErrIOFailure, err)
	}
	numPages := int(info.Size()-int64(headerLen)) / header.PageSize

	sf := &StorageFile{fileId: fileId, path: path, header: header, f: f, freeSpace: make([]int, numPages)}
	for i := 0; i < numPages; i++ {
		p, err := sf.ReadPage(ids.PageId{File: fileId, Index: uint32(i)})
		if err != nil {
			f.Close()
			return nil, err
		}
		sf.freeSpace[i] = p.Header().FreeSpace()
	}
	return sf, nil
}

// Schema is the relation's fixed schema, as embedded in the file header.
func (sf *StorageFile) Schema() dbschema.Schema { return sf.header.Schema }

// FileId is this file's identity within the owning catalog.
func (sf *StorageFile) FileId() ids.FileId { return sf.fileId }

// NumPages is the number of pages currently allocated on disk.
func (sf *StorageFile) NumPages() int { return len(sf.freeSpace) }

func (sf *StorageFile) pageOffset(index int) int64 {
	return int64(sf.header.byteSize()) + int64(index)*int64(sf.header.PageSize)
}

// ReadPage reads one page directly from disk, bypassing any buffer pool.
func (sf *StorageFile) ReadPage(pid ids.PageId) (*page.SlottedPage, error) {
	if pid.File != sf.fileId {
		return nil, fmt.Errorf("storagefile: %w: file %d does not own page %s", dberrors.ErrInvalidPageId, sf.fileId, pid)
	}
	if int(pid.Index) >= sf.NumPages() {
		return nil, fmt.Errorf("storagefile: %w: %s: only %d pages allocated", dberrors.ErrInvalidPageId, pid, sf.NumPages())
	}
	buf := make([]byte, sf.header.PageSize)
	if _, err := sf.f.ReadAt(buf, sf.pageOffset(int(pid.Index))); err != nil {
		return nil, fmt.Errorf("storagefile: %w: read %s: %v", dberrors.ErrIOFailure, pid, err)
	}
	return page.Unpack(pid, buf)
}

// WritePage flushes one page directly to disk, bypassing any buffer pool,
// and refreshes that page's free-space list entry.
func (sf *StorageFile) WritePage(p *page.SlottedPage) error {
	pid := p.PageID
	if pid.File != sf.fileId {
		return fmt.Errorf("storagefile: %w: file %d does not own page %s", dberrors.ErrInvalidPageId, sf.fileId, pid)
	}
	idx := int(pid.Index)
	if idx > sf.NumPages() {
		return fmt.Errorf("storagefile: %w: %s: would leave a gap (have %d pages)", dberrors.ErrInvalidPageId, pid, sf.NumPages())
	}
	if _, err := sf.f.WriteAt(p.Pack(), sf.pageOffset(idx)); err != nil {
		return fmt.Errorf("storagefile: %w: write %s: %v", dberrors.ErrIOFailure, pid, err)
	}
	if idx == sf.NumPages() {
		sf.freeSpace = append(sf.freeSpace, p.Header().FreeSpace())
	} else {
		sf.freeSpace[idx] = p.Header().FreeSpace()
	}
	return nil
}

// AllocatePage appends a fresh, empty page and returns its id.
func (sf *StorageFile) AllocatePage() (ids.PageId, error) {
	pid := ids.PageId{File: sf.fileId, Index: uint32(sf.NumPages())}
	p, err := page.New(pid, pageCapacity(sf.header), tupleSize(sf.header))
	if err != nil {
		return ids.PageId{}, fmt.Errorf("storagefile: %w", err)
	}
	if err := sf.WritePage(p); err != nil {
		return ids.PageId{}, err
	}
	return pid, nil
}

// AvailablePage returns the lowest-indexed page with room for another tuple,
// or the not-yet-allocated page one past the end of the file if none exists.
func (sf *StorageFile) AvailablePage() ids.PageId {
	need := tupleSize(sf.header)
	for i, free := range sf.freeSpace {
		if free >= need {
			return ids.PageId{File: sf.fileId, Index: uint32(i)}
		}
	}
	return ids.PageId{File: sf.fileId, Index: uint32(sf.NumPages())}
}

// InsertTuple finds or allocates a page with room, inserts data through bp
// (so the page goes through the buffer pool's pin/dirty bookkeeping like any
// other access), and updates this file's free-space list entry.
func (sf *StorageFile) InsertTuple(bp PageCache, data []byte) (ids.TupleId, error) {
	for {
		pid := sf.AvailablePage()
		if int(pid.Index) == sf.NumPages() {
			if _, err := sf.AllocatePage(); err != nil {
				return ids.TupleId{}, err
			}
		}

		p, err := bp.GetPage(pid, true)
		if err != nil {
			return ids.TupleId{}, err
		}
		tid, err := p.InsertTuple(data)
		if err != nil {
			_ = bp.UnpinPage(pid)
			if errors.Is(err, dberrors.ErrPageFull) {
				// Lost a race with a concurrent inserter; mark it full in our
				// own view and retry against the next available page.
				sf.freeSpace[pid.Index] = 0
				continue
			}
			return ids.TupleId{}, err
		}
		if err := bp.WritePage(pid, p); err != nil {
			_ = bp.UnpinPage(pid)
			return ids.TupleId{}, err
		}
		sf.freeSpace[pid.Index] = p.Header().FreeSpace()
		if err := bp.UnpinPage(pid); err != nil {
			return ids.TupleId{}, err
		}
		return tid, nil
	}
}

// PinPage loads and pins the page at the given index through bp, for
// callers that must hold a bounded set of pages resident across several
// operations (e.g. block-nested-loops join's in-memory block) rather than
// releasing each page as soon as one fn call returns. The caller is
// responsible for a matching bp.UnpinPage(pid).
func (sf *StorageFile) PinPage(bp PageCache, index int) (ids.PageId, *page.SlottedPage, error) {
	pid := ids.PageId{File: sf.fileId, Index: uint32(index)}
	p, err := bp.GetPage(pid, true)
	if err != nil {
		return ids.PageId{}, nil, err
	}
	return pid, p, nil
}

// Pages walks every page of the file through bp (unpinned, read-only),
// calling fn for each.
func (sf *StorageFile) Pages(bp PageCache, fn func(ids.PageId, *page.SlottedPage) error) error {
	for i := 0; i < sf.NumPages(); i++ {
		pid := ids.PageId{File: sf.fileId, Index: uint32(i)}
		p, err := bp.GetPage(pid, false)
		if err != nil {
			return err
		}
		if err := fn(pid, p); err != nil {
			return err
		}
	}
	return nil
}

// DirectPages walks every page of the file straight from disk, bypassing
// the buffer pool entirely, so cached frames are not disturbed. No engine
// path calls it; the storagefile tests compare it against Pages.
func (sf *StorageFile) DirectPages(fn func(ids.PageId, *page.SlottedPage) error) error {
	for i := 0; i < sf.NumPages(); i++ {
		pid := ids.PageId{File: sf.fileId, Index: uint32(i)}
		p, err := sf.ReadPage(pid)
		if err != nil {
			return err
		}
		if err := fn(pid, p); err != nil {
			return err
		}
	}
	return nil
}

// Tuples walks every live tuple of the file through bp.
func (sf *StorageFile) Tuples(bp PageCache, fn func(ids.TupleId, []byte) error) error {
	return sf.Pages(bp, func(_ ids.PageId, p *page.SlottedPage) error {
		return p.Iterate(fn)
	})
}

// Close releases the underlying file descriptor.
func (sf *StorageFile) Close() error {
	if err := sf.f.Close(); err != nil {
		return fmt.Errorf("storagefile: %w: close %s: %v", dberrors.ErrIOFailure, sf.path, err)
	}
	return nil
}

// Remove closes and deletes the backing file.
func (sf *StorageFile) Remove() error {
	_ = sf.f.Close()
	if err := os.Remove(sf.path); err != nil {
		return fmt.Errorf("storagefile: %w: remove %s: %v", dberrors.ErrIOFailure, sf.path, err)
	}
	return nil
}
