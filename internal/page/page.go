// Package page implements the slotted page layout of spec.md §4.1/§6: a
// fixed-capacity byte buffer holding a small header (slot count, next-free
// pointer, slot occupancy bitmap) followed by a dense array of fixed-size
// tuple slots.
//
// Grounded on this module's internal/storage/page.go (the PutU16/GetU16
// little-endian accessor style over a raw []byte) and on
// _examples/original_source/dbsys-hw1/Storage/SlottedPage.py (the exact
// semantics of nextFreeTuple's forward-scan and of clearTuple leaving the
// slot allocated).
package page

import (
	"fmt"

	"github.com/tuannm99/novasql/internal/alias/bx"
	"github.com/tuannm99/novasql/internal/dberrors"
	"github.com/tuannm99/novasql/internal/ids"
)

// fixedHeaderBytes is the size of the numSlots+nextSlot prefix, before the
// per-slot occupancy bitmap.
const fixedHeaderBytes = 4

// SlottedPageHeader is the in-page directory describing tuple slots.
type SlottedPageHeader struct {
	pageCapacity int
	tupleSize    int
	numSlots     int
	nextSlot     int
	bitmap       []byte // one byte per slot, 0 or 1
	dirty        bool
}

func newHeader(pageCapacity, tupleSize int) SlottedPageHeader {
	numSlots := (pageCapacity - fixedHeaderBytes) / (1 + tupleSize)
	return SlottedPageHeader{
		pageCapacity: pageCapacity,
		tupleSize:    tupleSize,
		numSlots:     numSlots,
		nextSlot:     0,
		bitmap:       make([]byte, numSlots),
	}
}

// HeaderSize is the byte length of the header: fixedHeaderBytes + numSlots.
func (h SlottedPageHeader) HeaderSize() int { return fixedHeaderBytes + h.numSlots }

// NumSlots is the number of tuple slots this page was formatted with.
func (h SlottedPageHeader) NumSlots() int { return h.numSlots }

// TupleSize is the fixed packed tuple width this page stores.
func (h SlottedPageHeader) TupleSize() int { return h.tupleSize }

func (h SlottedPageHeader) popcount() int {
	n := 0
	for _, b := range h.bitmap {
		if b != 0 {
			n++
		}
	}
	return n
}

// UsedSpace is tupleSize * (number of occupied slots).
func (h SlottedPageHeader) UsedSpace() int { return h.tupleSize * h.popcount() }

// FreeSpace is pageCapacity - headerSize - usedSpace.
func (h SlottedPageHeader) FreeSpace() int {
	return h.pageCapacity - h.HeaderSize() - h.UsedSpace()
}

// HasFreeTuple reports whether any slot is unoccupied.
func (h SlottedPageHeader) HasFreeTuple() bool {
	return h.popcount() < h.numSlots
}

func (h SlottedPageHeader) slotOccupied(slot int) bool {
	return slot >= 0 && slot < h.numSlots && h.bitmap[slot] != 0
}

// nextFreeTuple allocates and returns the current nextSlot, then advances
// nextSlot to the next zero bit found scanning forward from slot 0.
// Returns ok=false if the page has no free slot.
func (h *SlottedPageHeader) nextFreeTuple() (slot int, ok bool) {
	if !h.HasFreeTuple() {
		return 0, false
	}
	slot = h.nextSlot
	if h.bitmap[slot] != 0 {
		// nextSlot still names the slot taken when the page filled up; a
		// delete has since freed a lower slot, so take the first free one.
		for i := 0; i < h.numSlots; i++ {
			if h.bitmap[i] == 0 {
				slot = i
				break
			}
		}
	}
	h.bitmap[slot] = 1

	for i := 0; i < h.numSlots; i++ {
		if h.bitmap[i] == 0 {
			h.nextSlot = i
			return slot, true
		}
	}
	// Page is now full; nextSlot keeps naming an occupied slot, which the
	// check above skips once a delete frees a slot.
	return slot, true
}

func (h SlottedPageHeader) isDirty() bool { return h.dirty }
func (h *SlottedPageHeader) setDirty(d bool) { h.dirty = d }

func (h SlottedPageHeader) pack(dst []byte) {
	bx.PutU16(dst[0:2], uint16(h.numSlots))
	bx.PutU16(dst[2:4], uint16(h.nextSlot))
	copy(dst[4:4+h.numSlots], h.bitmap)
}

// SlottedPage is a fixed-size byte buffer holding a SlottedPageHeader plus
// packed tuples at slot offsets.
type SlottedPage struct {
	PageID ids.PageId
	header SlottedPageHeader
	buf    []byte // exactly pageCapacity bytes
}

// New creates a fresh, empty slotted page of the given capacity, sized for
// tuples of tupleSize bytes.
func New(pageID ids.PageId, pageCapacity, tupleSize int) (*SlottedPage, error) {
	if tupleSize <= 0 {
		return nil, fmt.Errorf("page: tuple size must be positive")
	}
	h := newHeader(pageCapacity, tupleSize)
	if h.numSlots <= 0 {
		return nil, fmt.Errorf("page: page capacity %d too small for tuple size %d", pageCapacity, tupleSize)
	}
	return &SlottedPage{
		PageID: pageID,
		header: h,
		buf:    make([]byte, pageCapacity),
	}, nil
}

// Header returns a copy of the page's current header state.
func (p *SlottedPage) Header() SlottedPageHeader { return p.header }

// Capacity is the fixed byte size of the page.
func (p *SlottedPage) Capacity() int { return len(p.buf) }

// IsDirty reports whether the page has been mutated since the last pack/flush.
func (p *SlottedPage) IsDirty() bool { return p.header.isDirty() }

// ClearDirty resets the dirty flag, e.g. after a successful flush.
func (p *SlottedPage) ClearDirty() { p.header.setDirty(false) }

func (p *SlottedPage) slotOffset(slot int) int {
	return p.header.HeaderSize() + slot*p.header.tupleSize
}

// HasFreeTuple reports whether the page can accept another tuple.
func (p *SlottedPage) HasFreeTuple() bool { return p.header.HasFreeTuple() }

// InsertTuple writes data (which must be exactly tupleSize bytes) into a
// newly-allocated slot and returns its TupleId.
func (p *SlottedPage) InsertTuple(data []byte) (ids.TupleId, error) {
	if len(data) != p.header.tupleSize {
		return ids.TupleId{}, fmt.Errorf("page: %w: got %d bytes, want %d", dberrors.ErrSchemaMismatch, len(data), p.header.tupleSize)
	}
	slot, ok := p.header.nextFreeTuple()
	if !ok {
		return ids.TupleId{}, fmt.Errorf("page: %w", dberrors.ErrPageFull)
	}
	off := p.slotOffset(slot)
	copy(p.buf[off:off+p.header.tupleSize], data)
	p.header.setDirty(true)
	return ids.TupleId{Page: p.PageID, Slot: uint32(slot)}, nil
}

// GetTuple returns the payload bytes for a TupleId, or ErrBadSlot if the
// slot is unallocated.
func (p *SlottedPage) GetTuple(tid ids.TupleId) ([]byte, error) {
	slot := int(tid.Slot)
	if !p.header.slotOccupied(slot) {
		return nil, fmt.Errorf("page: %w: slot %d", dberrors.ErrBadSlot, slot)
	}
	off := p.slotOffset(slot)
	out := make([]byte, p.header.tupleSize)
	copy(out, p.buf[off:off+p.header.tupleSize])
	return out, nil
}

// PutTuple overwrites the payload bytes of an already-allocated slot.
func (p *SlottedPage) PutTuple(tid ids.TupleId, data []byte) error {
	slot := int(tid.Slot)
	if !p.header.slotOccupied(slot) {
		return fmt.Errorf("page: %w: slot %d", dberrors.ErrBadSlot, slot)
	}
	if len(data) != p.header.tupleSize {
		return fmt.Errorf("page: %w: got %d bytes, want %d", dberrors.ErrSchemaMismatch, len(data), p.header.tupleSize)
	}
	off := p.slotOffset(slot)
	copy(p.buf[off:off+p.header.tupleSize], data)
	p.header.setDirty(true)
	return nil
}

// ClearTuple zeroes the payload bytes of a slot without freeing it: the
// tuple remains "present" under iteration, now reading as all-zero bytes.
func (p *SlottedPage) ClearTuple(tid ids.TupleId) error {
	slot := int(tid.Slot)
	if !p.header.slotOccupied(slot) {
		return fmt.Errorf("page: %w: slot %d", dberrors.ErrBadSlot, slot)
	}
	off := p.slotOffset(slot)
	for i := off; i < off+p.header.tupleSize; i++ {
		p.buf[i] = 0
	}
	p.header.setDirty(true)
	return nil
}

// DeleteTuple clears the slot's occupancy bit. Subsequent tuples are not
// shifted; the freed slot becomes eligible for reuse on the next insert.
func (p *SlottedPage) DeleteTuple(tid ids.TupleId) error {
	slot := int(tid.Slot)
	if !p.header.slotOccupied(slot) {
		return fmt.Errorf("page: %w: slot %d", dberrors.ErrBadSlot, slot)
	}
	p.header.bitmap[slot] = 0
	p.header.setDirty(true)
	return nil
}

// Iterate calls fn with (TupleId, payload) for every occupied slot, in
// ascending slot order, stopping early if fn returns an error.
func (p *SlottedPage) Iterate(fn func(ids.TupleId, []byte) error) error {
	for slot := 0; slot < p.header.numSlots; slot++ {
		if !p.header.slotOccupied(slot) {
			continue
		}
		tid := ids.TupleId{Page: p.PageID, Slot: uint32(slot)}
		data, err := p.GetTuple(tid)
		if err != nil {
			return err
		}
		if err := fn(tid, data); err != nil {
			return err
		}
	}
	return nil
}

// Pack serializes the header and tuple area into pageCapacity bytes and
// clears the dirty flag.
func (p *SlottedPage) Pack() []byte {
	p.header.pack(p.buf[:p.header.HeaderSize()])
	p.header.setDirty(false)
	out := make([]byte, len(p.buf))
	copy(out, p.buf)
	return out
}

// Unpack reconstructs a SlottedPage from pageCapacity raw bytes, recomputing
// tupleSize from the embedded numSlots. Returns ErrCorruptHeader if the
// embedded numSlots is zero or inconsistent with the buffer length.
func Unpack(pageID ids.PageId, data []byte) (*SlottedPage, error) {
	if len(data) < fixedHeaderBytes {
		return nil, fmt.Errorf("page: %w: buffer too small", dberrors.ErrCorruptHeader)
	}
	numSlots := int(bx.U16(data[0:2]))
	nextSlot := int(bx.U16(data[2:4]))
	if numSlots <= 0 {
		return nil, fmt.Errorf("page: %w: numSlots=%d", dberrors.ErrCorruptHeader, numSlots)
	}
	headerLen := fixedHeaderBytes + numSlots
	if headerLen > len(data) {
		return nil, fmt.Errorf("page: %w: header length %d exceeds buffer %d", dberrors.ErrCorruptHeader, headerLen, len(data))
	}
	tupleSize := (len(data) - headerLen) / numSlots
	if tupleSize <= 0 {
		return nil, fmt.Errorf("page: %w: derived tupleSize=%d", dberrors.ErrCorruptHeader, tupleSize)
	}
	if nextSlot < 0 || nextSlot >= numSlots {
		return nil, fmt.Errorf("page: %w: nextSlot=%d out of range", dberrors.ErrCorruptHeader, nextSlot)
	}

	bitmap := make([]byte, numSlots)
	copy(bitmap, data[fixedHeaderBytes:headerLen])

	buf := make([]byte, len(data))
	copy(buf, data)

	return &SlottedPage{
		PageID: pageID,
		header: SlottedPageHeader{
			pageCapacity: len(data),
			tupleSize:    tupleSize,
			numSlots:     numSlots,
			nextSlot:     nextSlot,
			bitmap:       bitmap,
		},
		buf: buf,
	}, nil
}
