package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novasql/internal/ids"
)

func testPageID() ids.PageId { return ids.PageId{File: 1, Index: 100} }

// scenario 2 of spec.md §8: fresh page, tupleSize=8, pageCapacity=4096 ->
// 454 = floor((4096-4)/(1+8)) slots.
func TestSlotCountMatchesFormula(t *testing.T) {
	p, err := New(testPageID(), 4096, 8)
	require.NoError(t, err)
	assert.Equal(t, 454, p.Header().NumSlots())
}

func TestFillPageThenDeleteReusesSlot(t *testing.T) {
	p, err := New(testPageID(), 4096, 8)
	require.NoError(t, err)

	var tids []ids.TupleId
	for i := 0; i < 454; i++ {
		tid, err := p.InsertTuple(make([]byte, 8))
		require.NoError(t, err)
		tids = append(tids, tid)
	}
	assert.False(t, p.HasFreeTuple())

	_, err = p.InsertTuple(make([]byte, 8))
	require.Error(t, err)

	require.NoError(t, p.DeleteTuple(tids[100]))
	assert.True(t, p.HasFreeTuple())

	newTid, err := p.InsertTuple([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	assert.Equal(t, uint32(100), newTid.Slot)
}

func TestUsedAndFreeSpaceInvariant(t *testing.T) {
	p, err := New(testPageID(), 4096, 8)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := p.InsertTuple(make([]byte, 8))
		require.NoError(t, err)
	}
	h := p.Header()
	assert.Equal(t, 4096, h.UsedSpace()+h.FreeSpace()+h.HeaderSize())
}

func TestGetTupleOnlyForOccupiedSlot(t *testing.T) {
	p, err := New(testPageID(), 4096, 8)
	require.NoError(t, err)

	tid, err := p.InsertTuple([]byte("abcdefgh"))
	require.NoError(t, err)

	data, err := p.GetTuple(tid)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdefgh"), data)

	unallocated := ids.TupleId{Page: tid.Page, Slot: 50}
	_, err = p.GetTuple(unallocated)
	require.Error(t, err)
}

func TestClearTupleKeepsSlotAllocated(t *testing.T) {
	p, err := New(testPageID(), 4096, 8)
	require.NoError(t, err)

	tid, err := p.InsertTuple([]byte("abcdefgh"))
	require.NoError(t, err)

	require.NoError(t, p.ClearTuple(tid))

	data, err := p.GetTuple(tid)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 8), data)

	seen := 0
	require.NoError(t, p.Iterate(func(ids.TupleId, []byte) error {
		seen++
		return nil
	}))
	assert.Equal(t, 1, seen)
}

func TestDeleteTupleRemovesFromIteration(t *testing.T) {
	p, err := New(testPageID(), 4096, 8)
	require.NoError(t, err)

	var tids []ids.TupleId
	for i := 0; i < 3; i++ {
		tid, err := p.InsertTuple([]byte{byte(i), 0, 0, 0, 0, 0, 0, 0})
		require.NoError(t, err)
		tids = append(tids, tid)
	}

	require.NoError(t, p.DeleteTuple(tids[1]))

	var firstBytes []byte
	count := 0
	require.NoError(t, p.Iterate(func(_ ids.TupleId, data []byte) error {
		count++
		if count == 1 {
			firstBytes = data
		}
		return nil
	}))
	assert.Equal(t, 2, count)
	assert.Equal(t, byte(0), firstBytes[0])
}

func TestPackUnpackRoundTrip(t *testing.T) {
	p, err := New(testPageID(), 4096, 8)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := p.InsertTuple([]byte{byte(i), 0, 0, 0, 0, 0, 0, 0})
		require.NoError(t, err)
	}

	packed := p.Pack()
	require.Len(t, packed, 4096)

	p2, err := Unpack(testPageID(), packed)
	require.NoError(t, err)
	assert.Equal(t, p.Header(), p2.Header())
	assert.Equal(t, packed, p2.Pack())
}

func TestUnpackRejectsCorruptHeader(t *testing.T) {
	_, err := Unpack(testPageID(), make([]byte, 3))
	require.Error(t, err)

	bad := make([]byte, 4096)
	// numSlots = 0 is corrupt.
	_, err = Unpack(testPageID(), bad)
	require.Error(t, err)
}

func TestInsertWrongSizeRejected(t *testing.T) {
	p, err := New(testPageID(), 4096, 8)
	require.NoError(t, err)
	_, err = p.InsertTuple([]byte{1, 2, 3})
	require.Error(t, err)
}
