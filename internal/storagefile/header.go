// Package storagefile implements the on-disk relation file of spec.md §4.2
// and §6: a FileHeader (page size, page-class tag, embedded packed schema)
// followed by a contiguous array of slotted pages.
//
// Grounded on _examples/original_source/dbsys-hw1/Storage/File.py (the
// length-prefixed FileHeader layout and the per-page free-space list) and
// on this module's internal/storage/sm.go / internal/storage/pager.go for
// the segment-file I/O idiom (os.File, ReadAt/WriteAt via Seek+Read/Write,
// little-endian accessors from internal/alias/bx).
package storagefile

import (
	"fmt"

	"github.com/tuannm99/novasql/internal/alias/bx"
	"github.com/tuannm99/novasql/internal/dberrors"
	"github.com/tuannm99/novasql/internal/dbschema"
)

// lenPrefixBytes is the size of the four u16 length fields that precede the
// variable-length page-class tag and packed schema (spec.md §6).
const lenPrefixBytes = 8

// FileHeader is written once, at offset 0, before any page.
type FileHeader struct {
	PageSize     int
	PageClassTag string
	Schema       dbschema.Schema
}

// Pack serializes the header per spec.md §6:
//
//	u16 headerLen, u16 pageSize, u16 packedPageClassLen, u16 packedSchemaLen,
//	bytes packedPageClass, bytes packedSchema
func (h FileHeader) Pack() []byte {
	classBytes := []byte(h.PageClassTag)
	schemaBytes := h.Schema.PackSchema()
	headerLen := lenPrefixBytes + len(classBytes) + len(schemaBytes)

	out := make([]byte, headerLen)
	bx.PutU16(out[0:2], uint16(headerLen))
	bx.PutU16(out[2:4], uint16(h.PageSize))
	bx.PutU16(out[4:6], uint16(len(classBytes)))
	bx.PutU16(out[6:8], uint16(len(schemaBytes)))
	copy(out[8:8+len(classBytes)], classBytes)
	copy(out[8+len(classBytes):], schemaBytes)
	return out
}

// PeekHeaderLen reads just the first two bytes of a header to learn its
// total length, so a caller can size its next read (spec.md §6: "its own
// length prefix is the first two bytes").
func PeekHeaderLen(prefix []byte) (int, error) {
	if len(prefix) < 2 {
		return 0, fmt.Errorf("storagefile: %w: header prefix too short", dberrors.ErrCorruptHeader)
	}
	n := int(bx.U16(prefix[0:2]))
	if n <= lenPrefixBytes {
		return 0, fmt.Errorf("storagefile: %w: implausible header length %d", dberrors.ErrCorruptHeader, n)
	}
	return n, nil
}

// UnpackFileHeader is the inverse of Pack. data must be exactly headerLen
// bytes, as reported by PeekHeaderLen.
func UnpackFileHeader(data []byte) (FileHeader, error) {
	headerLen, err := PeekHeaderLen(data)
	if err != nil {
		return FileHeader{}, err
	}
	if len(data) != headerLen {
		return FileHeader{}, fmt.Errorf("storagefile: %w: expected %d bytes, got %d", dberrors.ErrCorruptHeader, headerLen, len(data))
	}
	pageSize := int(bx.U16(data[2:4]))
	classLen := int(bx.U16(data[4:6]))
	schemaLen := int(bx.U16(data[6:8]))
	if lenPrefixBytes+classLen+schemaLen != headerLen {
		return FileHeader{}, fmt.Errorf("storagefile: %w: length fields inconsistent", dberrors.ErrCorruptHeader)
	}

	classTag := string(data[8 : 8+classLen])
	schemaBytes := data[8+classLen : 8+classLen+schemaLen]
	schema, err := dbschema.UnpackSchema(schemaBytes)
	if err != nil {
		return FileHeader{}, fmt.Errorf("storagefile: %w: schema: %v", dberrors.ErrCorruptHeader, err)
	}

	return FileHeader{PageSize: pageSize, PageClassTag: classTag, Schema: schema}, nil
}

func (h FileHeader) byteSize() int {
	return lenPrefixBytes + len(h.PageClassTag) + len(h.Schema.PackSchema())
}
