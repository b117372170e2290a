package planopt

import "github.com/tuannm99/novasql/internal/catalog"

// Stats answers the page/row count questions the cost model needs. It is
// backed directly by the catalog rather than a separately maintained
// statistics table: this teaching engine has no ANALYZE step, so "current
// page count" and "current page count * average tuples per page" are the
// only numbers available.
type Stats struct {
	Files *catalog.FileManager
}

// Pages is the relation's current page count, or 0 if unknown.
func (s Stats) Pages(relation string) int {
	_, sf, err := s.Files.RelationFile(relation)
	if err != nil {
		return 0
	}
	return sf.NumPages()
}

// Tuples estimates row count from page count and the schema's packed
// tuple width, assuming a fixed 4096-byte page (the engine default).
func (s Stats) Tuples(relation string) int {
	_, sf, err := s.Files.RelationFile(relation)
	if err != nil {
		return 0
	}
	tupleSize := sf.Schema().Size()
	if tupleSize <= 0 {
		return 0
	}
	const assumedPageCapacity = 4096
	perPage := (assumedPageCapacity - 4) / (1 + tupleSize)
	if perPage < 1 {
		perPage = 1
	}
	return sf.NumPages() * perPage
}
