package listing

import (
	"errors"
	"strings"

	"github.com/jobtrail/jobtrail/pkg/urlparam"
)

// Sortable listing table columns.
const (
	SortTitle     = "title"
	SortCompany   = "company"
	SortPostedAt  = "posted_at"
	SortUpdatedAt = "updated_at"
)

var sortFields = map[string]bool{
	SortTitle:     true,
	SortCompany:   true,
	SortPostedAt:  true,
	SortUpdatedAt: true,
}

// Sort is a single-column table ordering. The zero value means unsorted.
type Sort struct {
	Field string
	Desc  bool
}

// IsZero reports whether s means unsorted.
func (s Sort) IsZero() bool {
	return s.Field == ""
}

// Valid reports whether s names a sortable column.
func (s Sort) Valid() bool {
	return sortFields[s.Field]
}

// Dir returns "asc" or "desc".
func (s Sort) Dir() string {
	if s.Desc {
		return "desc"
	}
	return "asc"
}

// String formats s as "<field>:<dir>", or "" when unsorted.
func (s Sort) String() string {
	if s.IsZero() {
		return ""
	}
	return s.Field + ":" + s.Dir()
}

var (
	errEmptySortField   = errors.New("empty sort field")
	errUnknownSortField = errors.New("unknown sort field")
)

// ParseSort parses "<field>:<dir>". A missing or unknown direction means
// ascending. An empty or unsortable field is an error, so the codec reads
// it as absent.
func ParseSort(raw string) (Sort, error) {
	field, dir, _ := strings.Cut(raw, ":")
	if field == "" {
		return Sort{}, errEmptySortField
	}
	s := Sort{Field: field, Desc: dir == "desc"}
	if !s.Valid() {
		return Sort{}, errUnknownSortField
	}
	return s, nil
}

// SortCodec stores a Sort under one query key. Unsorted omits the key.
var SortCodec = urlparam.Scalar(Sort.String, ParseSort)
