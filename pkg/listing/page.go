package listing

import (
	"net/url"
	"strconv"
)

// Summary is one row of the saved listings table.
type Summary struct {
	ID            string             `json:"id"`
	URL           string             `json:"url"`
	Title         string             `json:"title"`
	Company       string             `json:"company"`
	Domain        string             `json:"domain"`
	Location      *string            `json:"location"`
	PostedDate    *string            `json:"postedDate"`
	CurrentStatus *ApplicationStatus `json:"currentStatus"`
	LastUpdated   *string            `json:"lastUpdated"`
}

// Page is one page of a server-side paginated collection.
type Page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Size  int `json:"size"`
	Total int `json:"total"`
}

// HasNext reports whether a later page exists.
func (p Page[T]) HasNext() bool {
	return p.Page < p.Pages
}

// DefaultPageSize is the listings table page size.
const DefaultPageSize = 50

// PageQuery holds the parameters of one fetchPage call.
type PageQuery struct {
	Page     int
	Size     int
	Search   string
	Statuses []ApplicationStatus
	Sort     Sort
}

// Values encodes q as listings API query parameters. Empty search, an
// empty status filter and unsorted are omitted.
func (q PageQuery) Values() url.Values {
	v := url.Values{}
	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.Size
	if size < 1 {
		size = DefaultPageSize
	}
	v.Set("page", strconv.Itoa(page))
	v.Set("size", strconv.Itoa(size))
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	for _, s := range q.Statuses {
		v.Add("status", string(s))
	}
	if !q.Sort.IsZero() {
		v.Set("sort_by", q.Sort.Field)
		v.Set("sort_dir", q.Sort.Dir())
	}
	return v
}
