package session

import (
	"context"
	"errors"
	"net/url"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/jobtrail/jobtrail/pkg/listing"
	"github.com/jobtrail/jobtrail/pkg/urlparam"
)

// pageRecorder is a PageFetcher that records queries and can hold calls
// for a given search term until released.
type pageRecorder struct {
	mu      sync.Mutex
	queries []listing.PageQuery
	gates   map[string]chan struct{}
}

func (p *pageRecorder) FetchPage(_ context.Context, q listing.PageQuery) (listing.Page[listing.Summary], error) {
	p.mu.Lock()
	p.queries = append(p.queries, q)
	gate := p.gates[q.Search]
	p.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if q.Search == "boom" {
		return listing.Page[listing.Summary]{}, errors.New("listings API down")
	}
	return listing.Page[listing.Summary]{
		Items: []listing.Summary{{ID: "l-" + q.Search, Title: q.Search}},
		Page:  q.Page,
		Size:  q.Size,
		Total: 1,
	}, nil
}

func (p *pageRecorder) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queries)
}

func (p *pageRecorder) hold(search string) chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gates == nil {
		p.gates = make(map[string]chan struct{})
	}
	ch := make(chan struct{})
	p.gates[search] = ch
	return ch
}

func newTable(t *testing.T, query url.Values, f PageFetcher, opts ...TableOption) (*urlparam.Location, *ListingsTable) {
	t.Helper()
	loc := urlparam.NewLocation("/listings", query)
	opts = append([]TableOption{WithTableLogger(quiet)}, opts...)
	tbl := NewListingsTable(loc, f, 30*time.Millisecond, opts...)
	t.Cleanup(tbl.Close)
	return loc, tbl
}

func TestListingsTable_QueryFromURL(t *testing.T) {
	q, _ := url.ParseQuery("q=go&sort=posted_at:desc&status=APPLIED&status=BOGUS&status=SAVED&page=3")
	_, tbl := newTable(t, q, &pageRecorder{}, WithPageSize(25))

	got := tbl.Query()
	want := listing.PageQuery{
		Page:     3,
		Size:     25,
		Search:   "go",
		Statuses: []listing.ApplicationStatus{listing.Applied, listing.Saved},
		Sort:     listing.Sort{Field: listing.SortPostedAt, Desc: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Query = %+v, want %+v", got, want)
	}
}

func TestListingsTable_UnknownSortIsDropped(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"unknown field", "sort=salary:desc"},
		{"wrong case", "sort=Company:asc"},
		{"empty field", "sort=:desc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			_, tbl := newTable(t, q, &pageRecorder{})

			got := tbl.Query()
			if !got.Sort.IsZero() {
				t.Errorf("Sort = %+v, want unsorted", got.Sort)
			}
			vals := got.Values()
			if vals.Has("sort_by") || vals.Has("sort_dir") {
				t.Errorf("Values = %s, want no sort params", vals.Encode())
			}
		})
	}

	loc, tbl := newTable(t, nil, &pageRecorder{})
	tbl.ToggleSort("salary")
	if loc.Query().Has(KeySort) {
		t.Errorf("URL = %s, want no sort key", loc.String())
	}
}

func TestListingsTable_Defaults(t *testing.T) {
	_, tbl := newTable(t, nil, &pageRecorder{})

	got := tbl.Query()
	if got.Page != 1 || got.Search != "" || got.Statuses != nil || !got.Sort.IsZero() {
		t.Errorf("Query = %+v, want defaults", got)
	}
	if got.Size != listing.DefaultPageSize {
		t.Errorf("Size = %d, want %d", got.Size, listing.DefaultPageSize)
	}
	if tbl.Selected.Get() != "" {
		t.Errorf("Selected = %q, want none", tbl.Selected.Get())
	}
}

func TestListingsTable_Fetch(t *testing.T) {
	rec := &pageRecorder{}
	_, tbl := newTable(t, url.Values{"q": {"rust"}}, rec)

	page, err := tbl.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "l-rust" {
		t.Errorf("page = %+v", page)
	}
	st := tbl.State()
	if !st.Loaded || st.Loading || st.Page.Items[0].ID != "l-rust" {
		t.Errorf("State = %+v", st)
	}
}

func TestListingsTable_FetchError(t *testing.T) {
	_, tbl := newTable(t, url.Values{"q": {"boom"}}, &pageRecorder{})

	if _, err := tbl.Fetch(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if st := tbl.State(); st.Err == nil || !st.Loaded {
		t.Errorf("State = %+v, want loaded with error", st)
	}
}

func TestListingsTable_FetchRecoversPanic(t *testing.T) {
	f := PageFetcherFunc(func(context.Context, listing.PageQuery) (listing.Page[listing.Summary], error) {
		panic("bad fetcher")
	})
	_, tbl := newTable(t, nil, f)

	if _, err := tbl.Fetch(context.Background()); err == nil {
		t.Fatal("expected panic to become an error")
	}
}

func TestListingsTable_StaleFetchDropped(t *testing.T) {
	rec := &pageRecorder{}
	gate := rec.hold("old")
	loc, tbl := newTable(t, url.Values{"q": {"old"}}, rec)

	done := make(chan struct{})
	go func() {
		defer close(done)
		tbl.Fetch(context.Background())
	}()
	waitFor(t, "first fetch to start", func() bool { return rec.calls() == 1 })

	// A newer query lands first.
	loc.Replace(url.Values{"q": {"new"}})
	waitFor(t, "new page", func() bool {
		st := tbl.State()
		return st.Loaded && st.Page.Items[0].ID == "l-new"
	})

	close(gate)
	<-done

	if st := tbl.State(); st.Page.Items[0].ID != "l-new" {
		t.Errorf("State page = %s, want l-new (old fetch must be dropped)", st.Page.Items[0].ID)
	}
}

func TestListingsTable_RefreshOnURLChange(t *testing.T) {
	rec := &pageRecorder{}
	results := make(chan listing.Page[listing.Summary], 4)
	loc, tbl := newTable(t, nil, rec, OnResult(func(p listing.Page[listing.Summary], err error) {
		results <- p
	}))

	tbl.SetStatuses([]listing.ApplicationStatus{listing.Interview})

	select {
	case p := <-results:
		if p.Page != 1 {
			t.Errorf("page = %d, want 1", p.Page)
		}
	case <-time.After(time.Second):
		t.Fatal("no refresh after status change")
	}
	if loc.Query().Get("status") != string(listing.Interview) {
		t.Errorf("query = %v", loc.Query())
	}

	// A change to a key the table does not read causes no fetch.
	before := rec.calls()
	loc.Update(urlparam.ModeReplace, func(q url.Values) { q.Set("utm", "mail") })
	time.Sleep(50 * time.Millisecond)
	if rec.calls() != before {
		t.Errorf("calls = %d, want %d", rec.calls(), before)
	}
}

func TestListingsTable_DebouncedSearch(t *testing.T) {
	rec := &pageRecorder{}
	loc, tbl := newTable(t, nil, rec)

	tbl.Search.Set("g")
	tbl.Search.Set("go")
	tbl.Search.Set("gol")

	if tbl.Search.Get() != "gol" {
		t.Errorf("local = %q, want gol", tbl.Search.Get())
	}
	if tbl.Query().Search != "" {
		t.Errorf("query search = %q before the delay, want empty", tbl.Query().Search)
	}

	time.Sleep(100 * time.Millisecond)

	if loc.Query().Get("q") != "gol" {
		t.Errorf("URL q = %q, want gol", loc.Query().Get("q"))
	}
	waitFor(t, "search fetch", func() bool { return rec.calls() == 1 })

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.queries[0].Search != "gol" {
		t.Errorf("fetched search = %q, want gol", rec.queries[0].Search)
	}
}

func TestListingsTable_ToggleSort(t *testing.T) {
	loc, tbl := newTable(t, url.Values{"page": {"4"}}, &pageRecorder{})

	tbl.ToggleSort(listing.SortCompany)
	if got := loc.Query().Get("sort"); got != "company:asc" {
		t.Errorf("sort = %q, want company:asc", got)
	}
	if loc.Query().Has("page") {
		t.Error("changing sort should return to the first page")
	}

	tbl.ToggleSort(listing.SortCompany)
	if got := loc.Query().Get("sort"); got != "company:desc" {
		t.Errorf("sort = %q, want company:desc", got)
	}

	tbl.ToggleSort(listing.SortCompany)
	if loc.Query().Has("sort") {
		t.Errorf("sort = %q, want removed", loc.Query().Get("sort"))
	}
}

func TestListingsTable_Select(t *testing.T) {
	loc, tbl := newTable(t, nil, &pageRecorder{})

	tbl.Select("abc")
	if loc.Query().Get("listingId") != "abc" {
		t.Errorf("listingId = %q", loc.Query().Get("listingId"))
	}
	tbl.Select("")
	if loc.Query().Has("listingId") {
		t.Error("clearing the selection should remove the key")
	}
}
