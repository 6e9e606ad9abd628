package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jobtrail/jobtrail/pkg/debounce"
	"github.com/jobtrail/jobtrail/pkg/listing"
	"github.com/jobtrail/jobtrail/pkg/metrics"
	"github.com/jobtrail/jobtrail/pkg/stable"
	"github.com/jobtrail/jobtrail/pkg/urlparam"
)

// Query keys of the listings table.
const (
	KeySearch   = "q"
	KeySort     = "sort"
	KeyStatus   = "status"
	KeySelected = "listingId"
	KeyPage     = "page"
)

// PageFetcher loads one page of persisted listings.
type PageFetcher interface {
	FetchPage(ctx context.Context, q listing.PageQuery) (listing.Page[listing.Summary], error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, q listing.PageQuery) (listing.Page[listing.Summary], error)

// FetchPage calls f.
func (f PageFetcherFunc) FetchPage(ctx context.Context, q listing.PageQuery) (listing.Page[listing.Summary], error) {
	return f(ctx, q)
}

// ListingsTable binds the listings table's view parameters to the URL and
// refetches whenever the derived query changes. A fetch that has been
// overtaken by a newer one is dropped when it lands.
type ListingsTable struct {
	Search   *urlparam.Debounced[string]
	Sort     *urlparam.State[listing.Sort]
	Status   *urlparam.State[[]string]
	Selected *urlparam.State[string]
	Page     *urlparam.State[int]

	search   *urlparam.State[string]
	fetcher  PageFetcher
	pageSize int
	ctx      context.Context
	logger   *slog.Logger
	metrics  *metrics.Metrics
	onResult func(listing.Page[listing.Summary], error)

	gen debounce.Generation

	mu      sync.Mutex
	last    listing.PageQuery
	hasLast bool
	result  listing.Page[listing.Summary]
	err     error
	loaded  bool
	loading bool

	unsubscribe func()
}

// TableOption configures a ListingsTable.
type TableOption func(*ListingsTable)

// WithPageSize sets the page size sent to the fetcher.
func WithPageSize(n int) TableOption {
	return func(t *ListingsTable) { t.pageSize = n }
}

// WithTableLogger sets the logger.
func WithTableLogger(l *slog.Logger) TableOption {
	return func(t *ListingsTable) { t.logger = l }
}

// WithTableMetrics sets the metric set.
func WithTableMetrics(m *metrics.Metrics) TableOption {
	return func(t *ListingsTable) { t.metrics = m }
}

// WithTableContext sets the context fetches run under.
func WithTableContext(ctx context.Context) TableOption {
	return func(t *ListingsTable) { t.ctx = ctx }
}

// OnResult registers fn to receive every fetch result that is still current
// when it lands.
func OnResult(fn func(listing.Page[listing.Summary], error)) TableOption {
	return func(t *ListingsTable) { t.onResult = fn }
}

// NewListingsTable binds the table to loc. searchDelay is the debounce for
// the free-text search box.
func NewListingsTable(loc *urlparam.Location, fetcher PageFetcher, searchDelay time.Duration, opts ...TableOption) *ListingsTable {
	t := &ListingsTable{
		search:   urlparam.NewState(loc, KeySearch, "", urlparam.String),
		Sort:     urlparam.NewState(loc, KeySort, listing.Sort{}, listing.SortCodec),
		Status:   urlparam.NewState(loc, KeyStatus, []string(nil), urlparam.Strings),
		Selected: urlparam.NewState(loc, KeySelected, "", urlparam.String),
		Page:     urlparam.NewState(loc, KeyPage, 1, urlparam.Int),
		fetcher:  fetcher,
		pageSize: listing.DefaultPageSize,
		ctx:      context.Background(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.ctx = context.WithoutCancel(t.ctx)
	t.logger = t.logger.With("component", "listings_table")
	t.Search = urlparam.NewDebounced(t.search, searchDelay)
	t.unsubscribe = loc.Subscribe(func(urlparam.Change) { t.maybeRefresh() })
	return t
}

// Query derives the fetch parameters from the URL. Search uses the value
// already written to the URL, not the text still being typed.
func (t *ListingsTable) Query() listing.PageQuery {
	page := t.Page.Get()
	if page < 1 {
		page = 1
	}
	sort := t.Sort.Get()
	if !sort.Valid() {
		sort = listing.Sort{}
	}
	return listing.PageQuery{
		Page:     page,
		Size:     t.pageSize,
		Search:   t.search.Get(),
		Statuses: listing.ParseStatuses(t.Status.Get()),
		Sort:     sort,
	}
}

// SetStatuses filters by application status and returns to the first page.
func (t *ListingsTable) SetStatuses(ss []listing.ApplicationStatus) {
	raw := make([]string, 0, len(ss))
	for _, s := range ss {
		raw = append(raw, string(s))
	}
	t.Page.Reset()
	t.Status.Set(raw)
}

// SetSort changes the sort order and returns to the first page. A sort on
// an unsortable column clears the sort.
func (t *ListingsTable) SetSort(s listing.Sort) {
	if !s.Valid() {
		s = listing.Sort{}
	}
	t.Page.Reset()
	t.Sort.Set(s)
}

// ToggleSort cycles field through ascending, descending and unsorted.
func (t *ListingsTable) ToggleSort(field string) {
	cur := t.Sort.Get()
	switch {
	case cur.Field != field:
		t.SetSort(listing.Sort{Field: field})
	case !cur.Desc:
		t.SetSort(listing.Sort{Field: field, Desc: true})
	default:
		t.SetSort(listing.Sort{})
	}
}

// Select sets the selected listing id; "" clears it.
func (t *ListingsTable) Select(id string) {
	t.Selected.Set(id)
}

// Refresh starts a fetch for the current query.
func (t *ListingsTable) Refresh() {
	token, q := t.begin()
	go t.fetch(token, q)
}

// Fetch loads the page for the current query and waits for it. The result
// is returned even if a newer fetch has started, but only a current result
// is kept as the table's latest.
func (t *ListingsTable) Fetch(ctx context.Context) (listing.Page[listing.Summary], error) {
	token, q := t.begin()
	return t.load(ctx, token, q)
}

func (t *ListingsTable) begin() (uint64, listing.PageQuery) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := t.Query()
	t.last, t.hasLast = q, true
	t.loading = true
	return t.gen.Next(), q
}

// TableState is the table's latest current fetch.
type TableState struct {
	Query   listing.PageQuery
	Page    listing.Page[listing.Summary]
	Err     error
	Loaded  bool
	Loading bool
}

// State returns the latest current result. Loaded is false until a fetch
// has landed.
func (t *ListingsTable) State() TableState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TableState{
		Query:   t.last,
		Page:    t.result,
		Err:     t.err,
		Loaded:  t.loaded,
		Loading: t.loading,
	}
}

// Close stops following the URL and cancels the pending search write.
// Fetches already in flight are dropped when they land.
func (t *ListingsTable) Close() {
	t.unsubscribe()
	t.Search.Close()
	t.gen.Next()
}

func (t *ListingsTable) maybeRefresh() {
	q := t.Query()
	t.mu.Lock()
	same := t.hasLast && stable.Equal(q, t.last)
	t.mu.Unlock()
	if !same {
		t.Refresh()
	}
}

func (t *ListingsTable) fetch(token uint64, q listing.PageQuery) {
	t.load(t.ctx, token, q)
}

func (t *ListingsTable) load(ctx context.Context, token uint64, q listing.PageQuery) (page listing.Page[listing.Summary], err error) {
	ctx, span := metrics.StartSpan(ctx, "listings.fetch_page",
		attribute.Int("page", q.Page),
		attribute.String("search", q.Search),
		attribute.String("sort", q.Sort.String()),
	)
	defer func() { metrics.EndSpan(span, err) }()

	page, err = t.call(ctx, q)

	t.mu.Lock()
	current := t.gen.Current(token)
	if current {
		t.result, t.err, t.loaded, t.loading = page, err, true, false
	}
	t.mu.Unlock()

	if !current {
		t.metrics.ObserveFetchPage(metrics.OutcomeStale)
		t.logger.Debug("dropped stale page", "page", q.Page, "search", q.Search)
		return page, err
	}

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
		t.logger.Warn("fetch page failed", "page", q.Page, "error", err)
	}
	t.metrics.ObserveFetchPage(outcome)

	if t.onResult != nil {
		t.onResult(page, err)
	}
	return page, err
}

func (t *ListingsTable) call(ctx context.Context, q listing.PageQuery) (page listing.Page[listing.Summary], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return t.fetcher.FetchPage(ctx, q)
}
