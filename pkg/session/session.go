package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jobtrail/jobtrail/internal/errors"
	"github.com/jobtrail/jobtrail/pkg/commit"
	"github.com/jobtrail/jobtrail/pkg/debounce"
	"github.com/jobtrail/jobtrail/pkg/drafts"
	"github.com/jobtrail/jobtrail/pkg/export"
	"github.com/jobtrail/jobtrail/pkg/ingest"
	"github.com/jobtrail/jobtrail/pkg/listing"
	"github.com/jobtrail/jobtrail/pkg/metrics"
	"github.com/jobtrail/jobtrail/pkg/urlparam"
)

// Event names pushed to the browser.
const (
	EventURL      = "url"
	EventDrafts   = "drafts"
	EventListings = "listings"
)

// Event is one message for the browser.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// URLPatch asks the browser to rewrite its query string.
type URLPatch struct {
	Query string `json:"query"`
	Mode  string `json:"mode"`
}

// ListingsPayload carries a landed listings page.
type ListingsPayload struct {
	Page  listing.Page[listing.Summary] `json:"page"`
	Error string                        `json:"error,omitempty"`
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Ingester ingest.Ingester
	Saver    commit.Saver
	Fetcher  PageFetcher

	// Snapshots backs Export and Import. Nil disables both.
	Snapshots export.Store

	Metrics *metrics.Metrics
	Logger  *slog.Logger

	SearchDebounce time.Duration
	PageSize       int

	// Autosave is the quiet period after a draft change before the
	// collection is written to Snapshots under AutosaveKey. Zero disables
	// it.
	Autosave time.Duration

	// NewDraftID replaces uuid.NewString for draft ids.
	NewDraftID func() string
}

// Session is the server-held state of one open page: its address bar, its
// draft collection and the coordinators acting on them.
type Session struct {
	id        string
	createdAt time.Time
	lastSeen  atomic.Int64

	loc    *urlparam.Location
	store  *drafts.Store
	ingest *ingest.Coordinator
	commit *commit.Coordinator
	table  *ListingsTable

	snapshots export.Store
	logger    *slog.Logger

	autosave   *debounce.Mutation[string, int]
	autosaveMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	listeners map[uint64]func(Event)
	nextID    uint64
	closed    bool

	unsubscribe []func()
}

// New builds a session for a page at path with the given initial query.
func New(id, path string, query url.Values, deps Deps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", id)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        id,
		createdAt: time.Now(),
		loc:       urlparam.NewLocation(path, query),
		store:     drafts.New(),
		snapshots: deps.Snapshots,
		logger:    logger.With("component", "session"),
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[uint64]func(Event)),
	}
	s.Touch()

	ingestOpts := []ingest.Option{
		ingest.WithLogger(logger),
		ingest.WithMetrics(deps.Metrics),
		ingest.WithContext(ctx),
	}
	if deps.NewDraftID != nil {
		ingestOpts = append(ingestOpts, ingest.WithIDGenerator(deps.NewDraftID))
	}
	s.ingest = ingest.New(s.store, deps.Ingester, ingestOpts...)
	s.commit = commit.New(s.store, deps.Saver,
		commit.WithLogger(logger),
		commit.WithMetrics(deps.Metrics),
		commit.WithNotifier(s),
		commit.WithContext(ctx),
	)

	if deps.Fetcher != nil {
		delay := deps.SearchDebounce
		if delay <= 0 {
			delay = 700 * time.Millisecond
		}
		tableOpts := []TableOption{
			WithTableLogger(logger),
			WithTableMetrics(deps.Metrics),
			WithTableContext(ctx),
			OnResult(func(p listing.Page[listing.Summary], err error) {
				payload := ListingsPayload{Page: p}
				if err != nil {
					payload.Error = err.Error()
				}
				s.Emit(EventListings, payload)
			}),
		}
		if deps.PageSize > 0 {
			tableOpts = append(tableOpts, WithPageSize(deps.PageSize))
		}
		s.table = NewListingsTable(s.loc, deps.Fetcher, delay, tableOpts...)
	}

	s.loc.SetNavigator(urlparam.NavigatorFunc(func(q url.Values, mode urlparam.URLMode) {
		s.Emit(EventURL, URLPatch{Query: q.Encode(), Mode: mode.String()})
	}))
	if deps.Snapshots != nil && deps.Autosave > 0 {
		s.autosave = debounce.NewMutation(deps.Autosave, s.writeAutosave)
	}
	s.unsubscribe = append(s.unsubscribe, s.store.Subscribe(func(snap drafts.Snapshot) {
		s.Emit(EventDrafts, listing.Drafts(snap))
		s.scheduleAutosave()
	}))
	return s
}

// AutosaveKey returns the snapshot key the session autosaves under. A
// reloaded page can Import it into its new session.
func (s *Session) AutosaveKey() string {
	return AutosaveKey(s.id)
}

// AutosaveKey returns the autosave snapshot key of session id.
func AutosaveKey(id string) string {
	return "autosave-" + id
}

func (s *Session) scheduleAutosave() {
	if s.autosave == nil {
		return
	}
	key := s.AutosaveKey()
	s.autosave.SubmitFunc(s.ctx, key, func(r debounce.Result[int]) {
		if r.Err != nil {
			s.logger.Warn("autosave failed", "key", key, "error", r.Err)
			return
		}
		s.logger.Debug("autosaved drafts", "key", key, "count", r.Value)
	})
}

// writeAutosave stores the collection as it is when the write starts.
// Writes are serialized, so the last one to finish holds the newest
// collection even when a superseded write was still running.
func (s *Session) writeAutosave(ctx context.Context, key string) (int, error) {
	s.autosaveMu.Lock()
	defer s.autosaveMu.Unlock()

	snap := s.store.Snapshot()
	if err := s.snapshots.Put(ctx, key, snap); err != nil {
		return 0, err
	}
	return len(snap), nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was built.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Location returns the session's address bar.
func (s *Session) Location() *urlparam.Location { return s.loc }

// Drafts returns the draft collection.
func (s *Session) Drafts() *drafts.Store { return s.store }

// Ingest returns the ingestion coordinator.
func (s *Session) Ingest() *ingest.Coordinator { return s.ingest }

// Commit returns the save coordinator.
func (s *Session) Commit() *commit.Coordinator { return s.commit }

// Table returns the listings table, or nil when no fetcher was configured.
func (s *Session) Table() *ListingsTable { return s.table }

// Touch records activity.
func (s *Session) Touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen returns the time of the last Touch.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Emit broadcasts an event to every subscriber. Session implements
// toast.Emitter through it.
func (s *Session) Emit(name string, data any) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	fns := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	ev := Event{Name: name, Data: data}
	for _, fn := range fns {
		fn(ev)
	}
}

// Subscribe registers fn for every emitted event and returns a function
// that removes it.
func (s *Session) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Export writes the draft collection under key.
func (s *Session) Export(ctx context.Context, key string) (int, error) {
	if s.snapshots == nil {
		return 0, errors.New("J041")
	}
	snap := s.store.Snapshot()
	if err := s.snapshots.Put(ctx, key, snap); err != nil {
		return 0, err
	}
	s.logger.Info("exported drafts", "key", key, "count", len(snap))
	return len(snap), nil
}

// Import replaces the draft collection with the snapshot stored under key.
// Drafts that were still pending when exported are ingested again.
func (s *Session) Import(ctx context.Context, key string) (int, error) {
	if s.snapshots == nil {
		return 0, errors.New("J041")
	}
	doc, err := s.snapshots.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	snap := doc.Snapshot()
	s.store.Restore(snap)

	for _, d := range snap {
		if d.Status() != listing.StatusPending {
			continue
		}
		if _, err := s.ingest.Reingest(d.DraftID(), ""); err != nil {
			s.logger.Warn("re-ingest after import failed", "draft_id", d.DraftID(), "error", err)
		}
	}
	s.logger.Info("imported drafts", "key", key, "count", len(snap))
	return len(snap), nil
}

// Close tears the session down. Pending debounced writes are cancelled and
// subscribers stop receiving events. Calls already running against the
// listings API finish, but their results only reach the closed store.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.listeners = make(map[uint64]func(Event))
	s.mu.Unlock()

	for _, fn := range s.unsubscribe {
		fn()
	}
	if s.table != nil {
		s.table.Close()
	}
	if s.autosave != nil {
		s.autosave.Cancel()
	}
	s.loc.SetNavigator(nil)
	s.cancel()
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
