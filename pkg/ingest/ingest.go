// Package ingest drives drafts from pending to a terminal status.
//
// A call inserts (or resets) the pending row synchronously, so it is
// visible at once, then runs the ingestion call on its own goroutine and
// writes the outcome into the draft store with Replace. Failures become
// Failed drafts; nothing is returned to the caller but completion.
//
// There is no cap, queue or cancellation. Calls for different drafts run
// independently, and two calls for the same draft race with the last
// Replace winning. A result for a draft that was discarded meanwhile is
// dropped by the store.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jobtrail/jobtrail/internal/errors"
	"github.com/jobtrail/jobtrail/pkg/drafts"
	"github.com/jobtrail/jobtrail/pkg/listing"
	"github.com/jobtrail/jobtrail/pkg/metrics"
)

// Request is one ingestion call. ID is empty for a new draft and set when
// re-ingesting an existing one in place. Content is page text the user
// pasted when the page could not be fetched.
type Request struct {
	URL     string
	Content string
	ID      string
}

// Ingester extracts a listing draft from a URL. It must return a terminal
// draft, never Pending.
type Ingester interface {
	Ingest(ctx context.Context, req Request) (listing.Draft, error)
}

// IngesterFunc adapts a function to Ingester.
type IngesterFunc func(ctx context.Context, req Request) (listing.Draft, error)

// Ingest calls f.
func (f IngesterFunc) Ingest(ctx context.Context, req Request) (listing.Draft, error) {
	return f(ctx, req)
}

// Task reports completion of one ingestion call.
type Task struct {
	id     string
	done   chan struct{}
	result listing.Draft
}

// ID returns the draft id the task writes to.
func (t *Task) ID() string { return t.id }

// Done is closed once the outcome has been written to the store.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task is done and returns the draft it wrote.
func (t *Task) Wait() listing.Draft {
	<-t.done
	return t.result
}

// Batch groups the tasks of one IngestMany call, in input order.
type Batch struct {
	Tasks []*Task
}

// IDs returns the draft ids in input order.
func (b *Batch) IDs() []string {
	out := make([]string, len(b.Tasks))
	for i, t := range b.Tasks {
		out[i] = t.id
	}
	return out
}

// Wait blocks until every task is done and returns their drafts in order.
func (b *Batch) Wait() []listing.Draft {
	out := make([]listing.Draft, len(b.Tasks))
	for i, t := range b.Tasks {
		out[i] = t.Wait()
	}
	return out
}

// Coordinator runs ingestion calls against a draft store.
type Coordinator struct {
	store    *drafts.Store
	ingester Ingester
	ctx      context.Context
	logger   *slog.Logger
	metrics  *metrics.Metrics
	newID    func() string

	mu       sync.Mutex
	inFlight map[string]int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithMetrics sets the metric set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithContext sets the context calls run under. Its values reach the
// ingester; its cancellation does not.
func WithContext(ctx context.Context) Option {
	return func(c *Coordinator) { c.ctx = ctx }
}

// WithIDGenerator replaces uuid.NewString for new draft ids.
func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) { c.newID = fn }
}

// New returns a Coordinator writing to store.
func New(store *drafts.Store, ingester Ingester, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		ingester: ingester,
		ctx:      context.Background(),
		logger:   slog.Default(),
		newID:    uuid.NewString,
		inFlight: make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx = context.WithoutCancel(c.ctx)
	c.logger = c.logger.With("component", "ingest")
	return c
}

// maxIDAttempts bounds id regeneration on collision.
const maxIDAttempts = 8

// Ingest appends a pending draft for url and ingests it in the background.
// content may be empty.
func (c *Coordinator) Ingest(url, content string) (string, *Task) {
	var id string
	for attempt := 1; ; attempt++ {
		id = c.newID()
		err := c.store.AppendPending(id, url)
		if err == nil {
			break
		}
		if attempt == maxIDAttempts {
			panic(err)
		}
	}

	return id, c.dispatch(id, url, Request{URL: url, Content: content})
}

// Reingest resets the draft with id to pending and ingests it again in
// place, optionally with pasted content. It returns J011 if id is not
// cached.
func (c *Coordinator) Reingest(id, content string) (*Task, error) {
	d, ok := c.store.Get(id)
	if !ok {
		return nil, errors.New("J011").WithDetail(fmt.Sprintf("draft %q is not cached", id))
	}
	c.store.ResetToPending(id)

	url := d.DraftURL()
	return c.dispatch(id, url, Request{URL: url, Content: content, ID: id}), nil
}

// IngestMany appends one pending draft per url, in order, and then ingests
// each independently.
func (c *Coordinator) IngestMany(urls []string) *Batch {
	pending := make([]listing.Draft, len(urls))
	for attempt := 1; ; attempt++ {
		for i, u := range urls {
			pending[i] = listing.Pending{ID: c.newID(), URL: u}
		}
		err := c.store.AppendAll(pending)
		if err == nil {
			break
		}
		if attempt == maxIDAttempts {
			panic(err)
		}
	}

	b := &Batch{Tasks: make([]*Task, len(pending))}
	for i, p := range pending {
		b.Tasks[i] = c.dispatch(p.DraftID(), p.DraftURL(), Request{URL: p.DraftURL()})
	}
	return b
}

// InFlight reports whether an ingestion call for id is still running.
func (c *Coordinator) InFlight(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight[id] > 0
}

func (c *Coordinator) dispatch(id, url string, req Request) *Task {
	t := &Task{id: id, done: make(chan struct{})}

	c.mu.Lock()
	c.inFlight[id]++
	c.mu.Unlock()

	go c.run(t, url, req)
	return t
}

func (c *Coordinator) finish(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[id]--; c.inFlight[id] <= 0 {
		delete(c.inFlight, id)
	}
}

func (c *Coordinator) run(t *Task, url string, req Request) {
	defer close(t.done)
	defer c.finish(t.id)

	ctx, span := metrics.StartSpan(c.ctx, "ingest.listing",
		attribute.String("draft.id", t.id),
		attribute.Bool("draft.reingest", req.ID != ""),
	)
	start := time.Now()

	result, err := c.call(ctx, req)
	if err == nil {
		if _, ok := result.(listing.Pending); ok || result == nil {
			err = fmt.Errorf("ingestion returned a non-terminal draft")
		}
	}

	var final listing.Draft
	if err != nil {
		final = listing.Failed{ID: t.id, URL: url, Error: err.Error()}
		c.logger.Warn("ingestion failed", "draft_id", t.id, "url", url, "error", err)
	} else {
		final = listing.WithIdentity(result, t.id, url)
		c.logger.Debug("ingestion finished", "draft_id", t.id, "status", final.Status())
	}

	c.store.Replace(t.id, final)
	t.result = final

	c.metrics.ObserveIngest(string(final.Status()), time.Since(start))
	metrics.EndSpan(span, err)
}

// call invokes the ingester, converting a panic into an error.
func (c *Coordinator) call(ctx context.Context, req Request) (d listing.Draft, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ingestion panicked: %v", r)
		}
	}()
	return c.ingester.Ingest(ctx, req)
}
