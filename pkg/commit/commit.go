// Package commit persists drafts with optimistic removal.
//
// Saving removes the draft from the store at once so the page shows it as
// saved, then persists it in the background. A failed save puts the draft
// back and tells the user. Save restores the whole collection as it was
// before the removal; SaveMany restores only the failed item, at its
// earlier position, so sibling saves that succeeded stay removed.
package commit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jobtrail/jobtrail/internal/errors"
	"github.com/jobtrail/jobtrail/pkg/drafts"
	"github.com/jobtrail/jobtrail/pkg/listing"
	"github.com/jobtrail/jobtrail/pkg/metrics"
	"github.com/jobtrail/jobtrail/pkg/toast"
)

// Saver persists a draft. It is only called with Unique or
// DuplicateContent drafts.
type Saver interface {
	Save(ctx context.Context, d listing.Draft) (listing.Listing, error)
}

// SaverFunc adapts a function to Saver.
type SaverFunc func(ctx context.Context, d listing.Draft) (listing.Listing, error)

// Save calls f.
func (f SaverFunc) Save(ctx context.Context, d listing.Draft) (listing.Listing, error) {
	return f(ctx, d)
}

// Result is the outcome of saving one draft.
type Result struct {
	ID      string
	Listing listing.Listing
	Err     error
}

// Task reports the outcome of one save.
type Task struct {
	id     string
	done   chan struct{}
	result Result
}

// ID returns the draft id being saved.
func (t *Task) ID() string { return t.id }

// Done is closed once the save has settled and any rollback is applied.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the save has settled.
func (t *Task) Wait() Result {
	<-t.done
	return t.result
}

// Batch groups the tasks of one SaveMany call, in input order.
type Batch struct {
	Tasks []*Task
}

// Wait blocks until every save has settled and returns each result in
// order. A failure never prevents the others from being reported.
func (b *Batch) Wait() []Result {
	out := make([]Result, len(b.Tasks))
	for i, t := range b.Tasks {
		out[i] = t.Wait()
	}
	return out
}

// Failed returns the results that carry an error.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Coordinator saves drafts from a store.
type Coordinator struct {
	store    *drafts.Store
	saver    Saver
	notifier toast.Emitter
	ctx      context.Context
	logger   *slog.Logger
	metrics  *metrics.Metrics
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

// WithNotifier sets where failure toasts go.
func WithNotifier(e toast.Emitter) Option {
	return func(c *Coordinator) { c.notifier = e }
}

// WithContext sets the context saves run under. Its values reach the
// saver; its cancellation does not.
func WithContext(ctx context.Context) Option {
	return func(c *Coordinator) { c.ctx = ctx }
}

// New returns a Coordinator for store.
func New(store *drafts.Store, saver Saver, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		saver:    saver,
		notifier: toast.Discard,
		ctx:      context.Background(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx = context.WithoutCancel(c.ctx)
	c.logger = c.logger.With("component", "commit")
	return c
}

// Save removes the draft with id and persists it in the background. On
// failure the collection is restored to how it was just before the
// removal. It returns J011 for an unknown id and J012 for a draft that
// cannot be saved; in both cases nothing changes.
func (c *Coordinator) Save(id string) (*Task, error) {
	d, err := c.savable(id)
	if err != nil {
		return nil, err
	}

	snap := c.store.Snapshot()
	c.store.RemoveMany([]string{id})

	t := &Task{id: id, done: make(chan struct{})}
	go c.run(t, d, func() { c.store.Restore(snap) })
	return t, nil
}

// SaveMany removes every listed draft in one step and persists each
// independently. A failed item is restored on its own. Every id is
// checked before anything is removed, and one bad id rejects the batch.
// Repeated ids are saved once.
func (c *Coordinator) SaveMany(ids []string) (*Batch, error) {
	seen := make(map[string]bool, len(ids))
	var unique []string
	var ds []listing.Draft
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		d, err := c.savable(id)
		if err != nil {
			return nil, err
		}
		unique = append(unique, id)
		ds = append(ds, d)
	}

	snap := c.store.Snapshot()
	c.store.RemoveMany(unique)

	b := &Batch{Tasks: make([]*Task, len(ds))}
	for i, d := range ds {
		id := unique[i]
		t := &Task{id: id, done: make(chan struct{})}
		b.Tasks[i] = t
		go c.run(t, d, func() { c.store.RestoreEntries(snap, []string{id}) })
	}
	return b, nil
}

func (c *Coordinator) savable(id string) (listing.Draft, error) {
	d, ok := c.store.Get(id)
	if !ok {
		return nil, errors.New("J011").WithDetail(fmt.Sprintf("draft %q is not cached", id))
	}
	if !listing.Savable(d) {
		return nil, errors.New("J012").WithDetail(fmt.Sprintf("draft %q has status %s", id, d.Status()))
	}
	return d, nil
}

func (c *Coordinator) run(t *Task, d listing.Draft, rollback func()) {
	defer close(t.done)

	ctx, span := metrics.StartSpan(c.ctx, "commit.listing",
		attribute.String("draft.id", t.id),
		attribute.String("draft.status", string(d.Status())),
	)
	start := time.Now()

	saved, err := c.call(ctx, d)
	t.result = Result{ID: t.id, Listing: saved, Err: err}

	if err != nil {
		rollback()
		c.metrics.ObserveSave(metrics.OutcomeError, time.Since(start))
		c.metrics.RecordRollback()
		c.logger.Warn("save failed, draft restored", "draft_id", t.id, "error", err)
		toast.WithTitle(c.notifier, toast.TypeError, "Failed to save listing", describe(d))
	} else {
		c.metrics.ObserveSave(metrics.OutcomeSuccess, time.Since(start))
		c.logger.Debug("draft saved", "draft_id", t.id, "listing_id", saved.ID)
	}
	metrics.EndSpan(span, err)
}

// call invokes the saver, converting a panic into an error.
func (c *Coordinator) call(ctx context.Context, d listing.Draft) (l listing.Listing, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("save panicked: %v", r)
		}
	}()
	return c.saver.Save(ctx, d)
}

func describe(d listing.Draft) string {
	title := listing.Title(d)
	if company := listing.Company(d); company != "" {
		return company + " / " + title + " was returned to your drafts."
	}
	return title + " was returned to your drafts."
}
