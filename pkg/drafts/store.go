// Package drafts holds the ordered, keyed collection of listing drafts for
// one page session.
//
// The collection is never backed by a server query, so nothing outside the
// named mutations below can add, drop or reorder a draft. Each mutation
// builds a new slice under the writer lock and publishes it atomically;
// readers always see a complete snapshot.
package drafts

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jobtrail/jobtrail/internal/errors"
	"github.com/jobtrail/jobtrail/pkg/listing"
)

// Snapshot is an immutable view of the collection in order.
// Callers must not modify it.
type Snapshot []listing.Draft

// IDs returns the draft ids in order.
func (s Snapshot) IDs() []string {
	out := make([]string, len(s))
	for i, d := range s {
		out[i] = d.DraftID()
	}
	return out
}

// Find returns the draft with id and its index, or -1.
func (s Snapshot) Find(id string) (listing.Draft, int) {
	for i, d := range s {
		if d.DraftID() == id {
			return d, i
		}
	}
	return nil, -1
}

// Store is the draft collection. The zero Store is empty and ready to use.
type Store struct {
	mu   sync.Mutex
	cur  atomic.Pointer[Snapshot]
	subs map[uint64]func(Snapshot)
	next uint64

	// version counts published snapshots; delivered is the last version
	// handed to subscribers. Only one goroutine delivers at a time.
	version   uint64
	delivered uint64
	notifying bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

// List returns the current snapshot.
func (s *Store) List() Snapshot {
	if p := s.cur.Load(); p != nil {
		return *p
	}
	return nil
}

// Snapshot is List under the name used for rollback.
func (s *Store) Snapshot() Snapshot {
	return s.List()
}

// Len returns the number of drafts.
func (s *Store) Len() int {
	return len(s.List())
}

// Get returns the draft with id.
func (s *Store) Get(id string) (listing.Draft, bool) {
	d, i := s.List().Find(id)
	return d, i >= 0
}

// Subscribe registers fn to receive published snapshots and returns a
// function that removes it. fn runs outside the lock on whichever mutating
// goroutine is delivering. Snapshots arrive in publish order and the last
// one fn sees is the current collection; a snapshot superseded while
// another was being delivered is skipped.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[uint64]func(Snapshot))
	}
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// mutate runs fn on the current snapshot under the writer lock. fn returns
// the next snapshot and whether anything changed; unchanged results are not
// published.
func (s *Store) mutate(fn func(cur Snapshot) (Snapshot, bool, error)) error {
	s.mu.Lock()
	next, changed, err := fn(s.List())
	if err != nil || !changed {
		s.mu.Unlock()
		return err
	}
	s.cur.Store(&next)
	s.version++
	if s.notifying {
		s.mu.Unlock()
		return nil
	}
	s.notifying = true
	s.mu.Unlock()

	s.notify()
	return nil
}

// notify delivers the latest snapshot until nothing newer has been
// published. Mutations made by other goroutines meanwhile return at once
// and are picked up here.
func (s *Store) notify() {
	finished := false
	defer func() {
		if !finished {
			s.mu.Lock()
			s.notifying = false
			s.mu.Unlock()
		}
	}()

	for {
		s.mu.Lock()
		if s.delivered == s.version {
			s.notifying = false
			s.mu.Unlock()
			finished = true
			return
		}
		s.delivered = s.version
		snap := s.List()
		subs := make([]func(Snapshot), 0, len(s.subs))
		for _, fn := range s.subs {
			subs = append(subs, fn)
		}
		s.mu.Unlock()

		for _, fn := range subs {
			fn(snap)
		}
	}
}

// Replace overwrites the draft with id. An absent id is a no-op, which is
// how late results for discarded drafts are dropped.
func (s *Store) Replace(id string, d listing.Draft) {
	s.mutate(func(cur Snapshot) (Snapshot, bool, error) {
		_, i := cur.Find(id)
		if i < 0 {
			return nil, false, nil
		}
		next := clone(cur)
		next[i] = d
		return next, true, nil
	})
}

// ResetToPending collapses the draft with id back to Pending, keeping its
// id and url. An absent id is a no-op.
func (s *Store) ResetToPending(id string) {
	s.mutate(func(cur Snapshot) (Snapshot, bool, error) {
		d, i := cur.Find(id)
		if i < 0 {
			return nil, false, nil
		}
		next := clone(cur)
		next[i] = listing.Pending{ID: d.DraftID(), URL: d.DraftURL()}
		return next, true, nil
	})
}

// AppendPending adds a Pending draft at the end. It returns J010 and leaves
// the store untouched if id is already present.
func (s *Store) AppendPending(id, url string) error {
	return s.AppendAll([]listing.Draft{listing.Pending{ID: id, URL: url}})
}

// AppendAll adds drafts at the end in order. It returns J010 without
// changing anything if any id is already present or repeated.
func (s *Store) AppendAll(ds []listing.Draft) error {
	return s.mutate(func(cur Snapshot) (Snapshot, bool, error) {
		seen := make(map[string]bool, len(cur)+len(ds))
		for _, d := range cur {
			seen[d.DraftID()] = true
		}
		for _, d := range ds {
			if seen[d.DraftID()] {
				return nil, false, errors.New("J010").WithDetail(fmt.Sprintf("draft %q is already cached", d.DraftID()))
			}
			seen[d.DraftID()] = true
		}
		if len(ds) == 0 {
			return nil, false, nil
		}
		next := make(Snapshot, 0, len(cur)+len(ds))
		next = append(next, cur...)
		next = append(next, ds...)
		return next, true, nil
	})
}

// PatchContent merges patch into the extracted content of the draft with
// id. Only Unique and DuplicateContent drafts carry editable content; any
// other variant, or an absent id, is left alone. The status never changes.
func (s *Store) PatchContent(id string, patch listing.ExtractionPatch) {
	s.mutate(func(cur Snapshot) (Snapshot, bool, error) {
		d, i := cur.Find(id)
		if i < 0 {
			return nil, false, nil
		}

		var patched listing.Draft
		switch v := d.(type) {
		case listing.Unique:
			v.Listing = patch.Apply(v.Listing)
			patched = v
		case listing.DuplicateContent:
			v.Listing = patch.Apply(v.Listing)
			patched = v
		case listing.Pending, listing.DuplicateURL, listing.Failed:
			return nil, false, nil
		default:
			return nil, false, nil
		}

		next := clone(cur)
		next[i] = patched
		return next, true, nil
	})
}

// RemoveMany drops every listed id. Unknown ids are ignored.
func (s *Store) RemoveMany(ids []string) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	s.mutate(func(cur Snapshot) (Snapshot, bool, error) {
		next := make(Snapshot, 0, len(cur))
		for _, d := range cur {
			if !drop[d.DraftID()] {
				next = append(next, d)
			}
		}
		return next, len(next) != len(cur), nil
	})
}

// Move places the draft with id at index, shifting the others. It returns
// J011 for an unknown id and J013 for an index outside the collection.
func (s *Store) Move(id string, index int) error {
	return s.mutate(func(cur Snapshot) (Snapshot, bool, error) {
		d, from := cur.Find(id)
		if from < 0 {
			return nil, false, errors.New("J011").WithDetail(fmt.Sprintf("draft %q is not cached", id))
		}
		if index < 0 || index >= len(cur) {
			return nil, false, errors.New("J013").WithDetail(fmt.Sprintf("index %d outside 0..%d", index, len(cur)-1))
		}
		if from == index {
			return nil, false, nil
		}

		rest := make(Snapshot, 0, len(cur)-1)
		rest = append(rest, cur[:from]...)
		rest = append(rest, cur[from+1:]...)

		next := make(Snapshot, 0, len(cur))
		next = append(next, rest[:index]...)
		next = append(next, d)
		next = append(next, rest[index:]...)
		return next, true, nil
	})
}

// Clear drops every draft.
func (s *Store) Clear() {
	s.mutate(func(cur Snapshot) (Snapshot, bool, error) {
		return Snapshot{}, len(cur) > 0, nil
	})
}

// Restore publishes snap as the whole collection. Anything that changed
// since snap was taken is lost.
func (s *Store) Restore(snap Snapshot) {
	s.mutate(func(Snapshot) (Snapshot, bool, error) {
		return clone(snap), true, nil
	})
}

// RestoreEntries puts the drafts with ids from snap back into the current
// collection. Each goes in front of the first draft that followed it in
// snap and is still present, or at the end if none is. Ids that are not in
// snap, or are already present, are skipped.
func (s *Store) RestoreEntries(snap Snapshot, ids []string) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	s.mutate(func(cur Snapshot) (Snapshot, bool, error) {
		next := clone(cur)
		changed := false
		for si, d := range snap {
			if !want[d.DraftID()] {
				continue
			}
			if _, i := next.Find(d.DraftID()); i >= 0 {
				continue
			}
			at := len(next)
			for _, after := range snap[si+1:] {
				if _, i := next.Find(after.DraftID()); i >= 0 {
					at = i
					break
				}
			}
			next = append(next, nil)
			copy(next[at+1:], next[at:])
			next[at] = d
			changed = true
		}
		return next, changed, nil
	})
}

func clone(s Snapshot) Snapshot {
	out := make(Snapshot, len(s))
	copy(out, s)
	return out
}
