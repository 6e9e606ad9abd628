package urlparam

import (
	"net/url"
	"sync"
)

// URLMode determines how a query change is recorded in history.
type URLMode int

const (
	// ModeReplace rewrites the current history entry.
	ModeReplace URLMode = iota

	// ModePush adds a new history entry.
	ModePush
)

// String returns "replace" or "push".
func (m URLMode) String() string {
	if m == ModePush {
		return "push"
	}
	return "replace"
}

// ParseMode maps "push" to ModePush and anything else to ModeReplace.
func ParseMode(s string) URLMode {
	if s == "push" {
		return ModePush
	}
	return ModeReplace
}

// Change describes one query update.
type Change struct {
	Query url.Values
	Mode  URLMode

	// External is set when the browser reported the change (back, forward,
	// a typed address) rather than the page writing it.
	External bool
}

// Navigator mirrors page-initiated query changes to the browser.
type Navigator interface {
	Navigate(query url.Values, mode URLMode)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(query url.Values, mode URLMode)

// Navigate calls f.
func (f NavigatorFunc) Navigate(query url.Values, mode URLMode) { f(query, mode) }

// Location is the address bar of one page: a path, the current query and
// the history of queries behind it. It is safe for concurrent use.
// Listeners and the navigator are called outside the lock, in commit order,
// by one goroutine at a time.
type Location struct {
	mu        sync.Mutex
	path      string
	query     url.Values
	history   []string
	listeners map[uint64]func(Change)
	nextID    uint64
	nav       Navigator

	queue     []delivery
	notifying bool
}

// delivery is one committed change waiting for its listeners. nav is nil
// for changes the browser made.
type delivery struct {
	change Change
	nav    Navigator
}

// NewLocation returns a Location at path with the given initial query.
func NewLocation(path string, query url.Values) *Location {
	return &Location{
		path:      path,
		query:     cloneValues(query),
		listeners: make(map[uint64]func(Change)),
	}
}

// SetNavigator installs the navigator that receives page-initiated changes.
func (l *Location) SetNavigator(nav Navigator) {
	l.mu.Lock()
	l.nav = nav
	l.mu.Unlock()
}

// Path returns the page path.
func (l *Location) Path() string {
	return l.path
}

// Query returns a copy of the current query.
func (l *Location) Query() url.Values {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneValues(l.query)
}

// String returns the path plus the encoded query.
func (l *Location) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if enc := l.query.Encode(); enc != "" {
		return l.path + "?" + enc
	}
	return l.path
}

// HistoryLen returns the number of entries behind the current one.
func (l *Location) HistoryLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.history)
}

// Update applies fn to a copy of the query and commits the result with the
// given mode. An update that leaves the encoded query unchanged is dropped:
// no history entry, no listener call.
func (l *Location) Update(mode URLMode, fn func(q url.Values)) {
	l.mu.Lock()
	next := cloneValues(l.query)
	fn(next)
	if next.Encode() == l.query.Encode() {
		l.mu.Unlock()
		return
	}
	if mode == ModePush {
		l.history = append(l.history, l.query.Encode())
	}
	l.query = next
	l.publish(delivery{change: Change{Query: cloneValues(next), Mode: mode}, nav: l.nav})
}

// Replace sets the whole query in place.
func (l *Location) Replace(query url.Values) {
	l.Update(ModeReplace, func(q url.Values) { replaceAll(q, query) })
}

// Push sets the whole query as a new history entry.
func (l *Location) Push(query url.Values) {
	l.Update(ModePush, func(q url.Values) { replaceAll(q, query) })
}

// Navigated records a query change the browser made on its own. Listeners
// see it as External; the navigator is not called back.
func (l *Location) Navigated(query url.Values, mode URLMode) {
	l.mu.Lock()
	if query.Encode() == l.query.Encode() {
		l.mu.Unlock()
		return
	}
	if mode == ModePush {
		l.history = append(l.history, l.query.Encode())
	}
	l.query = cloneValues(query)
	l.publish(delivery{change: Change{Query: cloneValues(query), Mode: mode, External: true}})
}

// Back pops one history entry. It reports false when there is none.
func (l *Location) Back() bool {
	l.mu.Lock()
	if len(l.history) == 0 {
		l.mu.Unlock()
		return false
	}
	prev := l.history[len(l.history)-1]
	l.history = l.history[:len(l.history)-1]
	q, err := url.ParseQuery(prev)
	if err != nil {
		q = url.Values{}
	}
	l.query = q
	l.publish(delivery{change: Change{Query: cloneValues(q), Mode: ModeReplace, External: true}})
	return true
}

// Subscribe registers fn for every committed change and returns a function
// that removes it.
func (l *Location) Subscribe(fn func(Change)) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.listeners, id)
			l.mu.Unlock()
		})
	}
}

// snapshotListeners must be called with l.mu held.
func (l *Location) snapshotListeners() []func(Change) {
	out := make([]func(Change), 0, len(l.listeners))
	for _, fn := range l.listeners {
		out = append(out, fn)
	}
	return out
}

// publish queues d and drains the queue unless another goroutine already
// is. A change committed during delivery waits its turn instead of racing
// the one in flight. It must be called with l.mu held and releases it.
func (l *Location) publish(d delivery) {
	l.queue = append(l.queue, d)
	if l.notifying {
		l.mu.Unlock()
		return
	}
	l.notifying = true
	for len(l.queue) > 0 {
		next := l.queue[0]
		l.queue = l.queue[1:]
		listeners := l.snapshotListeners()
		l.mu.Unlock()

		l.deliver(next, listeners)
		l.mu.Lock()
	}
	l.queue = nil
	l.notifying = false
	l.mu.Unlock()
}

// deliver runs one delivery. A panicking listener resets the queue so
// later commits are still delivered.
func (l *Location) deliver(d delivery, listeners []func(Change)) {
	ok := false
	defer func() {
		if !ok {
			l.mu.Lock()
			l.queue = nil
			l.notifying = false
			l.mu.Unlock()
		}
	}()

	if d.nav != nil {
		d.nav.Navigate(cloneValues(d.change.Query), d.change.Mode)
	}
	for _, fn := range listeners {
		fn(d.change)
	}
	ok = true
}

func replaceAll(dst, src url.Values) {
	for k := range dst {
		delete(dst, k)
	}
	for k, v := range src {
		dst[k] = append([]string(nil), v...)
	}
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
