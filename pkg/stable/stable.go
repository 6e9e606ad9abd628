// Package stable collapses freshly computed composite values onto a
// previously seen reference when the two are deeply equal.
//
// Derived values such as a []string parsed from the query string are rebuilt
// on every read. Handing a new slice to a consumer that compares by identity
// (a memoised table, a change listener) makes it believe the value changed.
// A Value remembers what it returned last and keeps returning that same
// reference until the content actually differs.
package stable

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sync"
)

// Equal reports whether a and b are deeply equal as JSON documents.
//
// Two values are equal when they encode to the same JSON, which is the
// notion of equality the URL layer needs: a nil and an empty slice are
// different documents ("null" vs "[]"), while two separately allocated
// slices with the same elements are the same. Values that cannot be encoded
// fall back to reflect.DeepEqual.
func Equal(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(ja, jb)
}

// Value holds the last resolved value of type T.
// The zero Value is ready to use and safe for concurrent use.
type Value[T any] struct {
	mu  sync.Mutex
	cur T
	set bool
}

// New returns a Value seeded with initial.
func New[T any](initial T) *Value[T] {
	return &Value[T]{cur: initial, set: true}
}

// Resolve returns the held value if next is deeply equal to it, and
// otherwise stores next and returns it.
func (v *Value[T]) Resolve(next T) T {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.set && Equal(v.cur, next) {
		return v.cur
	}
	v.cur = next
	v.set = true
	return next
}

// Peek returns the held value without resolving anything.
func (v *Value[T]) Peek() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}
