package urlparam

import (
	"net/url"

	"github.com/jobtrail/jobtrail/internal/errors"
	"github.com/jobtrail/jobtrail/pkg/stable"
)

// State is a typed value bound to one query key of a Location.
//
// Reads always derive from the current query, so the Location stays the
// single source of truth. Writing the default removes the key.
type State[T any] struct {
	loc    *Location
	key    string
	def    T
	codec  Codec[T]
	stable stable.Value[T]
}

// NewState binds key on loc. It panics with J001 if codec is incomplete or
// loc is nil; both are programming errors.
func NewState[T any](loc *Location, key string, def T, codec Codec[T]) *State[T] {
	if !codec.complete() {
		panic(errors.New("J001").WithDetail("key " + key + " has no serialize or deserialize function"))
	}
	if loc == nil {
		panic(errors.New("J001").WithDetail("key " + key + " is not bound to a location"))
	}
	return &State[T]{loc: loc, key: key, def: def, codec: codec}
}

// Key returns the bound query key.
func (s *State[T]) Key() string {
	return s.key
}

// Location returns the Location the state is bound to.
func (s *State[T]) Location() *Location {
	return s.loc
}

// Default returns the default value.
func (s *State[T]) Default() T {
	return s.def
}

// Get returns the decoded value or the default when the key is absent.
// Repeated reads of an unchanged value return the same reference.
func (s *State[T]) Get() T {
	return s.GetOr(s.def)
}

// GetOr is Get with a caller-supplied default. Callers that rebuild their
// default on every call still get a stable reference back.
func (s *State[T]) GetOr(def T) T {
	return s.stable.Resolve(s.decode(s.loc.Query(), def))
}

func (s *State[T]) decode(q url.Values, def T) T {
	if v, ok := s.codec.Deserialize(q, s.key); ok {
		return v
	}
	return def
}

// Set writes v. The default removes the key. The current history entry is
// replaced.
func (s *State[T]) Set(v T) {
	var vals []string
	if !stable.Equal(v, s.def) {
		vals = s.codec.Serialize(v)
	}
	s.loc.Update(ModeReplace, func(q url.Values) {
		if len(vals) == 0 {
			q.Del(s.key)
			return
		}
		q[s.key] = vals
	})
}

// Reset writes the default.
func (s *State[T]) Reset() {
	s.Set(s.def)
}

// IsSet reports whether the current value differs from the default.
func (s *State[T]) IsSet() bool {
	return !stable.Equal(s.Get(), s.def)
}
