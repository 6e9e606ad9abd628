package urlparam

import (
	"net/url"
	"strconv"
)

// Codec converts between a typed value and the values stored under one
// query key.
//
// Serialize returning nil or an empty slice means the key is omitted.
// Multi-valued codecs return one element per repeated key.
// Deserialize reports false when the key is absent or cannot be parsed,
// in which case the caller falls back to its default.
type Codec[T any] struct {
	Serialize   func(T) []string
	Deserialize func(values url.Values, key string) (T, bool)
}

// complete reports whether both directions are present.
func (c Codec[T]) complete() bool {
	return c.Serialize != nil && c.Deserialize != nil
}

// Custom builds a codec from a serialize/deserialize pair.
func Custom[T any](serialize func(T) []string, deserialize func(url.Values, string) (T, bool)) Codec[T] {
	return Codec[T]{Serialize: serialize, Deserialize: deserialize}
}

// Scalar builds a single-valued codec from a formatter and a parser.
// An empty formatted string omits the key. A parse error reads as absent.
func Scalar[T any](format func(T) string, parse func(string) (T, error)) Codec[T] {
	return Codec[T]{
		Serialize: func(v T) []string {
			s := format(v)
			if s == "" {
				return nil
			}
			return []string{s}
		},
		Deserialize: func(values url.Values, key string) (T, bool) {
			var zero T
			raw, ok := first(values, key)
			if !ok {
				return zero, false
			}
			v, err := parse(raw)
			if err != nil {
				return zero, false
			}
			return v, true
		},
	}
}

// String stores the value verbatim. A present but empty value (?q=) reads
// as "".
var String = Codec[string]{
	Serialize: func(v string) []string { return []string{v} },
	Deserialize: func(values url.Values, key string) (string, bool) {
		return first(values, key)
	},
}

// Number stores a float64 in its shortest decimal form.
var Number = Scalar(
	func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) },
	func(s string) (float64, error) { return strconv.ParseFloat(s, 64) },
)

// Int stores a base-10 integer.
var Int = Scalar(strconv.Itoa, strconv.Atoi)

// Bool stores "true" or "false". Anything else reads as absent.
var Bool = Codec[bool]{
	Serialize: func(v bool) []string { return []string{strconv.FormatBool(v)} },
	Deserialize: func(values url.Values, key string) (bool, bool) {
		raw, ok := first(values, key)
		if !ok {
			return false, false
		}
		switch raw {
		case "true":
			return true, true
		case "false":
			return false, true
		}
		return false, false
	},
}

// Strings stores one repeated key per element: ?status=A&status=B.
// An empty slice omits the key.
var Strings = Codec[[]string]{
	Serialize: func(v []string) []string {
		if len(v) == 0 {
			return nil
		}
		out := make([]string, len(v))
		copy(out, v)
		return out
	},
	Deserialize: func(values url.Values, key string) ([]string, bool) {
		raw := values[key]
		if len(raw) == 0 {
			return nil, false
		}
		out := make([]string, len(raw))
		copy(out, raw)
		return out, true
	},
}

func first(values url.Values, key string) (string, bool) {
	raw, ok := values[key]
	if !ok || len(raw) == 0 {
		return "", false
	}
	return raw[0], true
}
