// Package urlparam keeps typed view state in the page's query string.
//
// A Location is the session's address bar. State binds one typed value to
// one query key through a Codec, and Debounced puts a local echo with a
// trailing debounce in front of a State for free-typing inputs.
//
// Example:
//
//	loc := urlparam.NewLocation("/listings", nil)
//	status := urlparam.NewState(loc, "status", []string{}, urlparam.Strings)
//	search := urlparam.NewDebounced(urlparam.NewState(loc, "q", "", urlparam.String), 700*time.Millisecond)
//	defer search.Close()
//
//	search.Set("go")            // local echo now, URL write after 700ms of quiet
//	status.Set([]string{"APPLIED"})
//	status.Set([]string{})      // default: removes ?status entirely
//
// Every State write replaces the current history entry. Push is reserved for
// navigation the page performs explicitly.
package urlparam
