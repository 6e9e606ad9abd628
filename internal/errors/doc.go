// Package errors provides coded, actionable errors for jobtrail.
//
// Every contract violation the draft layer can detect has a registered code
// that maps to a category, a short message, a longer explanation and a
// documentation URL:
//
//	J001  missing URL parameter codec (panics at construction)
//	J010  duplicate draft id on append
//	J011  unknown draft id
//	J012  draft status cannot be saved
//	J013  invalid reorder index
//	J020  unknown session
//	J021  malformed request
//	J022  listings API call failed
//	J023  snapshot not found
//	J024  invalid snapshot key
//	J040  invalid configuration
//	J041  snapshot storage not configured
//	J042  configuration file not found
//	J043  configuration file unreadable
//
// # Usage
//
//	err := errors.New("J012").
//	    WithDetail(fmt.Sprintf("draft %s has status %s", id, status)).
//	    WithSuggestion("Only unique and duplicate_content drafts can be saved")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR J012: Draft cannot be saved
//	//
//	//   draft 7c1e... has status pending
//	//
//	//   Hint: Only unique and duplicate_content drafts can be saved
//
// Errors compare with errors.Is by code, so callers can match on a bare
// template:
//
//	if errors.Is(err, errors.New("J011")) { ... }
package errors
