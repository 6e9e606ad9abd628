// Package server exposes page sessions to the browser.
//
// Each open page creates a session with POST /sessions and then drives it
// through JSON endpoints under /sessions/{sid}: ingesting and editing
// drafts, saving them, reporting its own navigation and reading the
// listings table. State changes the server makes flow back over the
// session's websocket at /sessions/{sid}/ws as events:
//
//	{"event":"url","data":{"query":"sort=title%3Adesc","mode":"replace"}}
//	{"event":"drafts","data":[{"id":"…","status":"pending","url":"…"}]}
//	{"event":"jobtrail:toast","data":{"level":"error","title":"…","message":"…"}}
//
// Errors are returned as {code, message, detail} with a status derived
// from the code.
package server
