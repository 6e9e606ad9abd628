// Package export writes the draft collection of a session to durable
// storage and reads it back.
//
// Drafts normally live only as long as the page session. Export is the
// explicit escape hatch: the page asks for a snapshot to be written under a
// key and may later import it into a fresh session.
//
// Three backends are provided:
//
//	export.NewMemoryStore()                 // tests and single-process use
//	export.NewDiskStore("/var/lib/jobtrail") // one JSON file per key
//	export.NewS3Store(ctx, export.S3Config{Bucket: "drafts"})
package export

import (
	"context"
	"encoding/json"
	"regexp"
	"time"

	"github.com/jobtrail/jobtrail/internal/errors"
	"github.com/jobtrail/jobtrail/pkg/drafts"
	"github.com/jobtrail/jobtrail/pkg/listing"
)

// ContentType is the media type of an encoded Document.
const ContentType = "application/json"

// Version is written into every Document.
const Version = 1

// Store persists draft snapshots by key.
type Store interface {
	// Put writes snap under key, replacing any previous document.
	Put(ctx context.Context, key string, snap drafts.Snapshot) error

	// Get reads the document stored under key. A missing key returns a
	// J023 error.
	Get(ctx context.Context, key string) (*Document, error)
}

// Document is the stored form of a snapshot.
type Document struct {
	Version int            `json:"version"`
	SavedAt time.Time      `json:"savedAt"`
	Drafts  listing.Drafts `json:"drafts"`
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// ValidateKey rejects keys that could escape a directory or bucket prefix.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) || key == "." || key == ".." {
		return errors.New("J024").WithDetail("key " + quote(key) + " is not allowed")
	}
	return nil
}

// Encode serializes snap as a Document stamped with now.
func Encode(snap drafts.Snapshot, now time.Time) ([]byte, error) {
	return json.Marshal(Document{
		Version: Version,
		SavedAt: now.UTC(),
		Drafts:  listing.Drafts(snap),
	})
}

// Decode parses a Document.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Snapshot returns the document's drafts as a snapshot suitable for
// drafts.Store.Restore.
func (d *Document) Snapshot() drafts.Snapshot {
	if d == nil {
		return nil
	}
	return drafts.Snapshot(d.Drafts)
}

func notFound(key string) error {
	return errors.New("J023").WithDetail("no snapshot under key " + quote(key))
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
