package export

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"time"

	"github.com/jobtrail/jobtrail/pkg/drafts"
)

// DiskStore writes one JSON file per key under a directory.
type DiskStore struct {
	dir string
	now func() time.Time
}

// NewDiskStore creates dir if needed and returns a DiskStore rooted there.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &DiskStore{dir: dir, now: time.Now}, nil
}

// Put implements Store. The file is written to a temp name and renamed so
// a reader never sees a partial document.
func (s *DiskStore) Put(_ context.Context, key string, snap drafts.Snapshot) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	data, err := Encode(snap, s.now())
	if err != nil {
		return err
	}
	f, err := os.CreateTemp(s.dir, ".snapshot-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Get implements Store.
func (s *DiskStore) Get(_ context.Context, key string) (*Document, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, notFound(key)
		}
		return nil, err
	}
	return Decode(data)
}

func (s *DiskStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}
