package drafts

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/jobtrail/jobtrail/internal/errors"
	"github.com/jobtrail/jobtrail/pkg/listing"
)

func strPtr(s string) *string { return &s }

func unique(id, title string) listing.Unique {
	return listing.Unique{
		ID:  id,
		URL: "https://jobs.example/" + id,
		Listing: listing.Extraction{
			Title:   title,
			Company: "Acme",
			Skills:  []listing.GroundedItem{{Value: "Go", Quote: strPtr("Go experience")}},
		},
	}
}

func seed(t *testing.T, ds ...listing.Draft) *Store {
	t.Helper()
	s := New()
	if err := s.AppendAll(ds); err != nil {
		t.Fatalf("AppendAll: %v", err)
	}
	return s
}

func ids(s *Store) []string {
	return s.List().IDs()
}

func TestAppendPending(t *testing.T) {
	s := New()
	if err := s.AppendPending("a", "https://a"); err != nil {
		t.Fatalf("AppendPending: %v", err)
	}

	d, ok := s.Get("a")
	if !ok {
		t.Fatal("draft a missing")
	}
	if d.Status() != listing.StatusPending || d.DraftURL() != "https://a" {
		t.Errorf("got %+v", d)
	}

	err := s.AppendPending("a", "https://other")
	if !stderrors.Is(err, errors.New("J010")) {
		t.Errorf("duplicate append err = %v, want J010", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
	if d, _ := s.Get("a"); d.DraftURL() != "https://a" {
		t.Error("duplicate append must not touch the existing draft")
	}
}

func TestAppendAllRejectsRepeatsAtomically(t *testing.T) {
	s := New()
	err := s.AppendAll([]listing.Draft{listing.Pending{ID: "x"}, listing.Pending{ID: "y"}, listing.Pending{ID: "x"}})
	if errors.Code(err) != "J010" {
		t.Errorf("err = %v, want J010", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0 after a rejected batch", s.Len())
	}
}

func TestReplace(t *testing.T) {
	s := seed(t, listing.Pending{ID: "a", URL: "https://a"}, listing.Pending{ID: "b", URL: "https://b"})

	s.Replace("b", unique("b", "Engineer"))
	if d, _ := s.Get("b"); d.Status() != listing.StatusUnique {
		t.Errorf("status = %s, want unique", d.Status())
	}
	if got := ids(s); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("order = %v", got)
	}

	before := s.List()
	s.Replace("gone", unique("gone", "Ghost"))
	if s.Len() != 2 || &s.List()[0] != &before[0] {
		t.Error("Replace on an absent id should not publish")
	}
}

func TestResetToPending(t *testing.T) {
	s := seed(t, listing.Failed{ID: "a", URL: "https://a", Error: "timeout", HTML: strPtr("<html>")})

	s.ResetToPending("a")
	d, _ := s.Get("a")
	want := listing.Pending{ID: "a", URL: "https://a"}
	if d != want {
		t.Errorf("got %#v, want %#v", d, want)
	}

	s.ResetToPending("missing")
	if s.Len() != 1 {
		t.Error("ResetToPending on absent id should be a no-op")
	}
}

func TestPatchContent(t *testing.T) {
	dupURL := listing.DuplicateURL{ID: "d", URL: "https://d", DuplicateOf: listing.Listing{Title: "Original"}, DuplicateOfApplicationID: "app"}
	s := seed(t, unique("u", "First"), dupURL, listing.Pending{ID: "p"})

	s.PatchContent("u", listing.ExtractionPatch{Title: listing.Some("Second")})
	s.PatchContent("u", listing.ExtractionPatch{Title: listing.Some("Third"), Company: listing.Some("Globex")})
	s.PatchContent("u", listing.ExtractionPatch{Company: listing.Some("Initech")})

	d, _ := s.Get("u")
	u := d.(listing.Unique)
	if u.Listing.Title != "Third" || u.Listing.Company != "Initech" {
		t.Errorf("Listing = %+v, want last write per field", u.Listing)
	}
	if len(u.Listing.Skills) != 1 {
		t.Error("unpatched fields should survive")
	}

	for i := 0; i < 3; i++ {
		s.PatchContent("d", listing.ExtractionPatch{Title: listing.Some(fmt.Sprint("x", i))})
	}
	if got, _ := s.Get("d"); !reflect.DeepEqual(got, dupURL) {
		t.Errorf("duplicate_url draft changed: %#v", got)
	}

	s.PatchContent("p", listing.ExtractionPatch{Title: listing.Some("nope")})
	if got, _ := s.Get("p"); got.Status() != listing.StatusPending {
		t.Error("pending draft should be untouched")
	}
}

func TestPatchContentDuplicateContent(t *testing.T) {
	s := seed(t, listing.DuplicateContent{ID: "c", Listing: listing.Extraction{Title: "Mine"}, DuplicateOf: listing.Listing{Title: "Theirs"}})

	s.PatchContent("c", listing.ExtractionPatch{Title: listing.Some("Edited")})

	d, _ := s.Get("c")
	dc := d.(listing.DuplicateContent)
	if dc.Listing.Title != "Edited" || dc.DuplicateOf.Title != "Theirs" {
		t.Errorf("got %+v", dc)
	}
	if d.Status() != listing.StatusDuplicateContent {
		t.Errorf("status changed to %s", d.Status())
	}
}

func TestRemoveMany(t *testing.T) {
	s := seed(t, listing.Pending{ID: "a"}, listing.Pending{ID: "b"}, listing.Pending{ID: "c"})

	s.RemoveMany([]string{"a", "b"})
	if got := ids(s); !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("ids = %v, want [c]", got)
	}

	calls := 0
	s.Subscribe(func(Snapshot) { calls++ })
	s.RemoveMany([]string{"a", "b"})
	if got := ids(s); !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("ids = %v, want [c]", got)
	}
	if calls != 0 {
		t.Error("repeated RemoveMany should not publish")
	}
}

func TestMove(t *testing.T) {
	s := seed(t, listing.Pending{ID: "a"}, listing.Pending{ID: "b"}, listing.Pending{ID: "c"}, listing.Pending{ID: "d"})

	if err := s.Move("a", 2); err != nil {
		t.Fatal(err)
	}
	if got := ids(s); !reflect.DeepEqual(got, []string{"b", "c", "a", "d"}) {
		t.Errorf("after Move(a,2) = %v", got)
	}

	if err := s.Move("d", 0); err != nil {
		t.Fatal(err)
	}
	if got := ids(s); !reflect.DeepEqual(got, []string{"d", "b", "c", "a"}) {
		t.Errorf("after Move(d,0) = %v", got)
	}

	if err := s.Move("zz", 0); errors.Code(err) != "J011" {
		t.Errorf("unknown id err = %v, want J011", err)
	}
	if err := s.Move("a", 4); errors.Code(err) != "J013" {
		t.Errorf("bad index err = %v, want J013", err)
	}
}

func TestClear(t *testing.T) {
	s := seed(t, listing.Pending{ID: "a"})
	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Len = %d after Clear", s.Len())
	}
}

func TestRestore(t *testing.T) {
	a := unique("A", "Alpha")
	b := unique("B", "Beta")
	s := seed(t, a, b)

	snap := s.Snapshot()
	s.RemoveMany([]string{"A"})
	if got := ids(s); !reflect.DeepEqual(got, []string{"B"}) {
		t.Fatalf("ids = %v", got)
	}

	s.Restore(snap)
	if got := ids(s); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("ids = %v, want [A B]", got)
	}
	if got, _ := s.Get("A"); !reflect.DeepEqual(got, a) {
		t.Errorf("A = %#v, want pre-save value", got)
	}
}

func TestRestoreEntries(t *testing.T) {
	s := seed(t, listing.Pending{ID: "a"}, listing.Pending{ID: "b"}, listing.Pending{ID: "c"}, listing.Pending{ID: "d"})
	snap := s.Snapshot()

	s.RemoveMany([]string{"a", "b", "c"})
	s.AppendPending("e", "")

	s.RestoreEntries(snap, []string{"c", "a", "missing"})
	if got := ids(s); !reflect.DeepEqual(got, []string{"a", "c", "d", "e"}) {
		t.Errorf("ids = %v, want [a c d e]", got)
	}

	s.RestoreEntries(snap, []string{"a"})
	if s.Len() != 4 {
		t.Error("restoring a present id should be a no-op")
	}
}

func TestRestoreEntriesAtEnd(t *testing.T) {
	s := seed(t, listing.Pending{ID: "a"}, listing.Pending{ID: "b"})
	snap := s.Snapshot()
	s.RemoveMany([]string{"b"})
	s.AppendPending("c", "")

	s.RestoreEntries(snap, []string{"b"})
	if got := ids(s); !reflect.DeepEqual(got, []string{"a", "c", "b"}) {
		t.Errorf("ids = %v, want [a c b]", got)
	}
}

func TestSnapshotsAreImmutable(t *testing.T) {
	s := seed(t, listing.Pending{ID: "a"}, listing.Pending{ID: "b"})
	snap := s.List()

	s.Replace("a", unique("a", "Changed"))
	s.RemoveMany([]string{"b"})

	if snap[0].Status() != listing.StatusPending || len(snap) != 2 {
		t.Error("earlier snapshot was modified by a later mutation")
	}
}

func TestSubscribe(t *testing.T) {
	s := New()
	var got [][]string
	unsubscribe := s.Subscribe(func(snap Snapshot) { got = append(got, snap.IDs()) })

	s.AppendPending("a", "")
	s.AppendPending("b", "")
	unsubscribe()
	s.AppendPending("c", "")

	want := [][]string{{"a"}, {"a", "b"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("notifications = %v, want %v", got, want)
	}
}

func TestSubscriberEndsOnLatestSnapshot(t *testing.T) {
	s := seed(t, listing.Pending{ID: "a", URL: "https://jobs.example/a"})

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var got []listing.DraftStatus
	s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		got = append(got, snap[0].Status())
		first := len(got) == 1
		mu.Unlock()
		if first {
			close(entered)
			<-release
		}
	})

	done := make(chan struct{})
	go func() {
		s.Replace("a", listing.Failed{ID: "a", URL: "https://jobs.example/a", Error: "timeout"})
		close(done)
	}()
	<-entered

	// Must not wait for the blocked delivery.
	s.ResetToPending("a")
	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	want := []listing.DraftStatus{listing.StatusError, listing.StatusPending}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("delivered = %v, want %v", got, want)
	}
	if st := s.List()[0].Status(); st != listing.StatusPending {
		t.Errorf("store status = %s, want pending", st)
	}
}

func TestConcurrentMutationsDeliverLatest(t *testing.T) {
	s := New()
	var mu sync.Mutex
	var last Snapshot
	s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		last = snap
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AppendPending(fmt.Sprint(i), "")
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(last.IDs(), s.List().IDs()) {
		t.Errorf("last delivered %d drafts, store has %d", len(last), s.Len())
	}
}

func TestConcurrentMutations(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprint(i)
			if err := s.AppendPending(id, ""); err != nil {
				t.Error(err)
			}
			s.Replace(id, listing.Failed{ID: id, Error: "x"})
			_ = s.List()
		}(i)
	}
	wg.Wait()

	if s.Len() != 50 {
		t.Errorf("Len = %d, want 50", s.Len())
	}
	for _, d := range s.List() {
		if d.Status() != listing.StatusError {
			t.Errorf("%s status = %s", d.DraftID(), d.Status())
		}
	}
}
