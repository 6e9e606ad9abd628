package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	jerrors "github.com/jobtrail/jobtrail/internal/errors"
	"github.com/jobtrail/jobtrail/pkg/ingest"
	"github.com/jobtrail/jobtrail/pkg/listing"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", WithLogger(quiet))
}

func TestIngest(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/listings/draft" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"status":"duplicate_url","id":"srv","url":"https://a","duplicateOf":{"id":"L1","title":"Old"},"duplicateOfApplicationId":"APP1"}`))
	})

	d, err := c.Ingest(context.Background(), ingest.Request{URL: "https://a", Content: "   "})
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]any{"url": "https://a"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("body = %v, want %v (blank content and empty id omitted)", got, want)
	}
	dup, ok := d.(listing.DuplicateURL)
	if !ok {
		t.Fatalf("got %T, want DuplicateURL", d)
	}
	if dup.DuplicateOf.ID != "L1" || dup.DuplicateOfApplicationID != "APP1" {
		t.Errorf("draft = %+v", dup)
	}
}

func TestIngestSendsContentAndID(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"status":"error","id":"x","url":"https://a","error":"blocked","html":null}`))
	})

	d, err := c.Ingest(context.Background(), ingest.Request{URL: "https://a", Content: "pasted", ID: "d1"})
	if err != nil {
		t.Fatal(err)
	}
	if got["content"] != "pasted" || got["id"] != "d1" {
		t.Errorf("body = %v", got)
	}
	if d.Status() != listing.StatusError {
		t.Errorf("status = %s", d.Status())
	}
}

func TestIngestHTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})

	_, err := c.Ingest(context.Background(), ingest.Request{URL: "https://a"})
	if jerrors.Code(err) != "J022" {
		t.Fatalf("err = %v, want J022", err)
	}
	if !strings.Contains(err.Error(), "Failed to ingest listing") {
		t.Errorf("err = %q", err.Error())
	}
	if detail := jerrors.FromError(err, "J022").Detail; !strings.Contains(detail, "502") {
		t.Errorf("detail %q should carry the status", detail)
	}
}

func TestSave(t *testing.T) {
	var got listing.Listing
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/listings" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(got)
	})

	q := "Go experience"
	d := listing.Unique{
		ID:  "d1",
		URL: "https://a",
		Listing: listing.Extraction{
			Title:  "Engineer",
			Skills: []listing.GroundedItem{{Value: "Go", Quote: &q}},
		},
	}
	saved, err := c.Save(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "d1" || !reflect.DeepEqual(got.Skills, []string{"Go"}) {
		t.Errorf("sent = %+v", got)
	}
	if saved.Title != "Engineer" {
		t.Errorf("saved = %+v", saved)
	}
}

func TestSaveRejectsUnsavable(t *testing.T) {
	c := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Error("no request expected")
	})
	if _, err := c.Save(context.Background(), listing.Pending{ID: "p"}); jerrors.Code(err) != "J012" {
		t.Errorf("err = %v, want J012", err)
	}
}

func TestFetchPage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/listings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("page") != "2" || q.Get("search") != "go" || q.Get("sort_by") != "title" || q.Get("sort_dir") != "asc" {
			t.Errorf("query = %v", q)
		}
		if !reflect.DeepEqual(q["status"], []string{"APPLIED", "OFFER_RECEIVED"}) {
			t.Errorf("status = %v", q["status"])
		}
		w.Write([]byte(`{"items":[{"id":"L1","title":"Engineer","currentStatus":"APPLIED"}],"page":2,"pages":3,"size":50,"total":101}`))
	})

	page, err := c.FetchPage(context.Background(), listing.PageQuery{
		Page:     2,
		Search:   "go",
		Statuses: []listing.ApplicationStatus{listing.Applied, listing.OfferReceived},
		Sort:     listing.Sort{Field: "title"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 101 || len(page.Items) != 1 || !page.HasNext() {
		t.Errorf("page = %+v", page)
	}
	if s := page.Items[0].CurrentStatus; s == nil || *s != listing.Applied {
		t.Errorf("currentStatus = %v", s)
	}
}

func TestFetchPageDecodeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`not json`))
	})
	if _, err := c.FetchPage(context.Background(), listing.PageQuery{}); err == nil {
		t.Error("expected decode error")
	}
}
