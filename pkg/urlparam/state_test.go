package urlparam

import (
	stderrors "errors"
	"net/url"
	"reflect"
	"testing"

	"github.com/jobtrail/jobtrail/internal/errors"
)

func TestStateDefaultWhenAbsent(t *testing.T) {
	loc := NewLocation("/listings", nil)
	q := NewState(loc, "q", "", String)

	if got := q.Get(); got != "" {
		t.Errorf("Get = %q, want empty default", got)
	}
	if q.IsSet() {
		t.Error("IsSet should be false for absent key")
	}
	if q.Key() != "q" {
		t.Errorf("Key = %q, want q", q.Key())
	}
}

func TestStateSetWritesReplace(t *testing.T) {
	loc := NewLocation("/listings", nil)
	q := NewState(loc, "q", "", String)

	q.Set("golang")

	if got := q.Get(); got != "golang" {
		t.Errorf("Get = %q, want golang", got)
	}
	if got := loc.Query().Get("q"); got != "golang" {
		t.Errorf("query q = %q, want golang", got)
	}
	if loc.HistoryLen() != 0 {
		t.Error("Set should not add a history entry")
	}
}

func TestStateSetDefaultRemovesKey(t *testing.T) {
	loc := NewLocation("/listings", url.Values{"sort": {"title:asc"}})
	before := loc.String()

	status := NewState(loc, "status", []string{}, Strings)
	status.Set([]string{"APPLIED", "OFFER_RECEIVED"})
	if got := loc.Query()["status"]; !reflect.DeepEqual(got, []string{"APPLIED", "OFFER_RECEIVED"}) {
		t.Fatalf("status = %v", got)
	}

	status.Set([]string{})
	if _, ok := loc.Query()["status"]; ok {
		t.Error("writing the default should remove the key")
	}
	if got := loc.String(); got != before {
		t.Errorf("String = %q, want %q", got, before)
	}
}

func TestStateReset(t *testing.T) {
	loc := NewLocation("/", nil)
	page := NewState(loc, "page", 1, Int)
	page.Set(3)
	if !page.IsSet() {
		t.Error("IsSet should be true after Set(3)")
	}

	page.Reset()
	if page.IsSet() || page.Get() != 1 {
		t.Errorf("after Reset Get = %d, IsSet = %v", page.Get(), page.IsSet())
	}
	if loc.String() != "/" {
		t.Errorf("String = %q, want /", loc.String())
	}
}

func TestStateStableReference(t *testing.T) {
	loc := NewLocation("/", url.Values{"status": {"SAVED", "APPLIED"}})
	status := NewState(loc, "status", []string{}, Strings)

	a := status.Get()
	b := status.Get()
	if &a[0] != &b[0] {
		t.Error("repeated Get of an unchanged value should return the same slice")
	}

	empty := NewState(loc, "missing", []string{}, Strings)
	x := empty.GetOr([]string{})
	y := empty.GetOr([]string{})
	if reflect.ValueOf(x).Pointer() != reflect.ValueOf(y).Pointer() {
		t.Error("GetOr with a rebuilt default should return a stable reference")
	}
}

func TestStateFollowsLocation(t *testing.T) {
	loc := NewLocation("/", nil)
	id := NewState(loc, "listingId", "", String)

	loc.Navigated(url.Values{"listingId": {"abc"}}, ModePush)

	if got := id.Get(); got != "abc" {
		t.Errorf("Get = %q, want abc", got)
	}
}

func TestNewStatePanicsWithoutCodec(t *testing.T) {
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok {
			t.Fatalf("recovered %v, want an error", r)
		}
		if !stderrors.Is(err, errors.New("J001")) {
			t.Errorf("recovered %v, want J001", err)
		}
	}()

	NewState(NewLocation("/", nil), "q", "", Codec[string]{Serialize: String.Serialize})
}
