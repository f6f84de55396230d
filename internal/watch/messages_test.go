package watch

import (
	"errors"
	"testing"
)

func TestExtractEntriesFlexibleKeys(t *testing.T) {
	t.Parallel()
	body := `[
		{"stable_id":"m1","user_id":"alice","message":"hello"},
		{"id":7,"username":"bob","text":"price?"},
		{"buyer":"carol","content":"thanks"}
	]`
	got, err := ExtractEntries(body)
	if err != nil {
		t.Fatalf("ExtractEntries: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != "m1" || got[0].User != "alice" || got[0].Text != "hello" {
		t.Fatalf("entry 0 = %+v", got[0])
	}
	if got[1].ID != "7" || got[1].User != "bob" {
		t.Fatalf("entry 1 = %+v", got[1])
	}
	// no explicit id: content hash fallback
	if got[2].ID == "" || got[2].ID == got[0].ID {
		t.Fatalf("entry 2 id = %q", got[2].ID)
	}
}

func TestExtractEntriesWrappedList(t *testing.T) {
	t.Parallel()
	body := `{"data":[{"user_id":"u","message":"hi"}]}`
	got, err := ExtractEntries(body)
	if err != nil || len(got) != 1 {
		t.Fatalf("got %v, err %v", got, err)
	}
}

func TestExtractEntriesBadPayload(t *testing.T) {
	t.Parallel()
	for _, body := range []string{`{"data":"nope"}`, `"just a string"`, `{broken`} {
		_, err := ExtractEntries(body)
		var bp *BadPayloadError
		if !errors.As(err, &bp) {
			t.Fatalf("ExtractEntries(%q) err = %v, want *BadPayloadError", body, err)
		}
	}
}

func TestContentHashCollapsesIdenticalPairs(t *testing.T) {
	t.Parallel()
	body := `[{"user_id":"u","message":"hi"},{"user_id":"u","message":"hi"}]`
	got, err := ExtractEntries(body)
	if err != nil {
		t.Fatalf("ExtractEntries: %v", err)
	}
	if got[0].ID != got[1].ID {
		t.Fatal("identical (user, text) must hash to the same id")
	}
}

func TestDedupRoundTrip(t *testing.T) {
	t.Parallel()
	st := newState()
	first := []Message{{ID: "a"}, {ID: "b"}}

	if fresh := dedup(first, st, true); len(fresh) != 0 {
		t.Fatalf("baseline pass returned %d entries, want 0", len(fresh))
	}
	if fresh := dedup(first, st, false); len(fresh) != 0 {
		t.Fatalf("same list twice returned %d new, want 0", len(fresh))
	}

	second := []Message{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	fresh := dedup(second, st, false)
	if len(fresh) != 1 || fresh[0].ID != "c" {
		t.Fatalf("one added entry must yield exactly it: %+v", fresh)
	}
}

func TestDedupPrunesStaleIDs(t *testing.T) {
	t.Parallel()
	st := newState()
	dedup([]Message{{ID: "old"}, {ID: "keep"}}, st, true)

	// "old" fell out of the feed; it must be forgotten.
	dedup([]Message{{ID: "keep"}}, st, false)
	if _, ok := st.Seen["old"]; ok {
		t.Fatal("stale id not pruned")
	}

	// ...so if it ever reappears it counts as new again.
	fresh := dedup([]Message{{ID: "keep"}, {ID: "old"}}, st, false)
	if len(fresh) != 1 || fresh[0].ID != "old" {
		t.Fatalf("reappearing pruned id must be new: %+v", fresh)
	}
}
