package watch

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash"
)

// Message is one normalized chat entry from the message-list endpoint.
type Message struct {
	ID   string
	User string
	Text string
}

// BadPayloadError marks a message-list response that is not a JSON list (or
// a known wrapper around one). Subject to cooldown-gated reporting.
type BadPayloadError struct {
	Err error
}

func (e *BadPayloadError) Error() string {
	return fmt.Sprintf("bad message payload: %v", e.Err)
}

func (e *BadPayloadError) Unwrap() error { return e.Err }

// Field key candidates, most specific first. The upstream response shape is
// not under our control, so we probe a few known spellings.
var (
	idKeys   = []string{"stable_id", "message_id", "id"}
	userKeys = []string{"user_id", "user", "username", "buyer"}
	textKeys = []string{"message", "text", "content"}
)

// wrapperKeys are object keys that may hold the actual list when the
// endpoint wraps its payload.
var wrapperKeys = []string{"data", "items", "rows", "list", "orders", "result"}

// ExtractEntries parses the raw message-list body into normalized entries.
// Each entry's id is the explicit id field when present, otherwise a content
// hash of (user, text) — meaning two distinct messages with identical user
// and text collapse to one id. Known caveat, kept deliberately.
func ExtractEntries(body string) ([]Message, error) {
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil, &BadPayloadError{Err: err}
	}

	rows, ok := asRows(v)
	if !ok {
		return nil, &BadPayloadError{Err: fmt.Errorf("payload is not a list")}
	}

	out := make([]Message, 0, len(rows))
	for _, row := range rows {
		m := Message{
			ID:   pick(row, idKeys),
			User: pick(row, userKeys),
			Text: pick(row, textKeys),
		}
		if m.ID == "" {
			m.ID = contentID(m.User, m.Text)
		}
		out = append(out, m)
	}
	return out, nil
}

func asRows(v any) ([]map[string]any, bool) {
	list, ok := v.([]any)
	if !ok {
		obj, isObj := v.(map[string]any)
		if !isObj {
			return nil, false
		}
		for _, k := range wrapperKeys {
			if inner, isList := obj[k].([]any); isList {
				list = inner
				ok = true
				break
			}
		}
		if !ok {
			return nil, false
		}
	}

	rows := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if row, isObj := item.(map[string]any); isObj {
			rows = append(rows, row)
		}
	}
	return rows, true
}

// pick returns the first non-empty value among candidate keys, rendered as
// a string (ids arrive as numbers on some shops).
func pick(row map[string]any, keys []string) string {
	for _, k := range keys {
		v, ok := row[k]
		if !ok || v == nil {
			continue
		}
		switch x := v.(type) {
		case string:
			if x != "" {
				return x
			}
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			// not a useful id/user/text; skip
		default:
			return fmt.Sprint(x)
		}
	}
	return ""
}

func contentID(user, text string) string {
	h := xxhash.New()
	_, _ = h.Write([]byte(user))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(text))
	return fmt.Sprintf("x%016x", h.Sum64())
}

// dedup returns the entries not yet in seen, then replaces seen with
// exactly the ids observed in this response (bounded memory: an id absent
// from the newest fetch is forgotten). On a baseline pass entries are
// registered but never returned.
func dedup(entries []Message, st *State, baseline bool) []Message {
	var fresh []Message
	next := make(map[string]struct{}, len(entries))
	for _, m := range entries {
		if _, ok := next[m.ID]; ok {
			continue // duplicate within one response
		}
		next[m.ID] = struct{}{}
		if baseline {
			continue
		}
		if _, ok := st.Seen[m.ID]; !ok {
			fresh = append(fresh, m)
		}
	}
	st.Seen = next
	return fresh
}
