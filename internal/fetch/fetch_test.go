package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExecuteReplaysTemplate(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("X-Session"); got != "abc123" {
			t.Errorf("X-Session = %q, want abc123", got)
		}
		b := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(b)
		if string(b) != `{"page":1}` {
			t.Errorf("body = %q", string(b))
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("1|2|3"))
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	resp, err := c.Execute(context.Background(), Template{
		Method:  "post",
		URL:     srv.URL,
		Headers: map[string]string{"X-Session": "abc123"},
		Body:    `{"page":1}`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Status != http.StatusOK || resp.Body != "1|2|3" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestExecuteNon2xxIsNotAnError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<html>login</html>"))
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	resp, err := c.Execute(context.Background(), Template{URL: srv.URL})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Status != http.StatusForbidden {
		t.Fatalf("Status = %d, want 403", resp.Status)
	}
}

func TestExecuteConnectionFailureIsNetworkError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient(time.Second)
	_, err := c.Execute(context.Background(), Template{URL: srv.URL})
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v, want *NetworkError", err)
	}
}
