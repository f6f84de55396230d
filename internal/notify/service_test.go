package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shopwatch/internal/watch"
	"shopwatch/pkg/logx"
)

type fakeTransport struct {
	mu    sync.Mutex
	texts []string
	fails int // fail this many calls before succeeding
}

func (f *fakeTransport) SendText(ctx context.Context, dest watch.Destination, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("flaky")
	}
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeTransport) SendPhoto(ctx context.Context, dest watch.Destination, img, caption string) error {
	return f.SendText(ctx, dest, img+"|"+caption)
}

func (f *fakeTransport) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestDeliversQueuedNotifications(t *testing.T) {
	tr := &fakeTransport{}
	s := New(Config{Workers: 1, RatePerSec: 100}, tr, nil, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.SendText(context.Background(), watch.Destination{ChatID: 1}, "hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	waitFor(t, func() bool { return len(tr.sent()) == 1 })
	if got := tr.sent()[0]; got != "hello" {
		t.Fatalf("delivered %q", got)
	}
}

func TestRetriesThenSucceeds(t *testing.T) {
	tr := &fakeTransport{fails: 2}
	s := New(Config{Workers: 1, RatePerSec: 100, RetryMax: 3, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}, tr, nil, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	_ = s.SendText(context.Background(), watch.Destination{ChatID: 1}, "eventually")
	waitFor(t, func() bool { return len(tr.sent()) == 1 })
}

func TestQueueFullDropsInsteadOfBlocking(t *testing.T) {
	tr := &fakeTransport{}
	s := New(Config{Workers: 1, QueueSize: 1, RatePerSec: 1}, tr, nil, logx.Nop())
	// not started: queue nil -> stopped error
	if err := s.SendText(context.Background(), watch.Destination{}, "x"); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}

	s.Start(context.Background())
	defer s.Stop(context.Background())

	// saturate: rate 1/s keeps the worker busy, queue size 1
	sawFull := false
	for i := 0; i < 50; i++ {
		if err := s.SendText(context.Background(), watch.Destination{}, "spam"); errors.Is(err, ErrQueueFull) {
			sawFull = true
			break
		}
	}
	if !sawFull {
		t.Fatal("queue never reported full")
	}
}

func TestStopDrainsQueue(t *testing.T) {
	tr := &fakeTransport{}
	s := New(Config{Workers: 1, RatePerSec: 1000}, tr, nil, logx.Nop())
	s.Start(context.Background())

	for i := 0; i < 5; i++ {
		_ = s.SendText(context.Background(), watch.Destination{}, "drain")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)

	if got := len(tr.sent()); got != 5 {
		t.Fatalf("drained %d, want 5", got)
	}
	if err := s.SendText(context.Background(), watch.Destination{}, "late"); !errors.Is(err, ErrStopped) {
		t.Fatalf("post-stop err = %v, want ErrStopped", err)
	}
}
