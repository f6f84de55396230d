// Package notify is the async outbound pipeline: bounded queue, worker
// pool, rate limit, retry with backoff. Delivery failures are logged and
// audited, never surfaced to the poll loop.
package notify

import (
	"context"
	"errors"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"shopwatch/internal/storage"
	"shopwatch/internal/watch"
	"shopwatch/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

// Transport is the actual chat API; satisfied by the telegram adapter.
type Transport interface {
	SendText(ctx context.Context, dest watch.Destination, text string) error
	SendPhoto(ctx context.Context, dest watch.Destination, img, caption string) error
}

// Config durations of zero fall back to defaults.
type Config struct {
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 3
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	return c
}

type job struct {
	dest    watch.Destination
	text    string
	img     string // empty: plain text
	account string
	kind    string
}

// Service implements watch.Sender. One Service per process.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	tr    Transport
	store storage.Store // may be nil

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	queue     chan job

	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}

func New(cfg Config, tr Transport, store storage.Store, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		log:     log,
		tr:      tr,
		store:   store,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	workers := s.cfg.Workers
	q := s.queue
	rctx := s.runCtx
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		i := i
		s.workerWG.Add(1)
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in notify worker",
						logx.Int("worker", i),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			for j := range q {
				select {
				case <-rctx.Done():
					return
				default:
				}
				s.sendWithRetry(rctx, j)
			}
		}()
	}
	s.log.Info("notifier started", logx.Int("workers", workers), logx.Int("rate_per_sec", s.cfg.RatePerSec))
}

// Stop stops intake and drains the queue best-effort until ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q := s.queue
	cancel := s.runCancel
	if q == nil {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.queue = nil
	s.runCancel = nil
	s.mu.Unlock()

	close(q)
	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	if cancel != nil {
		cancel()
	}
	s.log.Info("notifier stopped")
}

// Notification is one outbound item. Account and Kind only feed the audit
// log; Image turns the delivery into a photo with caption.
type Notification struct {
	Dest    watch.Destination
	Text    string
	Image   string
	Account string
	Kind    string
}

// Notify enqueues; it never blocks the caller. A full queue drops the
// notification with an error the caller will log and move on from.
func (s *Service) Notify(n Notification) error {
	if n.Kind == "" {
		n.Kind = "alert"
	}
	return s.enqueue(job{dest: n.Dest, text: n.Text, img: n.Image, account: n.Account, kind: n.Kind})
}

// SendText and SendPhoto make *Service a watch.Sender.
func (s *Service) SendText(ctx context.Context, dest watch.Destination, text string) error {
	return s.enqueue(job{dest: dest, text: text, kind: "alert"})
}

func (s *Service) SendPhoto(ctx context.Context, dest watch.Destination, img, caption string) error {
	return s.enqueue(job{dest: dest, text: caption, img: img, kind: "digest"})
}

func (s *Service) enqueue(j job) error {
	s.mu.Lock()
	q := s.queue
	ok := s.accepting
	s.mu.Unlock()
	if !ok || q == nil {
		return ErrStopped
	}
	select {
	case q <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Service) sendWithRetry(ctx context.Context, j job) {
	cfg := s.cfg
	maxAttempts := 1 + cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}

		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		var err error
		if j.img != "" {
			err = s.tr.SendPhoto(callCtx, j.dest, j.img, j.text)
		} else {
			err = s.tr.SendText(callCtx, j.dest, j.text)
		}
		cancel()
		if err == nil {
			s.audit(j, true, "")
			return
		}
		lastErr = err
		s.log.Debug("send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return
		}
	}

	s.log.Warn("notification undeliverable", logx.Int64("chat_id", j.dest.ChatID), logx.Err(lastErr))
	s.audit(j, false, lastErr.Error())
}

func (s *Service) audit(j job, ok bool, errText string) {
	if s.store == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.store.AppendNotification(actx, storage.NotificationEntry{
		At:      time.Now(),
		Account: j.account,
		ChatID:  j.dest.ChatID,
		Kind:    j.kind,
		OK:      ok,
		Error:   errText,
		Chars:   len(j.text),
	})
	if err != nil {
		s.log.Debug("audit append failed", logx.Err(err))
	}
}

// retryDelay: exponential backoff with jitter 0.7..1.3, capped.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	if d < 0 {
		return 0
	}
	return d
}
