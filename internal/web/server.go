// Package web is the small operational HTTP surface: a health probe and an
// authenticated webhook that turns an ad-hoc order payload into a chat
// notification without waiting for the next poll.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"shopwatch/internal/notify"
	"shopwatch/internal/watch"
	"shopwatch/pkg/logx"
)

const secretHeader = "X-Auth-Secret"

type Config struct {
	Addr   string // default "127.0.0.1:8080"
	Secret string
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:8080"
	}
	return c
}

// Deps are the collaborators the handlers need; all funcs so tests can
// stub them without building the whole app.
type Deps struct {
	// Lookup resolves an account id to its current configuration.
	Lookup func(id string) (watch.Account, bool)
	// Notify enqueues an outbound notification.
	Notify func(n notify.Notification) error
	// SeenCount reports remembered message ids (health payload).
	SeenCount func() int64
}

type Server struct {
	cfg  Config
	deps Deps
	log  logx.Logger

	srv *http.Server
	ln  net.Listener
}

func New(cfg Config, deps Deps, log logx.Logger) *Server {
	return &Server{cfg: cfg.withDefaults(), deps: deps, log: log}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /hook/{account}", s.handleHook)
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("web server error", logx.Err(err))
		}
	}()
	s.log.Info("web listening", logx.String("addr", ln.Addr().String()))
	return nil
}

func (s *Server) Stop(ctx context.Context) {
	if s.srv == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_ = s.srv.Shutdown(shutdownCtx)
	s.srv = nil
	s.ln = nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var seen int64
	if s.deps.SeenCount != nil {
		seen = s.deps.SeenCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "seen": seen})
}

func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error": "unauthorized"})
		return
	}

	acct, ok := s.deps.Lookup(r.PathValue("account"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "unknown account"})
		return
	}

	var payload map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "bad json: " + err.Error()})
		return
	}

	err := s.deps.Notify(notify.Notification{
		Dest:    acct.Dest,
		Text:    orderMessage(acct.DisplayName, payload),
		Account: acct.ID,
		Kind:    "webhook",
	})
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) authorized(r *http.Request) bool {
	secret := strings.TrimSpace(s.cfg.Secret)
	if secret == "" {
		// no secret configured: reject rather than run open
		return false
	}
	got := r.Header.Get(secretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
