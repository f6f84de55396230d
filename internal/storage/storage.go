// Package storage is the optional persistence layer: per-account daily
// aggregates (so a mid-day restart keeps the day's counts) and an audit log
// of dispatched notifications.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"shopwatch/pkg/logx"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage. If Driver is empty or "none", storage is
// disabled and Open returns (nil, nil).
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite busy_timeout; 0 means default
}

// NotificationEntry records one outbound delivery attempt.
// Keep it compact and schema-stable.
type NotificationEntry struct {
	At      time.Time
	Account string
	ChatID  int64
	Kind    string // "alert", "digest", "error", "webhook"
	OK      bool
	Error   string
	Chars   int
}

// Store is the persistence API used by the poller and the notifier.
type Store interface {
	LoadDay(ctx context.Context, accountID string) (date string, totals map[string]int, err error)
	SaveDay(ctx context.Context, accountID string, date string, totals map[string]int) error

	AppendNotification(ctx context.Context, e NotificationEntry) error
	PruneNotifications(ctx context.Context, olderThan time.Time) (int64, error)

	Close() error
}

// Open initializes the configured store. Returns (nil, nil) when disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
