package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"shopwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadDay(ctx context.Context, accountID string) (string, map[string]int, error) {
	if s == nil || s.db == nil {
		return "", nil, ErrDisabled
	}
	var date, totalsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT date, totals_json FROM day_state WHERE account = ?`, accountID,
	).Scan(&date, &totalsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	totals := map[string]int{}
	if err := json.Unmarshal([]byte(totalsJSON), &totals); err != nil {
		return "", nil, fmt.Errorf("corrupt totals for %s: %w", accountID, err)
	}
	return date, totals, nil
}

func (s *sqliteStore) SaveDay(ctx context.Context, accountID string, date string, totals map[string]int) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	b, err := json.Marshal(totals)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO day_state(account, date, totals_json, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(account) DO UPDATE SET date=excluded.date, totals_json=excluded.totals_json, updated_at=excluded.updated_at`,
		accountID, date, string(b), time.Now().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) AppendNotification(ctx context.Context, e NotificationEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications(at, account, chat_id, kind, ok, err, chars) VALUES(?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.Account, e.ChatID, e.Kind, boolInt(e.OK), nullStr(e.Error), e.Chars,
	)
	return err
}

func (s *sqliteStore) PruneNotifications(ctx context.Context, olderThan time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE at < ?`, olderThan.Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
