package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"shopwatch/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestDayStateRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	date, totals, err := st.LoadDay(ctx, "shop-a")
	if err != nil || date != "" || totals != nil {
		t.Fatalf("empty load = (%q, %v, %v)", date, totals, err)
	}

	want := map[string]int{"orders": 4, "pre-orders": 1}
	if err := st.SaveDay(ctx, "shop-a", "2026-03-10", want); err != nil {
		t.Fatalf("SaveDay: %v", err)
	}
	// overwrite wins
	want["orders"] = 6
	if err := st.SaveDay(ctx, "shop-a", "2026-03-10", want); err != nil {
		t.Fatalf("SaveDay again: %v", err)
	}

	date, totals, err = st.LoadDay(ctx, "shop-a")
	if err != nil {
		t.Fatalf("LoadDay: %v", err)
	}
	if date != "2026-03-10" || totals["orders"] != 6 || totals["pre-orders"] != 1 {
		t.Fatalf("LoadDay = (%q, %v)", date, totals)
	}
}

func TestNotificationAuditAndPrune(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	if err := st.AppendNotification(ctx, NotificationEntry{At: old, Account: "a", ChatID: 1, Kind: "alert", OK: true}); err != nil {
		t.Fatalf("AppendNotification: %v", err)
	}
	if err := st.AppendNotification(ctx, NotificationEntry{Account: "a", ChatID: 1, Kind: "error", OK: false, Error: "boom"}); err != nil {
		t.Fatalf("AppendNotification: %v", err)
	}

	n, err := st.PruneNotifications(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneNotifications: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned %d rows, want 1", n)
	}
}

func TestOpenDisabled(t *testing.T) {
	st, err := Open(Config{Driver: ""}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("disabled Open = (%v, %v), want (nil, nil)", st, err)
	}
}
