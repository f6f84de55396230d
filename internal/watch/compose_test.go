package watch

import (
	"strings"
	"testing"

	"shopwatch/internal/snapshot"
)

func TestComposeAlertSectionOrder(t *testing.T) {
	t.Parallel()
	acct := Account{DisplayName: "Shop A"}
	lines := []alertLine{
		{pos: 9, label: "field 9", current: 2, delta: 1},
		{pos: 5, label: snapshot.LabelReviews, current: 1, delta: 1},
		{pos: 0, label: snapshot.LabelOrders, current: 3, delta: 2},
	}
	msgs := []Message{{User: "bob", Text: "hello"}}

	got := composeAlert(acct, lines, msgs)

	msgIdx := strings.Index(got, "New messages")
	ordersIdx := strings.Index(got, "orders: 3")
	reviewsIdx := strings.Index(got, "reviews: 1")
	fieldIdx := strings.Index(got, "field 9")
	if msgIdx < 0 || ordersIdx < 0 || reviewsIdx < 0 || fieldIdx < 0 {
		t.Fatalf("missing sections in %q", got)
	}
	if !(msgIdx < ordersIdx && ordersIdx < reviewsIdx && reviewsIdx < fieldIdx) {
		t.Fatalf("section order wrong: %q", got)
	}
}

func TestComposeAlertEscapesHTML(t *testing.T) {
	t.Parallel()
	acct := Account{DisplayName: "Shop <&> A"}
	got := composeAlert(acct, nil, []Message{{User: "<script>", Text: "a<b"}})
	if strings.Contains(got, "<script>") || !strings.Contains(got, "&lt;script&gt;") {
		t.Fatalf("user content not escaped: %q", got)
	}
	if !strings.Contains(got, "Shop &lt;&amp;&gt; A") {
		t.Fatalf("display name not escaped: %q", got)
	}
}

func TestComposeDigestTotals(t *testing.T) {
	t.Parallel()
	acct := Account{DisplayName: "Shop A"}
	got := composeDigest(acct, "2026-03-10", map[string]int{
		snapshot.LabelOrders:        4,
		snapshot.LabelServiceOrders: 2,
	})
	if !strings.Contains(got, "summary for 2026-03-10") {
		t.Fatalf("date missing: %q", got)
	}
	if !strings.Contains(got, "<b>6</b>") {
		t.Fatalf("grand total missing: %q", got)
	}
	if strings.Index(got, "orders: 4") > strings.Index(got, "service-orders: 2") {
		t.Fatalf("breakdown not in priority order: %q", got)
	}
}

func TestComposeErrorIncludesDetail(t *testing.T) {
	t.Parallel()
	acct := Account{DisplayName: "Shop A"}
	got := composeError(acct, ErrKindUnparseable, "weird body")
	if !strings.Contains(got, "weird body") || !strings.Contains(got, "Shop A") {
		t.Fatalf("detail missing: %q", got)
	}
}
