package watch

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"shopwatch/internal/snapshot"
)

// alertLine is one counter position worth mentioning in the composite
// notification.
type alertLine struct {
	pos     int
	label   string
	current int
	delta   int
}

// composeAlert builds the one outbound message for an eligible cycle.
// Section order is fixed: new-message block first, then alert lines by
// category priority with unmapped labels last. HTML parse mode.
func composeAlert(acct Account, lines []alertLine, msgs []Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🛒 <b>%s</b>\n", esc(acct.DisplayName))

	if len(msgs) > 0 {
		fmt.Fprintf(&b, "💬 <b>New messages (%d)</b>\n", len(msgs))
		for _, m := range msgs {
			user := m.User
			if user == "" {
				user = "unknown"
			}
			fmt.Fprintf(&b, "• <i>%s</i>: %s\n", esc(user), esc(clipText(m.Text, 200)))
		}
	}

	sorted := append([]alertLine(nil), lines...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := snapshot.Rank(sorted[i].label, sorted[i].pos), snapshot.Rank(sorted[j].label, sorted[j].pos)
		if ri != rj {
			return ri < rj
		}
		return sorted[i].pos < sorted[j].pos
	})
	for _, l := range sorted {
		if l.delta > 0 {
			fmt.Fprintf(&b, "📈 %s: %d (+%d)\n", esc(l.label), l.current, l.delta)
		} else {
			fmt.Fprintf(&b, "• %s: %d\n", esc(l.label), l.current)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// composeDigest summarizes the closed day before totals are reset.
func composeDigest(acct Account, date string, totals map[string]int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🌅 <b>%s</b> — summary for %s\n", esc(acct.DisplayName), date)

	total := 0
	labels := make([]string, 0, len(totals))
	for label, n := range totals {
		total += n
		if n > 0 {
			labels = append(labels, label)
		}
	}
	fmt.Fprintf(&b, "Orders today: <b>%d</b>", total)

	sort.Slice(labels, func(i, j int) bool {
		return snapshot.Rank(labels[i], 0) < snapshot.Rank(labels[j], 0)
	})
	for _, label := range labels {
		fmt.Fprintf(&b, "\n• %s: %d", esc(label), totals[label])
	}
	return b.String()
}

func composeError(acct Account, kind ErrorKind, detail string) string {
	var what string
	switch kind {
	case ErrKindNetwork:
		what = "counter endpoint unreachable"
	case ErrKindMarkup:
		what = "session expired — please re-capture the shop request"
	case ErrKindUnparseable:
		what = "unexpected counter response"
	case ErrKindBadPayload:
		what = "unexpected message-list response"
	default:
		what = string(kind)
	}
	s := fmt.Sprintf("⚠️ <b>%s</b>: %s", esc(acct.DisplayName), what)
	if detail != "" {
		s += fmt.Sprintf("\n<code>%s</code>", esc(clipText(detail, 200)))
	}
	return s
}

func esc(s string) string { return html.EscapeString(s) }

// clipText truncates to n runes; message text is frequently Vietnamese, so
// byte slicing would split characters.
func clipText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
