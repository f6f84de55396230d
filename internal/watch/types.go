// Package watch is the polling core: it fetches counter snapshots per
// account, diffs them against the previous cycle, aggregates daily totals,
// deduplicates chat messages, and decides what to emit.
package watch

import (
	"context"
	"strconv"
	"time"

	"shopwatch/internal/config"
	"shopwatch/internal/fetch"
	"shopwatch/internal/snapshot"
)

// Destination identifies the chat a notification is delivered to.
type Destination struct {
	ChatID   int64
	ThreadID int
}

// Sender is the outbound transport seam. Implementations must be
// fire-and-forget from the poller's perspective: delivery failures are
// their problem, never the poll loop's.
type Sender interface {
	SendText(ctx context.Context, dest Destination, text string) error
	SendPhoto(ctx context.Context, dest Destination, photoURL, caption string) error
}

// Executor performs one upstream call; satisfied by *fetch.Client.
type Executor interface {
	Execute(ctx context.Context, t fetch.Template) (*fetch.Response, error)
}

// DayStore optionally persists daily aggregates so a mid-day restart does
// not lose the day's counts. A nil store disables persistence.
type DayStore interface {
	LoadDay(ctx context.Context, accountID string) (date string, totals map[string]int, err error)
	SaveDay(ctx context.Context, accountID string, date string, totals map[string]int) error
}

// Account is the resolved, immutable per-account configuration the poller
// works from. A config reload produces a fresh slice of these; the poller
// swaps the whole set atomically between iterations.
type Account struct {
	ID          string
	DisplayName string
	Dest        Destination

	Counters fetch.Template
	Messages *fetch.Template

	GreetingEnabled bool
	GreetingImages  []string

	Labels     map[int]string
	Thresholds map[string]int

	Loc *time.Location
}

func (a Account) threshold(label string) int {
	if a.Thresholds == nil {
		return 0
	}
	return a.Thresholds[label]
}

// AccountFromConfig resolves one account entry. Unknown timezone strings
// were rejected by config validation; fall back to defaultLoc defensively
// anyway.
func AccountFromConfig(id string, c config.AccountConfig, defaultLoc *time.Location) Account {
	labels := make(map[int]string, len(snapshot.DefaultLabels)+len(c.Labels))
	for pos, l := range snapshot.DefaultLabels {
		labels[pos] = l
	}
	for pos, l := range c.Labels {
		if n, err := strconv.Atoi(pos); err == nil {
			labels[n] = l
		}
	}

	loc := defaultLoc
	if c.Timezone != "" {
		if l, err := time.LoadLocation(c.Timezone); err == nil {
			loc = l
		}
	}

	name := c.DisplayName
	if name == "" {
		name = id
	}

	acct := Account{
		ID:              id,
		DisplayName:     name,
		Dest:            Destination{ChatID: c.ChatID, ThreadID: c.ThreadID},
		Counters:        templateFromConfig(c.Counters),
		GreetingEnabled: c.Greeting.Enabled,
		GreetingImages:  append([]string(nil), c.Greeting.Images...),
		Labels:          labels,
		Thresholds:      c.Thresholds,
		Loc:             loc,
	}
	if c.Messages != nil {
		t := templateFromConfig(*c.Messages)
		acct.Messages = &t
	}
	return acct
}

func templateFromConfig(c config.TemplateConfig) fetch.Template {
	return fetch.Template{
		Method:      c.Method,
		URL:         c.URL,
		Headers:     c.Headers,
		Body:        c.Body,
		InsecureTLS: c.InsecureTLS,
	}
}

// State is one account's mutable memory between cycles. It is owned
// exclusively by the poll goroutine; no locking needed.
type State struct {
	// LastVector is the previous cycle's snapshot; nil until the first
	// successful parse.
	LastVector []int

	// DailyTotals accumulates positive order-kind deltas since the last
	// rollover. DailyDate is the account-local calendar day ("2006-01-02")
	// the totals belong to; empty until the first cycle.
	DailyTotals map[string]int
	DailyDate   string

	// Seen holds message ids already surfaced; pruned every fetch to the
	// ids present in the newest response.
	Seen map[string]struct{}

	// Cooldowns records the last user-visible report per error kind.
	Cooldowns map[ErrorKind]time.Time

	// Primed is set after the baseline cycle; alerts are only possible
	// once it is true.
	Primed bool
}

func newState() *State {
	return &State{
		DailyTotals: map[string]int{},
		Seen:        map[string]struct{}{},
		Cooldowns:   map[ErrorKind]time.Time{},
	}
}

// ErrorKind keys the per-account error cooldown map.
type ErrorKind string

const (
	ErrKindNetwork     ErrorKind = "network"
	ErrKindMarkup      ErrorKind = "markup"
	ErrKindUnparseable ErrorKind = "unparseable"
	ErrKindBadPayload  ErrorKind = "bad-payload"
)
