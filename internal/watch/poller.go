package watch

import (
	"context"
	"errors"
	"math/rand"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"shopwatch/internal/snapshot"
	"shopwatch/pkg/logx"
)

// DefaultCooldown is the minimum gap between two user-visible notifications
// of the same error kind for the same account.
const DefaultCooldown = time.Hour

// Poller drives the per-account cycle state machine. All account State is
// owned by the single goroutine calling RunOnce; the only shared data is
// the accounts snapshot, swapped atomically on config reload.
type Poller struct {
	log    logx.Logger
	client Executor
	sender Sender
	store  DayStore // may be nil

	cooldown time.Duration

	mu       sync.RWMutex
	accounts []Account

	states map[string]*State

	seenCount atomic.Int64

	// now and rng are swapped in tests for determinism.
	now func() time.Time
	rng *rand.Rand
}

func New(client Executor, sender Sender, store DayStore, cooldown time.Duration, log logx.Logger) *Poller {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Poller{
		log:      log,
		client:   client,
		sender:   sender,
		store:    store,
		cooldown: cooldown,
		states:   map[string]*State{},
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetAccounts swaps the whole account set. The poller picks the new set up
// at the top of its next iteration; a cycle in flight keeps the old one.
func (p *Poller) SetAccounts(accts []Account) {
	sorted := append([]Account(nil), accts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	p.mu.Lock()
	p.accounts = sorted
	p.mu.Unlock()
}

func (p *Poller) snapshotAccounts() []Account {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.accounts
}

// SeenCount reports the total number of remembered message ids across
// accounts, as of the end of the last iteration.
func (p *Poller) SeenCount() int64 { return p.seenCount.Load() }

// RunOnce executes one iteration: every configured account gets one cycle,
// sequentially. Accounts seen for the first time run a baseline cycle that
// only primes state; accounts dropped from config lose their state. A
// failure in one account never affects the others.
func (p *Poller) RunOnce(ctx context.Context) {
	accts := p.snapshotAccounts()

	current := make(map[string]struct{}, len(accts))
	for _, a := range accts {
		current[a.ID] = struct{}{}
	}
	for id := range p.states {
		if _, ok := current[id]; !ok {
			delete(p.states, id)
			p.log.Info("account removed", logx.String("account", id))
		}
	}

	var seen int64
	for _, acct := range accts {
		if ctx.Err() != nil {
			return
		}
		st, ok := p.states[acct.ID]
		baseline := !ok
		if baseline {
			st = newState()
			p.states[acct.ID] = st
			p.restoreDay(ctx, acct, st)
		}
		p.cycleSafe(ctx, acct, st, baseline)
		seen += int64(len(st.Seen))
	}
	p.seenCount.Store(seen)
}

func (p *Poller) cycleSafe(ctx context.Context, acct Account, st *State, baseline bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("panic in account cycle",
				logx.String("account", acct.ID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	p.cycle(ctx, acct, st, baseline)
}

func (p *Poller) cycle(ctx context.Context, acct Account, st *State, baseline bool) {
	p.rollover(ctx, acct, st)

	resp, err := p.client.Execute(ctx, acct.Counters)
	if err != nil {
		p.reportError(ctx, acct, st, ErrKindNetwork, "")
		p.log.Warn("counter fetch failed", logx.String("account", acct.ID), logx.Err(err))
		return
	}

	vec, err := snapshot.Parse(resp.Body)
	if err != nil {
		var ue *snapshot.UnparseableError
		switch {
		case errors.Is(err, snapshot.ErrMarkup):
			p.reportError(ctx, acct, st, ErrKindMarkup, "")
		case errors.As(err, &ue):
			p.reportError(ctx, acct, st, ErrKindUnparseable, ue.Raw)
		}
		p.log.Warn("counter parse failed", logx.String("account", acct.ID), logx.Err(err))
		return
	}

	// A length change (including the very first parse) resets the
	// baseline: no deltas are computed or aggregated for this cycle.
	lengthReset := len(st.LastVector) != len(vec)
	if lengthReset && st.Primed {
		p.log.Warn("counter vector length changed; resetting baseline",
			logx.String("account", acct.ID),
			logx.Int("old", len(st.LastVector)),
			logx.Int("new", len(vec)))
	}

	var (
		hasIncrease bool
		needsMsgs   bool
		lines       []alertLine
	)
	if !lengthReset {
		for i, cur := range vec {
			label := snapshot.Label(acct.Labels, i)
			delta := cur - st.LastVector[i]
			if delta > 0 {
				hasIncrease = true
				if snapshot.IsOrderLabel(label) {
					st.DailyTotals[label] += delta
				}
				if label == snapshot.LabelMessages {
					needsMsgs = true
				}
			}
			if cur > acct.threshold(label) {
				lines = append(lines, alertLine{pos: i, label: label, current: cur, delta: max(delta, 0)})
			}
		}
	}

	var fresh []Message
	if acct.Messages != nil && (needsMsgs || baseline) {
		fresh = p.fetchMessages(ctx, acct, st, baseline)
	}

	if hasIncrease && st.Primed && !baseline && (len(lines) > 0 || len(fresh) > 0) {
		p.deliver(ctx, acct, composeAlert(acct, lines, fresh))
	}

	st.LastVector = vec
	st.Primed = true
	p.persistDay(ctx, acct, st)
}

func (p *Poller) fetchMessages(ctx context.Context, acct Account, st *State, baseline bool) []Message {
	resp, err := p.client.Execute(ctx, *acct.Messages)
	if err != nil {
		p.reportError(ctx, acct, st, ErrKindNetwork, "")
		p.log.Warn("message fetch failed", logx.String("account", acct.ID), logx.Err(err))
		return nil
	}
	entries, err := ExtractEntries(resp.Body)
	if err != nil {
		p.reportError(ctx, acct, st, ErrKindBadPayload, clipText(resp.Body, 200))
		p.log.Warn("message parse failed", logx.String("account", acct.ID), logx.Err(err))
		return nil
	}
	return dedup(entries, st, baseline)
}

// rollover handles the local-calendar-day boundary: emit the digest for the
// closed day (greeting-enabled accounts only), then reset aggregates. On
// the very first cycle it just pins the date.
func (p *Poller) rollover(ctx context.Context, acct Account, st *State) {
	today := p.now().In(acct.Loc).Format(time.DateOnly)
	switch {
	case st.DailyDate == "":
		st.DailyDate = today
	case st.DailyDate != today:
		if acct.GreetingEnabled {
			text := composeDigest(acct, st.DailyDate, st.DailyTotals)
			if img := p.pickImage(acct); img != "" {
				p.deliverPhoto(ctx, acct, img, text)
			} else {
				p.deliver(ctx, acct, text)
			}
		}
		st.DailyTotals = map[string]int{}
		st.DailyDate = today
		p.persistDay(ctx, acct, st)
	}
}

func (p *Poller) pickImage(acct Account) string {
	if len(acct.GreetingImages) == 0 {
		return ""
	}
	return acct.GreetingImages[p.rng.Intn(len(acct.GreetingImages))]
}

// reportError sends at most one user-visible notification per error kind
// per cooldown window; repeated identical failures are only logged.
func (p *Poller) reportError(ctx context.Context, acct Account, st *State, kind ErrorKind, detail string) {
	now := p.now()
	if last, ok := st.Cooldowns[kind]; ok && now.Sub(last) < p.cooldown {
		return
	}
	st.Cooldowns[kind] = now
	p.deliver(ctx, acct, composeError(acct, kind, detail))
}

// deliver hands text to the transport. Transport failures are swallowed and
// logged; they never reach the poll loop.
func (p *Poller) deliver(ctx context.Context, acct Account, text string) {
	if err := p.sender.SendText(ctx, acct.Dest, text); err != nil {
		p.log.Warn("notification dropped", logx.String("account", acct.ID), logx.Err(err))
	}
}

func (p *Poller) deliverPhoto(ctx context.Context, acct Account, img, caption string) {
	if err := p.sender.SendPhoto(ctx, acct.Dest, img, caption); err != nil {
		p.log.Warn("digest dropped", logx.String("account", acct.ID), logx.Err(err))
	}
}

func (p *Poller) restoreDay(ctx context.Context, acct Account, st *State) {
	if p.store == nil {
		return
	}
	date, totals, err := p.store.LoadDay(ctx, acct.ID)
	if err != nil || date == "" {
		return
	}
	// Only warm-start totals for the current local day; an older snapshot
	// belongs to a day whose digest already went out (or never will).
	if date == p.now().In(acct.Loc).Format(time.DateOnly) {
		st.DailyDate = date
		for k, v := range totals {
			st.DailyTotals[k] = v
		}
	}
}

func (p *Poller) persistDay(ctx context.Context, acct Account, st *State) {
	if p.store == nil {
		return
	}
	if err := p.store.SaveDay(ctx, acct.ID, st.DailyDate, st.DailyTotals); err != nil {
		p.log.Debug("day state save failed", logx.String("account", acct.ID), logx.Err(err))
	}
}
