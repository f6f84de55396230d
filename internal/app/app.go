// Package app wires the services together: config, logging, storage,
// transport, notifier, poller, scheduler and the web surface.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"shopwatch/internal/config"
	"shopwatch/internal/fetch"
	"shopwatch/internal/notify"
	"shopwatch/internal/scheduler"
	"shopwatch/internal/storage"
	"shopwatch/internal/transport/telegram"
	"shopwatch/internal/watch"
	"shopwatch/internal/web"
	"shopwatch/pkg/logx"
)

const (
	envTelegramToken = "SHOPWATCH_TELEGRAM_TOKEN"
	envWebhookSecret = "SHOPWATCH_WEBHOOK_SECRET"

	defaultInterval = 12 * time.Second
	minInterval     = 3 * time.Second
	defaultTimezone = "Asia/Ho_Chi_Minh"

	// audit rows older than this are removed by the nightly prune job
	auditRetention = 30 * 24 * time.Hour
)

type App struct {
	cfgm *config.Manager

	logs *logx.Service
	log  logx.Logger

	store   storage.Store
	adapter *telegram.Adapter
	notif   *notify.Service
	poller  *watch.Poller
	sched   *scheduler.Service
	web     *web.Server

	loc      *time.Location
	interval time.Duration
	lastCfg  *config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetValidator(config.Validate)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(logs.Logger().With(logx.String("comp", "config")))

	a := &App{cfgm: cfgm, logs: logs, log: log, lastCfg: cfg}

	interval, err := config.ParseDurationOrDefault("poller.interval", cfg.Poller.Interval, defaultInterval)
	if err != nil {
		return nil, err
	}
	if interval < minInterval {
		log.Warn("poll interval below floor; clamping",
			logx.Duration("requested", interval), logx.Duration("floor", minInterval))
		interval = minInterval
	}
	a.interval = interval

	timeout, err := config.ParseDurationOrDefault("poller.request_timeout", cfg.Poller.RequestTimeout, fetch.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	cooldown, err := config.ParseDurationOrDefault("poller.error_cooldown", cfg.Poller.ErrorCooldown, watch.DefaultCooldown)
	if err != nil {
		return nil, err
	}

	tz := strings.TrimSpace(cfg.Poller.Timezone)
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		// UTC+7 is the domain default even without tzdata
		loc = time.FixedZone("UTC+7", 7*3600)
	}
	a.loc = loc

	// Storage (optional)
	if cfg.Storage != nil {
		busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return nil, err
		}
		st, err := storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, logs.Logger().With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		a.store = st
		if st != nil {
			log.Info("storage enabled", logx.String("driver", cfg.Storage.Driver))
		}
	}

	token := strings.TrimSpace(os.Getenv(envTelegramToken))
	if token == "" {
		token = cfg.Telegram.Token
	}
	a.adapter, err = telegram.New(telegram.Config{Token: token},
		logs.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	a.notif = notify.New(notifierConfig(cfg.Notifier), a.adapter, a.store,
		logs.Logger().With(logx.String("comp", "notify")))

	client := fetch.NewClient(timeout)
	a.poller = watch.New(client, a.notif, a.store, cooldown,
		logs.Logger().With(logx.String("comp", "watch")))
	a.poller.SetAccounts(resolveAccounts(cfg, loc))

	a.sched = scheduler.New(loc, logs.Logger().With(logx.String("comp", "sched")))

	if cfg.Web != nil && cfg.Web.Enabled {
		secret := strings.TrimSpace(os.Getenv(envWebhookSecret))
		if secret == "" {
			secret = cfg.Web.Secret
		}
		a.web = web.New(
			web.Config{Addr: cfg.Web.Addr, Secret: secret},
			web.Deps{
				Lookup:    a.lookupAccount,
				Notify:    a.notif.Notify,
				SeenCount: a.poller.SeenCount,
			},
			logs.Logger().With(logx.String("comp", "web")),
		)
	}

	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	hcCtx, hcCancel := context.WithTimeout(runCtx, 10*time.Second)
	if err := a.adapter.Healthcheck(hcCtx); err != nil {
		// Deliveries will surface the same failure; start anyway.
		a.log.Warn("telegram healthcheck failed", logx.Err(err))
	}
	hcCancel()

	a.notif.Start(runCtx)

	if a.web != nil {
		if err := a.web.Start(runCtx); err != nil {
			return err
		}
	}

	if err := a.sched.AddInterval("poll", a.interval, a.poller.RunOnce); err != nil {
		return err
	}
	if a.store != nil {
		if err := a.sched.AddDaily("prune-audit", 3, 30, func(ctx context.Context) {
			n, err := a.store.PruneNotifications(ctx, time.Now().Add(-auditRetention))
			if err != nil {
				a.log.Warn("audit prune failed", logx.Err(err))
				return
			}
			a.log.Debug("audit pruned", logx.Int64("rows", n))
		}); err != nil {
			return err
		}
	}

	// Baseline pass first: prime every account's state without alerting,
	// then hand the steady cadence to the scheduler.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.poller.RunOnce(runCtx)
		if runCtx.Err() != nil {
			return
		}
		a.log.Info("accounts primed; entering steady polling",
			logx.Duration("interval", a.interval))
		a.sched.Start(runCtx)
	}()

	// Config hot reload.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()
	updates := a.cfgm.Subscribe(1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(updates)
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-updates:
				if !ok {
					return
				}
				a.applyConfig(cfg)
			}
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("started", logx.Int("accounts", len(a.cfgm.Get().Accounts)))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if a.cancel != nil {
		a.cancel()
	}
	a.sched.Stop(ctx)
	if a.web != nil {
		a.web.Stop(ctx)
	}
	a.notif.Stop(ctx) // drains pending notifications
	a.wg.Wait()
	if a.store != nil {
		_ = a.store.Close()
	}
	a.log.Info("stopped")
	return a.logs.Close()
}

// applyConfig handles a hot reload. Accounts and logging take effect
// immediately; interval/transport/storage changes need a restart and are
// called out in the log instead of half-applied.
func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	changed, attrs, touched := config.SummarizeConfigChange(a.lastCfg, cfg)
	a.lastCfg = cfg

	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.poller.SetAccounts(resolveAccounts(cfg, a.loc))

	fields := append([]logx.Field{
		logx.String("sections", strings.Join(changed, ",")),
		logx.Int("accounts_touched", len(touched)),
	}, attrs...)
	a.log.Info("config applied", fields...)

	if iv, err := config.ParseDurationOrDefault("poller.interval", cfg.Poller.Interval, defaultInterval); err == nil && iv != a.interval {
		a.log.Warn("poller.interval changed; restart required to take effect")
	}
}

func (a *App) lookupAccount(id string) (watch.Account, bool) {
	cfg := a.cfgm.Get()
	if cfg == nil {
		return watch.Account{}, false
	}
	ac, ok := cfg.Accounts[id]
	if !ok {
		return watch.Account{}, false
	}
	return watch.AccountFromConfig(id, ac, a.loc), true
}

func resolveAccounts(cfg *config.Config, loc *time.Location) []watch.Account {
	out := make([]watch.Account, 0, len(cfg.Accounts))
	for id, ac := range cfg.Accounts {
		out = append(out, watch.AccountFromConfig(id, ac, loc))
	}
	return out
}

func notifierConfig(c *config.NotifierConfig) notify.Config {
	if c == nil {
		return notify.Config{}
	}
	retryBase, _ := config.ParseDurationField("notifier.retry_base", c.RetryBase)
	retryMaxDelay, _ := config.ParseDurationField("notifier.retry_max_delay", c.RetryMaxDelay)
	return notify.Config{
		Workers:       c.Workers,
		QueueSize:     c.QueueSize,
		RatePerSec:    c.RatePerSec,
		RetryMax:      c.RetryMax,
		RetryBase:     retryBase,
		RetryMaxDelay: retryMaxDelay,
	}
}
