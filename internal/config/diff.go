package config

import (
	"reflect"
	"sort"
	"strings"

	"shopwatch/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes secrets like the
// token or webhook secret), and (3) the ids of accounts that were added,
// removed or modified.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	// Telegram (never log the token itself)
	if (strings.TrimSpace(oldCfg.Telegram.Token) != "") != (strings.TrimSpace(newCfg.Telegram.Token) != "") {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
		)
	}

	// Logging
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Poller
	if !reflect.DeepEqual(oldCfg.Poller, newCfg.Poller) {
		changed = append(changed, "poller")
		attrs = append(attrs,
			logx.String("poller.interval", strings.TrimSpace(newCfg.Poller.Interval)),
			logx.String("poller.request_timeout", strings.TrimSpace(newCfg.Poller.RequestTimeout)),
			logx.String("poller.error_cooldown", strings.TrimSpace(newCfg.Poller.ErrorCooldown)),
			logx.String("poller.timezone", strings.TrimSpace(newCfg.Poller.Timezone)),
		)
	}

	// Notifier. Section may be omitted; treat nil as runtime defaults so an
	// explicit section spelling out the defaults does not count as a change.
	defN := &NotifierConfig{
		Workers:       2,
		QueueSize:     256,
		RatePerSec:    3,
		RetryMax:      3,
		RetryBase:     "500ms",
		RetryMaxDelay: "10s",
	}
	oldN, newN := oldCfg.Notifier, newCfg.Notifier
	if oldN == nil {
		oldN = defN
	}
	if newN == nil {
		newN = defN
	}
	if !reflect.DeepEqual(*oldN, *newN) {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Int("notifier.workers", newN.Workers),
			logx.Int("notifier.queue_size", newN.QueueSize),
			logx.Int("notifier.rate_per_sec", newN.RatePerSec),
			logx.Int("notifier.retry_max", newN.RetryMax),
		)
	}

	// Storage
	oS, nS := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if (oldCfg.Storage != nil) != (newCfg.Storage != nil) || !reflect.DeepEqual(oS, nS) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.Bool("storage.present", newCfg.Storage != nil),
			logx.String("storage.driver", nS.Driver),
		)
	}

	// Web (never log the secret)
	oW, nW := derefWeb(oldCfg.Web), derefWeb(newCfg.Web)
	if (oldCfg.Web != nil) != (newCfg.Web != nil) ||
		oW.Enabled != nW.Enabled || strings.TrimSpace(oW.Addr) != strings.TrimSpace(nW.Addr) ||
		(strings.TrimSpace(oW.Secret) != "") != (strings.TrimSpace(nW.Secret) != "") {
		changed = append(changed, "web")
		attrs = append(attrs,
			logx.Bool("web.enabled", nW.Enabled),
			logx.String("web.addr", strings.TrimSpace(nW.Addr)),
			logx.Bool("web.secret_set", strings.TrimSpace(nW.Secret) != ""),
		)
	}

	// Accounts
	touched := diffAccounts(oldCfg.Accounts, newCfg.Accounts)
	if len(touched) > 0 {
		changed = append(changed, "accounts")
		attrs = append(attrs,
			logx.Int("accounts.count", len(newCfg.Accounts)),
			logx.Int("accounts.touched", len(touched)),
		)
	}

	return changed, attrs, touched
}

func diffAccounts(oldA, newA map[string]AccountConfig) []string {
	touched := make([]string, 0, 4)
	for id, oc := range oldA {
		nc, ok := newA[id]
		if !ok || !reflect.DeepEqual(oc, nc) {
			touched = append(touched, id)
		}
	}
	for id := range newA {
		if _, ok := oldA[id]; !ok {
			touched = append(touched, id)
		}
	}
	sort.Strings(touched)
	return touched
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}

func derefWeb(w *WebConfig) WebConfig {
	if w == nil {
		return WebConfig{}
	}
	return *w
}
