package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Validate checks the parts of the config a reload must not silently break:
// duration strings, timezones, and per-account essentials. It is installed
// as the manager's validator so a bad edit is rejected instead of committed.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if _, err := ParseDurationField("poller.interval", cfg.Poller.Interval); err != nil {
		return err
	}
	if _, err := ParseDurationField("poller.request_timeout", cfg.Poller.RequestTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("poller.error_cooldown", cfg.Poller.ErrorCooldown); err != nil {
		return err
	}
	if tz := strings.TrimSpace(cfg.Poller.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("poller.timezone: %w", err)
		}
	}
	if cfg.Notifier != nil {
		if _, err := ParseDurationField("notifier.retry_base", cfg.Notifier.RetryBase); err != nil {
			return err
		}
		if _, err := ParseDurationField("notifier.retry_max_delay", cfg.Notifier.RetryMaxDelay); err != nil {
			return err
		}
	}
	if cfg.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return err
		}
	}

	for id, acct := range cfg.Accounts {
		if strings.TrimSpace(acct.Counters.URL) == "" {
			return fmt.Errorf("accounts.%s.counters.url is required", id)
		}
		if acct.ChatID == 0 {
			return fmt.Errorf("accounts.%s.chat_id is required", id)
		}
		if acct.Messages != nil && strings.TrimSpace(acct.Messages.URL) == "" {
			return fmt.Errorf("accounts.%s.messages.url is required when messages is set", id)
		}
		for pos := range acct.Labels {
			if _, err := strconv.Atoi(pos); err != nil {
				return fmt.Errorf("accounts.%s.labels: position %q is not a number", id, pos)
			}
		}
		if tz := strings.TrimSpace(acct.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("accounts.%s.timezone: %w", id, err)
			}
		}
	}
	return nil
}
