package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Poller controls the fixed-interval watch loop.
	Poller PollerConfig `json:"poller"`

	// Notifier controls the async outbound pipeline.
	// If the whole section is omitted, defaults apply (enabled, 2 workers).
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	Storage *StorageConfig `json:"storage,omitempty"`
	Web     *WebConfig     `json:"web,omitempty"`

	// Accounts maps a stable account id to its watch configuration.
	// The poller re-reads this map at the top of every iteration, so
	// adding/removing accounts takes effect without a restart.
	Accounts map[string]AccountConfig `json:"accounts"`
}

type TelegramConfig struct {
	// Token may be left empty in the file and supplied via the
	// SHOPWATCH_TELEGRAM_TOKEN environment variable instead.
	Token string `json:"token,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// PollerConfig durations are Go duration strings (e.g. "12s", "1h").
//
// Defaults (when fields are omitted/zero):
//   - interval: "12s" (enforced floor "3s")
//   - request_timeout: "25s"
//   - error_cooldown: "1h"
//   - timezone: "Asia/Ho_Chi_Minh"
type PollerConfig struct {
	Interval       string `json:"interval,omitempty"`
	RequestTimeout string `json:"request_timeout,omitempty"`
	ErrorCooldown  string `json:"error_cooldown,omitempty"`

	// Timezone is the default account-local calendar used for daily
	// rollover. Individual accounts may override it.
	Timezone string `json:"timezone,omitempty"`
}

// NotifierConfig durations are Go duration strings.
type NotifierConfig struct {
	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./shopwatch.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// WebConfig controls the status/webhook HTTP listener.
//
// Security note: prefer binding to localhost. The webhook requires the
// shared secret in the X-Auth-Secret header; it may also be supplied via
// the SHOPWATCH_WEBHOOK_SECRET environment variable.
type WebConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`   // default: "127.0.0.1:8080"
	Secret  string `json:"secret,omitempty"` // do not log
}

// TemplateConfig describes one replayable upstream request, captured from a
// browser session (method, URL, headers, optional raw body).
type TemplateConfig struct {
	Method      string            `json:"method,omitempty"` // default: "GET"
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        string            `json:"body,omitempty"`
	InsecureTLS bool              `json:"insecure_tls,omitempty"`
}

type AccountConfig struct {
	DisplayName string `json:"display_name"`

	// Destination chat for all notifications of this account.
	ChatID   int64 `json:"chat_id"`
	ThreadID int   `json:"thread_id,omitempty"`

	// Counters is the request returning the |-separated counter string.
	Counters TemplateConfig `json:"counters"`

	// Messages is the request returning the JSON message list. Optional:
	// without it the message category is counted but never expanded.
	Messages *TemplateConfig `json:"messages,omitempty"`

	Greeting GreetingConfig `json:"greeting,omitempty"`

	// Labels maps a vector position (string key, JSON object) to a
	// semantic category. Positions without a mapping get "field N".
	Labels map[string]string `json:"labels,omitempty"`

	// Thresholds sets a per-label alert floor; a position only becomes
	// alert-worthy once its current value exceeds the floor. Useful to
	// mute legacy backlog values (e.g. complaints: 3).
	Thresholds map[string]int `json:"thresholds,omitempty"`

	// Timezone overrides poller.timezone for this account's rollover.
	Timezone string `json:"timezone,omitempty"`
}

type GreetingConfig struct {
	Enabled bool `json:"enabled"`
	// Images are candidate URIs for the daily digest; one is picked at
	// random per digest.
	Images []string `json:"images,omitempty"`
}
