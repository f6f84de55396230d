package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestParseJSON(t *testing.T) {
	p := writeFile(t, "config.json", `{
		"telegram": {"token": "t"},
		"logging": {"level": "DEBUG", "console": true, "file": {"enabled": false, "path": ""}},
		"poller": {"interval": "12s"},
		"accounts": {
			"shop-a": {
				"display_name": "Shop A",
				"chat_id": 42,
				"counters": {"url": "https://example.com/counters"},
				"labels": {"0": "orders"}
			}
		}
	}`)
	cfg, err := NewManager(p).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Poller.Interval != "12s" {
		t.Fatalf("interval = %q", cfg.Poller.Interval)
	}
	ac, ok := cfg.Accounts["shop-a"]
	if !ok || ac.ChatID != 42 || ac.Labels["0"] != "orders" {
		t.Fatalf("account = %+v (ok=%v)", ac, ok)
	}
}

func TestParseYAMLMatchesJSON(t *testing.T) {
	p := writeFile(t, "config.yaml", strings.Join([]string{
		"telegram:",
		"  token: t",
		"logging:",
		"  level: INFO",
		"  console: true",
		"  file: {enabled: false, path: \"\"}",
		"poller:",
		"  interval: 30s",
		"  timezone: Asia/Ho_Chi_Minh",
		"accounts:",
		"  shop-a:",
		"    display_name: Shop A",
		"    chat_id: 42",
		"    counters: {url: \"https://example.com/counters\"}",
		"    thresholds: {complaints: 3}",
	}, "\n"))
	cfg, err := NewManager(p).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Poller.Timezone != "Asia/Ho_Chi_Minh" {
		t.Fatalf("timezone = %q", cfg.Poller.Timezone)
	}
	if got := cfg.Accounts["shop-a"].Thresholds["complaints"]; got != 3 {
		t.Fatalf("threshold = %d", got)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	p := writeFile(t, "config.json", `{"telegram": {"token": "t"}, "bogus": 1}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatal("unknown top-level field accepted")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	p := writeFile(t, "config.json", `{"telegram": {"token": "t"}} {"again": true}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatal("trailing JSON accepted")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Accounts: map[string]AccountConfig{
				"a": {
					ChatID:   1,
					Counters: TemplateConfig{URL: "https://example.com"},
				},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"bad interval", func(c *Config) { c.Poller.Interval = "12 parsecs" }, "poller.interval"},
		{"bad timezone", func(c *Config) { c.Poller.Timezone = "Mars/Olympus" }, "poller.timezone"},
		{"missing chat id", func(c *Config) {
			a := c.Accounts["a"]
			a.ChatID = 0
			c.Accounts["a"] = a
		}, "chat_id"},
		{"missing counters url", func(c *Config) {
			a := c.Accounts["a"]
			a.Counters.URL = "  "
			c.Accounts["a"] = a
		}, "counters.url"},
		{"messages without url", func(c *Config) {
			a := c.Accounts["a"]
			a.Messages = &TemplateConfig{}
			c.Accounts["a"] = a
		}, "messages.url"},
		{"non-numeric label key", func(c *Config) {
			a := c.Accounts["a"]
			a.Labels = map[string]string{"orders": "orders"}
			c.Accounts["a"] = a
		}, "labels"},
		{"bad account timezone", func(c *Config) {
			a := c.Accounts["a"]
			a.Timezone = "Nope/Nope"
			c.Accounts["a"] = a
		}, "timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	old := &Config{
		Logging: LoggingConfig{Level: "INFO", Console: true},
		Poller:  PollerConfig{Interval: "12s"},
		Accounts: map[string]AccountConfig{
			"a": {ChatID: 1, Counters: TemplateConfig{URL: "u"}},
			"b": {ChatID: 2, Counters: TemplateConfig{URL: "u"}},
		},
	}
	next := &Config{
		Logging: LoggingConfig{Level: "DEBUG", Console: true},
		Poller:  PollerConfig{Interval: "12s"},
		Accounts: map[string]AccountConfig{
			"a": {ChatID: 1, Counters: TemplateConfig{URL: "u"}},
			"c": {ChatID: 3, Counters: TemplateConfig{URL: "u"}},
		},
	}

	changed, _, touched := SummarizeConfigChange(old, next)

	want := map[string]bool{"logging": true, "accounts": true}
	for _, s := range changed {
		if !want[s] {
			t.Fatalf("unexpected section %q in %v", s, changed)
		}
		delete(want, s)
	}
	if len(want) != 0 {
		t.Fatalf("missing sections %v (got %v)", want, changed)
	}
	// b removed, c added, a untouched
	if len(touched) != 2 || touched[0] != "b" || touched[1] != "c" {
		t.Fatalf("touched = %v", touched)
	}

	if ch, _, _ := SummarizeConfigChange(next, next); len(ch) != 0 {
		t.Fatalf("identical configs reported changes: %v", ch)
	}
}
