package cli

import (
	"log/slog"
	"testing"
	"time"

	"github.com/vietddude/deliverycal/internal/core/config"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		level string
		debug bool
		want  slog.Level
	}{
		{"", false, slog.LevelInfo},
		{"info", false, slog.LevelInfo},
		{"debug", false, slog.LevelDebug},
		{"warn", false, slog.LevelWarn},
		{"error", false, slog.LevelError},
		{"error", true, slog.LevelDebug},
	}

	for _, tt := range tests {
		isDebug = tt.debug
		if got := logLevel(tt.level); got != tt.want {
			t.Errorf("logLevel(%q, debug=%v) = %v, want %v", tt.level, tt.debug, got, tt.want)
		}
	}
	isDebug = false
}

func TestStartDate(t *testing.T) {
	todayFlag = "2024-06-03"
	defer func() { todayFlag = "" }()

	d, err := startDate()
	if err != nil {
		t.Fatalf("startDate: %v", err)
	}
	if d.String() != "2024-06-03" {
		t.Errorf("got %s", d)
	}

	todayFlag = "03/06/2024"
	if _, err := startDate(); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestControlConfig(t *testing.T) {
	cfg, err := config.Parse([]byte(`
postal_code: "56632"
days_ahead: 30
api: {key: k}
cache: {backend: memory, ttl: 1h, retention: 72h}
output: {path: out/cal.ics, summary: Post}
metrics: {textfile: /tmp/deliverycal.prom}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cc := controlConfig(cfg)
	if cc.PostalCode != "56632" || cc.DaysAhead != 30 {
		t.Errorf("unexpected run settings %+v", cc)
	}
	if cc.CacheBackend != config.BackendMemory || cc.CacheTTL != time.Hour || cc.CacheRetention != 72*time.Hour {
		t.Errorf("unexpected cache settings %+v", cc)
	}
	if cc.OutputPath != "out/cal.ics" || cc.Calendar.Summary != "Post" {
		t.Errorf("unexpected output settings %+v", cc)
	}
	if cc.Fetch.APIKey != "k" || cc.PostalCodeURL == "" || cc.SortPatternsURL == "" {
		t.Errorf("unexpected api settings %+v", cc)
	}
	if cc.MetricsTextfile != "/tmp/deliverycal.prom" {
		t.Errorf("unexpected metrics textfile %q", cc.MetricsTextfile)
	}
}
