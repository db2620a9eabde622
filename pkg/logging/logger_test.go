package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Level = %s, want info", cfg.Level)
	}
	if cfg.Pretty {
		t.Error("Pretty = true, want false")
	}
	if cfg.Output == nil {
		t.Error("Output = nil")
	}
}

func TestSetup(t *testing.T) {
	tests := []struct {
		level LogLevel
		write func(zerolog.Logger, string)
	}{
		{LevelDebug, func(l zerolog.Logger, m string) { l.Debug().Msg(m) }},
		{LevelInfo, func(l zerolog.Logger, m string) { l.Info().Msg(m) }},
		{LevelWarn, func(l zerolog.Logger, m string) { l.Warn().Msg(m) }},
		{LevelError, func(l zerolog.Logger, m string) { l.Error().Msg(m) }},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := Setup(Config{Level: tt.level, Output: buf})

			tt.write(logger, "message at "+string(tt.level))

			if !strings.Contains(buf.String(), "message at "+string(tt.level)) {
				t.Errorf("output = %q", buf.String())
			}
		})
	}
}

func TestSetup_NilOutput(t *testing.T) {
	logger := Setup(Config{Level: LevelError})
	logger.Debug().Msg("discarded")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"trace", "", true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}

	if parseLevel("invalid") != zerolog.InfoLevel {
		t.Error("unknown level should default to info")
	}
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Output: buf})

	logger := NewLogger(ComponentGuard)
	logger.Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, `"component":"guard"`) {
		t.Errorf("output = %q, want component field", output)
	}
}

func TestLogLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelWarn, Output: buf})

	logger := NewLogger("test")
	logger.Debug().Msg("debug message")
	logger.Info().Msg("info message")
	logger.Warn().Msg("warn message")
	logger.Error().Msg("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Error("messages below warn were not filtered")
	}
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Error("warn/error messages missing")
	}
}

func TestAccessLog(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Setup(Config{Level: LevelDebug, Output: buf})

	handler := AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/vendors/7/orders", nil))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	output := buf.String()
	for _, want := range []string{`"level":"error"`, `"status":502`, `"path":"/vendors/7/orders"`} {
		if !strings.Contains(output, want) {
			t.Errorf("output = %q, want %s", output, want)
		}
	}
}
