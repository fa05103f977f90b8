package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		wantError bool
	}{
		{
			name:   "json debug",
			level:  "debug",
			format: "json",
		},
		{
			name:   "console info",
			level:  "info",
			format: "console",
		},
		{
			name:   "console warn",
			level:  "warn",
			format: "console",
		},
		{
			name:      "invalid level",
			level:     "verbose",
			format:    "json",
			wantError: true,
		},
		{
			name:      "invalid format",
			level:     "info",
			format:    "logfmt",
			wantError: true,
		},
		{
			name:   "case insensitive level",
			level:  "WARN",
			format: "json",
		},
		{
			name:   "case insensitive format",
			level:  "info",
			format: "Console",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.format)
			if (err != nil) != tt.wantError {
				t.Errorf("NewLogger() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && logger == nil {
				t.Error("expected logger to be non-nil")
			}
		})
	}
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		level    string
		enabled  []zapcore.Level
		disabled []zapcore.Level
	}{
		{
			level:   "debug",
			enabled: []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel},
		},
		{
			level:    "info",
			enabled:  []zapcore.Level{zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel},
			disabled: []zapcore.Level{zapcore.DebugLevel},
		},
		{
			level:    "error",
			enabled:  []zapcore.Level{zapcore.ErrorLevel},
			disabled: []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel},
		},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := NewLogger(tt.level, "json")
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}

			for _, lvl := range tt.enabled {
				if !logger.Core().Enabled(lvl) {
					t.Errorf("level %s should be enabled at %s", lvl, tt.level)
				}
			}
			for _, lvl := range tt.disabled {
				if logger.Core().Enabled(lvl) {
					t.Errorf("level %s should be disabled at %s", lvl, tt.level)
				}
			}

			logger.Info("test message", zap.String("bundle", "/tmp/bundle"))
		})
	}
}
