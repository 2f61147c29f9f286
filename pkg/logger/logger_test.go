package logger

import (
	"path/filepath"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"debug", DebugConfig(), false},
		{"production", ProductionConfig(), false},
		{"bad level", &Config{Level: "loud", Format: TextFormat, Output: StderrOutput}, true},
		{"bad format", &Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"file without path", &Config{Level: InfoLevel, Format: JSONFormat, Output: FileOutput}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "reconciler.log")
	log, err := NewLogger(&Config{Level: DebugLevel, Format: JSONFormat, Output: FileOutput, File: path})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	log.WithComponent("test").WithField("k", "v").Info("hello")
}

func TestProgressTracker(t *testing.T) {
	tracker := NewProgressTracker(ProgressConfig{
		Operation:   "matching",
		Total:       4,
		LogInterval: time.Nanosecond,
		Logger:      NewNopLogger(),
	})
	tracker.Add(1)
	tracker.Add(1)

	stats := tracker.Stats()
	if stats.Current != 2 {
		t.Errorf("expected current 2, got %d", stats.Current)
	}
	if stats.Percentage != 50 {
		t.Errorf("expected 50%%, got %.1f", stats.Percentage)
	}
	tracker.Complete()
}
