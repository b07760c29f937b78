package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("KP_CONFIG", "")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MaxTries != 5 {
		t.Errorf("MaxTries = %d, want 5", cfg.MaxTries)
	}
	if cfg.RealTimeURL != DefaultRealTimeURL {
		t.Errorf("RealTimeURL = %q", cfg.RealTimeURL)
	}
	if cfg.DataDir != "./data/" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("KP_CONFIG", "")
	t.Setenv("KP_MAX_TRIES", "3")
	t.Setenv("KP_TIMEOUT", "15s")
	t.Setenv("KP_DATA_DIR", "/tmp/kp")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MaxTries != 3 {
		t.Errorf("MaxTries = %d, want 3", cfg.MaxTries)
	}
	if cfg.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", cfg.Timeout)
	}
	if got := cfg.KpPath(2019, ""); got != filepath.Join("/tmp/kp", "2019_kp.csv") {
		t.Errorf("KpPath = %q", got)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kp.toml")
	body := "realtime_url = \"http://mirror.example/old_indices\"\nlog_level = \"debug\"\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KP_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.RealTimeURL != "http://mirror.example/old_indices" {
		t.Errorf("RealTimeURL = %q", cfg.RealTimeURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoadConfigRejectsZeroTries(t *testing.T) {
	t.Setenv("KP_CONFIG", "")
	t.Setenv("KP_MAX_TRIES", "0")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for max_tries=0")
	}
}

func TestKpFileName(t *testing.T) {
	tests := []struct {
		year int
		ext  string
		want string
	}{
		{2018, "", "2018_kp.csv"},
		{2018, ".csv.gz", "2018_kp.csv.gz"},
		{1995, ".parquet", "1995_kp.parquet"},
	}
	for _, tt := range tests {
		if got := KpFileName(tt.year, tt.ext); got != tt.want {
			t.Errorf("KpFileName(%d, %q) = %q, want %q", tt.year, tt.ext, got, tt.want)
		}
	}
}

func TestStatsCounters(t *testing.T) {
	s := NewStats()
	s.AddYear(2920)
	s.AddYear(8)
	s.FailYear()
	s.AddBytes(1024)

	if s.YearsWritten.Load() != 2 || s.SamplesWritten.Load() != 2928 {
		t.Errorf("years=%d samples=%d", s.YearsWritten.Load(), s.SamplesWritten.Load())
	}
	if !s.Failed() {
		t.Error("Failed() = false after FailYear")
	}
}
