// Package common provides shared configuration, logging and run statistics
// for the kp-magephem tools.
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Default remote archives.
const (
	DefaultHistoricalURL = "https://www.ngdc.noaa.gov/stp/GEOMAGNETIC_DATA/INDICES/KP_AP"
	DefaultRealTimeURL   = "https://ftp.swpc.noaa.gov/pub/indices/old_indices"
)

// Config holds common configuration for all applications.
type Config struct {
	DataDir       string
	HistoricalURL string
	RealTimeURL   string
	MaxTries      int
	Timeout       time.Duration
	RetryDelay    time.Duration
	RPS           float64

	ClickHouseHost     string
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string

	FieldModelHelper string
	LogLevel         string
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:            "./data/",
		HistoricalURL:      DefaultHistoricalURL,
		RealTimeURL:        DefaultRealTimeURL,
		MaxTries:           5,
		Timeout:            60 * time.Second,
		RetryDelay:         0,
		RPS:                0,
		ClickHouseHost:     "127.0.0.1:9000",
		ClickHouseDatabase: "solar",
		ClickHouseUser:     "default",
		ClickHousePassword: "",
		LogLevel:           "info",
	}
}

// LoadConfig layers a .env file, KP_* environment variables and an optional
// config file (path in KP_CONFIG) over DefaultConfig.
func LoadConfig() (*Config, error) {
	// A missing .env is the common case.
	_ = godotenv.Load()

	def := DefaultConfig()
	v := viper.New()
	v.SetEnvPrefix("KP")
	v.AutomaticEnv()

	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("historical_url", def.HistoricalURL)
	v.SetDefault("realtime_url", def.RealTimeURL)
	v.SetDefault("max_tries", def.MaxTries)
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("retry_delay", def.RetryDelay)
	v.SetDefault("rps", def.RPS)
	v.SetDefault("clickhouse_host", def.ClickHouseHost)
	v.SetDefault("clickhouse_database", def.ClickHouseDatabase)
	v.SetDefault("clickhouse_user", def.ClickHouseUser)
	v.SetDefault("clickhouse_password", def.ClickHousePassword)
	v.SetDefault("fieldmodel_helper", def.FieldModelHelper)
	v.SetDefault("log_level", def.LogLevel)

	if path := os.Getenv("KP_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{
		DataDir:            v.GetString("data_dir"),
		HistoricalURL:      v.GetString("historical_url"),
		RealTimeURL:        v.GetString("realtime_url"),
		MaxTries:           v.GetInt("max_tries"),
		Timeout:            v.GetDuration("timeout"),
		RetryDelay:         v.GetDuration("retry_delay"),
		RPS:                v.GetFloat64("rps"),
		ClickHouseHost:     v.GetString("clickhouse_host"),
		ClickHouseDatabase: v.GetString("clickhouse_database"),
		ClickHouseUser:     v.GetString("clickhouse_user"),
		ClickHousePassword: v.GetString("clickhouse_password"),
		FieldModelHelper:   v.GetString("fieldmodel_helper"),
		LogLevel:           v.GetString("log_level"),
	}

	if cfg.MaxTries < 1 {
		return nil, fmt.Errorf("max_tries must be at least 1, got %d", cfg.MaxTries)
	}
	return cfg, nil
}

// KpPath returns the path of the stored Kp table for a year.
func (c *Config) KpPath(year int, ext string) string {
	return filepath.Join(c.DataDir, KpFileName(year, ext))
}

// KpFileName returns the file name of the stored Kp table for a year.
func KpFileName(year int, ext string) string {
	if ext == "" {
		ext = ".csv"
	}
	return fmt.Sprintf("%d_kp%s", year, ext)
}
