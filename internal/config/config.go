// Package config holds emdx's runtime configuration as an explicit,
// passed-around value — no global singleton.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the full set of values the storage, executor, and CLI layers
// need at startup.
type Config struct {
	ConfigDir string
	StateDir  string
	DBPath    string
	LogDir    string

	MaxConcurrent            int
	HeartbeatIntervalSeconds int
	LivenessTimeoutSeconds   int
	ExecutionTimeoutSeconds  int
	KillGraceSeconds         int
	TailBufferBytes          int
	OutputSaveThresholdBytes int
	StaleThresholdSeconds    int
}

// Default returns the configuration a fresh install would get before any
// env var or config file override is applied.
func Default() Config {
	home, _ := os.UserHomeDir()
	configDir := filepath.Join(home, ".config", "emdx")
	return Config{
		ConfigDir: configDir,
		StateDir:  filepath.Join(home, ".local", "state", "emdx"),
		DBPath:    filepath.Join(configDir, "knowledge.db"),
		LogDir:    filepath.Join(configDir, "logs"),

		MaxConcurrent:            5,
		HeartbeatIntervalSeconds: 30,
		LivenessTimeoutSeconds:   90,
		ExecutionTimeoutSeconds:  300,
		KillGraceSeconds:         5,
		TailBufferBytes:          65536,
		OutputSaveThresholdBytes: 200,
		StaleThresholdSeconds:    2 * 60 * 60,
	}
}

// Load reads EMDX_* environment variables and an optional config.yaml in
// configDir over the defaults. A missing config file is not an error; a
// malformed one is.
func Load(configDir string) (Config, error) {
	cfg := Default()
	if configDir != "" {
		cfg.ConfigDir = configDir
		cfg.DBPath = filepath.Join(configDir, "knowledge.db")
		cfg.LogDir = filepath.Join(configDir, "logs")
	}

	v := viper.New()
	v.SetEnvPrefix("emdx")
	v.AutomaticEnv()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(cfg.ConfigDir)

	v.SetDefault("max_concurrent", cfg.MaxConcurrent)
	v.SetDefault("heartbeat_interval_seconds", cfg.HeartbeatIntervalSeconds)
	v.SetDefault("liveness_timeout_seconds", cfg.LivenessTimeoutSeconds)
	v.SetDefault("execution_timeout_seconds", cfg.ExecutionTimeoutSeconds)
	v.SetDefault("kill_grace_seconds", cfg.KillGraceSeconds)
	v.SetDefault("tail_buffer_bytes", cfg.TailBufferBytes)
	v.SetDefault("output_save_threshold_bytes", cfg.OutputSaveThresholdBytes)
	v.SetDefault("stale_threshold_seconds", cfg.StaleThresholdSeconds)
	v.SetDefault("db_path", cfg.DBPath)
	v.SetDefault("log_dir", cfg.LogDir)
	v.SetDefault("state_dir", cfg.StateDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	cfg.MaxConcurrent = v.GetInt("max_concurrent")
	cfg.HeartbeatIntervalSeconds = v.GetInt("heartbeat_interval_seconds")
	cfg.LivenessTimeoutSeconds = v.GetInt("liveness_timeout_seconds")
	cfg.ExecutionTimeoutSeconds = v.GetInt("execution_timeout_seconds")
	cfg.KillGraceSeconds = v.GetInt("kill_grace_seconds")
	cfg.TailBufferBytes = v.GetInt("tail_buffer_bytes")
	cfg.OutputSaveThresholdBytes = v.GetInt("output_save_threshold_bytes")
	cfg.StaleThresholdSeconds = v.GetInt("stale_threshold_seconds")
	cfg.DBPath = v.GetString("db_path")
	cfg.LogDir = v.GetString("log_dir")
	cfg.StateDir = v.GetString("state_dir")

	if cfg.MaxConcurrent > 10 {
		cfg.MaxConcurrent = 10
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return cfg, nil
}

// EnsureDirs creates the config/state/log directories if they don't exist.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{c.ConfigDir, c.StateDir, c.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	return nil
}
