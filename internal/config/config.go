package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration

	// Normalization
	MaxNestingDepth   int
	VerifyNested      bool
	CaseSensitiveTags bool

	LogLevel string
}

// Option is one configuration key with its default and meaning.
type Option struct {
	Key     string
	Default any
	Comment string
}

// Options returns every configuration key mdnorm reads.
func Options() []Option {
	return []Option{
		{Key: "port", Default: "8090", Comment: "HTTP listen port for mdnorm serve"},
		{Key: "api_key", Default: "", Comment: "Bearer token required on /api/* when set"},

		{Key: "worker_count", Default: 4, Comment: "Documents normalized in parallel"},
		{Key: "max_queue_size", Default: 100, Comment: "Jobs waiting for a worker before submissions are refused"},
		{Key: "max_upload_bytes", Default: int64(10 << 20), Comment: "Largest accepted upload in bytes"},
		{Key: "job_ttl", Default: time.Hour, Comment: "How long finished jobs stay queryable"},

		{Key: "max_nesting_depth", Default: 64, Comment: "Deepest block/inline nesting accepted before a document is rejected"},
		{Key: "verify_nested", Default: true, Comment: "Reject nested rewrites whose rendered HTML changes"},
		{Key: "case_sensitive_tags", Default: false, Comment: "Match only lowercase markdown/md fence tags"},
		{Key: "log_level", Default: "warn", Comment: "debug, info, warn or error"},
	}
}

// Load resolves configuration with precedence: defaults < file < env < flags
// bound on v. An explicit config file (v.SetConfigFile) must exist; the
// search-path fallback is optional.
func Load(v *viper.Viper) (Config, error) {
	explicit := v.ConfigFileUsed() != ""
	if !explicit {
		v.SetConfigName("mdnorm")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "mdnorm"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "mdnorm"))
		}
		v.AddConfigPath(".")
	}

	for _, o := range Options() {
		v.SetDefault(o.Key, o.Default)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	// Environment variables: MDNORM_*
	v.SetEnvPrefix("mdnorm")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Config{
		Port:              v.GetString("port"),
		APIKey:            v.GetString("api_key"),
		WorkerCount:       v.GetInt("worker_count"),
		MaxQueueSize:      v.GetInt("max_queue_size"),
		MaxUploadBytes:    v.GetInt64("max_upload_bytes"),
		JobTTL:            v.GetDuration("job_ttl"),
		MaxNestingDepth:   v.GetInt("max_nesting_depth"),
		VerifyNested:      v.GetBool("verify_nested"),
		CaseSensitiveTags: v.GetBool("case_sensitive_tags"),
		LogLevel:          strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "warn"
	}

	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if n, err := strconv.Atoi(c.Port); err != nil || n < 1 || n > 65535 {
		errs = append(errs, fmt.Errorf("port %q is not a valid TCP port", c.Port))
	}
	if c.MaxNestingDepth < 1 {
		errs = append(errs, fmt.Errorf("max_nesting_depth must be greater than 0"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel returns the configured log level, falling back to warn.
func (c Config) SlogLevel() slog.Level {
	lvl, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelWarn
	}
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log_level %q must be debug, info, warn or error", s)
}
