package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultConfigDir  = ".lintagent"
	DefaultConfigFile = "config.json"
	DefaultDBFile     = ".lintagent/lintagent.db"
)

// DefaultExtensions is the out-of-the-box file extension allow-list.
var DefaultExtensions = []string{
	".py", ".js", ".ts", ".jsx", ".tsx", ".go", ".rs",
	".java", ".rb", ".php", ".c", ".cpp", ".h", ".hpp",
}

// Load reads the config file (falling back to defaults if absent) and returns
// a populated Config. The configPath flag may override the default location.
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("LINTAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(home, DefaultConfigDir))
	}

	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !isNotExist(err) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
		// No config yet, defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	expandPaths(&cfg, home)
	return &cfg, nil
}

// Save writes the config to disk as JSON.
func Save(cfg *Config, configPath string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("cannot determine home directory: %w", err)
	}

	if configPath == "" {
		configPath = filepath.Join(home, DefaultConfigDir, DefaultConfigFile)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("serialising config: %w", err)
	}

	return os.WriteFile(configPath, data, 0o600)
}

// setDefaults populates viper with sensible out-of-the-box values.
func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", filepath.Join(home, DefaultDBFile))
	v.SetDefault("database.dsn", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("git.clone_timeout_sec", 120)
	v.SetDefault("git.max_repo_size_mb", 500)
	v.SetDefault("git.workspace_root", "")

	v.SetDefault("analysis.max_files", 500)
	v.SetDefault("analysis.max_file_size_kb", 1024)
	v.SetDefault("analysis.file_timeout_sec", 30)
	v.SetDefault("analysis.job_timeout_sec", 300)
	v.SetDefault("analysis.cache_ttl_sec", 3600)
	v.SetDefault("analysis.extensions", DefaultExtensions)
	v.SetDefault("analysis.dependency_scan", true)

	v.SetDefault("workers.count", 4)
	v.SetDefault("workers.queue_size", 100)
	v.SetDefault("workers.max_retries", 0)

	v.SetDefault("webhook.max_retries", 3)
	v.SetDefault("webhook.timeout_sec", 10)

	v.SetDefault("limits.requests_per_minute", 10)

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 5001)
	v.SetDefault("server.auth_required", false)

	v.SetDefault("cleanup.enabled", true)
	v.SetDefault("cleanup.workspace_max_age_hours", 24)
}

// expandPaths resolves ~ in configured paths.
func expandPaths(cfg *Config, home string) {
	cfg.Database.Path = expandHome(cfg.Database.Path, home)
	cfg.Git.WorkspaceRoot = expandHome(cfg.Git.WorkspaceRoot, home)
	cfg.Analysis.ProfilePath = expandHome(cfg.Analysis.ProfilePath, home)
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file")
}
