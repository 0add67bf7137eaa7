package config

// Config is the root configuration structure for lintagent.
// Serialised to ~/.lintagent/config.json.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" json:"database"`
	Redis    RedisConfig    `mapstructure:"redis"    json:"redis"`
	Git      GitConfig      `mapstructure:"git"      json:"git"`
	Analysis AnalysisConfig `mapstructure:"analysis" json:"analysis"`
	Workers  WorkerConfig   `mapstructure:"workers"  json:"workers"`
	Webhook  WebhookConfig  `mapstructure:"webhook"  json:"webhook"`
	Limits   LimitsConfig   `mapstructure:"limits"   json:"limits"`
	Server   ServerConfig   `mapstructure:"server"   json:"server"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"  json:"cleanup"`
}

// DatabaseConfig controls the storage backend.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "mysql".
	Driver string `mapstructure:"driver" json:"driver"`
	// Path is the SQLite file path (expanded at runtime).
	Path string `mapstructure:"path"   json:"path"`
	// DSN is the MySQL data source name (used when Driver == "mysql").
	DSN string `mapstructure:"dsn"    json:"dsn"`
}

// RedisConfig enables the shared-store backends for the rate limiter and
// the file-analysis cache. Empty Addr keeps both in-process.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"     json:"addr"`
	Password string `mapstructure:"password" json:"password"`
	DB       int    `mapstructure:"db"       json:"db"`
}

// GitConfig holds clone limits and optional provider credentials used for
// pre-clone repository metadata lookups.
type GitConfig struct {
	// CloneTimeoutSec bounds a single clone operation.
	CloneTimeoutSec int `mapstructure:"clone_timeout_sec" json:"clone_timeout_sec"`
	// MaxRepoSizeMB is the aggregate working-tree size ceiling.
	MaxRepoSizeMB int `mapstructure:"max_repo_size_mb" json:"max_repo_size_mb"`
	// WorkspaceRoot is where clone workspaces are created. Defaults to the
	// system temp directory.
	WorkspaceRoot string `mapstructure:"workspace_root" json:"workspace_root"`
	// GitHubToken enables the GitHub preflight (default branch, size hint).
	GitHubToken string `mapstructure:"github_token" json:"github_token"`
	// GitLabToken enables the GitLab preflight.
	GitLabToken string `mapstructure:"gitlab_token" json:"gitlab_token"`
}

// AnalysisConfig controls file selection and analyzer execution.
type AnalysisConfig struct {
	// MaxFiles truncates the candidate file list per job.
	MaxFiles int `mapstructure:"max_files" json:"max_files"`
	// MaxFileSizeKB skips files larger than this.
	MaxFileSizeKB int `mapstructure:"max_file_size_kb" json:"max_file_size_kb"`
	// FileTimeoutSec bounds one external analyzer invocation.
	FileTimeoutSec int `mapstructure:"file_timeout_sec" json:"file_timeout_sec"`
	// JobTimeoutSec bounds a whole job, clone included.
	JobTimeoutSec int `mapstructure:"job_timeout_sec" json:"job_timeout_sec"`
	// CacheTTLSec bounds how long cached file results are served.
	CacheTTLSec int `mapstructure:"cache_ttl_sec" json:"cache_ttl_sec"`
	// Extensions is the file extension allow-list.
	Extensions []string `mapstructure:"extensions" json:"extensions"`
	// ProfilePath optionally overrides the built-in tool profiles (YAML).
	ProfilePath string `mapstructure:"profile_path" json:"profile_path"`
	// DependencyScan enables the per-job dependency audit pass.
	DependencyScan bool `mapstructure:"dependency_scan" json:"dependency_scan"`
}

// WorkerConfig controls the orchestrator pool.
type WorkerConfig struct {
	// Count is the number of concurrent workers.
	Count int `mapstructure:"count" json:"count"`
	// QueueSize bounds the submission queue; a full queue rejects submissions.
	QueueSize int `mapstructure:"queue_size" json:"queue_size"`
	// MaxRetries re-queues a job after a transient failure. 0 disables.
	MaxRetries int `mapstructure:"max_retries" json:"max_retries"`
}

// WebhookConfig controls outbound delivery behaviour.
type WebhookConfig struct {
	// MaxRetries is the per-event attempt ceiling.
	MaxRetries int `mapstructure:"max_retries" json:"max_retries"`
	// TimeoutSec is the default per-request timeout.
	TimeoutSec int `mapstructure:"timeout_sec" json:"timeout_sec"`
}

// LimitsConfig controls submission ingress.
type LimitsConfig struct {
	// RequestsPerMinute is the per-identity sliding-window ceiling.
	RequestsPerMinute int `mapstructure:"requests_per_minute" json:"requests_per_minute"`
}

// ServerConfig controls the REST gateway.
type ServerConfig struct {
	Host string `mapstructure:"host" json:"host"`
	Port int    `mapstructure:"port" json:"port"`
	// AuthRequired gates /api/v1 behind API keys even when none exist yet.
	AuthRequired bool `mapstructure:"auth_required" json:"auth_required"`
}

// CleanupConfig controls periodic housekeeping.
type CleanupConfig struct {
	// WorkspaceMaxAgeHours reaps leftover clone workspaces older than this.
	WorkspaceMaxAgeHours int `mapstructure:"workspace_max_age_hours" json:"workspace_max_age_hours"`
	// Enabled turns the cron housekeeping on.
	Enabled bool `mapstructure:"enabled" json:"enabled"`
}
