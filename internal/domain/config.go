package domain

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// PostgresConfig holds PostgreSQL-specific settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"username"`
	Pass     string `mapstructure:"password"`
	SslMode  string `mapstructure:"ssl_mode"`
}

// DatabaseConfig holds general database settings and nested specific configs
type DatabaseConfig struct {
	Type     string         `mapstructure:"type"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Path           string `mapstructure:"path"`
	Level          string `mapstructure:"level"`
	MaxFileSize    int    `mapstructure:"max_file_size"`
	MaxBackupCount int    `mapstructure:"max_backup_count"`
}

// UpstreamConfig holds the connection settings of the primary system.
type UpstreamConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// WebhookConfig holds the inbound push receiver settings.
type WebhookConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	SecretKey        string   `mapstructure:"secret_key"`
	AllowedEvents    []string `mapstructure:"allowed_events"`
	HealthTimeoutMs  int      `mapstructure:"health_timeout_ms"`
	SignatureDriftMs int      `mapstructure:"signature_drift_ms"`
}

// IncrementalSyncSettings drives the checkpointed multi-table puller.
type IncrementalSyncSettings struct {
	CheckIntervalMs int               `mapstructure:"check_interval_ms"`
	BatchSize       int               `mapstructure:"batch_size"`
	MaxRetries      int               `mapstructure:"max_retries"`
	Tables          []SyncTableConfig `mapstructure:"tables"`
}

// SyncSettings holds the strategy selection and pull tunables.
type SyncSettings struct {
	Strategy          string                  `mapstructure:"strategy"`
	FallbackStrategy  string                  `mapstructure:"fallback_strategy"`
	EnableFailover    bool                    `mapstructure:"enable_failover"`
	HealthCheckMs     int                     `mapstructure:"health_check_ms"`
	PollingIntervalMs int                     `mapstructure:"polling_interval_ms"`
	PollingBatchSize  int                     `mapstructure:"polling_batch_size"`
	MaxRetries        int                     `mapstructure:"max_retries"`
	EnabledEntities   []string                `mapstructure:"enabled_entities"`
	StrictCheckpoint  bool                    `mapstructure:"strict_checkpoint"`
	FallbackToPolling bool                    `mapstructure:"fallback_to_polling"`
	WebhookCooldownMs int                     `mapstructure:"webhook_cooldown_ms"`
	BugStrategy       string                  `mapstructure:"bug_strategy"`
	Incremental       IncrementalSyncSettings `mapstructure:"incremental"`
}

// ConfigUpdate carries the runtime-mutable settings. Nil fields are left
// untouched.
type ConfigUpdate struct {
	LogLevel *string `json:"log_level,omitempty"`
	LogPath  *string `json:"log_path,omitempty"`
}

// Config holds the application's configuration, mapped from config.toml
type Config struct {
	Version    string // not from config file
	ConfigPath string // internal use

	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Sync     SyncSettings   `mapstructure:"sync"`
}
