package config

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/BugBridge/BugBridge/internal/domain"
	"github.com/BugBridge/BugBridge/internal/logger"
	"github.com/BugBridge/BugBridge/pkg/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var configTemplate = `# config.toml

[server]
  # Hostname or IP address for the server to listen on.
  # Default: "{{ .host }}" ("0.0.0.0" for all interfaces, e.g. in Docker)
  host = "{{ .host }}"

  # Port for the server to listen on.
  # Default: 8484
  port = 8484

  # Base URL for serving the application under a subdirectory.
  # Optional.
  # Default: ""
  #base_url = ""

  # API key required on management endpoints (sync status, trigger, etc.).
  # Generated on first run if not set.
  api_key = "{{ .apiKey }}"

[database]
  # Database type to use.
  # Supported: "sqlite", "postgres"
  # Default: "sqlite"
  type = "sqlite"

  [database.postgres]
    host = "localhost"
    port = 5432
    database = "postgres"
    username = "postgres"
    password = "postgres"
    ssl_mode = "disable"

[logging]
  # Log file path. Empty means stdout only.
  # Default: ""
  path = "log/"

  # Log level. Options: "ERROR", "WARN", "INFO", "DEBUG", "TRACE"
  # Default: "DEBUG"
  level = "DEBUG"

  # Maximum size of a log file in megabytes before rotation.
  # Default: 50
  max_file_size = 50

  # Maximum number of rotated log files to keep.
  # Default: 3
  max_backup_count = 3

[upstream]
  # Base URL, API key and shared secret of the primary bug-tracking system.
  base_url = "http://localhost:8080/api"
  api_key = ""
  secret_key = ""

[webhook]
  # Inbound push receiver. Requests are authenticated by HMAC signature.
  enabled = true
  secret_key = "{{ .webhookSecret }}"
  allowed_events = ["bug.created", "bug.updated", "bug.deleted"]

  # The receiver is considered healthy while a push arrived within this window.
  # Default: 300000 (5 minutes)
  health_timeout_ms = 300000

  # Maximum allowed clock drift of the signed timestamp, past or future.
  # Default: 300000 (5 minutes)
  signature_drift_ms = 300000

[sync]
  # Initial strategy: "polling", "webhook", "incremental" or "hybrid".
  # Default: "hybrid"
  strategy = "hybrid"

  # Strategy to switch to when the active one turns unhealthy.
  # Default: "polling"
  fallback_strategy = "polling"
  enable_failover = true

  # Health check loop period.
  # Default: 60000 (1 minute)
  health_check_ms = 60000

  # Polling pull cadence and page size.
  polling_interval_ms = 300000
  polling_batch_size = 100
  max_retries = 3
  enabled_entities = ["bugs"]

  # When true the last-sync checkpoint only advances if every item of the
  # cycle persisted locally. Default preserves optimistic advancement.
  strict_checkpoint = false

  # Bug-only manager: "polling", "webhook" or "both", plus the cooldown a
  # successful push suspends polling for.
  bug_strategy = "both"
  fallback_to_polling = true
  webhook_cooldown_ms = 30000

  [sync.incremental]
    check_interval_ms = 30000
    batch_size = 50
    max_retries = 3

    [[sync.incremental.tables]]
      table_name = "bugs"
      primary_key = "id"
      timestamp_field = "updated_at"
      enabled = true
`

var generateRandomString = func(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func writeConfig(configPath string, configFile string) error {
	cfgPath := filepath.Join(configPath, configFile)

	// check if configPath exists, if not create it
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(configPath, os.ModePerm); err != nil {
			log.Println(err)
			return err
		}
	}

	// check if config exists, if not create it
	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		// set default host
		host := "127.0.0.1"

		if _, dockerErr := os.Stat("/.dockerenv"); dockerErr == nil {
			host = "0.0.0.0"
		} else if pd, cgroupErr := os.Open("/proc/1/cgroup"); cgroupErr == nil {
			defer pd.Close()
			b := make([]byte, 4096)
			if _, readErr := pd.Read(b); readErr == nil {
				if strings.Contains(string(b), "/docker") || strings.Contains(string(b), "/lxc") {
					host = "0.0.0.0"
				}
			}
		}

		f, createErr := os.Create(cfgPath)
		if createErr != nil {
			log.Printf("error creating file: %q", createErr)
			return createErr
		}
		defer f.Close()

		apiKey, err := generateRandomString(16)
		if err != nil {
			return errors.Wrap(err, "could not generate api key")
		}
		webhookSecret, err := generateRandomString(16)
		if err != nil {
			return errors.Wrap(err, "could not generate webhook secret")
		}

		tmpl, tmplErr := template.New("config").Parse(configTemplate)
		if tmplErr != nil {
			return errors.Wrap(tmplErr, "could not create config template")
		}

		tmplVars := map[string]string{
			"host":          host,
			"apiKey":        apiKey,
			"webhookSecret": webhookSecret,
		}

		var buffer bytes.Buffer
		if execErr := tmpl.Execute(&buffer, &tmplVars); execErr != nil {
			return errors.Wrap(execErr, "could not write config template output")
		}

		if _, writeErr := f.WriteString(buffer.String()); writeErr != nil {
			log.Printf("error writing contents to file: %v %q", configPath, writeErr)
			return writeErr
		}

		return f.Sync()
	}

	return nil
}

type Config interface {
	DynamicReload(log logger.Logger)
}

type AppConfig struct {
	Config *domain.Config
	m      sync.Mutex
}

func New(configPath string, version string) *AppConfig {
	c := &AppConfig{}
	c.defaults()
	c.Config.Version = version
	c.Config.ConfigPath = configPath

	c.load(configPath)

	return c
}

func (c *AppConfig) defaults() {
	c.Config = &domain.Config{
		Version:    "dev",
		ConfigPath: "",
		Server: domain.ServerConfig{
			Host:    "127.0.0.1",
			Port:    8484,
			BaseURL: "",
		},
		Database: domain.DatabaseConfig{
			Type: "sqlite",
			Postgres: domain.PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "postgres",
				User:     "postgres",
				Pass:     "postgres",
				SslMode:  "disable",
			},
		},
		Logging: domain.LoggingConfig{
			Path:           "",
			Level:          "DEBUG",
			MaxFileSize:    50,
			MaxBackupCount: 3,
		},
		Upstream: domain.UpstreamConfig{
			BaseURL: "http://localhost:8080/api",
		},
		Webhook: domain.WebhookConfig{
			Enabled:          true,
			AllowedEvents:    []string{"bug.created", "bug.updated", "bug.deleted"},
			HealthTimeoutMs:  300000,
			SignatureDriftMs: 300000,
		},
		Sync: domain.SyncSettings{
			Strategy:          "hybrid",
			FallbackStrategy:  "polling",
			EnableFailover:    true,
			HealthCheckMs:     60000,
			PollingIntervalMs: 300000,
			PollingBatchSize:  100,
			MaxRetries:        3,
			EnabledEntities:   []string{"bugs"},
			StrictCheckpoint:  false,
			FallbackToPolling: true,
			WebhookCooldownMs: 30000,
			BugStrategy:       "both",
			Incremental: domain.IncrementalSyncSettings{
				CheckIntervalMs: 30000,
				BatchSize:       50,
				MaxRetries:      3,
				Tables: []domain.SyncTableConfig{
					{TableName: "bugs", PrimaryKey: "id", TimestampField: "updated_at", Enabled: true},
				},
			},
		},
	}
}

func (c *AppConfig) load(configPath string) {
	viper.SetConfigType("toml")

	// settings like webhook.secret_key and upstream.api_key can come from
	// the environment: BUGBRIDGE_WEBHOOK_SECRET_KEY, BUGBRIDGE_UPSTREAM_API_KEY, ...
	viper.SetEnvPrefix("BUGBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	configPath = path.Clean(configPath)

	if configPath != "" {
		if err := writeConfig(configPath, "config.toml"); err != nil {
			log.Printf("writeConfig error during load: %q", err)
		}
		viper.SetConfigFile(path.Join(configPath, "config.toml"))
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/bugbridge")
		viper.AddConfigPath("$HOME/.bugbridge")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Config file not found, using defaults: %s", viper.ConfigFileUsed())
		} else {
			log.Printf("Config read error: %q. Using defaults.", err)
		}
	}

	if err := viper.Unmarshal(&c.Config); err != nil {
		log.Fatalf("Could not unmarshal config file into struct: %v. Config file used: %s", err, viper.ConfigFileUsed())
	}
}

func (c *AppConfig) DynamicReload(log logger.Logger) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		c.m.Lock()
		defer c.m.Unlock()

		log.Info().Msgf("Config file changed: %s. Reloading configuration.", e.Name)

		if err := viper.ReadInConfig(); err != nil {
			log.Error().Err(err).Msg("Error reading config file during dynamic reload")
			return
		}

		var newConfig domain.Config
		newConfig.Version = c.Config.Version
		newConfig.ConfigPath = c.Config.ConfigPath

		if err := viper.Unmarshal(&newConfig); err != nil {
			log.Error().Err(err).Msg("Error unmarshalling config during dynamic reload")
			return
		}

		c.Config = &newConfig

		log.SetLogLevel(c.Config.Logging.Level)

		log.Debug().Msg("Configuration reloaded successfully!")
	})
	viper.WatchConfig()
}
