package config

import (
	"fmt"
	"time"

	"github.com/lumenweb/contactsync/internal/db"
	"github.com/spf13/viper"
)

// HubSpotConfig carries everything the CRM client needs. The API key is
// resolved here once at startup and injected; the client never reads
// process environment itself.
type HubSpotConfig struct {
	APIKey         string
	BaseURL        string
	ListID         string
	DealPipeline   string
	DealStage      string
	MaxAttempts    int
	AttemptTimeout time.Duration
	InitialBackoff time.Duration
}

// SyncConfig tunes the orchestrator's worker queue.
type SyncConfig struct {
	QueueSize int
	Workers   int
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig
	Database db.Config
	HubSpot  HubSpotConfig
	Sync     SyncConfig
}

// Load reads config.yaml from configPath with environment overrides.
func Load(configPath string) (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Database: db.DefaultConfig(),
		HubSpot: HubSpotConfig{
			BaseURL:        "https://api.hubapi.com",
			MaxAttempts:    3,
			AttemptTimeout: 10 * time.Second,
			InitialBackoff: 2 * time.Second,
		},
		Sync: SyncConfig{
			QueueSize: 256,
			Workers:   4,
		},
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv() // allow environment overrides

	// Map nested keys to flat env vars
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("hubspot.api_key", "HUBSPOT_API_KEY")
	v.BindEnv("hubspot.base_url", "HUBSPOT_BASE_URL")
	v.BindEnv("hubspot.list_id", "HUBSPOT_LIST_ID")
	v.BindEnv("server.addr", "SERVER_ADDR")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	// Override defaults if values exist
	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("hubspot.api_key") {
		cfg.HubSpot.APIKey = v.GetString("hubspot.api_key")
	}
	if v.IsSet("hubspot.base_url") {
		cfg.HubSpot.BaseURL = v.GetString("hubspot.base_url")
	}
	if v.IsSet("hubspot.list_id") {
		cfg.HubSpot.ListID = v.GetString("hubspot.list_id")
	}
	if v.IsSet("hubspot.deal_pipeline") {
		cfg.HubSpot.DealPipeline = v.GetString("hubspot.deal_pipeline")
	}
	if v.IsSet("hubspot.deal_stage") {
		cfg.HubSpot.DealStage = v.GetString("hubspot.deal_stage")
	}
	if v.IsSet("hubspot.max_attempts") {
		cfg.HubSpot.MaxAttempts = v.GetInt("hubspot.max_attempts")
	}
	if v.IsSet("hubspot.attempt_timeout") {
		cfg.HubSpot.AttemptTimeout = v.GetDuration("hubspot.attempt_timeout")
	}
	if v.IsSet("hubspot.initial_backoff") {
		cfg.HubSpot.InitialBackoff = v.GetDuration("hubspot.initial_backoff")
	}
	if v.IsSet("sync.queue_size") {
		cfg.Sync.QueueSize = v.GetInt("sync.queue_size")
	}
	if v.IsSet("sync.workers") {
		cfg.Sync.Workers = v.GetInt("sync.workers")
	}

	return cfg, nil
}
