package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

// Selector values.
const (
	CredentialModeSelfSigned = "self_signed"
	CredentialModeExchange   = "exchange"

	CredentialCacheMemory = "memory"
	CredentialCacheRedis  = "redis"
	CredentialCacheNone   = "none"

	TransportHTTP     = "http"
	TransportFirebase = "firebase"

	StorageFirestore = "firestore"
	StoragePostgres  = "postgres"
)

// Defaults for the FCM credential.
const (
	DefaultAudience = "https://fcm.googleapis.com/"
	DefaultScope    = "https://www.googleapis.com/auth/firebase.messaging"
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	// TokenTTL bounds how long a user's token list is served from cache.
	TokenTTL time.Duration
}

type PostgresConfig struct {
	URL          string
	MaxConns     int32
	QueryTimeout time.Duration
}

// CredentialConfig describes the service account used to authenticate to FCM.
// Either ServiceAccountFile or ClientEmail + PrivateKey must be set.
type CredentialConfig struct {
	Mode               string
	ServiceAccountFile string
	ClientEmail        string
	PrivateKey         string
	Audience           string
	Scope              string
	TokenURL           string
	Cache              string
	RefreshBefore      time.Duration
}

type ProviderConfig struct {
	Transport string
	Endpoint  string
	// ProjectID is the Firebase project; defaults to Config.ProjectID.
	ProjectID        string
	Sound            string
	AndroidChannelID string
	Badge            int
}

type DispatchConfig struct {
	Workers       int
	SendTimeout   time.Duration
	DeleteTimeout time.Duration
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	IdentityServiceURL     string
	StorageBackend         string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig
	Postgres   PostgresConfig
	Credential CredentialConfig
	Provider   ProviderConfig
	Dispatch   DispatchConfig

	TopicID              string
	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// PipelineEnabled reports whether the Pub/Sub trigger should run.
func (c *Config) PipelineEnabled() bool {
	return c.SubscriptionID != ""
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("IDENTITY_SERVICE_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "IDENTITY_SERVICE_URL", "source", "env")
		cfg.IdentityServiceURL = val
	}
	if val := os.Getenv("STORAGE_BACKEND"); val != "" {
		logger.Debug("Overriding config value", "key", "STORAGE_BACKEND", "source", "env")
		cfg.StorageBackend = val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}

	// Credential Overrides
	if val := os.Getenv("FCM_CLIENT_EMAIL"); val != "" {
		logger.Debug("Overriding config value", "key", "FCM_CLIENT_EMAIL", "source", "env")
		cfg.Credential.ClientEmail = val
	}
	if val := os.Getenv("FCM_PRIVATE_KEY"); val != "" {
		logger.Debug("Overriding config value", "key", "FCM_PRIVATE_KEY", "source", "env")
		cfg.Credential.PrivateKey = val
	}
	if val := os.Getenv("SERVICE_ACCOUNT_FILE"); val != "" {
		logger.Debug("Overriding config value", "key", "SERVICE_ACCOUNT_FILE", "source", "env")
		cfg.Credential.ServiceAccountFile = val
	}
	if val := os.Getenv("CREDENTIAL_MODE"); val != "" {
		logger.Debug("Overriding config value", "key", "CREDENTIAL_MODE", "source", "env")
		cfg.Credential.Mode = val
	}
	if val := os.Getenv("CREDENTIAL_CACHE"); val != "" {
		logger.Debug("Overriding config value", "key", "CREDENTIAL_CACHE", "source", "env")
		cfg.Credential.Cache = val
	}

	// Provider Overrides
	if val := os.Getenv("FCM_PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "FCM_PROJECT_ID", "source", "env")
		cfg.Provider.ProjectID = val
	}
	if val := os.Getenv("FCM_TRANSPORT"); val != "" {
		logger.Debug("Overriding config value", "key", "FCM_TRANSPORT", "source", "env")
		cfg.Provider.Transport = val
	}
	if val := os.Getenv("FCM_ENDPOINT"); val != "" {
		logger.Debug("Overriding config value", "key", "FCM_ENDPOINT", "source", "env")
		cfg.Provider.Endpoint = val
	}

	// Dispatch Overrides
	if val := os.Getenv("DISPATCH_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "DISPATCH_WORKERS", "source", "env")
			cfg.Dispatch.Workers = workers
		}
	}
	if val := os.Getenv("SEND_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			logger.Debug("Overriding config value", "key", "SEND_TIMEOUT", "source", "env")
			cfg.Dispatch.SendTimeout = d
		}
	}

	// Postgres Overrides
	if val := os.Getenv("DATABASE_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "DATABASE_URL", "source", "env")
		cfg.Postgres.URL = val
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// 2. Defaults
	applyDefaults(cfg)

	// 3. Final Validation
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.IdentityServiceURL == "" {
		cfg.IdentityServiceURL = "http://localhost:3000"
	}
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = StorageFirestore
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.Redis.TokenTTL <= 0 {
		cfg.Redis.TokenTTL = 24 * time.Hour
	}

	if cfg.Credential.Mode == "" {
		cfg.Credential.Mode = CredentialModeSelfSigned
	}
	if cfg.Credential.Audience == "" {
		cfg.Credential.Audience = DefaultAudience
	}
	if cfg.Credential.Scope == "" {
		cfg.Credential.Scope = DefaultScope
	}
	if cfg.Credential.Cache == "" {
		cfg.Credential.Cache = CredentialCacheMemory
	}

	if cfg.Provider.Transport == "" {
		cfg.Provider.Transport = TransportHTTP
	}
	if cfg.Provider.ProjectID == "" {
		cfg.Provider.ProjectID = cfg.ProjectID
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}
}

func validate(cfg *Config) error {
	if cfg.ProjectID == "" {
		return fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}

	switch cfg.StorageBackend {
	case StorageFirestore:
	case StoragePostgres:
		if cfg.Postgres.URL == "" {
			return fmt.Errorf("postgres.url is required for the postgres backend (set via YAML or DATABASE_URL env var)")
		}
	default:
		return fmt.Errorf("unknown storage_backend %q", cfg.StorageBackend)
	}

	c := cfg.Credential
	if c.Mode != CredentialModeSelfSigned && c.Mode != CredentialModeExchange {
		return fmt.Errorf("unknown credential.mode %q", c.Mode)
	}
	if c.ServiceAccountFile == "" && (c.ClientEmail == "" || c.PrivateKey == "") {
		return fmt.Errorf("fcm credential is required (set SERVICE_ACCOUNT_FILE, or FCM_CLIENT_EMAIL and FCM_PRIVATE_KEY)")
	}
	switch c.Cache {
	case CredentialCacheMemory, CredentialCacheNone:
	case CredentialCacheRedis:
		if !cfg.Redis.Enabled {
			return fmt.Errorf("credential.cache redis requires redis to be enabled")
		}
	default:
		return fmt.Errorf("unknown credential.cache %q", c.Cache)
	}

	if cfg.Provider.Transport != TransportHTTP && cfg.Provider.Transport != TransportFirebase {
		return fmt.Errorf("unknown provider.transport %q", cfg.Provider.Transport)
	}
	return nil
}
