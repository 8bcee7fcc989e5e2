package config

import (
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Enabled  bool          `yaml:"enabled"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

type YamlPostgresConfig struct {
	URL          string        `yaml:"url"`
	MaxConns     int32         `yaml:"max_conns"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

type YamlCredentialConfig struct {
	Mode               string        `yaml:"mode"`
	ServiceAccountFile string        `yaml:"service_account_file"`
	ClientEmail        string        `yaml:"client_email"`
	Audience           string        `yaml:"audience"`
	Scope              string        `yaml:"scope"`
	TokenURL           string        `yaml:"token_url"`
	Cache              string        `yaml:"cache"`
	RefreshBefore      time.Duration `yaml:"refresh_before"`
}

type YamlProviderConfig struct {
	Transport        string `yaml:"transport"`
	Endpoint         string `yaml:"endpoint"`
	ProjectID        string `yaml:"project_id"`
	Sound            string `yaml:"sound"`
	AndroidChannelID string `yaml:"android_channel_id"`
	Badge            int    `yaml:"badge"`
}

type YamlDispatchConfig struct {
	Workers       int           `yaml:"workers"`
	SendTimeout   time.Duration `yaml:"send_timeout"`
	DeleteTimeout time.Duration `yaml:"delete_timeout"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
// Secrets (the private key, database password) are only taken from the environment.
type YamlConfig struct {
	ProjectID              string               `yaml:"project_id"`
	ListenAddr             string               `yaml:"listen_addr"`
	IdentityServiceURL     string               `yaml:"identity_service_url"`
	StorageBackend         string               `yaml:"storage_backend"`
	TopicID                string               `yaml:"topic_id"`
	SubscriptionID         string               `yaml:"subscription_id"`
	SubscriptionDLQTopicID string               `yaml:"subscription_dlq_topic_id"`
	CorsConfig             YamlCorsConfig       `yaml:"cors"`
	RedisConfig            YamlRedisConfig      `yaml:"redis"`
	PostgresConfig         YamlPostgresConfig   `yaml:"postgres"`
	CredentialConfig       YamlCredentialConfig `yaml:"credential"`
	ProviderConfig         YamlProviderConfig   `yaml:"provider"`
	DispatchConfig         YamlDispatchConfig   `yaml:"dispatch"`
	NumPipelineWorkers     int                  `yaml:"num_pipeline_workers"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		ProjectID:          baseCfg.ProjectID,
		ListenAddr:         baseCfg.ListenAddr,
		IdentityServiceURL: baseCfg.IdentityServiceURL,
		StorageBackend:     baseCfg.StorageBackend,
		TopicID:            baseCfg.TopicID,
		SubscriptionID:     baseCfg.SubscriptionID,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
			TokenTTL: baseCfg.RedisConfig.TokenTTL,
		},
		Postgres: PostgresConfig{
			URL:          baseCfg.PostgresConfig.URL,
			MaxConns:     baseCfg.PostgresConfig.MaxConns,
			QueryTimeout: baseCfg.PostgresConfig.QueryTimeout,
		},
		Credential: CredentialConfig{
			Mode:               baseCfg.CredentialConfig.Mode,
			ServiceAccountFile: baseCfg.CredentialConfig.ServiceAccountFile,
			ClientEmail:        baseCfg.CredentialConfig.ClientEmail,
			Audience:           baseCfg.CredentialConfig.Audience,
			Scope:              baseCfg.CredentialConfig.Scope,
			TokenURL:           baseCfg.CredentialConfig.TokenURL,
			Cache:              baseCfg.CredentialConfig.Cache,
			RefreshBefore:      baseCfg.CredentialConfig.RefreshBefore,
		},
		Provider: ProviderConfig{
			Transport:        baseCfg.ProviderConfig.Transport,
			Endpoint:         baseCfg.ProviderConfig.Endpoint,
			ProjectID:        baseCfg.ProviderConfig.ProjectID,
			Sound:            baseCfg.ProviderConfig.Sound,
			AndroidChannelID: baseCfg.ProviderConfig.AndroidChannelID,
			Badge:            baseCfg.ProviderConfig.Badge,
		},
		Dispatch: DispatchConfig{
			Workers:       baseCfg.DispatchConfig.Workers,
			SendTimeout:   baseCfg.DispatchConfig.SendTimeout,
			DeleteTimeout: baseCfg.DispatchConfig.DeleteTimeout,
		},
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"storage_backend", cfg.StorageBackend,
		"subscription_id", cfg.SubscriptionID,
	)

	return cfg, nil
}
