package config_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-reminder-service/reminderservice/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUpdateConfigWithEnvOverrides(t *testing.T) {
	logger := newTestLogger()

	baseConfig := func() *config.Config {
		return &config.Config{
			ProjectID:          "base-project",
			ListenAddr:         ":8080",
			SubscriptionID:     "base-sub",
			NumPipelineWorkers: 2,
			Credential: config.CredentialConfig{
				ClientEmail: "svc@base-project.iam.gserviceaccount.com",
				PrivateKey:  "base-key",
			},
		}
	}

	t.Run("Success - All overrides applied", func(t *testing.T) {
		cfg := baseConfig()

		t.Setenv("PROJECT_ID", "env-project")
		t.Setenv("PORT", "9090")
		t.Setenv("SUBSCRIPTION_ID", "env-sub")
		t.Setenv("FCM_CLIENT_EMAIL", "env@env-project.iam.gserviceaccount.com")
		t.Setenv("FCM_PRIVATE_KEY", "env-key")
		t.Setenv("FCM_PROJECT_ID", "env-firebase")
		t.Setenv("CREDENTIAL_MODE", "exchange")
		t.Setenv("FCM_TRANSPORT", "firebase")
		t.Setenv("DISPATCH_WORKERS", "16")
		t.Setenv("SEND_TIMEOUT", "3s")
		t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.com, http://b.com,")

		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, "env-project", finalCfg.ProjectID)
		assert.Equal(t, ":9090", finalCfg.ListenAddr)
		assert.Equal(t, "env-sub", finalCfg.SubscriptionID)
		require.NotNil(t, finalCfg.PubsubConsumerConfig)

		assert.Equal(t, "env@env-project.iam.gserviceaccount.com", finalCfg.Credential.ClientEmail)
		assert.Equal(t, "env-key", finalCfg.Credential.PrivateKey)
		assert.Equal(t, config.CredentialModeExchange, finalCfg.Credential.Mode)
		assert.Equal(t, "env-firebase", finalCfg.Provider.ProjectID)
		assert.Equal(t, config.TransportFirebase, finalCfg.Provider.Transport)
		assert.Equal(t, 16, finalCfg.Dispatch.Workers)
		assert.Equal(t, 3*time.Second, finalCfg.Dispatch.SendTimeout)
		assert.Equal(t, []string{"http://a.com", "http://b.com"}, finalCfg.CorsConfig.AllowedOrigins)
	})

	t.Run("Success - Defaults applied", func(t *testing.T) {
		cfg := baseConfig()
		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, "base-project", finalCfg.ProjectID)
		assert.Equal(t, config.StorageFirestore, finalCfg.StorageBackend)
		assert.Equal(t, config.CredentialModeSelfSigned, finalCfg.Credential.Mode)
		assert.Equal(t, config.CredentialCacheMemory, finalCfg.Credential.Cache)
		assert.Equal(t, config.DefaultAudience, finalCfg.Credential.Audience)
		assert.Equal(t, config.DefaultScope, finalCfg.Credential.Scope)
		assert.Equal(t, config.TransportHTTP, finalCfg.Provider.Transport)
		assert.Equal(t, "base-project", finalCfg.Provider.ProjectID, "firebase project falls back to the service project")
		assert.True(t, finalCfg.PipelineEnabled())
	})

	t.Run("Success - Pipeline is optional", func(t *testing.T) {
		cfg := baseConfig()
		cfg.SubscriptionID = ""
		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)
		assert.False(t, finalCfg.PipelineEnabled())
		assert.Nil(t, finalCfg.PubsubConsumerConfig)
	})

	t.Run("Validation Failures", func(t *testing.T) {
		testCases := []struct {
			name   string
			mutate func(c *config.Config)
		}{
			{"Missing ProjectID", func(c *config.Config) { c.ProjectID = "" }},
			{"Missing credential", func(c *config.Config) { c.Credential = config.CredentialConfig{} }},
			{"Unknown credential mode", func(c *config.Config) { c.Credential.Mode = "magic" }},
			{"Unknown transport", func(c *config.Config) { c.Provider.Transport = "carrier-pigeon" }},
			{"Unknown storage", func(c *config.Config) { c.StorageBackend = "floppy" }},
			{"Postgres without URL", func(c *config.Config) { c.StorageBackend = config.StoragePostgres }},
			{"Redis cache without redis", func(c *config.Config) { c.Credential.Cache = config.CredentialCacheRedis }},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				t.Setenv("PROJECT_ID", "")
				t.Setenv("DATABASE_URL", "")
				t.Setenv("REDIS_ADDR", "")
				t.Setenv("REDIS_ENABLED", "")
				cfg := baseConfig()
				tc.mutate(cfg)
				_, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
				assert.Error(t, err)
			})
		}
	})

	t.Run("Success - Service account file satisfies credential", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Credential = config.CredentialConfig{ServiceAccountFile: "/secrets/sa.json"}
		_, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		assert.NoError(t, err)
	})
}
