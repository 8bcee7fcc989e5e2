package reminderservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/tinywideclouds/go-reminder-service/internal/credential"
	"github.com/tinywideclouds/go-reminder-service/internal/fanout"
	"github.com/tinywideclouds/go-reminder-service/internal/notify"
	"github.com/tinywideclouds/go-reminder-service/internal/platform/fcm"
	"github.com/tinywideclouds/go-reminder-service/internal/recipient"
	"github.com/tinywideclouds/go-reminder-service/pkg/dispatch"
	"github.com/tinywideclouds/go-reminder-service/reminderservice/config"
)

// Recorder collects request and per-send metrics.
type Recorder interface {
	fanout.Recorder
	notify.Recorder
}

// NewHandler builds the resolve, credential and fan-out chain behind both triggers.
func NewHandler(
	store dispatch.Store,
	sender dispatch.Sender,
	source credential.Source,
	cfg config.DispatchConfig,
	recorder Recorder,
	logger *slog.Logger,
) *notify.Handler {
	resolver := recipient.NewResolver(store, logger)
	dispatcher := fanout.New(sender, store, fanout.Config{
		Workers:       cfg.Workers,
		SendTimeout:   cfg.SendTimeout,
		DeleteTimeout: cfg.DeleteTimeout,
	}, recorder, logger)
	return notify.NewHandler(resolver, source, dispatcher, recorder, logger)
}

// LoadServiceAccount reads the FCM identity from the key file when one is
// configured, otherwise from the inline email and key.
func LoadServiceAccount(c config.CredentialConfig, projectID string) (credential.ServiceAccount, error) {
	if c.ServiceAccountFile != "" {
		data, err := os.ReadFile(c.ServiceAccountFile)
		if err != nil {
			return credential.ServiceAccount{}, fmt.Errorf("failed to read service account file: %w", err)
		}
		sa, err := credential.LoadServiceAccountJSON(data, c.Audience, c.Scope)
		if err != nil {
			return credential.ServiceAccount{}, err
		}
		if sa.ProjectID == "" {
			sa.ProjectID = projectID
		}
		return sa, nil
	}

	return credential.ServiceAccount{
		IssuerEmail:   c.ClientEmail,
		PrivateKeyPEM: c.PrivateKey,
		Audience:      c.Audience,
		Scope:         c.Scope,
		ProjectID:     projectID,
	}, nil
}

// NewCredentialSource returns the bearer source selected by c.Mode, wrapped in
// a cache unless c.Cache is "none". shared backs the "redis" cache.
func NewCredentialSource(
	ctx context.Context,
	c config.CredentialConfig,
	sa credential.ServiceAccount,
	shared credential.TokenCache,
	logger *slog.Logger,
) (credential.Source, error) {
	var base credential.Source
	switch c.Mode {
	case config.CredentialModeExchange:
		ex, err := credential.NewExchange(ctx, sa, c.TokenURL)
		if err != nil {
			return nil, err
		}
		base = ex
	case config.CredentialModeSelfSigned, "":
		if _, err := credential.Mint(sa, time.Now()); err != nil {
			return nil, err
		}
		base = credential.NewSelfSigned(sa, nil)
	default:
		return nil, fmt.Errorf("%w: unknown credential mode %q", credential.ErrInvalidConfig, c.Mode)
	}

	var tc credential.TokenCache
	switch c.Cache {
	case config.CredentialCacheNone:
		logger.Info("Credential source initialized", "mode", c.Mode, "cache", c.Cache)
		return base, nil
	case config.CredentialCacheRedis:
		if shared == nil {
			return nil, fmt.Errorf("%w: redis credential cache requested without a redis client", credential.ErrInvalidConfig)
		}
		tc = shared
	default:
		tc = credential.NewMemoryCache()
	}

	logger.Info("Credential source initialized", "mode", c.Mode, "cache", c.Cache)
	return credential.NewCaching(base, tc, sa.CacheKey(), c.RefreshBefore, nil, logger), nil
}

// NewSender returns the FCM sender selected by p.Transport. The firebase
// transport authenticates the SDK through source.
func NewSender(ctx context.Context, p config.ProviderConfig, source credential.Source, client *http.Client, logger *slog.Logger) (dispatch.Sender, error) {
	hints := hintsFrom(p)

	switch p.Transport {
	case config.TransportFirebase:
		ts := credential.TokenSource(ctx, source)
		app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: p.ProjectID}, option.WithTokenSource(ts))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
		}
		messagingClient, err := app.Messaging(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create fcm messaging client: %w", err)
		}
		logger.Info("FCM sender initialized", "transport", p.Transport, "project_id", p.ProjectID)
		return fcm.NewSDKSender(messagingClient, ts, hints, logger), nil
	case config.TransportHTTP, "":
		sender := fcm.NewHTTPSender(p.Endpoint, p.ProjectID, hints, client, logger)
		logger.Info("FCM sender initialized", "transport", config.TransportHTTP, "url", sender.SendURL())
		return sender, nil
	default:
		return nil, fmt.Errorf("unknown fcm transport %q", p.Transport)
	}
}

func hintsFrom(p config.ProviderConfig) fcm.Hints {
	hints := fcm.DefaultHints
	if p.Sound != "" {
		hints.Sound = p.Sound
	}
	if p.AndroidChannelID != "" {
		hints.AndroidChannelID = p.AndroidChannelID
	}
	if p.Badge > 0 {
		hints.Badge = p.Badge
	}
	return hints
}
