// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"

	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/sedamusic/claim-verifier/internal/claims"
	"github.com/sedamusic/claim-verifier/internal/config"
	notifymem "github.com/sedamusic/claim-verifier/internal/notify/memory"
	notifypubsub "github.com/sedamusic/claim-verifier/internal/notify/pubsub"
	"github.com/sedamusic/claim-verifier/internal/storage/gcs"
	"github.com/sedamusic/claim-verifier/internal/storage/local"
	storemem "github.com/sedamusic/claim-verifier/internal/storage/memory"
	storepg "github.com/sedamusic/claim-verifier/internal/storage/postgres"
)

// App holds the storage and messaging services behind the verifier. The
// concrete providers are chosen from configuration: Postgres and Pub/Sub in
// production, in-memory for development.
type App struct {
	Requests  claims.RequestStore
	Cache     claims.PageCache
	Profiles  claims.ProfileStore
	Snapshots claims.SnapshotStore
	Notifier  claims.Notifier

	logger  *zap.Logger
	closers []func()
}

// New instantiates providers per the configuration, failing fast when a
// configured backend cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}

	if cfg.DB.DSN != "" {
		logger.Info("using postgres stores")
		poolCfg := storepg.PoolConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		}
		requests, err := storepg.NewRequestStore(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("init request store: %w", err)
		}
		a.closers = append(a.closers, requests.Close)
		cache, err := storepg.NewPageCache(ctx, poolCfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init page cache: %w", err)
		}
		a.closers = append(a.closers, cache.Close)
		profiles, err := storepg.NewProfileStore(ctx, poolCfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init profile store: %w", err)
		}
		a.closers = append(a.closers, profiles.Close)
		a.Requests, a.Cache, a.Profiles = requests, cache, profiles
	} else {
		logger.Info("using in-memory stores")
		a.Requests = storemem.NewRequestStore()
		a.Cache = storemem.NewPageCache()
		a.Profiles = storemem.NewProfileStore()
	}

	switch cfg.Storage.Provider {
	case "gcs":
		logger.Info("using gcs snapshot store", zap.String("bucket", cfg.Storage.GCSBucket))
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init gcs snapshot store: %w", err)
		}
		a.Snapshots = store
	case "local":
		logger.Info("using local snapshot store", zap.String("dir", cfg.Storage.LocalDir))
		store, err := local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init local snapshot store: %w", err)
		}
		a.Snapshots = store
	case "memory":
		a.Snapshots = storemem.NewBlobStore()
	default:
		a.Close()
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Storage.Provider)
	}

	if cfg.PubSub.ProjectID != "" {
		logger.Info("using pubsub notifier", zap.String("topic", cfg.PubSub.TopicName))
		notifier, err := notifypubsub.New(ctx, notifypubsub.Config{
			ProjectID: cfg.PubSub.ProjectID,
			TopicID:   cfg.PubSub.TopicName,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init pubsub notifier: %w", err)
		}
		a.Notifier = notifier
	} else {
		logger.Info("using in-memory notifier")
		a.Notifier = notifymem.New()
	}

	return a, nil
}

// Close releases every provider the App opened, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
