package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ntanasko/floorsync/internal/api"
	blobgcs "github.com/ntanasko/floorsync/internal/blob/gcs"
	bloblocal "github.com/ntanasko/floorsync/internal/blob/local"
	blobmemory "github.com/ntanasko/floorsync/internal/blob/memory"
	"github.com/ntanasko/floorsync/internal/config"
	"github.com/ntanasko/floorsync/internal/extractor"
	collyfetcher "github.com/ntanasko/floorsync/internal/fetcher/colly"
	"github.com/ntanasko/floorsync/internal/identity"
	"github.com/ntanasko/floorsync/internal/images"
	"github.com/ntanasko/floorsync/internal/lease"
	"github.com/ntanasko/floorsync/internal/listing"
	"github.com/ntanasko/floorsync/internal/logging"
	"github.com/ntanasko/floorsync/internal/metrics"
	"github.com/ntanasko/floorsync/internal/progress"
	pubmemory "github.com/ntanasko/floorsync/internal/publisher/memory"
	pubps "github.com/ntanasko/floorsync/internal/publisher/pubsub"
	"github.com/ntanasko/floorsync/internal/scheduler"
	storememory "github.com/ntanasko/floorsync/internal/store/memory"
	storepg "github.com/ntanasko/floorsync/internal/store/postgres"
	syncer "github.com/ntanasko/floorsync/internal/sync"
)

// app holds every wired service. One instance per process.
type app struct {
	cfg        config.Config
	logger     *zap.Logger
	recent     *logging.RecentBuffer
	metrics    *metrics.Metrics
	tracker    *progress.Tracker
	store      listing.Store
	runs       listing.RunStore
	reconciler *syncer.Reconciler
	scheduler  *scheduler.Scheduler
	server     *api.Server

	closers []func()
}

// buildApp wires the full service graph from configuration. An empty
// db.dsn selects the in-memory stores for local development.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, recent, err := logging.NewWithRecent(cfg.Logging.Development, cfg.Logging.RecentEntries)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		recent:  recent,
		metrics: metrics.New(),
	}
	a.tracker = progress.NewTracker(
		progress.NewLogSink(logger),
		progress.NewPromSink(a.metrics.Registry()),
	)

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	}, logger)
	ext := extractor.New(extractor.Config{BaseURL: cfg.Source.BaseURL}, logger)
	filter := extractor.NewFilter(cfg.Source.BuildingFilter)
	resolver := identity.NewResolver(logger)

	var (
		imageStore listing.ImageStore
		runLease   listing.Lease
	)
	if cfg.DB.DSN == "" {
		logger.Warn("db.dsn is empty, using in-memory stores")
		a.store = storememory.NewListingStore(nil)
		imageStore = storememory.NewImageStore()
		a.runs = storememory.NewRunStore(cfg.Sync.RunLogSize)
		runLease = lease.NewMemory()
	} else {
		pool, err := storepg.NewPool(ctx, storepg.PoolConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		if err := storepg.EnsureSchema(ctx, pool); err != nil {
			return nil, err
		}
		if a.store, err = storepg.NewListingStore(pool); err != nil {
			return nil, err
		}
		if imageStore, err = storepg.NewImageStore(pool); err != nil {
			return nil, err
		}
		if a.runs, err = storepg.NewRunStore(pool, cfg.Sync.RunLogSize); err != nil {
			return nil, err
		}
		runLease = lease.NewPostgres(pool)
	}

	blobStore, err := buildBlobStore(ctx, a, cfg)
	if err != nil {
		return nil, err
	}
	materializer := images.New(images.Config{
		Prefix:    cfg.Storage.Prefix,
		Timeout:   cfg.ImageTimeout(),
		UserAgent: cfg.HTTP.UserAgent,
	}, blobStore, imageStore, logger)

	publisher, err := buildPublisher(ctx, a, cfg)
	if err != nil {
		return nil, err
	}

	a.reconciler = syncer.New(syncer.Config{
		ListURL:      cfg.Source.ListURL,
		LeaseTTL:     cfg.LeaseTTL(),
		FetchGallery: cfg.Source.FetchGallery,
		Topic:        cfg.PubSub.TopicName,
	}, syncer.Deps{
		Fetcher:   fetcher,
		Extractor: ext,
		Filter:    filter,
		Resolver:  resolver,
		Store:     a.store,
		Images:    materializer,
		Runs:      a.runs,
		Lease:     runLease,
		Progress:  a.tracker,
		Publisher: publisher,
		Metrics:   a.metrics,
		Logger:    logger,
	})
	a.scheduler = scheduler.New(a.reconciler, a.tracker, cfg.StallAfter(), logger)
	a.server = api.NewServer(a.store, a.runs, a.tracker, a.scheduler, recent, a.metrics.Handler(), logger)

	return a, nil
}

func buildBlobStore(ctx context.Context, a *app, cfg config.Config) (listing.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "gcs":
		store, err := blobgcs.New(ctx, cfg.Storage.GCSBucket)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		return store, nil
	case "local":
		return bloblocal.New(cfg.Storage.LocalDir)
	default:
		return blobmemory.New(), nil
	}
}

func buildPublisher(ctx context.Context, a *app, cfg config.Config) (listing.Publisher, error) {
	if cfg.PubSub.TopicName == "" {
		return nil, nil
	}
	if cfg.PubSub.ProjectID == "" {
		a.logger.Warn("pubsub.project_id is empty, events stay in process")
		return pubmemory.New(), nil
	}
	pub, err := pubps.New(ctx, cfg.PubSub.ProjectID, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = pub.Close() })
	return pub, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}
