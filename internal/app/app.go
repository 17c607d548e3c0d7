// Package app initializes and holds long-lived application services, acting
// as the composition root for the scan service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/xenlix/aeoscan/internal/api"
	"github.com/xenlix/aeoscan/internal/archive"
	"github.com/xenlix/aeoscan/internal/clock/system"
	"github.com/xenlix/aeoscan/internal/config"
	"github.com/xenlix/aeoscan/internal/dispatcher"
	"github.com/xenlix/aeoscan/internal/extractor"
	collyfetcher "github.com/xenlix/aeoscan/internal/fetcher/colly"
	"github.com/xenlix/aeoscan/internal/id/uuid"
	"github.com/xenlix/aeoscan/internal/keyphrases"
	"github.com/xenlix/aeoscan/internal/metrics"
	"github.com/xenlix/aeoscan/internal/pagespeed"
	"github.com/xenlix/aeoscan/internal/pipeline"
	memqueue "github.com/xenlix/aeoscan/internal/queue/memory"
	pubsubqueue "github.com/xenlix/aeoscan/internal/queue/pubsub"
	"github.com/xenlix/aeoscan/internal/reaper"
	"github.com/xenlix/aeoscan/internal/recommend"
	"github.com/xenlix/aeoscan/internal/rules"
	"github.com/xenlix/aeoscan/internal/scan"
	memstore "github.com/xenlix/aeoscan/internal/store/memory"
	pgstore "github.com/xenlix/aeoscan/internal/store/postgres"
	"github.com/xenlix/aeoscan/internal/worker"
)

// App holds all shared, long-lived services. It is built once at startup and
// torn down via Close.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	store      scan.JobStore
	queue      scan.Queue
	dispatcher *dispatcher.Dispatcher
	reaper     *reaper.Reaper
	server     *api.Server
	pipe       *pipeline.Pipeline
	idGen      scan.IDGenerator
	clock      scan.Clock

	closers []func()
}

// New builds every service from the configuration. It fails fast if any
// critical dependency cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}

	store, err := a.buildStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = store

	queue, err := a.buildQueue(ctx)
	if err != nil {
		return nil, err
	}
	a.queue = queue

	snapshots, err := a.buildArchive(ctx)
	if err != nil {
		return nil, err
	}

	table, err := a.loadRules()
	if err != nil {
		return nil, err
	}
	engine := rules.NewEngine(table, logger)

	pipe := pipeline.New(
		pipeline.Config{
			RunTimeout:      time.Duration(cfg.Scan.StuckAfterMins) * time.Minute,
			FetchTimeout:    time.Duration(cfg.Scan.FetchTimeoutSec) * time.Second,
			AnalyzeTimeout:  time.Duration(cfg.Scan.AnalyzeTimeoutSec) * time.Second,
			GenerateTimeout: time.Duration(cfg.Scan.GenerateTimeoutSec) * time.Second,
			TopKeyphrases:   cfg.Scan.TopKeyphrases,
		},
		pipeline.Deps{
			Store: store,
			Fetcher: collyfetcher.New(collyfetcher.Config{
				UserAgent:   cfg.Fetch.UserAgent,
				Timeout:     time.Duration(cfg.Scan.FetchTimeoutSec) * time.Second,
				MaxBodySize: cfg.Fetch.MaxBodySize,
			}),
			Extractor:  extractor.New(logger),
			Engine:     engine,
			PageSpeed:  a.buildPageSpeed(),
			Keyphrases: keyphrases.New(),
			Recommend:  a.buildRecommender(),
			Archive:    snapshots,
			Clock:      system.Clock{},
			Logger:     logger,
		},
	)

	a.pipe = pipe
	a.idGen = uuid.New()
	a.clock = system.Clock{}

	workers := make([]*worker.Worker, 0, cfg.Scan.Workers)
	for i := 0; i < cfg.Scan.Workers; i++ {
		workers = append(workers, worker.New(queue, pipe, logger))
	}
	a.dispatcher = dispatcher.New(queue, workers)

	a.reaper = reaper.New(
		reaper.Config{
			Interval:   time.Duration(cfg.Scan.ReapIntervalMins) * time.Minute,
			StuckAfter: time.Duration(cfg.Scan.StuckAfterMins) * time.Minute,
		},
		store,
		system.Clock{},
		logger,
	)

	a.server = api.NewServer(
		store,
		a.dispatcher,
		a.idGen,
		a.clock,
		api.NewTokenChecker(cfg.Premium.Tokens),
		api.Config{
			RequestTimeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
			JobTTL:         cfg.JobTTL(),
		},
		logger,
	)

	return a, nil
}

// Handler exposes the HTTP surface, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// ScanOnce runs a single scan synchronously, bypassing the queue. Used by
// the one-shot CLI command.
func (a *App) ScanOnce(ctx context.Context, target string) (scan.Job, error) {
	jobID, err := a.idGen.NewID()
	if err != nil {
		return scan.Job{}, fmt.Errorf("generate scan id: %w", err)
	}
	now := a.clock.Now()
	job := scan.Job{
		ID:        jobID,
		URL:       target,
		State:     scan.StateQueued,
		Created:   now,
		Updated:   now,
		ExpiresAt: now.Add(a.cfg.JobTTL()),
	}
	if err := a.store.CreateJob(ctx, job); err != nil {
		return scan.Job{}, fmt.Errorf("create scan: %w", err)
	}
	if err := a.pipe.Run(ctx, jobID); err != nil {
		return scan.Job{}, fmt.Errorf("run scan: %w", err)
	}
	return a.store.GetJob(ctx, jobID)
}

// Run starts the workers, the reaper and the HTTP server, and blocks until
// ctx is canceled or the server fails. Shutdown is graceful.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.dispatcher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.reaper.Run(ctx)
	}()

	addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		cancel()
		wg.Wait()
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()
	a.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("http shutdown failed", zap.Error(err))
		}
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			cancel()
			wg.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	}

	cancel()
	wg.Wait()
	return nil
}

// Close tears down all services in reverse construction order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	// Sync is best effort; stderr sync commonly fails on some platforms.
	_ = a.logger.Sync()
}

func (a *App) buildStore(ctx context.Context) (scan.JobStore, error) {
	if a.cfg.DB.DSN == "" {
		a.logger.Info("using in-memory job store")
		return memstore.New(), nil
	}
	a.logger.Info("connecting to postgres job store")
	store, err := pgstore.New(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        int32(a.cfg.DB.MaxConns),
		MinConns:        int32(a.cfg.DB.MinConns),
		MaxConnLifetime: time.Duration(a.cfg.DB.ConnLifetimeMins) * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("init postgres store: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	return store, nil
}

func (a *App) buildQueue(ctx context.Context) (scan.Queue, error) {
	switch a.cfg.Queue.Backend {
	case "memory":
		a.logger.Info("using in-memory scan queue", zap.Int("depth", a.cfg.Queue.Depth))
		q := memqueue.New(a.cfg.Queue.Depth)
		a.closers = append(a.closers, q.Close)
		return q, nil
	case "pubsub":
		a.logger.Info("connecting to pub/sub scan queue",
			zap.String("topic", a.cfg.Queue.TopicID),
			zap.String("subscription", a.cfg.Queue.SubscriptionID),
		)
		q, err := pubsubqueue.New(ctx, pubsubqueue.Config{
			ProjectID:      a.cfg.Queue.ProjectID,
			TopicID:        a.cfg.Queue.TopicID,
			SubscriptionID: a.cfg.Queue.SubscriptionID,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init pubsub queue: %w", err)
		}
		a.closers = append(a.closers, func() {
			if cerr := q.Close(); cerr != nil {
				a.logger.Warn("pubsub queue close failed", zap.Error(cerr))
			}
		})
		return q, nil
	default:
		return nil, fmt.Errorf("unknown queue backend: %s", a.cfg.Queue.Backend)
	}
}

func (a *App) buildArchive(ctx context.Context) (scan.ArchiveStore, error) {
	switch a.cfg.Archive.Backend {
	case "noop":
		a.logger.Info("page snapshots disabled")
		return archive.Noop{}, nil
	case "local":
		a.logger.Info("archiving page snapshots locally", zap.String("dir", a.cfg.Archive.LocalDir))
		local, err := archive.NewLocal(a.cfg.Archive.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		return local, nil
	case "gcs":
		a.logger.Info("archiving page snapshots to GCS", zap.String("bucket", a.cfg.Archive.GCSBucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, func() {
			if cerr := client.Close(); cerr != nil {
				a.logger.Warn("gcs client close failed", zap.Error(cerr))
			}
		})
		gcs, err := archive.NewGCS(client, a.cfg.Archive.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		return gcs, nil
	default:
		return nil, fmt.Errorf("unknown archive backend: %s", a.cfg.Archive.Backend)
	}
}

func (a *App) buildPageSpeed() scan.PageSpeedClient {
	if a.cfg.PageSpeed.APIKey == "" {
		a.logger.Info("pagespeed integration disabled")
		return pagespeed.Noop{}
	}
	return pagespeed.New(pagespeed.Config{
		APIKey:     a.cfg.PageSpeed.APIKey,
		Endpoint:   a.cfg.PageSpeed.Endpoint,
		Timeout:    time.Duration(a.cfg.PageSpeed.TimeoutSeconds) * time.Second,
		MaxRetries: uint64(a.cfg.PageSpeed.MaxRetries),
	}, a.logger)
}

func (a *App) buildRecommender() scan.Recommender {
	if a.cfg.Recommend.Endpoint == "" {
		a.logger.Info("using static recommender")
		return recommend.NewStatic()
	}
	return recommend.NewRemote(recommend.RemoteConfig{
		Endpoint: a.cfg.Recommend.Endpoint,
		APIKey:   a.cfg.Recommend.APIKey,
		Model:    a.cfg.Recommend.Model,
		Timeout:  time.Duration(a.cfg.Recommend.TimeoutSeconds) * time.Second,
	}, a.logger)
}

func (a *App) loadRules() (*rules.Table, error) {
	if a.cfg.Rules.Path != "" {
		a.logger.Info("loading rule table from file", zap.String("path", a.cfg.Rules.Path))
		table, err := rules.LoadFile(a.cfg.Rules.Path)
		if err != nil {
			return nil, fmt.Errorf("load rule table: %w", err)
		}
		return table, nil
	}
	table, err := rules.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("load embedded rule table: %w", err)
	}
	return table, nil
}
