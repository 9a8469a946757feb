// Command recorder runs one PullLoop per configured feed, archiving raw
// playlists and downloaded segments under recorder.data_dir and
// notifying a configured endpoint as each chunk closes.
package main

import (
	"context"
	"net/http"
	"os"
	osignal "os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"hlsarchiver/internal/core/domain"
	"hlsarchiver/internal/core/ports"
	"hlsarchiver/internal/hls/notifier"
	"hlsarchiver/internal/hls/pullloop"
	"hlsarchiver/internal/infrastructure/archive"
	"hlsarchiver/internal/infrastructure/distributed"
	"hlsarchiver/internal/infrastructure/monitoring"
	redisrepo "hlsarchiver/internal/infrastructure/repositories/redis"
	"hlsarchiver/pkg/config"
	"hlsarchiver/pkg/logger"
	"hlsarchiver/pkg/tracing"
)

func main() {
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/hlsarchiver/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger
	sugar := log.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "hlsarchiver-recorder",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatal("initializing tracing", zap.Error(err))
	}

	var redisClient *goredis.Client
	var bus *distributed.FeedEventBus
	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, sugar)
		if err != nil {
			log.Fatal("connecting to redis", zap.Error(err))
		}
		defer redisrepo.CloseRedisClient(client)
		redisClient = client
		bus = distributed.NewFeedEventBus(client, instanceID(), sugar)
	}

	feeds := make([]domain.Feed, 0, len(cfg.Feeds))
	for _, fc := range cfg.Feeds {
		feeds = append(feeds, toDomainFeed(fc))
	}

	collector := monitoring.NewPrometheusCollector()
	rawArchiver := archive.New(cfg.Recorder.DataDir, feeds, log)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.Recorder.MetricsAddress, Handler: metricsMux}
	go func() {
		log.Info("starting recorder metrics server", zap.String("address", cfg.Recorder.MetricsAddress))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	var locks []*distributed.DistributedLock
	for _, fc := range cfg.Feeds {
		feed := toDomainFeed(fc)
		feedLog := log.With(zap.String("feed_id", string(feed.ID)))

		var lock *distributed.DistributedLock
		if redisClient != nil {
			lock = distributed.NewDistributedLock(redisClient, "hlsarchiver:lock:"+string(feed.ID), 30*time.Second)
			if err := lock.Lock(ctx); err != nil {
				feedLog.Warn("could not acquire distributed lock for feed, skipping", zap.Error(err))
				continue
			}
			locks = append(locks, lock)
		}

		var events ports.EventPublisher
		if bus != nil {
			events = bus
		}

		var nf ports.Notifier
		if fc.NotifyURL != "" {
			nf = notifier.New(fc.NotifyURL, http.DefaultClient, log, collector)
		}

		loop, err := pullloop.New(pullloop.Options{
			Feed:     feed,
			DataDir:  filepath.Join(cfg.Recorder.DataDir, string(feed.ID)),
			Notifier: nf,
			Events:   events,
			Archiver: rawArchiver,
			Metrics:  collector,
			Logger:   feedLog,
		})
		if err != nil {
			feedLog.Error("building pull loop", zap.Error(err))
			continue
		}

		collector.RecordFeedStarted()
		wg.Add(1)
		go func(feedID domain.FeedID) {
			defer wg.Done()
			defer collector.RecordFeedStopped()
			if err := loop.Run(ctx); err != nil && err != context.Canceled {
				feedLog.Error("pull loop exited with error", zap.Error(err))
			}
		}(feed.ID)
	}

	sigCh := make(chan os.Signal, 1)
	osignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received shutdown signal", zap.String("signal", sig.String()))

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cfg.Recorder.ShutdownTimeout):
		log.Warn("shutdown timeout exceeded, exiting anyway")
	}

	for _, lock := range locks {
		unlockCtx, unlockCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := lock.Unlock(unlockCtx); err != nil {
			log.Warn("releasing distributed lock", zap.Error(err))
		}
		unlockCancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Recorder.ShutdownTimeout)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutting down metrics server", zap.Error(err))
	}
	if tp != nil {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutting down tracer provider", zap.Error(err))
		}
	}

	log.Info("recorder stopped")
}

func toDomainFeed(fc config.FeedConfig) domain.Feed {
	id := domain.FeedID(fc.ID)
	if id == "" {
		id = domain.DeriveFeedID(fc.SourceURL)
	}
	return domain.Feed{
		ID:                id,
		SourceURL:         fc.SourceURL,
		ParallelDownloads: fc.ParallelDownloads,
		ChunkExtension:    fc.ChunkExtension,
		MinChunkDuration:  fc.MinChunkDuration,
		RunForever:        fc.RunForever,
		RawRetention:      fc.RawRetention,
	}
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "recorder"
	}
	return host
}
