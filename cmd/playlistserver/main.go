// Command playlistserver serves the manifest and segment files written
// by one or more recorder processes, and broadcasts their chunk
// lifecycle events over a websocket to any connected player-side client.
package main

import (
	"context"
	"net/http"
	"os"
	osignal "os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"hlsarchiver/internal/core/domain"
	"hlsarchiver/internal/infrastructure/distributed"
	"hlsarchiver/internal/infrastructure/middleware"
	"hlsarchiver/internal/infrastructure/monitoring"
	redisrepo "hlsarchiver/internal/infrastructure/repositories/redis"
	"hlsarchiver/internal/infrastructure/server"
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
		ServiceName: "hlsarchiver-playlistserver",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatal("initializing tracing", zap.Error(err))
	}

	feedRoots := make(map[domain.FeedID]string, len(cfg.Feeds))
	for _, fc := range cfg.Feeds {
		id := domain.FeedID(fc.ID)
		if id == "" {
			id = domain.DeriveFeedID(fc.SourceURL)
		}
		feedRoots[id] = filepath.Join(cfg.Recorder.DataDir, string(id))
	}
	root := func(feedID domain.FeedID) (string, bool) {
		dir, ok := feedRoots[feedID]
		return dir, ok
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(middleware.ErrorHandlerMiddleware(sugar))
	router.Use(middleware.TracingMiddleware())
	if cfg.RateLimiting.Enabled {
		router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	}

	playlistHandler := server.NewPlaylistHandler(root, 2*time.Second)
	playlistHandler.SetupRoutes(router)

	segmentHandler := server.NewSegmentHandler(root)
	segmentHandler.SetupRoutes(router)

	wsHandler := server.NewWSHandler(log)
	router.GET("/ws", func(c *gin.Context) {
		wsHandler.HandleWebSocket(c.Writer, c.Request)
	})

	health := monitoring.NewHealthChecker()

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, sugar)
		if err != nil {
			log.Fatal("connecting to redis", zap.Error(err))
		}
		defer redisrepo.CloseRedisClient(client)
		health.AddRedisCheck(client, 15*time.Second, 3*time.Second)

		bus := distributed.NewFeedEventBus(client, instanceID(), sugar)
		subCtx, subCancel := context.WithCancel(context.Background())
		defer subCancel()
		go func() {
			if err := bus.Subscribe(subCtx, wsHandler.Broadcast); err != nil && err != context.Canceled {
				log.Warn("event bus subscription ended", zap.Error(err))
			}
		}()
	}

	router.GET("/health", func(c *gin.Context) {
		status := health.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:         cfg.PlaylistServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.PlaylistServer.ReadTimeout,
		WriteTimeout: cfg.PlaylistServer.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting playlist server", zap.String("address", cfg.PlaylistServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	osignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatal("playlist server failed", zap.Error(err))
	case sig := <-sigCh:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.PlaylistServer.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutting down playlist server", zap.Error(err))
		srv.Close()
	}
	if tp != nil {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutting down tracer provider", zap.Error(err))
		}
	}
	log.Info("playlist server stopped")
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "playlistserver"
	}
	return host
}
