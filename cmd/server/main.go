// Package main runs the live room HTTP and WebSocket server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-live/backend/config"
	"github.com/aura-live/backend/internal/live"
	"github.com/aura-live/backend/internal/middleware"
	"github.com/aura-live/backend/internal/models"
	"github.com/aura-live/backend/internal/notify"
	"github.com/aura-live/backend/internal/realtime"
	"github.com/aura-live/backend/internal/rtctoken"
	"github.com/aura-live/backend/internal/streams"
	"github.com/aura-live/backend/pkg/metrics"
	"github.com/aura-live/backend/pkg/queue"
	"github.com/aura-live/backend/pkg/redis"
	"github.com/aura-live/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	store, closeStore, err := streams.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer closeStore()

	// Redis is optional: without it there is no event mirror and no background jobs.
	var (
		mirror   live.Mirror
		enqueuer notify.Enqueuer
		jobQueue *queue.Queue
	)
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		mirror = realtime.NewRedisPubSub(rdb.Client, logger)
		jobQueue = queue.NewQueue(rdb.Client, logger)
		enqueuer = jobQueue
	} else {
		logger.Warn("REDIS_ADDR not set: event mirror and background jobs disabled")
	}

	opts := live.Options{
		Shards:         cfg.Live.Shards,
		PersistTimeout: cfg.Live.PersistTimeout,
		PersistRetries: cfg.Live.PersistRetries,
		PersistBackoff: cfg.Live.PersistBackoff,
	}
	if opts.PersistRetries == 0 {
		opts.PersistRetries = -1
	}
	tracker := live.NewTracker(cfg.Live.Shards)
	broadcaster := live.NewBroadcaster(tracker, mirror, cfg.Live.Shards, logger)
	registry := live.NewRegistry(store, tracker, broadcaster, opts, logger)
	coordinator := live.NewCoordinator(registry, logger)

	if jobQueue != nil {
		registry.SetEndedHandler(func(s models.LiveStream) {
			payload := queue.ArchivePayload{StreamID: s.ID, HostUsername: s.HostUsername}
			if s.EndedAt != nil {
				payload.EndedAt = *s.EndedAt
			}
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := jobQueue.EnqueueArchive(ctx, payload); err != nil {
					logger.Warn("enqueue archive failed", zap.String("stream_id", s.ID), zap.Error(err))
				}
			}()
		})
	}

	if n, err := registry.Restore(ctx); err != nil {
		logger.Fatal("restore live sessions", zap.Error(err))
	} else if n > 0 {
		logger.Info("resumed live sessions", zap.Int("count", n))
	}

	provider, err := rtctoken.New(cfg.RTC)
	if err != nil {
		logger.Fatal("rtc token provider", zap.Error(err))
	}
	var appID uint32
	if cfg.RTC.Provider == "zego" {
		appID = cfg.RTC.ZegoAppID
	}
	tokenHandler := rtctoken.NewHandler(provider, cfg.RTC.TokenTTLSeconds, appID, logger)
	streamHandler := streams.NewHandler(registry, store, notify.NewDispatcher(enqueuer, logger), logger)
	wsServer := realtime.NewServer(coordinator, cfg.Live.SendBuffer, cfg.Server.CORSAllowedOrigins, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/rtc-token", tokenHandler.GetToken)

	liveGroup := router.Group("/live")
	{
		liveGroup.POST("/start", streamHandler.Start)
		liveGroup.POST("/end", streamHandler.End)
		liveGroup.GET("/list", streamHandler.List)
		liveGroup.GET("/:id", streamHandler.Get)
		liveGroup.GET("/:id/comments", streamHandler.Comments)
	}

	router.GET("/ws", wsServer.ServeWs)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go broadcaster.Run(runCtx)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("db_driver", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	stop()
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
