package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/postboard/config"
	"github.com/d60-Lab/postboard/internal/api/handler"
	"github.com/d60-Lab/postboard/internal/api/router"
	"github.com/d60-Lab/postboard/internal/correlation"
	"github.com/d60-Lab/postboard/internal/enrich"
	"github.com/d60-Lab/postboard/internal/event"
	"github.com/d60-Lab/postboard/internal/repository"
	"github.com/d60-Lab/postboard/internal/service"
	"github.com/d60-Lab/postboard/pkg/auth"
	"github.com/d60-Lab/postboard/pkg/database"
	"github.com/d60-Lab/postboard/pkg/logger"
	"github.com/d60-Lab/postboard/pkg/tracing"
)

// @title Postboard API
// @version 1.0
// @description 社区帖子服务：跨模块关联请求补全帖子列表
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.Sentry.Environment}); err != nil {
			logger.Warn("sentry init failed", zap.Error(err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx := context.Background()
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal("init tracing", zap.Error(err))
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Fatal("init database", zap.Error(err))
	}
	defer database.Close(db)

	var rdb *redis.Client
	if cfg.Correlation.Transport == "redis" || cfg.Correlation.ResultStore == "redis" || cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			if cfg.Correlation.Transport == "redis" || cfg.Correlation.ResultStore == "redis" {
				logger.Fatal("connect redis", zap.Error(err))
			}
			logger.Warn("redis unavailable, profile cache disabled", zap.Error(err))
			_ = rdb.Close()
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	log := logger.L()
	posts := repository.NewPostRepository(db)
	users := repository.NewUserRepository(db)
	interactions := repository.NewInteractionRepository(db)
	comments := repository.NewCommentRepository(db)
	bookmarks := repository.NewBookmarkRepository(db)

	reg := correlation.NewRegistry(log)
	cc := cfg.Correlation

	// result store + how waiters are woken
	var (
		store       correlation.ResultStore
		stopListen  func() error
		requestOpts = []correlation.Option{correlation.WithLogger(log)}
	)
	switch cc.ResultStore {
	case "redis":
		rs := correlation.NewRedisStore(rdb, correlation.WithStoreLogger(log))
		store = rs
		if cc.WaitMode == "push" {
			stopListen, err = rs.Listen(ctx, reg)
			if err != nil {
				logger.Fatal("listen for results", zap.Error(err))
			}
		}
	default:
		ms := correlation.NewMemoryStore(time.Minute)
		defer ms.Close()
		if cc.WaitMode == "push" {
			ms.OnPut(func(key string, data []byte) { reg.ResolveKey(key, data) })
		}
		store = ms
	}
	if cc.WaitMode == "poll" {
		requestOpts = append(requestOpts, correlation.WithPolling(store, cc.PollInterval))
	}

	var bus event.Bus
	switch cc.Transport {
	case "redis":
		bus, err = event.NewRedisStreamBus(ctx, rdb, cc.Stream, cc.Group, log)
		if err != nil {
			logger.Fatal("init redis stream bus", zap.Error(err))
		}
	default:
		bus = event.NewMemoryBus(cc.BusQueueSize, log)
	}

	// replies go through the store unless everything lives in this process
	var replier correlation.Replier = correlation.StoreReplier{Store: store, TTL: cc.ResultTTL}
	if cc.Transport == "memory" && cc.ResultStore == "memory" && cc.WaitMode == "push" {
		replier = correlation.RegistryReplier{Registry: reg}
	}
	service.NewResponders(service.NewProfileCache(users, rdb, 10*time.Minute), interactions, comments, bookmarks, replier, log).Register(bus)
	stopBus := bus.Start(cc.BusWorkers)

	tokens := auth.NewManager(cfg.JWT.Secret, cfg.JWT.Expire)
	enrichers := service.NewEnrichers(reg, bus, cc.Timeouts, requestOpts...)
	authors := correlation.NewRequester[enrich.UserData](correlation.KindUser, reg, bus,
		append(requestOpts, correlation.WithTimeout(cc.Timeouts.UserValidation))...)

	h := handler.NewHandler(
		service.NewUserService(users, tokens, log),
		service.NewPostService(posts, authors, log),
		service.NewPostQueryService(posts, enrichers, log),
		service.NewInteractionService(posts, interactions),
		service.NewCommentService(posts, comments),
		service.NewBookmarkService(posts, bookmarks),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.Setup(cfg, h, tokens),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info("server started",
			zap.Int("port", cfg.Server.Port),
			zap.String("transport", cc.Transport),
			zap.String("result_store", cc.ResultStore),
			zap.String("wait_mode", cc.WaitMode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := stopBus(shutdownCtx); err != nil {
		logger.Error("bus shutdown", zap.Error(err))
	}
	if stopListen != nil {
		_ = stopListen()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown", zap.Error(err))
	}
}
