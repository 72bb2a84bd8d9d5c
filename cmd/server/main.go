package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatrelay/internal/auth"
	"chatrelay/internal/bus"
	"chatrelay/internal/cache"
	"chatrelay/internal/config"
	"chatrelay/internal/db"
	clog "chatrelay/internal/log"
	"chatrelay/internal/mw"
	"chatrelay/internal/server"
	"chatrelay/internal/service"
	"chatrelay/internal/store"
	"chatrelay/internal/ws"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

func main() {
	// main 负责加载配置、初始化日志、连接数据库与 Redis，然后启动 HTTP 服务，收到信号后优雅停服。
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	rbus := bus.NewRedisBus(rdb)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = rbus.Ping(pingCtx)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("cannot connect to redis")
	}

	var backend cache.Backend = cache.NewRedisBackend(rdb)
	if cfg.CacheBackend == "memory" {
		backend = cache.NewMemoryBackend(cfg.CacheTTL())
	}
	sessions := cache.New(backend, cfg.CacheTTL())
	identities := store.NewGormStore(gdb)

	hub := ws.NewHub()
	limiter := mw.NewRateLimiter(rate.Every(time.Second/20), 40, 2*time.Minute).Start()
	r := server.SetupRouter(cfg, server.Deps{
		Users:    service.NewUserService(identities, sessions, cfg.SessionSecret),
		Resolver: auth.NewResolver(sessions, identities),
		Gateway:  ws.NewGateway(rbus, hub, cfg.BroadcastChannel),
		Limiter:  limiter,
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	// hijacked websocket connections are not covered by Shutdown
	hub.CloseAll()
	limiter.Stop()
	if err := rbus.Close(); err != nil {
		log.Error().Err(err).Msg("redis close")
	}
	if err := db.Close(gdb); err != nil {
		log.Error().Err(err).Msg("db close")
	}
}
