package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/juhoohuj/triviacircle-backend/internal/config"
	"github.com/juhoohuj/triviacircle-backend/internal/database/db_client"
	"github.com/juhoohuj/triviacircle-backend/internal/http/http_server"
	"github.com/juhoohuj/triviacircle-backend/internal/mirror"
	"github.com/juhoohuj/triviacircle-backend/internal/redis/redis_client"
	"github.com/juhoohuj/triviacircle-backend/internal/registry"
	"github.com/juhoohuj/triviacircle-backend/internal/rooms"
	"github.com/juhoohuj/triviacircle-backend/internal/ws"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Optional durable mirror backend
	var roomMirror rooms.Mirror
	switch cfg.MirrorBackend {
	case "redis":
		redisClient, err := redis_client.NewRedisClient(cfg.RedisRoomsHost, int(cfg.RedisRoomsPort))
		if err != nil {
			Log.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()

		store := mirror.NewRedisStore(redisClient)
		if err := store.Clear(ctx); err != nil {
			Log.Warn("mirror_clear", zap.Error(err))
		}
		writer := mirror.NewWriter(store, cfg.MirrorQueueSize)
		writer.Run(ctx)
		roomMirror = writer

	case "postgres":
		pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort,
			cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
		if err != nil {
			Log.Fatal("pg-open", zap.Error(err))
		}
		defer pgDb.Close()

		store := mirror.NewPGStore(pgDb)
		if err := store.EnsureSchema(ctx); err != nil {
			Log.Fatal("pg-schema", zap.Error(err))
		}
		if err := store.Clear(ctx); err != nil {
			Log.Warn("mirror_clear", zap.Error(err))
		}
		writer := mirror.NewWriter(store, cfg.MirrorQueueSize)
		writer.Run(ctx)
		roomMirror = writer
	}

	// 4. Room store + connection registry
	roomService := rooms.NewRoomService(roomMirror, cfg.DeleteEmptyRooms)
	connRegistry := registry.New()

	// 5. WebSockets hub + event router
	hub := ws.NewHub()
	wsSrv := ws.NewWsServer(hub, connRegistry, roomService)

	// 6. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, roomService)
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}
