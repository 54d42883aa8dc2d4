package main

import (
	"time"

	"github.com/imposterparty/roomserver/config"
	"github.com/imposterparty/roomserver/game"
	"github.com/imposterparty/roomserver/logger"
	"github.com/imposterparty/roomserver/monitor"
	"github.com/imposterparty/roomserver/persistence"
	"github.com/imposterparty/roomserver/room"
	"github.com/imposterparty/roomserver/server"
	"github.com/imposterparty/roomserver/services"
)

func main() {
	// Initialize logger
	logger.Init()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize the room document store
	var store persistence.RoomStore
	var archive *services.ArchiveService

	switch cfg.Store.Driver {
	case "postgres":
		pg, err := persistence.NewPostgresStore(
			cfg.Store.Postgres.Host,
			cfg.Store.Postgres.Port,
			cfg.Store.Postgres.User,
			cfg.Store.Postgres.Password,
			cfg.Store.Postgres.DBName,
			cfg.Game.TxMaxRetries,
		)
		if err != nil {
			logger.Log.Fatalf("Failed to connect to database: %v", err)
		}
		store = pg
		logger.Log.Info("Database connection successful.")

		gormArchive, err := persistence.NewGormArchive(pg.DB())
		if err != nil {
			logger.Log.Fatalf("Failed to initialize archive: %v", err)
		}
		archive = services.NewArchiveService(gormArchive)

	default:
		store = persistence.NewMemoryStore()
		logger.Log.Info("Using in-memory room store.")
	}

	repo := room.NewRepository(store)
	engine := game.NewEngine(store, game.Options{
		MinPlayers:     cfg.Game.MinPlayers,
		DiscussionTime: time.Duration(cfg.Game.DiscussionSeconds) * time.Second,
	})

	mon := monitor.NewMonitor("roomserver")
	mon.StartServer(cfg.Server.MetricsAddress)

	// Initialize and start the gateway
	gameServer := server.NewGameServer(cfg.Server.HTTPAddress, cfg.Server.RPCAddress, repo, engine, archive, mon)
	logger.Log.Infof("Starting game server on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}
