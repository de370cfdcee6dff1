package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/coder/quartz"

	"github.com/wfunc/liarsbar/config"
	"github.com/wfunc/liarsbar/logger"
	"github.com/wfunc/liarsbar/monitor"
	"github.com/wfunc/liarsbar/persistence"
	"github.com/wfunc/liarsbar/room"
	"github.com/wfunc/liarsbar/server"
	"github.com/wfunc/liarsbar/services"
	"github.com/wfunc/liarsbar/timer"
)

type CLI struct {
	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the game server"`
	Migrate MigrateCmd `cmd:"" help:"Create or update the room tables"`
}

type ServeCmd struct {
	Config string `kong:"default='.',help='Directory holding config.yaml and .env'"`
}

func (c *ServeCmd) Run() error {
	cfg, err := setup(c.Config)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := persistence.Open(cfg.Database)
	if err != nil {
		logger.Log.Errorf("Failed to open room store: %v", err)
		return err
	}
	defer store.Close()
	logger.Log.Infof("Room store ready (%s)", cfg.Database.Driver)

	mon := monitor.NewMonitor("liarsbar")
	timers := timer.NewTimerManager(quartz.NewReal())
	defer timers.Stop()

	var games *services.GameService
	rooms := room.NewRoomManager(room.ManagerOptions{
		Store:    store,
		Timers:   timers,
		IdleTTL:  cfg.Game.RoomTTL,
		Buffer:   cfg.Game.SubscriberBuffer,
		Observer: mon,
		OnRemove: func(roomID string) {
			games.Forget(roomID)
		},
	})
	defer rooms.Close()

	games = services.NewGameService(rooms, services.Options{
		DefaultMaxPlayers: cfg.Game.DefaultMaxPlayers,
		Seed:              cfg.Game.Seed,
		HandEmptyWins:     cfg.Game.HandEmptyWins,
		Recorder:          mon,
	})
	restored, err := games.Restore(store)
	if err != nil {
		logger.Log.Errorf("Failed to restore rooms: %v", err)
		return err
	}
	logger.Log.Infof("Restored %d rooms", restored)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gameServer := server.NewGameServer(cfg.Server, games, mon)
	return gameServer.Start(ctx)
}

type MigrateCmd struct {
	Config string `kong:"default='.',help='Directory holding config.yaml and .env'"`
}

func (c *MigrateCmd) Run() error {
	cfg, err := setup(c.Config)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Database.Driver == "" || cfg.Database.Driver == "memory" {
		logger.Log.Warn("Memory store selected, nothing to migrate")
		return nil
	}
	// opening a store creates its tables
	store, err := persistence.Open(cfg.Database)
	if err != nil {
		return err
	}
	logger.Log.Infof("Database migration completed (%s)", cfg.Database.Driver)
	return store.Close()
}

func setup(dir string) (*config.Config, error) {
	cfg, err := config.LoadConfig(dir)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Encoding); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("liar"),
		kong.Description("Liar card game server"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
