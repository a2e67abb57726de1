package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/karthikraju391/matchchat/config"
	"github.com/karthikraju391/matchchat/handlers"
	"github.com/karthikraju391/matchchat/logger"
	"github.com/karthikraju391/matchchat/nats_service"
	"github.com/karthikraju391/matchchat/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel)

	// --- Open history store ---
	history, err := store.Open(cfg.Server.DataDir)
	if err != nil {
		logger.Error("store_open_failed", "path", cfg.Server.DataDir, "error", err)
		os.Exit(1)
	}
	defer history.Close()
	logger.Info("store_opened", "path", cfg.Server.DataDir)

	// --- Initialize NATS Service ---
	natsSvc, err := nats_service.NewNatsService(cfg.Server)
	if err != nil {
		logger.Error("nats_init_failed", "url", cfg.Server.NatsURL, "error", err)
		history.Close()
		os.Exit(1)
	}
	defer natsSvc.Close()
	logger.Info("nats_initialized", "stream", cfg.Server.StreamName)

	// --- Initialize Fiber App ---
	app := fiber.New(fiber.Config{
		AppName:               "matchchat",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	handlers.NewServer(natsSvc, history, cfg.Server).Routes(app)

	// --- Start Server ---
	go func() {
		logger.Info("server_starting", "addr", cfg.Server.Addr)
		if err := app.Listen(cfg.Server.Addr); err != nil {
			logger.Error("server_listen_failed", "error", err)
			os.Exit(1)
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server_shutting_down")
	if err := app.Shutdown(); err != nil {
		logger.Error("fiber_shutdown_failed", "error", err)
	}

	// NATS connection and store are closed by defer in main
	logger.Info("server_stopped")
}
