package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"

	"github.com/Tyrowin/gochat-presence/internal/logger"
	"github.com/Tyrowin/gochat-presence/internal/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	flag.Parse()

	// A missing .env is fine; the environment and defaults still apply.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Error loading .env file", "error", err)
	}

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log := slog.Default()
	log.Info("Starting GoChat presence server...", "port", cfg.Port, "origins", cfg.AllowedOrigins)

	app := server.NewApp(cfg, log)
	app.Start()

	go func() {
		if err := app.ListenAndServe(); err != nil {
			log.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			// One operation so the HTTP server, hub and dispatcher stop in order.
			"presence-server": func(ctx context.Context) error {
				log.Info("Graceful shutdown initiated...")
				return app.Shutdown(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Info("Server exited", "code", exitCode)
	os.Exit(exitCode)
}
