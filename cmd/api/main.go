// Package main - entry point for the AgentWallet API server.
//
// Usage:
//
//	# Development (defaults)
//	go run cmd/api/main.go
//
//	# With config file
//	go run cmd/api/main.go -config ./configs
//
//	# With environment variables
//	AGENTWALLET_DATABASE_HOST=localhost \
//	AGENTWALLET_SERVER_PORT=3000 \
//	go run cmd/api/main.go -env-only
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentwallet/core/internal/config"
	"github.com/agentwallet/core/internal/container"
)

// Build-time variables (populated via -ldflags at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath, configName, envOnly, showVersion := parseFlags()

	if showVersion {
		fmt.Printf("AgentWallet API Server\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Git Commit: %s\n", gitCommit)
		return 0
	}

	cfg, err := loadConfig(configPath, configName, envOnly)
	if err != nil {
		log.Printf("warning: failed to load config: %v", err)
		log.Printf("using development defaults")
		cfg = config.Development()
	}

	cfg.App.Version = version
	cfg.App.BuildTime = buildTime
	cfg.App.GitCommit = gitCommit

	logger := newLogger(cfg)

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	c, err := container.New(initCtx, cfg, logger)
	if err != nil {
		logger.Error("failed to build container", slog.String("error", err.Error()))
		return 1
	}

	printBanner(cfg)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run() }()

	quit := make(chan os.Signal, 1)
	notifySignals(quit)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
		}
	case sig := <-quit:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	}

	logger.Info("initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := c.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("server stopped gracefully")
	return 0
}

func parseFlags() (configPath, configName string, envOnly, showVersion bool) {
	configPathFlag := flag.String("config", "./configs", "path to config directory")
	configNameFlag := flag.String("config-name", "config", "config file name (without extension)")
	envOnlyFlag := flag.Bool("env-only", false, "load config only from environment variables")
	showVersionFlag := flag.Bool("version", false, "show version and exit")
	flag.Parse()
	return *configPathFlag, *configNameFlag, *envOnlyFlag, *showVersionFlag
}

func notifySignals(quit chan os.Signal) {
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
}

func loadConfig(configPath, configName string, envOnly bool) (*config.Config, error) {
	if envOnly {
		return config.LoadFromEnv()
	}
	return config.Load(configPath, configName)
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func printBanner(cfg *config.Config) {
	banner := `
╔═══════════════════════════════════════════════════════════════╗
║     █████╗  ██████╗ ███████╗███╗   ██╗████████╗               ║
║    ██╔══██╗██╔════╝ ██╔════╝████╗  ██║╚══██╔══╝               ║
║    ███████║██║  ███╗█████╗  ██╔██╗ ██║   ██║                  ║
║    ██╔══██║██║   ██║██╔══╝  ██║╚██╗██║   ██║                  ║
║    ██║  ██║╚██████╔╝███████╗██║ ╚████║   ██║                  ║
║    ╚═╝  ╚═╝ ╚═════╝ ╚══════╝╚═╝  ╚═══╝   ╚═╝                  ║
║                                                               ║
║                   Agent Spend Governance Gateway               ║
║                                                               ║
╚═══════════════════════════════════════════════════════════════╝
`
	fmt.Println(banner)
	fmt.Printf("  Version:     %s\n", cfg.App.Version)
	fmt.Printf("  Environment: %s\n", cfg.App.Environment)
	fmt.Printf("  Address:     http://%s\n", cfg.Server.Address())
	fmt.Printf("  Health:      http://%s/health\n", cfg.Server.Address())
	fmt.Printf("  API:         http://%s/api/v1\n", cfg.Server.Address())
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()
}
