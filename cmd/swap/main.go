package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/config"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/runner"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/signer"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	in := flag.String("in", "", "Input token symbol")
	out := flag.String("out", "", "Output token symbol")
	amount := flag.String("amount", "", "Amount to swap, in token units")
	exactOut := flag.Bool("exact-out", false, "Treat -amount as the output amount")
	useMax := flag.Bool("max", false, "Spend the whole input balance, keeping the gas reserve for native input")
	yes := flag.Bool("yes", false, "Approve every wallet request without prompting")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := setupLogger(cfg.App.LogLevel)

	logger.Info("Config loaded successfully",
		"app", cfg.App.Name,
		"configPath", *configPath,
		"tokens", len(cfg.Tokens),
		"pools", len(cfg.Engine.Pools))

	confirm := signer.TerminalConfirm(os.Stdin, os.Stdout)
	if *yes || cfg.Signer.AutoConfirm {
		confirm = signer.AutoConfirm
	}

	// Create and run service
	r, err := runner.New(cfg, logger, confirm)
	if err != nil {
		logger.Error("Failed to create runner", "error", err)
		os.Exit(1)
	}

	order := runner.Order{
		In:       *in,
		Out:      *out,
		Amount:   *amount,
		ExactOut: *exactOut,
		Max:      *useMax,
	}
	if err := r.Run(context.Background(), order); err != nil {
		logger.Error("Service error", "error", err)
		os.Exit(1)
	}
}

// setupLogger initializes the logger
func setupLogger(level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	// Create logs directory
	if err := os.MkdirAll("logs", 0755); err != nil {
		slog.Error("Failed to create logs directory", "error", err)
	}

	// Open log file
	logFile, err := os.OpenFile("logs/swap.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		slog.Error("Failed to open log file", "error", err)
		// Fallback to stdout
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}

	// Output to both file and stdout
	multiWriter := io.MultiWriter(os.Stdout, logFile)
	return slog.New(slog.NewTextHandler(multiWriter, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
