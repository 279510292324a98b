// Command examly is an interactive terminal client for the exam platform:
// sign in, browse available exams, take a timed exam and review results.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nstepura/examly/internal/api"
	"github.com/nstepura/examly/internal/config"
	"github.com/nstepura/examly/internal/storage"
	"github.com/nstepura/examly/internal/store"
	"github.com/nstepura/examly/internal/ui"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses configuration, opens the local store and runs the screen loop.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Flags override env.
	apiURL := flag.String("api", cfg.APIURL, "backend base URL")
	dbPath := flag.String("db", cfg.DBPath, "local state database")
	logPath := flag.String("log", cfg.LogPath, "log file")
	timeout := flag.Duration("timeout", cfg.HTTPTimeout, "HTTP request timeout")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("examly %s (%s)\n", version, buildDate)
		return
	}

	// Logs go to a file so the interactive screens stay clean.
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{*logPath}
	zcfg.ErrorOutputPaths = []string{*logPath}
	logger, err := zcfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("api", *apiURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := storage.Open(*dbPath, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open local store:", err)
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	client := api.New(*apiURL, *timeout, st, logger)
	authStore := store.NewAuthStore(client, st, logger)
	examStore := store.NewExamStore(client, st, st, logger)

	app := ui.New(authStore, examStore, os.Stdin, os.Stdout, logger)
	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("run", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
