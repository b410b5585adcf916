package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"pairbot/logger"
)

const exitNothingToPost = 3

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(buildApp, os.Stdout)
	err := root.ExecuteContext(ctx)
	stop()

	switch {
	case err == nil:
	case errors.Is(err, errNothingToPost):
		log.WithError(err).Warn("no pair selected; skip this posting cycle")
		os.Exit(exitNothingToPost)
	default:
		log.WithError(err).Error("pairbot failed")
		os.Exit(1)
	}
}
