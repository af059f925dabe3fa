package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/relaypoint/community_layer/internal/app/runtime"
)

func main() {
	// Best effort; environment variables win over .env entries.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := runtime.NewApplication()
	if err != nil {
		log.Fatalf("community_layer: %v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("community_layer: %v", err)
	}

	if err := app.Shutdown(context.Background()); err != nil {
		log.Fatalf("community_layer: shutdown: %v", err)
	}
}
