package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/respawn/go/internal/app"
	"github.com/mcdev12/respawn/go/internal/config"
	"github.com/mcdev12/respawn/go/internal/gateway"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg := config.FromEnv()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(cfg.Level())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	openCtx, openCancel := context.WithTimeout(ctx, 30*time.Second)
	stack, err := app.Open(openCtx, cfg)
	openCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start timer stack")
	}
	defer func() {
		if err := stack.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close timer stack")
		}
	}()

	gatewayService := gateway.NewService(gateway.DefaultConfig(), stack.NewSession, gateway.RoomReader{
		Catalog:    stack.Catalog,
		Store:      stack.Store,
		Reconciler: stack.Reconciler,
		Location:   stack.Location,
	})

	server := setupServer(cfg, stack, gatewayService)

	serviceDone := make(chan struct{})
	go func() {
		defer close(serviceDone)
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stop room sessions before the backend closes underneath them
	cancel()
	<-serviceDone

	log.Info().Msg("respawn server shutdown complete")
}
