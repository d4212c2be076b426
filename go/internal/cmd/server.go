package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/respawn/go/internal/app"
	"github.com/mcdev12/respawn/go/internal/config"
	"github.com/mcdev12/respawn/go/internal/gateway"
)

func setupServer(cfg config.Config, stack *app.App, gatewayService *gateway.Service) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// Websocket, room and catalog routes
	gatewayService.RegisterRoutes(mux)

	setupHealthCheck(mux)
	setupInfo(mux, cfg, stack, gatewayService)

	handler := gateway.RecoverMiddleware(c.Handler(mux))

	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Gateway.Port),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}

func setupInfo(mux *http.ServeMux, cfg config.Config, stack *app.App, gatewayService *gateway.Service) {
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		stats := gatewayService.GetConnectionManager().GetConnectionStats()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]interface{}{
			"service":     "respawn",
			"backend":     cfg.Backend,
			"connected":   stack.Store.Reachable(),
			"cache":       cfg.Cache.Driver,
			"timezone":    stack.Location.String(),
			"connections": stats.TotalConnections,
		}); err != nil {
			log.Error().Err(err).Msg("failed to encode info response")
		}
	})
}
