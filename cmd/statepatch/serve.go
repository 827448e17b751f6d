// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/openchoreo/statepatch/internal/host"
	"github.com/openchoreo/statepatch/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept batches over WebSocket and MCP",
		Long: "Serve holds the committed document in memory and accepts batches on /ws " +
			"(one batch per text message) and as MCP tools on /mcp. Metrics are exposed on " +
			"/metrics and liveness on /health.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (retErr error) {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			deps, err := a.newService(ctx,
				host.NewLogSink(a.logger),
				host.NewMetricsSink(reg),
			)
			if err != nil {
				return err
			}
			defer func() {
				retErr = errors.Join(retErr, deps.Close())
			}()

			ws := host.NewWebSocketServer(deps.service, host.WebSocketConfig{
				HeartbeatInterval: a.cfg.Server.HeartbeatInterval,
			}, a.logger)

			srv := server.New(server.Config{
				Addr:            a.cfg.Server.Address,
				ReadTimeout:     a.cfg.Server.ReadTimeout,
				WriteTimeout:    a.cfg.Server.WriteTimeout,
				ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
			}, newServeMux(deps.service, ws, reg, a.logger), a.logger)
			srv.OnShutdown(ws.Shutdown)

			a.logger.Info("statepatch server configured", "address", a.cfg.Server.Address, "version", version)
			return srv.Run(ctx)
		},
	}
	return cmd
}

// newServeMux routes the serve endpoints.
func newServeMux(svc *host.Service, ws *host.WebSocketServer, reg *prometheus.Registry, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", ws)
	mux.Handle("/mcp", host.NewMCPHandler(&host.Tools{Dispatcher: svc, State: svc}, version))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})

	accessLogger := logger.With("component", "http")
	return server.Chain(server.Recover(accessLogger), server.AccessLog(accessLogger))(mux)
}
