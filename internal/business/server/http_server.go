package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/samber/oops"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/bot-flow/internal/config"
)

// createHTTPServer creates the REST API server using the given config
func createHTTPServer(_ context.Context, cfg *config.Config, service BotService, flows FlowStore) *http.Server {
	api := newAPIServer(service, flows)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/bots/{botID}/sessions/{sessionID}/run", newTraceMiddleware(cfg, "RunSession", api.run))
	mux.HandleFunc("POST /v1/bots/{botID}/sessions/{sessionID}/input", newTraceMiddleware(cfg, "ResumeSession", api.input))
	mux.HandleFunc("GET /v1/sessions/{sessionID}", newTraceMiddleware(cfg, "GetSession", api.getSession))
	mux.HandleFunc("POST /v1/sessions/{sessionID}/drop", newTraceMiddleware(cfg, "DropSession", api.dropSession))
	mux.HandleFunc("DELETE /v1/sessions/{sessionID}", newTraceMiddleware(cfg, "DeleteSession", api.deleteSession))
	mux.HandleFunc("GET /v1/bots/{botID}/flow", newTraceMiddleware(cfg, "GetFlow", api.getFlow))
	mux.HandleFunc("PUT /v1/bots/{botID}/flow", newTraceMiddleware(cfg, "PutFlow", api.putFlow))
	mux.HandleFunc("DELETE /v1/bots/{botID}/flow", newTraceMiddleware(cfg, "DeleteFlow", api.deleteFlow))
	mux.HandleFunc("GET /ping", newTraceMiddleware(cfg, "ping", pingHandler))

	return &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: mux,
	}
}

// StartHTTPServer starts the HTTP server using the given config.
func StartHTTPServer(ctx context.Context, cfg *config.Config, service BotService, flows FlowStore) error {
	if err := initMeters(ctx, cfg); err != nil {
		return err
	}

	server := createHTTPServer(ctx, cfg, service, flows)

	slogctx.Info(ctx, "Starting a listener", "address", server.Addr)

	// Parse network if the address is provided in the format of network://address.
	// Otherwise use tcp network by default.
	network := "tcp"
	if idx := strings.IndexRune(server.Addr, ':'); idx != -1 && len(server.Addr) > idx+3 && server.Addr[idx:idx+3] == "://" {
		network = server.Addr[:idx]
		server.Addr = server.Addr[idx+3:]
	}

	listener, err := new(net.ListenConfig).Listen(ctx, network, server.Addr)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed to create a listener")
	}

	slogctx.Info(ctx, "A listener started", "address", listener.Addr().String())

	go func() {
		slogctx.Info(ctx, "Serving an HTTP server", "address", listener.Addr().String())
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogctx.Error(ctx, "Failed to serve an HTTP server", "error", err)
		}

		slogctx.Info(ctx, "Stopped an HTTP server")
	}()

	<-ctx.Done()

	shutdownCtx, shutdownRelease := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer shutdownRelease()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed shutting down HTTP server")
	}

	slogctx.Info(ctx, "Completed graceful shutdown of HTTP server")

	return nil
}
