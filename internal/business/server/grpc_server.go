package server

import (
	"context"
	"net"

	"github.com/openkcm/common-sdk/pkg/commongrpc"
	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	slogctx "github.com/veqryn/slog-context"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/openkcm/bot-flow/internal/config"
)

// newGRPCServer builds the gRPC server with a health service that reports
// SERVING for the whole server until Shutdown is called on it.
func newGRPCServer(ctx context.Context, cfg *config.Config) (*grpc.Server, *health.Server) {
	// the health service below replaces the stateless one commongrpc would add
	serverCfg := cfg.GRPC.GRPCServer
	serverCfg.Flags.Health = false
	grpcServer := commongrpc.NewServer(ctx, &serverCfg)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	return grpcServer, healthServer
}

// StartGRPCServer serves gRPC health checks until ctx is done. Checks answer
// NOT_SERVING while the server drains.
func StartGRPCServer(ctx context.Context, cfg *config.Config) error {
	grpcServer, healthServer := newGRPCServer(ctx, cfg)

	listener, err := new(net.ListenConfig).Listen(ctx, "tcp", cfg.GRPC.Address)
	if err != nil {
		return oops.In("gRPC Server").
			WithContext(ctx).
			Wrapf(err, "creating listener")
	}

	go func() {
		slogctx.Info(ctx, "Starting gRPC server", "address", listener.Addr().String())

		if err := grpcServer.Serve(listener); err != nil {
			slogctx.Error(ctx, "Failed to serve gRPC endpoint", "error", err)
		}

		slogctx.Info(ctx, "Stopped gRPC server")
	}()

	<-ctx.Done()

	healthServer.Shutdown()

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.GRPC.ShutdownTimeout)
	defer cancel()

	select {
	case <-stopped:
		slogctx.Info(shutdownCtx, "Completed graceful shutdown of gRPC server")
	case <-shutdownCtx.Done():
		grpcServer.Stop()
		slogctx.Warn(shutdownCtx, "Forced gRPC server stop after the shutdown timeout")
	}

	return nil
}
