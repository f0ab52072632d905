package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/oggyb/muzz-social/internal/config"
	svcErr "github.com/oggyb/muzz-social/internal/errors"
)

// CallerHeader carries the authenticated user id set by the gateway.
const CallerHeader = "x-user-id"

// NewGRPCServer builds a JSON-coded gRPC server with identity and error
// mapping interceptors and registers all provided services.
func NewGRPCServer(logger *slog.Logger, registrars ...Registrar) *grpc.Server {
	grpcServer := grpc.NewServer(
		grpc.ForceServerCodec(Codec{}),
		grpc.ChainUnaryInterceptor(identityInterceptor, loggingInterceptor(logger)),
	)

	RegisterAll(grpcServer, registrars...)
	return grpcServer
}

// StartGRPCServer serves until ctx is done, then stops gracefully.
func StartGRPCServer(ctx context.Context, cfg *config.Config, logger *slog.Logger, registrars ...Registrar) error {
	addr := fmt.Sprintf("%s:%s", cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	grpcServer := NewGRPCServer(logger, registrars...)
	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()

	logger.Info("starting gRPC server", "addr", addr)
	return grpcServer.Serve(lis)
}

// identityInterceptor trusts the caller id forwarded by the gateway.
func identityInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	ids := md.Get(CallerHeader)
	if len(ids) == 0 || ids[0] == "" {
		return nil, svcErr.Unauthenticated("missing " + CallerHeader)
	}
	return handler(WithCaller(ctx, ids[0]), req)
}

// loggingInterceptor maps service errors to status codes and logs every
// call with its outcome.
func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		took := time.Since(start)

		if err == nil {
			logger.Debug("rpc ok", "method", info.FullMethod, "caller", CallerID(ctx), "took", took)
			return resp, nil
		}
		if svcErr.KindOf(err) == svcErr.KindUnknown {
			logger.Error("rpc failed", "method", info.FullMethod, "caller", CallerID(ctx), "took", took, "err", err)
		} else {
			logger.Info("rpc rejected", "method", info.FullMethod, "caller", CallerID(ctx), "took", took, "err", err)
		}
		return nil, svcErr.Map(err)
	}
}
