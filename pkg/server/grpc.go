package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/dasmlab/kultura/pkg/translate"
)

// TranslatorService is the health service name that tracks the
// translation backend. The empty name tracks the process itself.
const TranslatorService = "kultura.Translator"

// GRPCServer serves the standard gRPC health protocol so orchestrators can
// probe the process and its translation backend.
type GRPCServer struct {
	server     *grpc.Server
	health     *health.Server
	translator translate.Translator
	logger     *logrus.Logger
	port       int
}

// NewGRPCServer creates the health server with the keepalive policy used
// by our other gRPC services.
func NewGRPCServer(translator translate.Translator, logger *logrus.Logger, port int) *GRPCServer {
	if logger == nil {
		logger = logrus.New()
	}

	opts := []grpc.ServerOption{
		grpc.Creds(insecure.NewCredentials()),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             15 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     5 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 5 * time.Second,
			Time:                  30 * time.Second,
			Timeout:               10 * time.Second,
		}),
	}

	s := grpc.NewServer(opts...)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(TranslatorService, grpc_health_v1.HealthCheckResponse_UNKNOWN)

	// Enable reflection for grpcurl/debugging
	reflection.Register(s)

	return &GRPCServer{
		server:     s,
		health:     healthServer,
		translator: translator,
		logger:     logger,
		port:       port,
	}
}

// Start listens on the configured port and serves until Stop.
func (g *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", g.port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", g.port, err)
	}

	g.logger.WithFields(logrus.Fields{
		"port": g.port,
	}).Info("gRPC health server listening")

	return g.server.Serve(lis)
}

// CheckTranslator probes the translation backend once and records the
// result under TranslatorService.
func (g *GRPCServer) CheckTranslator(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := g.translator.CheckHealth(ctx)
	if err != nil {
		g.logger.WithError(err).Warn("Translator health check failed")
		g.health.SetServingStatus(TranslatorService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		return err
	}

	g.logger.Debug("Translator health check passed")
	g.health.SetServingStatus(TranslatorService, grpc_health_v1.HealthCheckResponse_SERVING)
	return nil
}

// WatchTranslator checks the translator immediately and then every
// interval until ctx is cancelled.
func (g *GRPCServer) WatchTranslator(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		g.CheckTranslator(ctx, 10*time.Second)
		for {
			select {
			case <-ticker.C:
				g.CheckTranslator(ctx, 10*time.Second)
			case <-ctx.Done():
				return
			}
		}
	}()

	g.logger.WithFields(logrus.Fields{
		"interval": interval.String(),
	}).Info("Started translator health watch")
}

// Stop marks every service NOT_SERVING and stops gracefully, forcing the
// stop if ctx expires first.
func (g *GRPCServer) Stop(ctx context.Context) {
	g.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		g.logger.Info("gRPC server stopped gracefully")
	case <-ctx.Done():
		g.logger.Warn("Graceful shutdown timeout, forcing stop...")
		g.server.Stop()
	}
}
