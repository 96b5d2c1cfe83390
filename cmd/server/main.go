package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/ciricc/court-transcriber/internal/app"
	"github.com/ciricc/court-transcriber/internal/health"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config.yaml")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, *cfgPath)
	if err != nil {
		log.Fatalf("init error: %v", err)
	}

	logger := application.Logger
	cfg := application.Config

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddress)
	if err != nil {
		log.Fatalf("listen grpc: %v", err)
	}

	grpcServer := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, application.HealthChecker)
	reflection.Register(grpcServer)

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddress,
		Handler:           application.HTTP.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("grpc health listening", "address", cfg.Server.GRPCAddress)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("grpc serve: %v", err)
		}
	}()

	go func() {
		logger.Info("http listening", "address", cfg.Server.HTTPAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	application.HealthChecker.SetServingStatus(health.PipelineService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	grpcServer.GracefulStop()

	if err := application.Close(); err != nil {
		logger.Error("close", "error", err)
		os.Exit(1)
	}
}
