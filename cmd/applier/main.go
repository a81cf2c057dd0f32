package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"google.golang.org/grpc"

	"github.com/rl1809/realtime-inventory/internal/adapter/handler"
	"github.com/rl1809/realtime-inventory/internal/adapter/stream"
	"github.com/rl1809/realtime-inventory/internal/bootstrap"
	"github.com/rl1809/realtime-inventory/internal/config"
	"github.com/rl1809/realtime-inventory/internal/core/domain"
	"github.com/rl1809/realtime-inventory/internal/core/service"
	"github.com/rl1809/realtime-inventory/internal/logger"
	"github.com/rl1809/realtime-inventory/internal/metrics"
	"github.com/rl1809/realtime-inventory/internal/port"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: "inventory-applier",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "applier exited", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Backends
	backends, err := bootstrap.Open(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, backends.Close()) }()

	if err := bootstrap.Seed(ctx, backends.Store, cfg.Store.SeedFile, logg); err != nil {
		return err
	}

	sink, closeSinks, err := bootstrap.AlertSink(ctx, cfg, backends.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeSinks()) }()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewPipeline(reg)

	// Pipeline
	thresholds := domain.Thresholds{CriticalFloor: cfg.Applier.CriticalFloor}
	applier := service.NewApplier(backends.Store, service.ApplierOptions{
		Thresholds:         thresholds,
		MaxConflictRetries: cfg.Applier.MaxConflictRetries,
		Logger:             logg,
		Metrics:            m,
	})
	emitter := service.NewAlertEmitter(sink, service.AlertMode(cfg.Alerts.Mode), logg, m)

	var deadLetters []port.ErrorReporter
	if backends.Redis != nil {
		deadLetters = append(deadLetters, stream.NewRedisDeadLetter(backends.Redis, cfg.Stream.Prefix, logg))
	}
	consumer := service.NewConsumer(backends.Log, backends.Offsets, backends.Leases, applier, emitter,
		service.NewReporter(logg, m, deadLetters...), service.ConsumerOptions{
			Group:        cfg.Stream.ConsumerGroup,
			BatchSize:    cfg.Stream.ReadBatch,
			LeaseTTL:     cfg.Stream.LeaseTTL,
			ApplyTimeout: cfg.Applier.ApplyTimeout,
			RetryBase:    cfg.Applier.RetryBase,
			RetryMax:     cfg.Applier.RetryMax,
			Logger:       logg,
		})

	// gRPC health
	grpcHandler := handler.NewGRPCHandler()
	grpcServer := grpc.NewServer()
	grpcHandler.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.App.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	// HTTP
	consumerStarted := make(chan struct{})
	ready := func() bool {
		select {
		case <-consumerStarted:
			return true
		default:
			return false
		}
	}
	httpHandler := handler.NewHTTPHandler(backends.Store, backends.Log, thresholds, logg, ready,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpServer := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           httpHandler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		logg.Info(logg.WithField(ctx, "addr", cfg.App.GRPCAddr), "gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			logg.Error(ctx, "gRPC server error", err)
		}
	}()
	go func() {
		defer wg.Done()
		logg.Info(logg.WithField(ctx, "addr", cfg.App.HTTPAddr), "HTTP server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "HTTP server error", err)
		}
	}()
	go func() {
		defer wg.Done()
		logg.Info(logg.WithField(ctx, "partitions", backends.Log.Partitions()), "consumer started")
		close(consumerStarted)
		grpcHandler.SetServing(true)
		consumer.Run(ctx)
		logg.Info(context.Background(), "consumer stopped")
	}()

	<-ctx.Done()
	logg.Info(context.Background(), "shutting down...")
	grpcHandler.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "HTTP shutdown", err)
	}
	grpcServer.GracefulStop()

	// consumer finishes its in-flight entries before the connections close
	wg.Wait()
	logg.Info(context.Background(), "connections closing")
	return nil
}
