package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/tickstats/tickstats-go"
	"github.com/tickstats/tickstats-go/internal/config"
	"github.com/tickstats/tickstats-go/metrics"
	"github.com/tickstats/tickstats-go/tickstatsgrpc"
	"github.com/tickstats/tickstats-go/tickstatshttp"
	"github.com/tickstats/tickstats-go/tickstatsws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogDevelopment)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	m := metrics.New("tickstats")
	engine, err := m.Instrument(cfg.EngineBuilder()).Build()
	if err != nil {
		return err
	}
	m.Observe(engine)
	registry := prometheus.NewRegistry()
	registry.MustRegister(m, collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	logger.Info("engine started",
		zap.Int("maxSymbols", cfg.MaxSymbols),
		zap.Int("maxKExponent", cfg.MaxKExponent),
		zap.Int("maxBatchSize", cfg.MaxBatchSize),
		zap.Bool("consistentReads", cfg.ConsistentReads),
		zap.String("preallocated", humanize.IBytes(cfg.Engine().PreallocatedBytes())))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.HTTPAddr != "" {
		server := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           newMux(engine, registry, cfg.MaxInFlight, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving http", zap.String("addr", cfg.HTTPAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if cfg.GRPCAddr != "" {
		listener, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("listen grpc: %w", err)
		}
		server := grpc.NewServer(grpc.UnaryInterceptor(tickstatsgrpc.NewUnaryServerInterceptor(cfg.MaxInFlight, logger)))
		tickstatsgrpc.RegisterServer(server, engine)
		g.Go(func() error {
			logger.Info("serving grpc", zap.String("addr", cfg.GRPCAddr))
			if err := server.Serve(listener); err != nil {
				return fmt.Errorf("serve grpc: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			server.GracefulStop()
			return nil
		})
	}

	err = g.Wait()
	logger.Info("stopped", zap.Int("symbols", engine.SymbolCount()))
	return err
}

func newMux(engine tickstats.Engine, registry *prometheus.Registry, maxInFlight int64, logger *zap.Logger) http.Handler {
	api := tickstatshttp.NewHandler(engine, logger)
	stream := tickstatsws.NewHandler(engine, logger)
	api = tickstatshttp.LimitInFlight(api, maxInFlight)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.Handle("GET /ws", stream)
	mux.Handle("/", api)
	return mux
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
