// collector receives relayed fall events over gRPC and persists them.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/config"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/logging"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/observability"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/relay"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/state"
)

var version = "dev"

// #region main

func main() {
	var configPath, listen, dbPath string
	cmd := &cobra.Command{
		Use:   "collector",
		Short: "Fall event collector",
		Long: `collector serves the EventSink gRPC service that falldetectd relays
confirmed falls to. Every received event is stored in SQLite; duplicates
from client retries are acknowledged without being stored twice.`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Collector.Listen = listen
			}
			if dbPath != "" {
				cfg.Store.Path = dbPath
			}
			log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

			lis, err := net.Listen("tcp", cfg.Collector.Listen)
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.Collector.Listen, err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, log, lis)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to falldetect.yaml")
	cmd.Flags().StringVar(&listen, "listen", "", "gRPC listen address override")
	cmd.Flags().StringVar(&dbPath, "db", "", "event database override")

	if err := fang.Execute(context.Background(), cmd); err != nil {
		os.Exit(1)
	}
}

// #endregion main

// #region run

// run serves on lis until ctx ends.
func run(ctx context.Context, cfg *config.Config, log logging.Logger, lis net.Listener) error {
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "falldetect-collector",
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.WithoutCancel(ctx), shutdownTracing, log)

	store, err := state.NewStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	collector, err := observability.NewRelayCollector(nil)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	metricsSrv := serveMetrics(cfg.Metrics.Addr, collector, log)

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(collector.UnaryServerInterceptor()),
	)
	relay.RegisterEventSinkServer(server, relay.NewServer(persist(store, log)))

	log.Info(ctx, "starting EventSink gRPC server",
		logging.String("addr", lis.Addr().String()),
		logging.String("store", cfg.Store.Path),
	)
	errc := make(chan error, 1)
	go func() { errc <- server.Serve(lis) }()

	select {
	case <-ctx.Done():
		log.Info(context.WithoutCancel(ctx), "shutting down collector")
		server.GracefulStop()
	case err = <-errc:
		err = fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return err
}

// persist stores each event once and marks it delivered.
func persist(store *state.Store, log logging.Logger) relay.Handler {
	return func(ctx context.Context, ev state.FallEvent) error {
		if _, err := store.GetEvent(ev.ID); err == nil {
			log.Debug(ctx, "duplicate fall event ignored", logging.String("event_id", ev.ID))
			return nil
		} else if !errors.Is(err, state.ErrEventNotFound) {
			return err
		}
		if _, err := store.SaveEvent(ev); err != nil {
			return err
		}
		if err := store.MarkDelivered(ev.ID, nil); err != nil {
			return err
		}
		log.Info(ctx, "fall event received",
			logging.String("event_id", ev.ID),
			logging.String("mode", string(ev.Mode)),
			logging.String("origin", string(ev.Origin)),
			logging.Float("confidence", ev.Confidence),
			logging.String("maps_url", ev.MapsURL()),
		)
		return nil
	}
}

// #endregion run

// #region metrics-server

func serveMetrics(addr string, collector *observability.RelayCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

// #endregion metrics-server
