package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/config"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/engine"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/logging"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/observability"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/pipeline"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/relay"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/source"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/state"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/timeutil"
)

const readingBuffer = 64

// daemon wires one detection run from its config.
type daemon struct {
	cfg     *config.Config
	log     logging.Logger
	stdin   io.Reader // jsonl samples when source.path is "-"
	control io.Reader // control commands, nil to disable
}

// #region run
func (d daemon) run(ctx context.Context) error {
	cfg, log := d.cfg, d.log

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "falldetectd",
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

	metrics, err := observability.NewDetectorCollector(nil)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	metricsSrv := serveMetrics(cfg.Metrics.Addr, metrics.Handler(), log)
	defer shutdownServer(metricsSrv)

	sinks := pipeline.Sinks{Store: store, Decisions: store.DB()}
	if cfg.Relay.Enabled {
		client, err := relay.NewClient(cfg.Relay.Addr,
			relay.WithTimeout(cfg.Relay.Timeout),
			relay.WithMaxRetries(cfg.Relay.MaxRetries),
		)
		if err != nil {
			return fmt.Errorf("connect relay %s: %w", cfg.Relay.Addr, err)
		}
		defer client.Close()
		sinks.Relay = client
	}

	runner := pipeline.New(engine.New(cfg.ProfileMode()), sinks,
		pipeline.WithMetrics(metrics),
		pipeline.WithLogger(log),
		pipeline.WithLocation(cfg.FixedLocation()),
		pipeline.WithEventBuffer(cfg.Pipeline.EventBuffer),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readings := make(chan source.Reading, readingBuffer)
	srcErr := make(chan error, 1)
	go func() {
		defer close(readings)
		srcErr <- d.feed(ctx, readings)
	}()
	if d.control != nil {
		go controlLoop(ctx, d.control, runner, log)
	}

	log.Info(ctx, "falldetectd started",
		logging.String("mode", string(cfg.ProfileMode())),
		logging.String("source", cfg.Source.Kind),
		logging.String("store", cfg.Store.Path),
		logging.Bool("relay", cfg.Relay.Enabled),
	)
	stats, err := runner.Run(ctx, readings)
	cancel()
	if err != nil {
		return fmt.Errorf("detection loop: %w", err)
	}

	// A stdin reader blocked in Read never returns; only report sources that
	// already finished.
	select {
	case err := <-srcErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	default:
	}

	log.Info(context.WithoutCancel(ctx), "falldetectd stopped",
		logging.Int("samples", stats.Samples),
		logging.Int("rejected", stats.Rejected),
		logging.Int("events", stats.Events),
		logging.Int("commands", stats.Commands),
	)
	return nil
}

// #endregion run

// #region source
func (d daemon) feed(ctx context.Context, out chan<- source.Reading) error {
	src := d.cfg.Source
	if src.Kind == config.SourceSerial {
		s, err := source.OpenSerial(src.SerialPort, src.BaudRate, timeutil.RealClock{}, d.log)
		if err != nil {
			return err
		}
		err = s.Monitor(ctx, out)
		st := s.Stats()
		d.log.Info(ctx, "serial source closed",
			logging.String("port", src.SerialPort),
			logging.Int("lines", st.Lines),
			logging.Int("skipped", st.Skipped),
		)
		return err
	}

	r := d.stdin
	if src.Path != "-" {
		f, err := os.Open(src.Path)
		if err != nil {
			return fmt.Errorf("open samples: %w", err)
		}
		defer f.Close()
		r = f
	}
	st, err := source.ReadJSONLines(ctx, r, out)
	d.log.Info(ctx, "sample stream ended",
		logging.String("path", src.Path),
		logging.Int("lines", st.Lines),
		logging.Int("skipped", st.Skipped),
	)
	return err
}

// #endregion source

// #region metrics-server
func serveMetrics(addr string, h http.Handler, log logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)

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

func shutdownServer(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

// #endregion metrics-server
