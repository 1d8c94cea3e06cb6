// Package pipeline runs the detection loop: it is the single consumer of
// sensor readings and control commands, and hands emitted events to sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/engine"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/logging"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/motion"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/observability"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/profile"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/source"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/state"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/timeutil"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/update"
)

const defaultEventBuffer = 16

// ErrNotRunning is returned by Submit when the loop has already stopped.
var ErrNotRunning = errors.New("pipeline not running")

// #region runner-struct
// Runner owns a detection engine. Only the goroutine executing Run touches it.
type Runner struct {
	engine   *engine.Engine
	sinks    Sinks
	metrics  *observability.DetectorCollector
	log      logging.Logger
	clock    timeutil.Clock
	location *motion.Location
	buffer   int
	tracer   trace.Tracer

	commands chan commandRequest
	done     chan struct{}
	stopOnce sync.Once
}

// Stats summarises one Run.
type Stats struct {
	Samples  int
	Rejected int
	Events   int
	Commands int
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics records loop and sink metrics on c.
func WithMetrics(c *observability.DetectorCollector) Option {
	return func(r *Runner) { r.metrics = c }
}

// WithLogger sets the logger; the default discards.
func WithLogger(l logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithClock sets the clock used to time engine steps.
func WithClock(c timeutil.Clock) Option {
	return func(r *Runner) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLocation attaches loc to readings that carry none.
func WithLocation(loc *motion.Location) Option {
	return func(r *Runner) { r.location = loc }
}

// WithEventBuffer bounds the queue between the loop and the dispatcher.
func WithEventBuffer(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.buffer = n
		}
	}
}

// #endregion runner-struct

// #region constructor
// New wires a runner around eng.
func New(eng *engine.Engine, sinks Sinks, opts ...Option) *Runner {
	r := &Runner{
		engine:   eng,
		sinks:    sinks,
		log:      logging.Noop(),
		clock:    timeutil.RealClock{},
		buffer:   defaultEventBuffer,
		tracer:   otel.Tracer("github.com/danielpatrickdp/fall-detect/go-engine/internal/pipeline"),
		commands: make(chan commandRequest),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// #endregion constructor

// #region submit
// Submit applies cmd on the detection loop and waits for it to take effect.
// It blocks until Run picks the command up, ctx ends, or Run returns.
func (r *Runner) Submit(ctx context.Context, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	req := commandRequest{cmd: cmd, reply: make(chan error, 1)}
	select {
	case r.commands <- req:
	case <-r.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// #endregion submit

// #region run
// Run consumes readings until the channel closes or ctx ends, then drains the
// dispatcher. A Runner runs at most once.
func (r *Runner) Run(ctx context.Context, readings <-chan source.Reading) (Stats, error) {
	ctx, log := logging.WithRunLogger(ctx, r.log)
	runID := logging.RunIDFromContext(ctx)
	defer r.stopOnce.Do(func() { close(r.done) })

	queue := make(chan dispatchItem, r.buffer)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Queued events are still delivered after cancellation.
		dctx := context.WithoutCancel(ctx)
		for item := range queue {
			r.deliver(dctx, log, item)
		}
	}()

	log.Info(ctx, "detection loop started",
		logging.String("mode", string(r.engine.Mode())),
		logging.Int("event_buffer", r.buffer),
	)
	r.metrics.SetPhase(r.engine.Phase())

	loop := &loopState{runner: r, log: log, runID: runID, queue: queue}
	var runErr error
	for running := true; running; {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			running = false
		case rd, ok := <-readings:
			if !ok {
				running = false
				break
			}
			loop.handleReading(ctx, rd)
		case req := <-r.commands:
			req.reply <- loop.handleCommand(ctx, req.cmd)
		}
	}

	close(queue)
	wg.Wait()

	log.Info(context.WithoutCancel(ctx), "detection loop stopped",
		logging.Int("samples", loop.stats.Samples),
		logging.Int("rejected", loop.stats.Rejected),
		logging.Int("events", loop.stats.Events),
	)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	return loop.stats, runErr
}

// loopState is owned by the Run goroutine.
type loopState struct {
	runner *Runner
	log    logging.Logger
	runID  string
	queue  chan<- dispatchItem
	stats  Stats
}

func (l *loopState) handleReading(ctx context.Context, rd source.Reading) {
	r := l.runner
	loc := rd.Location
	if loc == nil {
		loc = r.location
	}

	start := r.clock.Now()
	res := r.engine.Step(rd.Sample, loc)
	r.metrics.ObserveStep(res, r.clock.Since(start))
	l.stats.Samples++

	switch res.Decision.Action {
	case update.ActionNone:
		return
	case update.ActionHold:
		l.log.Debug(ctx, "detection held by cooldown", logging.String("reason", res.Decision.Reason))
		return
	case update.ActionReject:
		l.stats.Rejected++
		l.log.Warn(ctx, "sample rejected", logging.Err(res.Err))
	default:
		l.log.Debug(ctx, "phase decision",
			logging.String("action", string(res.Decision.Action)),
			logging.String("from", string(res.Decision.From)),
			logging.String("to", string(res.Decision.To)),
			logging.Float("confidence", res.Metrics.Confidence),
			logging.String("reason", res.Decision.Reason),
		)
	}

	entry := l.entry(string(res.Decision.Action), res.Decision.From, res.Decision.To, res.Metrics.Confidence, res.Decision.Reason)
	if res.Event != nil {
		l.emit(ctx, *res.Event, entry)
		return
	}
	l.queue <- dispatchItem{decision: &entry}
}

func (l *loopState) handleCommand(ctx context.Context, cmd Command) error {
	r := l.runner
	from := r.engine.Phase()
	l.stats.Commands++

	switch cmd.Kind {
	case CommandReset:
		r.engine.Reset()
		l.log.Info(ctx, "engine reset", logging.String("from", string(from)))
		l.queue <- dispatchItem{decision: ptr(l.entry(string(cmd.Kind), from, r.engine.Phase(), 0, "reset requested"))}

	case CommandSetMode:
		mode, err := profile.ParseMode(string(cmd.Mode))
		if err != nil {
			return err
		}
		prev := r.engine.Mode()
		r.engine.SetMode(mode)
		l.log.Info(ctx, "detection mode changed",
			logging.String("from", string(prev)),
			logging.String("to", string(mode)),
		)
		reason := fmt.Sprintf("mode %s -> %s", prev, mode)
		l.queue <- dispatchItem{decision: ptr(l.entry(string(cmd.Kind), from, r.engine.Phase(), 0, reason))}

	case CommandTestTrigger:
		loc := cmd.Location
		if loc == nil {
			loc = r.location
		}
		ev := r.engine.TriggerTestEvent(loc)
		l.log.Info(ctx, "test event triggered", logging.String("event_id", ev.ID))
		l.emit(ctx, ev, l.entry(string(cmd.Kind), from, r.engine.Phase(), ev.Confidence, "test trigger"))

	default:
		return fmt.Errorf("unknown command %q", cmd.Kind)
	}
	r.metrics.SetPhase(r.engine.Phase())
	return nil
}

func (l *loopState) emit(ctx context.Context, ev state.FallEvent, entry logging.DecisionEntry) {
	l.stats.Events++
	l.runner.metrics.ObserveEvent(ev)
	l.log.Info(ctx, "fall event emitted",
		logging.String("event_id", ev.ID),
		logging.Float("confidence", ev.Confidence),
		logging.String("level", ev.ConfidenceLevel()),
		logging.Float("max_impact", ev.MaxImpact),
		logging.Bool("rotation", ev.HadRotation),
		logging.String("origin", string(ev.Origin)),
	)
	entry.EventID = ev.ID
	entry.Confidence = ev.Confidence
	l.queue <- dispatchItem{event: &ev, decision: &entry}
}

func (l *loopState) entry(action string, from, to state.Phase, conf float64, reason string) logging.DecisionEntry {
	return logging.DecisionEntry{
		RunID:      l.runID,
		Action:     action,
		FromPhase:  string(from),
		ToPhase:    string(to),
		Mode:       string(l.runner.engine.Mode()),
		Confidence: conf,
		Reason:     reason,
		CreatedAt:  l.runner.clock.Now(),
	}
}

func ptr[T any](v T) *T { return &v }

// #endregion run

// #region dispatch
// deliver hands one item to every configured sink. Failures are logged and
// counted; they never reach the engine.
func (r *Runner) deliver(ctx context.Context, log logging.Logger, item dispatchItem) {
	if ev := item.event; ev != nil {
		r.deliverEvent(ctx, log, *ev)
	}
	if d := item.decision; d != nil && r.sinks.Decisions != nil {
		if err := logging.LogDecision(r.sinks.Decisions, *d); err != nil {
			r.metrics.SinkFailure(sinkDecisions)
			log.Warn(ctx, "decision log write failed", logging.Err(err))
		}
	}
}

func (r *Runner) deliverEvent(ctx context.Context, log logging.Logger, ev state.FallEvent) {
	ctx, span := r.tracer.Start(ctx, "pipeline.dispatch_event", trace.WithAttributes(
		attribute.String("event.id", ev.ID),
		attribute.String("event.mode", string(ev.Mode)),
		attribute.String("event.origin", string(ev.Origin)),
		attribute.Float64("event.confidence", ev.Confidence),
	))
	defer span.End()

	saved := false
	if r.sinks.Store != nil {
		if _, err := r.sinks.Store.SaveEvent(ev); err != nil {
			r.metrics.SinkFailure(sinkStore)
			span.RecordError(err)
			log.Error(ctx, "event store write failed", logging.String("event_id", ev.ID), logging.Err(err))
		} else {
			saved = true
		}
	}

	if r.sinks.Relay == nil {
		return
	}
	pubErr := r.sinks.Relay.Publish(ctx, ev)
	if pubErr != nil {
		r.metrics.SinkFailure(sinkRelay)
		span.RecordError(pubErr)
		span.SetStatus(codes.Error, "relay publish failed")
		log.Error(ctx, "event relay failed", logging.String("event_id", ev.ID), logging.Err(pubErr))
	}
	if saved {
		if err := r.sinks.Store.MarkDelivered(ev.ID, pubErr); err != nil {
			r.metrics.SinkFailure(sinkStore)
			log.Warn(ctx, "delivery status write failed", logging.String("event_id", ev.ID), logging.Err(err))
		}
	}
}

// #endregion dispatch
