package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/motion"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/profile"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/state"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/update"
)

func TestDetectorCollectorObserveStep(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewDetectorCollector(reg)
	if err != nil {
		t.Fatalf("NewDetectorCollector: %v", err)
	}

	s := state.NewSession()
	r := update.Update(s, update.Input{Sample: motion.Sample{
		Timestamp: time.Date(2025, 12, 16, 8, 0, 0, 0, time.UTC),
		Accel:     motion.Vec3{Z: 0.1},
	}}, profile.For(profile.ModeBalanced), update.DefaultConfig())
	c.ObserveStep(r, 20*time.Microsecond)

	if got := testutil.ToFloat64(c.Samples.WithLabelValues("transition")); got != 1 {
		t.Fatalf("falldetect_samples_total{transition} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Phase.WithLabelValues("freefall")); got != 1 {
		t.Fatalf("falldetect_phase{freefall} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Phase.WithLabelValues("normal")); got != 0 {
		t.Fatalf("falldetect_phase{normal} = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.Confidence); got <= 0 {
		t.Fatalf("falldetect_confidence = %v, want > 0", got)
	}
	if count := histogramSampleCount(t, reg, "falldetect_analyze_duration_seconds", nil); count != 1 {
		t.Fatalf("analyze duration sample_count = %d, want 1", count)
	}
}

func TestDetectorCollectorEventsAndFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewDetectorCollector(reg)
	if err != nil {
		t.Fatalf("NewDetectorCollector: %v", err)
	}
	c.ObserveEvent(state.FallEvent{Mode: profile.ModeSensitive, Origin: state.OriginTest})
	c.SinkFailure("relay")
	c.SinkFailure("relay")

	if got := testutil.ToFloat64(c.Events.WithLabelValues("sensitive", "test")); got != 1 {
		t.Fatalf("falldetect_events_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.SinkFailures.WithLabelValues("relay")); got != 2 {
		t.Fatalf("falldetect_sink_failures_total = %v, want 2", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *DetectorCollector
	c.ObserveStep(update.Result{}, time.Millisecond)
	c.ObserveEvent(state.FallEvent{})
	c.SinkFailure("store")
	c.SetPhase(state.PhaseNormal)
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewDetectorCollector(reg)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := NewDetectorCollector(reg)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if a.Samples != b.Samples {
		t.Fatal("expected existing counter to be reused")
	}
}

func TestRelayInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewRelayCollector(reg)
	if err != nil {
		t.Fatalf("NewRelayCollector: %v", err)
	}
	interceptor := c.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/falldetect.v1.EventSink/Publish"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	})
	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.InvalidArgument, "bad event")
	})

	if got := testutil.ToFloat64(c.Requests.WithLabelValues("Publish", "OK")); got != 1 {
		t.Fatalf("relay_requests_total{OK} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Requests.WithLabelValues("Publish", "InvalidArgument")); got != 1 {
		t.Fatalf("relay_requests_total{InvalidArgument} = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "relay_request_duration_seconds", map[string]string{"method": "Publish"}); count != 2 {
		t.Fatalf("relay_request_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestMetricsHandlerExposesDetectorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewDetectorCollector(reg)
	if err != nil {
		t.Fatalf("NewDetectorCollector: %v", err)
	}
	c.SetPhase(state.PhaseImpact)
	c.SinkFailure("store")
	c.Samples.WithLabelValues("none").Inc()

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{"falldetect_phase", "falldetect_sink_failures_total", "falldetect_samples_total"} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestSplitMethod(t *testing.T) {
	cases := []struct {
		in, service, method string
	}{
		{"/falldetect.v1.EventSink/Publish", "EventSink", "Publish"},
		{"EventSink/Publish", "EventSink", "Publish"},
		{"", "unknown", "unknown"},
		{"/Publish", "unknown", "unknown"},
	}
	for _, tc := range cases {
		s, m := SplitMethod(tc.in)
		if s != tc.service || m != tc.method {
			t.Errorf("SplitMethod(%q) = %q, %q", tc.in, s, m)
		}
	}
}

func TestInitTracingStdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "stdout", Writer: &buf}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "dispatch")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "dispatch") {
		t.Fatalf("expected exported span, got %q", buf.String())
	}

	_, err = InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "carrier-pigeon"}, nil)
	if err == nil {
		t.Fatal("expected unsupported exporter error")
	}

	disabled, err := InitTracing(context.Background(), TracingConfig{}, nil)
	if err != nil {
		t.Fatalf("disabled: %v", err)
	}
	ShutdownWithTimeout(context.Background(), disabled, nil)
	ShutdownWithTimeout(context.Background(), func(context.Context) error { return errors.New("flush") }, nil)
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()
	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
