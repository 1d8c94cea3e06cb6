package relay

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/motion"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/observability"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/profile"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/state"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/timeutil"
)

// #region mock
type mockSink struct {
	mu    sync.Mutex
	errs  []error // returned in order, nil once exhausted
	calls int
	last  *structpb.Struct
}

func (m *mockSink) Publish(_ context.Context, in *structpb.Struct, _ ...grpc.CallOption) (*emptypb.Empty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.last = in
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &emptypb.Empty{}, nil
}

func sampleEvent() state.FallEvent {
	return state.FallEvent{
		ID:                "evt-1",
		Timestamp:         time.Date(2025, 12, 16, 7, 45, 1, 500_000_000, time.UTC),
		Confidence:        0.88,
		MaxImpact:         3.1,
		HadRotation:       true,
		MaxAttitudeChange: 1.05,
		Mode:              profile.ModeBalanced,
		Location:          &motion.Location{Latitude: 25.033, Longitude: 121.565},
		Origin:            state.OriginDetected,
	}
}

// #endregion mock

// #region encode-tests
func TestEncodeDecodeEvent(t *testing.T) {
	ev := sampleEvent()
	msg, err := EncodeEvent(ev)
	require.NoError(t, err)

	assert.Equal(t, "very_high", msg.GetFields()["confidence_level"].GetStringValue())
	assert.Contains(t, msg.GetFields()["maps_url"].GetStringValue(), "25.033")

	got, err := DecodeEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)
	assert.True(t, ev.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, ev.Mode, got.Mode)
	assert.Equal(t, ev.Origin, got.Origin)
	assert.InDelta(t, ev.Confidence, got.Confidence, 1e-9)
	assert.True(t, got.HadRotation)
	require.NotNil(t, got.Location)
	assert.InDelta(t, 121.565, got.Location.Longitude, 1e-9)
}

func TestEncodeUnlocatedEvent(t *testing.T) {
	ev := sampleEvent()
	ev.Location = nil
	msg, err := EncodeEvent(ev)
	require.NoError(t, err)
	_, ok := msg.GetFields()["location"]
	assert.False(t, ok)

	got, err := DecodeEvent(msg)
	require.NoError(t, err)
	assert.Nil(t, got.Location)
}

func TestDecodeRejectsInvalid(t *testing.T) {
	valid := func() map[string]interface{} {
		return map[string]interface{}{
			"timestamp":  "2025-12-16T07:45:00Z",
			"mode":       "balanced",
			"confidence": 0.5,
		}
	}
	cases := map[string]func(m map[string]interface{}){
		"missing timestamp": func(m map[string]interface{}) { delete(m, "timestamp") },
		"unknown mode":      func(m map[string]interface{}) { m["mode"] = "paranoid" },
		"confidence > 1":    func(m map[string]interface{}) { m["confidence"] = 1.5 },
		"unknown origin":    func(m map[string]interface{}) { m["origin"] = "replayed" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			m := valid()
			mutate(m)
			s, err := structpb.NewStruct(m)
			require.NoError(t, err)
			_, err = DecodeEvent(s)
			assert.ErrorIs(t, err, ErrInvalidEvent)
		})
	}

	_, err := DecodeEvent(nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

// #endregion encode-tests

// #region publish-tests
func TestPublishSuccess(t *testing.T) {
	mock := &mockSink{}
	c := NewClientWithService(mock)
	require.NoError(t, c.Publish(context.Background(), sampleEvent()))
	assert.Equal(t, 1, mock.calls)
	assert.Equal(t, "evt-1", mock.last.GetFields()["id"].GetStringValue())
	assert.NoError(t, c.Close())
}

func TestPublishRetriesTransientErrors(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	mock := &mockSink{errs: []error{
		status.Error(codes.Unavailable, "down"),
		status.Error(codes.DeadlineExceeded, "slow"),
	}}
	c := NewClientWithService(mock, WithClock(clock), WithBackoff(100*time.Millisecond))

	require.NoError(t, c.Publish(context.Background(), sampleEvent()))
	assert.Equal(t, 3, mock.calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, clock.Sleeps())
}

func TestPublishGivesUpAfterMaxRetries(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	unavailable := status.Error(codes.Unavailable, "down")
	mock := &mockSink{errs: []error{unavailable, unavailable, unavailable, unavailable}}
	c := NewClientWithService(mock, WithClock(clock), WithMaxRetries(1))

	err := c.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(errors.Unwrap(err)))
	assert.Equal(t, 2, mock.calls)
}

func TestPublishDoesNotRetryPermanentErrors(t *testing.T) {
	mock := &mockSink{errs: []error{status.Error(codes.InvalidArgument, "bad")}}
	c := NewClientWithService(mock, WithClock(timeutil.NewMockClock(time.Unix(0, 0))))

	require.Error(t, c.Publish(context.Background(), sampleEvent()))
	assert.Equal(t, 1, mock.calls)
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	mock := &mockSink{}
	c := NewClientWithService(mock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Publish(ctx, sampleEvent())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, mock.calls)
}

// #endregion publish-tests

// #region end-to-end
func startSink(t *testing.T, h Handler, opts ...grpc.ServerOption) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen failed: %v", err)
	}
	srv := grpc.NewServer(opts...)
	RegisterEventSinkServer(srv, NewServer(h))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

func TestClientServerRoundTrip(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewRelayCollector(reg)
	require.NoError(t, err)

	received := make(chan state.FallEvent, 1)
	addr := startSink(t, func(_ context.Context, ev state.FallEvent) error {
		received <- ev
		return nil
	}, grpc.UnaryInterceptor(metrics.UnaryServerInterceptor()))

	c, err := NewClient(addr, WithTimeout(2*time.Second))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Publish(context.Background(), sampleEvent()))
	select {
	case ev := <-received:
		assert.Equal(t, "evt-1", ev.ID)
		assert.Equal(t, profile.ModeBalanced, ev.Mode)
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues("Publish", "OK")))
}

func TestServerHandlerErrorIsInternal(t *testing.T) {
	addr := startSink(t, func(context.Context, state.FallEvent) error {
		return errors.New("disk full")
	})
	c, err := NewClient(addr, WithMaxRetries(0))
	require.NoError(t, err)
	defer c.Close()

	err = c.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(errors.Unwrap(err)))
}

func TestServerRejectsMalformedEvent(t *testing.T) {
	srv := NewServer(nil)
	_, err := srv.Publish(context.Background(), &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

// #endregion end-to-end
