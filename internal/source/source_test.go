package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/motion"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/timeutil"
)

var t0 = time.Date(2025, 12, 16, 8, 0, 0, 0, time.UTC)

// mockPort is an in-memory serial port.
type mockPort struct {
	io.Reader
	closed bool
}

func (m *mockPort) Close() error {
	m.closed = true
	return nil
}

func drain(ch chan Reading) []Reading {
	var out []Reading
	for r := range ch {
		out = append(out, r)
	}
	return out
}

func TestReadJSONLines(t *testing.T) {
	input := strings.Join([]string{
		`{"timestamp":"2025-12-16T08:00:00Z","accel":{"x":0,"y":0,"z":1},"gyro":{"x":0,"y":0,"z":0}}`,
		``,
		`not json`,
		`{"accel":{"z":1}}`,
		`{"timestamp":"2025-12-16T08:00:00.1Z","accel":{"z":0.1},"gyro":{},"attitude":{"pitch":0.5,"roll":0,"yaw":0},"location":{"latitude":25.03,"longitude":121.56}}`,
	}, "\n")

	out := make(chan Reading, 8)
	stats, err := ReadJSONLines(context.Background(), strings.NewReader(input), out)
	close(out)
	require.NoError(t, err)

	assert.Equal(t, Stats{Lines: 4, Skipped: 2}, stats)
	got := drain(out)
	require.Len(t, got, 2)
	assert.Equal(t, t0, got[0].Sample.Timestamp)
	assert.Equal(t, 1.0, got[0].Sample.Accel.Z)
	assert.Nil(t, got[0].Location)
	require.NotNil(t, got[1].Sample.Attitude)
	assert.Equal(t, 0.5, got[1].Sample.Attitude.Pitch)
	require.NotNil(t, got[1].Location)
	assert.Equal(t, 121.56, got[1].Location.Longitude)
}

func TestReadJSONLinesCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := make(chan Reading) // unbuffered, never read
	_, err := ReadJSONLines(ctx, strings.NewReader(`{"timestamp":"2025-12-16T08:00:00Z","accel":{},"gyro":{}}`), out)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteJSONLineRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := Reading{
		Sample:   motion.Sample{Timestamp: t0, Accel: motion.Vec3{Z: 2.5}, Attitude: &motion.Attitude{Roll: 1}},
		Location: &motion.Location{Latitude: 1, Longitude: 2},
	}
	require.NoError(t, WriteJSONLine(&buf, in))

	out := make(chan Reading, 1)
	_, err := ReadJSONLines(context.Background(), &buf, out)
	require.NoError(t, err)
	got := <-out
	assert.Equal(t, in.Sample.Accel, got.Sample.Accel)
	assert.Equal(t, *in.Location, *got.Location)
	assert.True(t, got.Sample.Timestamp.Equal(t0))
}

func TestParseCSVLine(t *testing.T) {
	cases := []struct {
		name     string
		line     string
		wantErr  bool
		attitude bool
	}{
		{"six fields", "0.01,0.02,0.98,0.1,0.2,0.3", false, false},
		{"nine fields", "0,0,1,0,0,0,0.1,0.2,0.3", false, true},
		{"spaces", " 0 , 0 , 1 , 0 , 0 , 0 ", false, false},
		{"too few", "0,0,1", true, false},
		{"not numeric", "a,b,c,d,e,f", true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			smp, err := ParseCSVLine(tc.line, t0)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrMalformedLine)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, t0, smp.Timestamp)
			assert.Equal(t, tc.attitude, smp.Attitude != nil)
		})
	}
}

func TestSerialSourceMonitor(t *testing.T) {
	port := &mockPort{Reader: strings.NewReader("0,0,1,0,0,0\ngarbage\n\n0,0,3.2,1.5,0,0,0.1,0.2,0.3\n")}
	clock := timeutil.NewMockClock(t0)
	loc := &motion.Location{Latitude: 25.03, Longitude: 121.56}
	src := NewSerialSource(port, clock, nil).WithLocation(loc)

	out := make(chan Reading, 8)
	err := src.Monitor(context.Background(), out)
	close(out)
	require.NoError(t, err)

	got := drain(out)
	require.Len(t, got, 2)
	assert.Equal(t, 3.2, got[1].Sample.Accel.Z)
	assert.Equal(t, loc, got[1].Location)
	assert.Equal(t, Stats{Lines: 3, Skipped: 1}, src.Stats())
	assert.True(t, port.closed)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("device unplugged") }

func TestSerialSourceReadError(t *testing.T) {
	src := NewSerialSource(&mockPort{Reader: errReader{}}, nil, nil)
	out := make(chan Reading, 1)
	err := src.Monitor(context.Background(), out)
	assert.ErrorContains(t, err, "device unplugged")
}
