package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/logging"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/motion"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/timeutil"
)

// ErrMalformedLine is returned by ParseCSVLine for lines that are not a sample.
var ErrMalformedLine = errors.New("malformed sample line")

// DefaultBaudRate matches the reference IMU firmware.
const DefaultBaudRate = 115200

// #region serial-source
// SerialSource reads CSV IMU lines from a serial port:
//
//	ax,ay,az,gx,gy,gz[,pitch,roll,yaw]
//
// Lines carry no timestamp; each is stamped with the clock on receipt.
type SerialSource struct {
	port     io.ReadCloser
	clock    timeutil.Clock
	log      logging.Logger
	location *motion.Location

	mu    sync.Mutex
	stats Stats
}

// OpenSerial opens portName at baud 8N1.
func OpenSerial(portName string, baud int, clock timeutil.Clock, log logging.Logger) (*SerialSource, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", portName, err)
	}
	return NewSerialSource(port, clock, log), nil
}

// NewSerialSource wraps an already open port. Tests pass an in-memory reader.
func NewSerialSource(port io.ReadCloser, clock timeutil.Clock, log logging.Logger) *SerialSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if log == nil {
		log = logging.Noop()
	}
	return &SerialSource{port: port, clock: clock, log: log}
}

// WithLocation attaches a fixed location to every reading.
func (s *SerialSource) WithLocation(loc *motion.Location) *SerialSource {
	s.location = loc
	return s
}

// Stats returns a snapshot of the line counters.
func (s *SerialSource) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close closes the port.
func (s *SerialSource) Close() error {
	return s.port.Close()
}

// Monitor reads lines until the port closes or ctx is done, sending each
// parsed sample on out. The port is closed on return.
func (s *SerialSource) Monitor(ctx context.Context, out chan<- Reading) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.port.Close() // unblocks the scanner
		case <-stop:
		}
	}()
	defer s.port.Close()

	scan := bufio.NewScanner(s.port)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" {
			continue
		}
		smp, err := ParseCSVLine(line, s.clock.Now())
		s.mu.Lock()
		s.stats.Lines++
		if err != nil {
			s.stats.Skipped++
		}
		s.mu.Unlock()
		if err != nil {
			s.log.Debug(ctx, "skipping serial line", logging.String("line", line), logging.Err(err))
			continue
		}

		select {
		case out <- Reading{Sample: smp, Location: s.location}:
		case <-ctx.Done():
			return nil
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := scan.Err(); err != nil {
		return fmt.Errorf("read serial: %w", err)
	}
	return nil
}

// #endregion serial-source

// #region parse
// ParseCSVLine parses six or nine comma-separated floats into a sample at at.
func ParseCSVLine(line string, at time.Time) (motion.Sample, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 6 && len(parts) != 9 {
		return motion.Sample{}, fmt.Errorf("%w: %d fields", ErrMalformedLine, len(parts))
	}
	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return motion.Sample{}, fmt.Errorf("%w: field %d: %v", ErrMalformedLine, i, err)
		}
		vals[i] = v
	}

	smp := motion.Sample{
		Timestamp: at,
		Accel:     motion.Vec3{X: vals[0], Y: vals[1], Z: vals[2]},
		Gyro:      motion.Vec3{X: vals[3], Y: vals[4], Z: vals[5]},
	}
	if len(vals) == 9 {
		smp.Attitude = &motion.Attitude{Pitch: vals[6], Roll: vals[7], Yaw: vals[8]}
	}
	return smp, nil
}

// #endregion parse
