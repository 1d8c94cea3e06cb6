package confidence

import (
	"time"

	"gonum.org/v1/gonum/floats"
)

const (
	// DefaultSpan is how long an instantaneous value stays in the window.
	DefaultSpan = 2 * time.Second

	// Capacity bounds the window; at rates above Capacity/DefaultSpan the
	// oldest entries are evicted before they age out.
	Capacity = 200

	maxWeight  = 0.7
	meanWeight = 0.3
)

// #region window
// entry is one instantaneous confidence value stamped in Unix nanoseconds,
// which keeps the ring at 16 bytes per slot.
type entry struct {
	at    int64
	value float64
}

// Window is a fixed-capacity ring of recent instantaneous values. The zero
// value is an empty window using DefaultSpan. It holds no pointers, so
// copying a Window copies its contents.
type Window struct {
	buf  [Capacity]entry
	head int
	n    int
	span time.Duration
}

// NewWindow returns an empty window keeping values for span.
func NewWindow(span time.Duration) Window {
	return Window{span: span}
}

// Span returns the retention interval.
func (w *Window) Span() time.Duration {
	if w.span <= 0 {
		return DefaultSpan
	}
	return w.span
}

// Add evicts entries older than the span relative to at, then appends v.
func (w *Window) Add(at time.Time, v float64) {
	w.expire(at)
	if w.n == Capacity {
		w.head = (w.head + 1) % Capacity
		w.n--
	}
	w.buf[(w.head+w.n)%Capacity] = entry{at: at.UnixNano(), value: v}
	w.n++
}

// Clear empties the window and keeps the span.
func (w *Window) Clear() {
	*w = Window{span: w.span}
}

// Len returns the number of retained entries.
func (w *Window) Len() int { return w.n }

// Value blends the window as 0.7·max + 0.3·mean, or 0 when empty.
func (w *Window) Value() float64 {
	if w.n == 0 {
		return 0
	}
	var peak, sum float64
	for i := 0; i < w.n; i++ {
		v := w.buf[(w.head+i)%Capacity].value
		if i == 0 || v > peak {
			peak = v
		}
		sum += v
	}
	return maxWeight*peak + meanWeight*(sum/float64(w.n))
}

// Snapshot copies the retained values oldest first.
func (w *Window) Snapshot() []float64 {
	out := make([]float64, w.n)
	for i := range out {
		out[i] = w.buf[(w.head+i)%Capacity].value
	}
	return out
}

// Peak returns the largest retained value, or 0 when empty.
func (w *Window) Peak() float64 {
	if w.n == 0 {
		return 0
	}
	return floats.Max(w.Snapshot())
}

func (w *Window) expire(now time.Time) {
	cutoff := now.UnixNano() - int64(w.Span())
	for w.n > 0 && w.buf[w.head].at < cutoff {
		w.buf[w.head] = entry{}
		w.head = (w.head + 1) % Capacity
		w.n--
	}
}

// #endregion window
