package train

import "sync"

// Point is one recorded value of a history series.
type Point struct {
	Step  int64
	Value float64
}

// History records named series of (step, value) points: losses,
// metrics, learning rates. Every learner owns one; callbacks write to
// it and monitors (SaveBest, EarlyStopper) read it. Safe for
// concurrent use, so a live view can poll it while training runs.
type History struct {
	mu     sync.Mutex
	series map[string][]Point
	names  []string
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{series: make(map[string][]Point)}
}

// Log appends a point to the named series, creating it on first use.
func (h *History) Log(name string, step int64, value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.series[name]; !ok {
		h.names = append(h.names, name)
	}
	h.series[name] = append(h.series[name], Point{Step: step, Value: value})
}

// Series returns a copy of the named series, nil when absent.
func (h *History) Series(name string) []Point {
	h.mu.Lock()
	defer h.mu.Unlock()
	pts := h.series[name]
	if pts == nil {
		return nil
	}
	out := make([]Point, len(pts))
	copy(out, pts)
	return out
}

// Last returns the most recent point of the named series.
func (h *History) Last(name string) (Point, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pts := h.series[name]
	if len(pts) == 0 {
		return Point{}, false
	}
	return pts[len(pts)-1], true
}

// Names lists the series in the order they were first logged.
func (h *History) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.names))
	copy(out, h.names)
	return out
}

// Len returns the number of points in the named series.
func (h *History) Len(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.series[name])
}
