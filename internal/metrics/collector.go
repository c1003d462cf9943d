// Package metrics keeps the datafeed counters and renders them in the
// Prometheus text exposition format without pulling in client_golang.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// Default holds the datafeed metrics below.
var Default = NewRegistry()

var (
	EventsReceived  = Default.Counter("bdk_datafeed_events_received_total", "Events read from the datafeed source", "")
	EventsDuplicate = Default.Counter("bdk_datafeed_events_duplicate_total", "Redelivered events dropped before dispatch", "")
	ListenerErrors  = Default.Counter("bdk_datafeed_listener_errors_total", "Listener callbacks that returned an error or panicked", "")
	ReadRetries     = Default.Counter("bdk_datafeed_read_retries_total", "Datafeed reads retried after a failure", "")
	ListenerTasks   = Default.Gauge("bdk_datafeed_listener_tasks", "Listener tasks currently running", "")
	DispatchLatency = Default.Histogram("bdk_datafeed_dispatch_seconds", "Listener callback duration in seconds", "",
		[]float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30})
)

// EventsDispatched returns the dispatch counter for one event type.
func EventsDispatched(eventType string) *Counter {
	return Default.Counter("bdk_datafeed_events_dispatched_total", "Events dispatched to listeners by type",
		"type="+strconv.Quote(eventType))
}

// Registry groups metrics into families. A family has one name, help text
// and type, and one series per label set.
type Registry struct {
	mu       sync.Mutex
	families map[string]*family
}

type family struct {
	help   string
	kind   string
	series map[string]series // keyed by rendered labels
}

type series interface {
	write(w io.Writer, name, labels string)
}

func NewRegistry() *Registry {
	return &Registry{families: make(map[string]*family)}
}

// lookup returns the series for name and labels, creating it on first use.
// Reusing a name with another type panics.
func (r *Registry) lookup(name, help, kind, labels string, create func() series) series {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.families[name]
	if !ok {
		f = &family{help: help, kind: kind, series: make(map[string]series)}
		r.families[name] = f
	}
	if f.kind != kind {
		panic(fmt.Sprintf("metrics: %s registered as %s, not %s", name, f.kind, kind))
	}
	s, ok := f.series[labels]
	if !ok {
		s = create()
		f.series[labels] = s
	}
	return s
}

// Counter returns the counter for name and labels (e.g. `type="MESSAGESENT"`).
func (r *Registry) Counter(name, help, labels string) *Counter {
	return r.lookup(name, help, "counter", labels, func() series { return &Counter{} }).(*Counter)
}

// Gauge returns the gauge for name and labels.
func (r *Registry) Gauge(name, help, labels string) *Gauge {
	return r.lookup(name, help, "gauge", labels, func() series { return &Gauge{} }).(*Gauge)
}

// Histogram returns the histogram for name and labels. bounds are the
// bucket upper limits; a +Inf bucket is always added.
func (r *Registry) Histogram(name, help, labels string, bounds []float64) *Histogram {
	return r.lookup(name, help, "histogram", labels, func() series {
		b := slices.Clone(bounds)
		sort.Float64s(b)
		return &Histogram{bounds: b, counts: make([]int64, len(b))}
	}).(*Histogram)
}

// Counter only goes up.
type Counter struct {
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

func (c *Counter) write(w io.Writer, name, labels string) {
	fmt.Fprintf(w, "%s%s %d\n", name, braces(labels), c.Value())
}

// Gauge goes up and down.
type Gauge struct {
	value atomic.Int64
}

func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

func (g *Gauge) write(w io.Writer, name, labels string) {
	fmt.Fprintf(w, "%s%s %d\n", name, braces(labels), g.Value())
}

// Histogram counts observations per bucket. Counts are stored per bucket
// and made cumulative when rendered.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	counts []int64
	count  int64
	sum    float64
}

// Observe records one value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	if i := sort.SearchFloat64s(h.bounds, v); i < len(h.bounds) {
		h.counts[i]++
	}
}

func (h *Histogram) write(w io.Writer, name, labels string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var cumulative int64
	for i, bound := range h.bounds {
		cumulative += h.counts[i]
		le := strconv.FormatFloat(bound, 'g', -1, 64)
		fmt.Fprintf(w, "%s_bucket%s %d\n", name, braces(join(labels, `le="`+le+`"`)), cumulative)
	}
	fmt.Fprintf(w, "%s_bucket%s %d\n", name, braces(join(labels, `le="+Inf"`)), h.count)
	fmt.Fprintf(w, "%s_sum%s %g\n", name, braces(labels), h.sum)
	fmt.Fprintf(w, "%s_count%s %d\n", name, braces(labels), h.count)
}

func braces(labels string) string {
	if labels == "" {
		return ""
	}
	return "{" + labels + "}"
}

func join(labels, extra string) string {
	if labels == "" {
		return extra
	}
	return labels + "," + extra
}

// WriteTo renders every family, sorted by name and then by labels.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	r.mu.Lock()
	names := make([]string, 0, len(r.families))
	for name := range r.families {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		f := r.families[name]
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s %s\n", name, f.help, name, f.kind)
		labels := make([]string, 0, len(f.series))
		for l := range f.series {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		for _, l := range labels {
			f.series[l].write(&sb, name, l)
		}
	}
	r.mu.Unlock()

	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

// Handler serves the registry in Prometheus text format.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WriteTo(w)
	}
}
