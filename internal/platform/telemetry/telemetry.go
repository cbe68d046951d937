// Package telemetry collects triage and HTTP metrics and serves them in the
// Prometheus text exposition format.
package telemetry

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// defaultDurationBuckets are request latency boundaries in seconds.
var defaultDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// Label is one name="value" pair on a series.
type Label struct {
	Name  string
	Value string
}

func L(name, value string) Label { return Label{Name: name, Value: value} }

// seriesKey renders name{a="x",b="y"} with labels in the given order.
func seriesKey(name string, labels []Label) string {
	if len(labels) == 0 {
		return name
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%s=%q", l.Name, l.Value)
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}

// ---------------------------------------------------------------------------
// Histogram
// ---------------------------------------------------------------------------

// histogram stores non-cumulative bucket counts; cumulative counts are
// computed at export time.
type histogram struct {
	boundaries   []float64
	bucketCounts []int64
	count        int64
	sum          uint64 // math.Float64bits, updated with CAS
	mu           sync.Mutex
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{
		boundaries:   boundaries,
		bucketCounts: make([]int64, len(boundaries)),
	}
}

func (h *histogram) Observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	atomicAddFloat64(&h.sum, v)

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			return
		}
	}
}

func (h *histogram) Count() int64 { return atomic.LoadInt64(&h.count) }

func (h *histogram) Sum() float64 { return math.Float64frombits(atomic.LoadUint64(&h.sum)) }

func (h *histogram) cumulativeBuckets() []int64 {
	h.mu.Lock()
	raw := make([]int64, len(h.bucketCounts))
	copy(raw, h.bucketCounts)
	h.mu.Unlock()

	var running int64
	for i, c := range raw {
		running += c
		raw[i] = running
	}
	return raw
}

func atomicAddFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		next := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(addr, old, math.Float64bits(next)) {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

type gauge struct {
	help string
	fn   func() float64
}

// Provider owns every metric series of the process. The zero value is not
// usable; call NewProvider.
type Provider struct {
	mu         sync.RWMutex
	help       map[string]string // counter name -> help text
	counters   map[string]*int64 // series key -> value
	gauges     map[string]gauge  // gauge name -> sampler
	durations  map[string]*histogram
	active     int64
	namePrefix string
}

// NewProvider returns an empty registry. Every metric name is prefixed with
// namespace and an underscore when namespace is set.
func NewProvider(namespace string) *Provider {
	prefix := ""
	if namespace != "" {
		prefix = namespace + "_"
	}
	return &Provider{
		help:       make(map[string]string),
		counters:   make(map[string]*int64),
		gauges:     make(map[string]gauge),
		durations:  make(map[string]*histogram),
		namePrefix: prefix,
	}
}

// DescribeCounter registers help text shown in the exposition.
func (p *Provider) DescribeCounter(name, help string) {
	p.mu.Lock()
	p.help[p.namePrefix+name] = help
	p.mu.Unlock()
}

// Inc adds one to the counter series name{labels}.
func (p *Provider) Inc(name string, labels ...Label) {
	key := seriesKey(p.namePrefix+name, labels)

	p.mu.RLock()
	v, ok := p.counters[key]
	p.mu.RUnlock()
	if ok {
		atomic.AddInt64(v, 1)
		return
	}

	p.mu.Lock()
	v, ok = p.counters[key]
	if !ok {
		v = new(int64)
		p.counters[key] = v
	}
	p.mu.Unlock()
	atomic.AddInt64(v, 1)
}

// Counter reads the current value of a counter series.
func (p *Provider) Counter(name string, labels ...Label) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.counters[seriesKey(p.namePrefix+name, labels)]; ok {
		return atomic.LoadInt64(v)
	}
	return 0
}

// RegisterGauge adds a gauge sampled by fn at scrape time. name may carry
// labels, e.g. "resources_available" with L("kind", "rooms").
func (p *Provider) RegisterGauge(name, help string, fn func() float64, labels ...Label) {
	p.mu.Lock()
	p.gauges[seriesKey(p.namePrefix+name, labels)] = gauge{help: help, fn: fn}
	p.mu.Unlock()
}

// ---------------------------------------------------------------------------
// MetricsMiddleware
// ---------------------------------------------------------------------------

// MetricsMiddleware records request latency by method, route and status.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&p.active, 1)
			start := time.Now()

			err := next(c)
			atomic.AddInt64(&p.active, -1)

			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}
			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			key := seriesKey(p.namePrefix+"http_request_duration_seconds", []Label{
				L("method", c.Request().Method),
				L("route", route),
				L("status_code", strconv.Itoa(status)),
			})
			p.histogram(key).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (p *Provider) histogram(key string) *histogram {
	p.mu.RLock()
	h, ok := p.durations[key]
	p.mu.RUnlock()
	if ok {
		return h
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok = p.durations[key]; !ok {
		h = newHistogram(defaultDurationBuckets)
		p.durations[key] = h
	}
	return h
}

// ---------------------------------------------------------------------------
// PrometheusHandler
// ---------------------------------------------------------------------------

// PrometheusHandler serves every series in text exposition format.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.String(http.StatusOK, p.Expose())
	}
}

// Expose renders the exposition text. Series are sorted so scrapes diff
// cleanly.
func (p *Provider) Expose() string {
	var b strings.Builder

	p.mu.RLock()
	counters := make(map[string]int64, len(p.counters))
	for k, v := range p.counters {
		counters[k] = atomic.LoadInt64(v)
	}
	help := make(map[string]string, len(p.help))
	for k, v := range p.help {
		help[k] = v
	}
	gauges := make(map[string]gauge, len(p.gauges))
	for k, v := range p.gauges {
		gauges[k] = v
	}
	durations := make(map[string]*histogram, len(p.durations))
	for k, v := range p.durations {
		durations[k] = v
	}
	p.mu.RUnlock()

	// Counters, grouped by metric name.
	byName := make(map[string][]string)
	for key := range counters {
		byName[metricName(key)] = append(byName[metricName(key)], key)
	}
	for name := range help {
		if _, ok := byName[name]; !ok {
			byName[name] = nil
		}
	}
	for _, name := range sortedKeys(byName) {
		if h := help[name]; h != "" {
			fmt.Fprintf(&b, "# HELP %s %s\n", name, h)
		}
		fmt.Fprintf(&b, "# TYPE %s counter\n", name)
		series := byName[name]
		sort.Strings(series)
		for _, key := range series {
			fmt.Fprintf(&b, "%s %d\n", key, counters[key])
		}
		b.WriteByte('\n')
	}

	// Gauges.
	gaugeNames := make(map[string][]string)
	for key := range gauges {
		gaugeNames[metricName(key)] = append(gaugeNames[metricName(key)], key)
	}
	for _, name := range sortedKeys(gaugeNames) {
		series := gaugeNames[name]
		sort.Strings(series)
		fmt.Fprintf(&b, "# HELP %s %s\n", name, gauges[series[0]].help)
		fmt.Fprintf(&b, "# TYPE %s gauge\n", name)
		for _, key := range series {
			fmt.Fprintf(&b, "%s %g\n", key, gauges[key].fn())
		}
		b.WriteByte('\n')
	}

	active := p.namePrefix + "http_active_requests"
	fmt.Fprintf(&b, "# HELP %s Number of in-flight HTTP requests.\n", active)
	fmt.Fprintf(&b, "# TYPE %s gauge\n", active)
	fmt.Fprintf(&b, "%s %d\n\n", active, atomic.LoadInt64(&p.active))

	// Request latency.
	dname := p.namePrefix + "http_request_duration_seconds"
	fmt.Fprintf(&b, "# HELP %s Duration of HTTP requests in seconds.\n", dname)
	fmt.Fprintf(&b, "# TYPE %s histogram\n", dname)
	keys := make([]string, 0, len(durations))
	for k := range durations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		writeHistogram(&b, key, durations[key])
	}

	return b.String()
}

// writeHistogram emits _bucket, _sum and _count lines for one labelled
// series key of the form name{labels}.
func writeHistogram(b *strings.Builder, key string, h *histogram) {
	name, labels := metricName(key), ""
	if i := strings.IndexByte(key, '{'); i >= 0 {
		labels = key[i+1 : len(key)-1]
	}
	prefix, suffix := "", ""
	if labels != "" {
		prefix = labels + ","
		suffix = "{" + labels + "}"
	}

	cum := h.cumulativeBuckets()
	for i, boundary := range h.boundaries {
		fmt.Fprintf(b, "%s_bucket{%sle=\"%g\"} %d\n", name, prefix, boundary, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{%sle=\"+Inf\"} %d\n", name, prefix, h.Count())
	fmt.Fprintf(b, "%s_sum%s %g\n", name, suffix, h.Sum())
	fmt.Fprintf(b, "%s_count%s %d\n", name, suffix, h.Count())
}

func metricName(key string) string {
	if i := strings.IndexByte(key, '{'); i >= 0 {
		return key[:i]
	}
	return key
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
