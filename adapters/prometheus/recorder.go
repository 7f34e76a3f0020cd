package prometheus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-login/core"
	glog "github.com/goliatone/go-logger/glog"
	prom "github.com/prometheus/client_golang/prometheus"
)

// Options configures the prometheus backed metrics recorder.
type Options struct {
	Registerer prom.Registerer
	Namespace  string
	Buckets    []float64
	Logger     glog.Logger
}

// Recorder implements core.MetricsRecorder. Collectors are created on first
// use, one per metric name and label set. Dots in metric names become
// underscores.
type Recorder struct {
	registerer prom.Registerer
	namespace  string
	buckets    []float64
	logger     glog.Logger

	mu         sync.Mutex
	counters   map[string]*prom.CounterVec
	histograms map[string]*prom.HistogramVec
}

func NewRecorder(opts Options) *Recorder {
	reg := opts.Registerer
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prom.ExponentialBuckets(1, 2, 14)
	}
	logger := opts.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	return &Recorder{
		registerer: reg,
		namespace:  sanitizeName(opts.Namespace),
		buckets:    buckets,
		logger:     logger,
		counters:   map[string]*prom.CounterVec{},
		histograms: map[string]*prom.HistogramVec{},
	}
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	keys, values := splitTags(tags)
	vec, err := r.counter(name, keys)
	if err != nil {
		r.logger.Warn("prometheus counter unavailable", "metric", name, "error", err.Error())
		return
	}
	vec.WithLabelValues(values...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	keys, values := splitTags(tags)
	vec, err := r.histogram(name, keys)
	if err != nil {
		r.logger.Warn("prometheus histogram unavailable", "metric", name, "error", err.Error())
		return
	}
	vec.WithLabelValues(values...).Observe(value)
}

// Counter returns the collector registered for name and label keys, if any.
func (r *Recorder) Counter(name string, labelKeys ...string) (*prom.CounterVec, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vec, ok := r.counters[collectorKey(name, sortedCopy(labelKeys))]
	return vec, ok
}

func (r *Recorder) Histogram(name string, labelKeys ...string) (*prom.HistogramVec, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vec, ok := r.histograms[collectorKey(name, sortedCopy(labelKeys))]
	return vec, ok
}

func (r *Recorder) counter(name string, keys []string) (*prom.CounterVec, error) {
	key := collectorKey(name, keys)
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.counters[key]; ok {
		return vec, nil
	}
	vec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: r.namespace,
		Name:      sanitizeName(name),
		Help:      "Login orchestrator counter " + name + ".",
	}, keys)
	if err := r.registerer.Register(vec); err != nil {
		already, ok := err.(prom.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register counter %s: %w", name, err)
		}
		existing, ok := already.ExistingCollector.(*prom.CounterVec)
		if !ok {
			return nil, fmt.Errorf("existing counter %s has unexpected type %T", name, already.ExistingCollector)
		}
		vec = existing
	}
	r.counters[key] = vec
	return vec, nil
}

func (r *Recorder) histogram(name string, keys []string) (*prom.HistogramVec, error) {
	key := collectorKey(name, keys)
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.histograms[key]; ok {
		return vec, nil
	}
	vec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: r.namespace,
		Name:      sanitizeName(name),
		Help:      "Login orchestrator histogram " + name + ".",
		Buckets:   r.buckets,
	}, keys)
	if err := r.registerer.Register(vec); err != nil {
		already, ok := err.(prom.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register histogram %s: %w", name, err)
		}
		existing, ok := already.ExistingCollector.(*prom.HistogramVec)
		if !ok {
			return nil, fmt.Errorf("existing histogram %s has unexpected type %T", name, already.ExistingCollector)
		}
		vec = existing
	}
	r.histograms[key] = vec
	return vec, nil
}

func splitTags(tags map[string]string) ([]string, []string) {
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	values := make([]string, 0, len(keys))
	labels := make([]string, 0, len(keys))
	for _, key := range keys {
		labels = append(labels, sanitizeName(key))
		values = append(values, tags[key])
	}
	return labels, values
}

func collectorKey(name string, keys []string) string {
	return sanitizeName(name) + "|" + strings.Join(keys, ",")
}

func sortedCopy(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, sanitizeName(key))
	}
	sort.Strings(out)
	return out
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
