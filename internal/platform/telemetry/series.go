package telemetry

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// histogram keeps non-cumulative bucket counts; export turns them into the
// cumulative form Prometheus expects.
type histogram struct {
	boundaries []float64

	mu      sync.Mutex
	buckets []int64
	count   int64
	sum     float64
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{
		boundaries: boundaries,
		buckets:    make([]int64, len(boundaries)),
	}
}

func (h *histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, b := range h.boundaries {
		if v <= b {
			h.buckets[i]++
			return
		}
	}
}

type histogramSnapshot struct {
	cumulative []int64
	count      int64
	sum        float64
}

func (h *histogram) snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	cum := make([]int64, len(h.buckets))
	var running int64
	for i, c := range h.buckets {
		running += c
		cum[i] = running
	}
	return histogramSnapshot{cumulative: cum, count: h.count, sum: h.sum}
}

// vec is a set of series of one metric keyed by their label values.
type vec[T any] struct {
	mu     sync.RWMutex
	items  map[string]*T
	create func() *T
}

func newVec[T any](create func() *T) *vec[T] {
	return &vec[T]{items: make(map[string]*T), create: create}
}

func newCounterVec() *vec[atomic.Int64] {
	return newVec(func() *atomic.Int64 { return new(atomic.Int64) })
}

func (v *vec[T]) with(labels ...string) *T {
	key := labelKey(labels)
	v.mu.RLock()
	item, ok := v.items[key]
	v.mu.RUnlock()
	if ok {
		return item
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if item, ok = v.items[key]; !ok {
		item = v.create()
		v.items[key] = item
	}
	return item
}

// each visits every series in label order.
func (v *vec[T]) each(fn func(labels []string, item *T)) {
	v.mu.RLock()
	keys := make([]string, 0, len(v.items))
	for k := range v.items {
		keys = append(keys, k)
	}
	items := make(map[string]*T, len(v.items))
	for k, item := range v.items {
		items[k] = item
	}
	v.mu.RUnlock()

	sort.Strings(keys)
	for _, k := range keys {
		fn(splitLabelKey(k), items[k])
	}
}

const labelSep = "\x00"

func labelKey(labels []string) string {
	return strings.Join(labels, labelSep)
}

func splitLabelKey(key string) []string {
	return strings.Split(key, labelSep)
}
