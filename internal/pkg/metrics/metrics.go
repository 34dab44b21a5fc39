//go:build dev

// Package metrics keeps samples of the server's hot paths in dev builds:
// Splunk API latency, search poll counts and job durations, and the process
// statistics read from procfs. Every sample is labeled, so one gauge can tell
// apart endpoints or terminal job states. Release builds compile the gauges
// to no-ops.
package metrics

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"sync"
	"time"
)

var (
	startTime = time.Now()

	registryLocker sync.Mutex
	registry       = map[string]*Gauge{}
)

// Gauge collects labeled samples under one metric name
type Gauge struct {
	name string

	samplesLocker sync.Mutex
	samples       []sample
}

type sample struct {
	at    time.Duration
	label string
	value float64
}

// NewGauge returns the gauge registered under name, creating it on first use
func NewGauge(name string) *Gauge {
	registryLocker.Lock()
	defer registryLocker.Unlock()

	if g, ok := registry[name]; ok {
		return g
	}

	g := &Gauge{name: name}
	registry[name] = g

	return g
}

// Set records value under label, timestamped relative to process start
func (g *Gauge) Set(value float64, label string) {
	s := sample{
		at:    time.Since(startTime),
		label: label,
		value: value,
	}

	g.samplesLocker.Lock()
	defer g.samplesLocker.Unlock()

	g.samples = append(g.samples, s)
}

// Stopwatch runs f and records its wall time in nanoseconds under label
func (g *Gauge) Stopwatch(f func(), label string) {
	start := time.Now()
	f()
	g.Set(float64(time.Since(start).Nanoseconds()), label)
}

func (g *Gauge) snapshot() []sample {
	g.samplesLocker.Lock()
	defer g.samplesLocker.Unlock()

	return slices.Clone(g.samples)
}

// WriteMetrics writes every sample as CSV (name, label, value, nanoseconds since start),
// grouped by gauge name in lexical order and by time within a gauge.
func WriteMetrics(w io.Writer) error {
	registryLocker.Lock()
	gauges := make([]*Gauge, 0, len(registry))
	for _, g := range registry {
		gauges = append(gauges, g)
	}
	registryLocker.Unlock()

	slices.SortFunc(gauges, func(a, b *Gauge) int {
		return cmp.Compare(a.name, b.name)
	})

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"name", "label", "value", "time"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, g := range gauges {
		for _, s := range g.snapshot() {
			row := []string{
				g.name,
				s.label,
				strconv.FormatFloat(s.value, 'f', -1, 64),
				strconv.FormatInt(s.at.Nanoseconds(), 10),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write %s sample: %w", g.name, err)
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush metrics: %w", err)
	}

	return nil
}
