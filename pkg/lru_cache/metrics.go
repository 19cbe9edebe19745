package lru_cache

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	evictions     prometheus.Counter
	expirations   prometheus.Counter
	refreshes     prometheus.Counter
	backendErrors prometheus.Counter
	size          prometheus.Gauge
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
}

// newMetrics registers the collectors to reg if reg is not nil.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		hits:          newCounter("hits_total", "The total number of gets that found the key"),
		misses:        newCounter("misses_total", "The total number of gets that missed"),
		evictions:     newCounter("evictions_total", "The total number of capacity evictions"),
		expirations:   newCounter("expirations_total", "The total number of keys removed by ttl"),
		refreshes:     newCounter("refresh_total", "The total number of backend refreshes"),
		backendErrors: newCounter("backend_errors_total", "The total number of failed backend calls"),
		size:          prometheus.NewGauge(prometheus.GaugeOpts{Name: "size", Help: "Current number of local entries"}),
	}
	if reg == nil {
		return m, nil
	}
	var registered []prometheus.Collector
	for _, col := range m.collectors() {
		if err := reg.Register(col); err != nil {
			for _, r := range registered {
				reg.Unregister(r)
			}
			return nil, err
		}
		registered = append(registered, col)
	}
	return m, nil
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.hits, m.misses, m.evictions, m.expirations, m.refreshes, m.backendErrors, m.size,
	}
}

func (m *metrics) unregister(reg prometheus.Registerer) {
	for _, col := range m.collectors() {
		reg.Unregister(col)
	}
}

// IsAlreadyRegistered reports whether err comes from registering two
// caches to the same registerer without distinct prefixes.
func IsAlreadyRegistered(err error) bool {
	var are prometheus.AlreadyRegisteredError
	return errors.As(err, &are)
}
