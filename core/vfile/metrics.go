package vfile

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/rishav-sagar/qpager/core/replacer"
)

// WithMeter wires the engines of every handle opened through the
// table to OpenTelemetry counters: hits, ghost hits, cold misses,
// evictions and page flushes.
func WithMeter(meter metric.Meter) Option {
	return func(t *Table) {
		counters := make(map[replacer.Event]metric.Int64Counter, 5)
		for ev, spec := range map[replacer.Event]struct{ name, desc string }{
			replacer.EventHit:      {"qpager.cache.hits", "Lookups served from the resident set."},
			replacer.EventGhostHit: {"qpager.cache.ghost_hits", "Lookups that promoted a recently evicted page."},
			replacer.EventMiss:     {"qpager.cache.misses", "Lookups that loaded a cold page."},
			replacer.EventEviction: {"qpager.cache.evictions", "Pages evicted from the resident set."},
			replacer.EventFlush:    {"qpager.cache.flushes", "Dirty pages written back."},
		} {
			c, err := meter.Int64Counter(spec.name, metric.WithDescription(spec.desc))
			if err != nil {
				otel.Handle(err)
				continue
			}
			counters[ev] = c
		}
		t.events = func(ev replacer.Event) {
			if c, ok := counters[ev]; ok {
				c.Add(context.Background(), 1)
			}
		}
	}
}
