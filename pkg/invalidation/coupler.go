// Package invalidation announces that cached rendering data for a set of
// tags is stale after a successful mutation.
//
// Invalidation is best effort. A failing sink is logged and counted, never
// reported to the caller as an error, and the mutation that triggered it is
// never rolled back.
package invalidation

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var invalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gateway_invalidations_total",
	Help: "Tag invalidations by sink and result",
}, []string{"sink", "result"})

// DefaultSinkTimeout bounds a single sink call.
const DefaultSinkTimeout = 2 * time.Second

// Sink receives invalidated tags.
type Sink interface {
	Invalidate(ctx context.Context, tags []string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, tags []string) error

// Invalidate calls f.
func (f SinkFunc) Invalidate(ctx context.Context, tags []string) error {
	return f(ctx, tags)
}

// Report describes one Invalidate call. It is informational only.
type Report struct {
	Tags []string

	// Failed maps sink names to their error.
	Failed map[string]error
}

// OK reports whether every sink accepted the tags.
func (r Report) OK() bool {
	return len(r.Failed) == 0
}

type namedSink struct {
	name string
	sink Sink
}

// Coupler fans invalidations out to its sinks.
type Coupler struct {
	sinks   []namedSink
	timeout time.Duration
	logger  zerolog.Logger
}

// Option configures a Coupler.
type Option func(*Coupler)

// WithSink registers a sink under name.
func WithSink(name string, sink Sink) Option {
	return func(c *Coupler) {
		c.sinks = append(c.sinks, namedSink{name: name, sink: sink})
	}
}

// WithTimeout sets the per-sink timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coupler) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the coupler logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coupler) {
		c.logger = logger
	}
}

// NewCoupler creates a coupler. Without sinks every call is a no-op.
func NewCoupler(opts ...Option) *Coupler {
	c := &Coupler{
		timeout: DefaultSinkTimeout,
		logger:  log.With().Str("component", "invalidation").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invalidate announces tags to every sink. It never fails; sink errors are
// collected in the Report.
func (c *Coupler) Invalidate(ctx context.Context, tags ...string) Report {
	report := Report{Tags: normalize(tags)}
	if c == nil || len(report.Tags) == 0 {
		return report
	}

	for _, s := range c.sinks {
		if err := c.invalidateOne(ctx, s, report.Tags); err != nil {
			if report.Failed == nil {
				report.Failed = make(map[string]error)
			}
			report.Failed[s.name] = err
			invalidationsTotal.WithLabelValues(s.name, "error").Inc()

			c.logger.Warn().
				Err(err).
				Str("sink", s.name).
				Strs("tags", report.Tags).
				Msg("Cache invalidation failed, data may be stale until TTL")
			continue
		}

		invalidationsTotal.WithLabelValues(s.name, "success").Inc()
		c.logger.Debug().
			Str("sink", s.name).
			Strs("tags", report.Tags).
			Msg("Cache tags invalidated")
	}

	return report
}

// invalidateOne calls one sink under its own deadline. A panicking sink is
// reported as an error.
func (c *Coupler) invalidateOne(ctx context.Context, s namedSink, tags []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()

	// Detached from the caller's cancellation: the mutation already happened.
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	return s.sink.Invalidate(sinkCtx, tags)
}
