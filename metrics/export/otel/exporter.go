package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/finauth"
	"github.com/MrEthical07/finauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Instrument names registered on the meter.
const (
	EventsInstrument         = "finauth.auth.events"
	DurationBucketInstrument = "finauth.auth.duration.bucket"
	DurationCountInstrument  = "finauth.auth.duration.count"
)

// Attribute keys carried by the instruments.
const (
	OperationKey = attribute.Key("finauth.operation")
	OutcomeKey   = attribute.Key("finauth.outcome")
	// LeKey holds a bucket upper bound in seconds, "+Inf" for the last one.
	LeKey = attribute.Key("le")
)

type metricsSource interface {
	MetricsSnapshot() finauth.MetricsSnapshot
}

type counterSeries struct {
	id    finauth.MetricID
	attrs metric.ObserveOption
}

type latencySeries struct {
	id      finauth.MetricID
	buckets [8]metric.ObserveOption
	total   metric.ObserveOption
}

// OTelExporter publishes engine snapshots through three observable
// instruments: one event counter split by operation and outcome, and the
// cumulative bucket and sample counts of each latency histogram.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration

	events  metric.Int64ObservableCounter
	buckets metric.Int64ObservableCounter
	count   metric.Int64ObservableCounter

	counters  []counterSeries
	latencies []latencySeries
}

// NewOTelExporter registers instruments on meter that read from engine.
func NewOTelExporter(meter metric.Meter, engine *finauth.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource registers instruments on meter that read from
// any snapshot source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{
		source:    source,
		counters:  make([]counterSeries, 0, len(internaldefs.CounterDefs)),
		latencies: make([]latencySeries, 0, len(internaldefs.HistogramDefs)),
	}

	var err error
	e.events, err = meter.Int64ObservableCounter(EventsInstrument,
		metric.WithDescription("Auth engine events by operation and outcome."),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", EventsInstrument, err)
	}
	e.buckets, err = meter.Int64ObservableCounter(DurationBucketInstrument,
		metric.WithDescription("Operations that completed within le seconds."),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", DurationBucketInstrument, err)
	}
	e.count, err = meter.Int64ObservableCounter(DurationCountInstrument,
		metric.WithDescription("Operations recorded in the latency histogram."),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", DurationCountInstrument, err)
	}

	for _, def := range internaldefs.CounterDefs {
		e.counters = append(e.counters, counterSeries{
			id: def.ID,
			attrs: metric.WithAttributeSet(attribute.NewSet(
				OperationKey.String(def.Operation),
				OutcomeKey.String(def.Outcome),
			)),
		})
	}
	for _, def := range internaldefs.HistogramDefs {
		op := OperationKey.String(def.Operation)
		s := latencySeries{id: def.ID, total: metric.WithAttributeSet(attribute.NewSet(op))}
		for i := range s.buckets {
			s.buckets[i] = metric.WithAttributeSet(attribute.NewSet(op, LeKey.String(bucketBound(i))))
		}
		e.latencies = append(e.latencies, s)
	}

	e.registration, err = meter.RegisterCallback(e.observe, e.events, e.buckets, e.count)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

// observe reports nothing while engine metrics are disabled.
func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 {
		return nil
	}

	for _, c := range e.counters {
		o.ObserveInt64(e.events, int64(snapshot.Counters[c.id]), c.attrs)
	}
	for _, l := range e.latencies {
		raw, ok := snapshot.Histograms[l.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, n := range cumulative {
			o.ObserveInt64(e.buckets, int64(n), l.buckets[i])
		}
		o.ObserveInt64(e.count, int64(cumulative[len(cumulative)-1]), l.total)
	}
	return nil
}

// bucketBound formats bucket i's upper bound in seconds.
func bucketBound(i int) string {
	if i >= len(internaldefs.HistogramUpperBounds) {
		return "+Inf"
	}
	return strconv.FormatFloat(internaldefs.HistogramUpperBounds[i], 'g', -1, 64)
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
