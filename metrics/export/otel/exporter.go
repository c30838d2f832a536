package otel

import (
	"context"
	"errors"
	"fmt"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Constructor errors.
var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goSession.MetricsSnapshot
	AuditDropped() uint64
}

type coalescingSource interface {
	SnapshotsCoalesced() uint64
}

// series is one observed value: a metric ID plus the attributes it is
// reported under.
type series struct {
	id   goSession.MetricID
	opts []metric.ObserveOption
}

type observedCounter struct {
	instrument metric.Int64ObservableCounter
	series     []series
}

type observedHistogram struct {
	id      goSession.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// OTelExporter publishes session metrics through observable OTel instruments.
// Labelled families become one counter with an attribute per member, and
// histogram buckets one gauge with an "le" attribute.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	histograms   []observedHistogram
	bucketOpts   [8]metric.ObserveOption
	auditDropped metric.Int64ObservableCounter
	coalesced    metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments on meter that read from m on every
// collection.
func NewOTelExporter(meter metric.Meter, m *goSession.Manager) (*OTelExporter, error) {
	if m == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, m)
}

// NewOTelExporterFromSource is NewOTelExporter over any metrics source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var observables []metric.Observable

	counter := func(name, help string) (metric.Int64ObservableCounter, error) {
		ins, err := meter.Int64ObservableCounter(name, metric.WithDescription(help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", name, err)
		}
		observables = append(observables, ins)
		return ins, nil
	}
	gauge := func(name, help string) (metric.Int64ObservableGauge, error) {
		ins, err := meter.Int64ObservableGauge(name, metric.WithDescription(help))
		if err != nil {
			return nil, fmt.Errorf("create observable gauge %s: %w", name, err)
		}
		observables = append(observables, ins)
		return ins, nil
	}

	for _, def := range internaldefs.CounterDefs {
		ins, err := counter(def.Name, def.Help)
		if err != nil {
			return nil, err
		}
		e.counters = append(e.counters, observedCounter{instrument: ins, series: []series{{id: def.ID}}})
	}
	for _, fam := range internaldefs.CounterFamilies {
		ins, err := counter(fam.Name, fam.Help)
		if err != nil {
			return nil, err
		}
		oc := observedCounter{instrument: ins}
		for _, m := range fam.Members {
			attrs := metric.WithAttributes(attribute.String(fam.Label, m.Value))
			oc.series = append(oc.series, series{id: m.ID, opts: []metric.ObserveOption{attrs}})
		}
		e.counters = append(e.counters, oc)
	}

	for i, le := range internaldefs.HistogramBounds {
		e.bucketOpts[i] = metric.WithAttributes(attribute.String("le", le))
	}
	for _, def := range internaldefs.HistogramDefs {
		buckets, err := gauge(def.Name+"_bucket", "Cumulative bucket counts. "+def.Help)
		if err != nil {
			return nil, err
		}
		count, err := gauge(def.Name+"_count", "Sample count. "+def.Help)
		if err != nil {
			return nil, err
		}
		e.histograms = append(e.histograms, observedHistogram{id: def.ID, buckets: buckets, count: count})
	}

	var err error
	if e.auditDropped, err = counter(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp); err != nil {
		return nil, err
	}
	if _, ok := source.(coalescingSource); ok {
		if e.coalesced, err = counter(internaldefs.SnapshotsCoalescedName, internaldefs.SnapshotsCoalescedHelp); err != nil {
			return nil, err
		}
	}

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		for _, s := range c.series {
			o.ObserveInt64(c.instrument, int64(snap.Counters[s.id]), s.opts...)
		}
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[h.id]))
		for i, n := range cumulative {
			o.ObserveInt64(h.buckets, int64(n), e.bucketOpts[i])
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	if e.coalesced != nil {
		o.ObserveInt64(e.coalesced, int64(e.source.(coalescingSource).SnapshotsCoalesced()))
	}
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
