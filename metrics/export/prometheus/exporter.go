package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() goSession.MetricsSnapshot
	AuditDropped() uint64
}

// coalescingSource is implemented by *goSession.Manager. Sources without it
// do not export the coalesced-snapshot counter.
type coalescingSource interface {
	SnapshotsCoalesced() uint64
}

// PrometheusExporter renders session metrics in Prometheus text exposition format.
type PrometheusExporter struct {
	source metricsSource
}

// NewPrometheusExporter creates a Prometheus exporter that reads from m.
func NewPrometheusExporter(m *goSession.Manager) *PrometheusExporter {
	return &PrometheusExporter{source: m}
}

// NewPrometheusExporterFromSource creates a Prometheus exporter over any
// value exposing a metrics snapshot.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current metrics in Prometheus text exposition format.
// It returns "" when metrics are disabled.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snap := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	for _, def := range internaldefs.CounterDefs {
		header(&b, def.Name, def.Help, "counter")
		sample(&b, def.Name, "", snap.Counters[def.ID])
	}
	for _, fam := range internaldefs.CounterFamilies {
		header(&b, fam.Name, fam.Help, "counter")
		for _, m := range fam.Members {
			sample(&b, fam.Name, fam.Label+`="`+m.Value+`"`, snap.Counters[m.ID])
		}
	}
	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[def.ID]))
		header(&b, def.Name, def.Help, "histogram")
		for i, le := range internaldefs.HistogramBounds {
			sample(&b, def.Name+"_bucket", `le="`+le+`"`, cumulative[i])
		}
		sample(&b, def.Name+"_count", "", cumulative[len(cumulative)-1])
		// Only bucket counts are recorded.
		sample(&b, def.Name+"_sum", "", 0)
	}

	header(&b, internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter")
	sample(&b, internaldefs.AuditDroppedName, "", dropped)
	if c, ok := p.source.(coalescingSource); ok {
		header(&b, internaldefs.SnapshotsCoalescedName, internaldefs.SnapshotsCoalescedHelp, "counter")
		sample(&b, internaldefs.SnapshotsCoalescedName, "", c.SnapshotsCoalesced())
	}

	return b.String()
}

func header(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP " + name + " " + escapeHelp(help) + "\n")
	b.WriteString("# TYPE " + name + " " + kind + "\n")
}

func sample(b *strings.Builder, name, labels string, value uint64) {
	b.WriteString(name)
	if labels != "" {
		b.WriteString("{" + labels + "}")
	}
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func escapeHelp(help string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(help)
}
