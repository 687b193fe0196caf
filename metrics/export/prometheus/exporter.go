package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/internal/audit"
	"github.com/MrEthical07/phoneauth/metrics/export/internaldefs"
)

// Source is what the exporter reads on every scrape. *phoneauth.Engine
// implements it.
type Source interface {
	MetricsSnapshot() phoneauth.MetricsSnapshot
	AuditDroppedByType() map[string]uint64
}

// PrometheusExporter renders engine metrics in the text exposition format.
type PrometheusExporter struct {
	source Source
}

// NewPrometheusExporter reads from engine.
func NewPrometheusExporter(engine *phoneauth.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource reads from any Source.
func NewPrometheusExporterFromSource(source Source) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves Render over HTTP.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the exposition text. It is empty while metrics are
// disabled and nothing has been dropped.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDroppedByType()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && len(dropped) == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(8192)

	for _, fam := range internaldefs.CounterFamilies {
		writeHeader(&b, fam.Name, fam.Help, "counter")
		for _, s := range fam.Series {
			writeSample(&b, fam.Name, labels(fam.Label, s.Value), snapshot.Counters[s.ID])
		}
	}

	for _, fam := range internaldefs.HistogramFamilies {
		writeHeader(&b, fam.Name, fam.Help, "histogram")
		for _, s := range fam.Series {
			cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[s.ID]))
			writeHistogram(&b, fam.Name, fam.Label, s.Value, cumulative)
		}
	}

	writeHeader(&b, internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter")
	for _, eventType := range audit.DroppedTypes(dropped) {
		writeSample(&b, internaldefs.AuditDroppedName, labels("event_type", eventType), dropped[eventType])
	}

	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteString("\n# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

func writeSample(b *strings.Builder, name, labelSet string, value uint64) {
	b.WriteString(name)
	b.WriteString(labelSet)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, label, value string, cumulative [8]uint64) {
	for i, le := range internaldefs.HistogramBounds {
		writeSample(b, name+"_bucket", labels(label, value, "le", le), cumulative[i])
	}
	set := labels(label, value)
	writeSample(b, name+"_count", set, cumulative[len(cumulative)-1])
	// Snapshots carry no sum.
	writeSample(b, name+"_sum", set, 0)
}

// labels renders name/value pairs as {a="x",b="y"}, skipping pairs with an
// empty name.
func labels(pairs ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i] == "" {
			continue
		}
		if b.Len() == 0 {
			b.WriteByte('{')
		} else {
			b.WriteByte(',')
		}
		b.WriteString(pairs[i])
		b.WriteString(`="`)
		b.WriteString(escapeLabel(pairs[i+1]))
		b.WriteByte('"')
	}
	if b.Len() == 0 {
		return ""
	}
	b.WriteByte('}')
	return b.String()
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	v = strings.ReplaceAll(v, "\n", "\\n")
	return v
}
