// Package datadog implements a Datadog backend for the internal/metrics package.
//
// NOTE ABOUT FLUSHING:
// askdata does no background work, so this backend never flushes on its own.
// Metrics are buffered in memory and submitted when the owner calls Flush
// (the CLI does so after each command, the MCP server after each tool call)
// and one final time on Close.
//
// Concurrency model:
//   - query goroutines can call IncCounter/ObserveHistogram at any time
//   - Flush snapshots+resets buffers under a mutex, then submits out-of-lock
//
// If the process is killed with SIGKILL/OOM, Close() won't run (no backend can fix that).
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"askdata/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric.
	// If empty, defaults to "askdata".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod", "service:askdata"}).
	Tags []string

	// Unexported test seams: production never sets them.
	now       func() time.Time
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal interface needed to submit metrics.
//
// The Datadog SDK exposes a concrete *datadogV2.MetricsApi, which cannot be
// stubbed without real HTTP; Backend depends on this interface instead.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// descriptor maps an internal metric to its Datadog name and the labels that
// become tags, in tag order.
type descriptor struct {
	name      string
	labels    []string
	histogram bool
}

var known = map[string]descriptor{
	metrics.QueriesTotal:      {name: "askdata.queries.total", labels: []string{"intent", "path", "status"}},
	metrics.QueryDuration:     {name: "askdata.query.duration_seconds", labels: []string{"intent"}, histogram: true},
	metrics.RowsLoadedTotal:   {name: "askdata.rows.loaded.total", labels: []string{"table_kind"}},
	metrics.RowsFailedTotal:   {name: "askdata.rows.failed.total"},
	metrics.LLMCallsTotal:     {name: "askdata.llm.calls.total", labels: []string{"purpose", "status"}},
	metrics.LLMDuration:       {name: "askdata.llm.duration_seconds", labels: []string{"purpose"}, histogram: true},
	metrics.FallbacksTotal:    {name: "askdata.fallbacks.total", labels: []string{"reason"}},
	metrics.TablesLoadedTotal: {name: "askdata.tables.loaded.total"},
	metrics.LoadDuration:      {name: "askdata.load.duration_seconds", histogram: true},
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	baseTags []string

	// now is injected for deterministic tests. Production uses time.Now.
	now func() time.Time

	mu      sync.Mutex
	counts  map[string]float64
	samples map[string][]float64
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client.
// Credentials and site come from the DD_API_KEY / DD_SITE environment
// variables read by the client; network errors surface from Flush.
//
// Edge cases:
//   - If opts.JobName is empty, defaults to "askdata".
//   - Environment tag selection uses ENV then DD_ENV, otherwise env:unknown.
func NewBackend(parent context.Context, opts Options) *Backend {
	job := opts.JobName
	if job == "" {
		job = "askdata"
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}

	submitter := opts.submitter
	if submitter == nil {
		client := dd.NewAPIClient(dd.NewConfiguration())
		submitter = datadogV2.NewMetricsApi(client)
	}

	return &Backend{
		api:      submitter,
		ctx:      dd.NewDefaultContext(parent),
		baseTags: baseTags,
		now:      nowFn,
		counts:   make(map[string]float64),
		samples:  make(map[string][]float64),
	}
}

// seriesKey encodes a metric and its label values. Missing labels read as
// "unknown".
func seriesKey(name string, d descriptor, labels metrics.Labels) string {
	parts := make([]string, 0, 1+len(d.labels))
	parts = append(parts, name)
	for _, l := range d.labels {
		v := labels[l]
		if v == "" {
			v = "unknown"
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, "\x00")
}

// splitSeriesKey decodes a seriesKey into the metric name and its tags.
func splitSeriesKey(k string) (descriptor, []string, bool) {
	parts := strings.Split(k, "\x00")
	d, ok := known[parts[0]]
	if !ok || len(parts)-1 != len(d.labels) {
		return descriptor{}, nil, false
	}
	tags := make([]string, len(d.labels))
	for i, l := range d.labels {
		tags[i] = l + ":" + parts[i+1]
	}
	return d, tags, true
}

// IncCounter implements metrics.Backend. Unknown names, histogram names and
// non-positive deltas are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	d, ok := known[name]
	if !ok || d.histogram || delta <= 0 {
		return
	}
	k := seriesKey(name, d, labels)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts[k] += delta
}

// ObserveHistogram implements metrics.Backend. Unknown names, counter names
// and negative values are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	d, ok := known[name]
	if !ok || !d.histogram || value < 0 {
		return
	}
	k := seriesKey(name, d, labels)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples[k] = append(b.samples[k], value)
}

// snapshot is the buffered state detached from the backend by Flush.
type snapshot struct {
	counts  map[string]float64
	samples map[string][]float64
}

func (s snapshot) isEmpty() bool {
	return len(s.counts) == 0 && len(s.samples) == 0
}

// snapshotAndReset grabs current buffered metrics and resets internal buffers.
func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{counts: b.counts, samples: b.samples}
	b.counts = make(map[string]float64)
	b.samples = make(map[string][]float64)
	return s
}

// Flush submits buffered metrics to Datadog and resets local buffers.
//
// Edge cases:
//   - Returns nil without a request if there is nothing to submit.
//   - Buffers are reset even if submission fails.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}
	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// Close performs a final Flush. It is safe to call more than once.
func (b *Backend) Close() error {
	return b.Flush()
}

// buildSeries constructs Datadog series for a snapshot at a fixed timestamp.
// It is pure and emits series in key order.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.counts)+6*len(s.samples))

	for _, k := range sortedKeys(s.counts) {
		v := s.counts[k]
		d, tags, ok := splitSeriesKey(k)
		if !ok || v == 0 {
			continue
		}
		series = append(series, countSeries(d.name, v, withTags(b.baseTags, tags...), nowUnix))
	}
	for _, k := range sortedKeys(s.samples) {
		d, tags, ok := splitSeriesKey(k)
		if !ok {
			continue
		}
		addPercentiles(&series, withTags(b.baseTags, tags...), d.name, s.samples[k], nowUnix)
	}
	return series
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// addPercentiles appends p50/p90/p95/p99/max/samples gauges for a sample
// set. It sorts a copy and does nothing for an empty set.
func addPercentiles(series *[]datadogV2.MetricSeries, tags []string, metricPrefix string, samples []float64, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series,
		gaugeSeries(metricPrefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix),
		gaugeSeries(metricPrefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix),
		gaugeSeries(metricPrefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix),
		gaugeSeries(metricPrefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix),
		gaugeSeries(metricPrefix+".max", cp[len(cp)-1], tags, nowUnix),
		gaugeSeries(metricPrefix+".samples", float64(len(cp)), tags, nowUnix),
	)
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:askdata".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
