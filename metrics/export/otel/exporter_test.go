package otel

import (
	"context"
	"sync"
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goSession.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goSession.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goSession.MetricsSnapshot{
		Counters:   make(map[goSession.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[goSession.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func findInt64(rm metricdata.ResourceMetrics, name string) (int64, bool) {
	return findSeries(rm, name, "", "")
}

// findSeries returns the datapoint of name whose attribute key equals value.
// An empty key matches the first datapoint.
func findSeries(rm metricdata.ResourceMetrics, name, key, value string) (int64, bool) {
	match := func(set attribute.Set) bool {
		if key == "" {
			return true
		}
		v, ok := set.Value(attribute.Key(key))
		return ok && v.AsString() == value
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					if match(dp.Attributes) {
						return dp.Value, true
					}
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					if match(dp.Attributes) {
						return dp.Value, true
					}
				}
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newReader()
	meter := provider.Meter("gosession-test")

	src := &fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters: map[goSession.MetricID]uint64{
				goSession.MetricLogin:         3,
				goSession.MetricRefreshFailure: 2,
			},
			Histograms: map[goSession.MetricID][]uint64{
				goSession.MetricRefreshLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if v, ok := findInt64(rm, "gosession_login_total"); !ok || v != 3 {
		t.Fatalf("login counter: got %d found=%v", v, ok)
	}
	if v, ok := findSeries(rm, "gosession_refresh_total", "result", "failure"); !ok || v != 2 {
		t.Fatalf("refresh failure series: got %d found=%v", v, ok)
	}
	if v, ok := findSeries(rm, "gosession_refresh_total", "result", "stale"); !ok || v != 0 {
		t.Fatalf("refresh stale series: got %d found=%v", v, ok)
	}
	if v, ok := findSeries(rm, "gosession_refresh_latency_seconds_bucket", "le", "0.1"); !ok || v != 3 {
		t.Fatalf("refresh bucket le 0.1: got %d found=%v", v, ok)
	}
	if v, ok := findInt64(rm, "gosession_refresh_latency_seconds_count"); !ok || v != 8 {
		t.Fatalf("refresh count: got %d found=%v", v, ok)
	}
	if v, ok := findInt64(rm, "gosession_audit_dropped_total"); !ok || v != 1 {
		t.Fatalf("audit dropped: got %d found=%v", v, ok)
	}
	if _, ok := findInt64(rm, "gosession_snapshots_coalesced_total"); ok {
		t.Fatal("source without coalescing must not register the coalesced counter")
	}
}

func TestExporterReadsManager(t *testing.T) {
	reader, provider := newReader()

	m, err := goSession.New().Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer m.Close()

	exp, err := NewOTelExporter(provider.Meter("gosession-test"), m)
	if err != nil {
		t.Fatalf("NewOTelExporter failed: %v", err)
	}
	defer func() { _ = exp.Close() }()

	in := goSession.LoginInput{
		User:          goSession.User{UserID: 1, Role: "ADMIN"},
		Branches:      []goSession.Branch{{BranchID: 1}},
		Token:         "opaque",
		TokenExpireAt: time.Now().Add(time.Hour).UnixMilli(),
	}
	if e := m.Login(context.Background(), in); e != nil {
		t.Fatalf("Login failed: %v", e)
	}
	m.Logout(context.Background())

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if v, _ := findInt64(rm, "gosession_login_total"); v != 1 {
		t.Fatalf("login counter: got %d", v)
	}
	if v, _ := findInt64(rm, "gosession_logout_total"); v != 1 {
		t.Fatalf("logout counter: got %d", v)
	}
	if v, ok := findSeries(rm, "gosession_rehydrate_total", "outcome", "logged_out"); !ok || v != 1 {
		t.Fatalf("rehydrate logged_out series: got %d found=%v", v, ok)
	}
	if _, ok := findInt64(rm, "gosession_snapshots_coalesced_total"); !ok {
		t.Fatal("manager source must export the coalesced counter")
	}
}

func TestExporterRejectsNilSource(t *testing.T) {
	_, provider := newReader()
	meter := provider.Meter("gosession-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
	if _, err := NewOTelExporter(meter, nil); err == nil {
		t.Fatal("expected error for nil manager")
	}
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); err == nil {
		t.Fatal("expected error for nil meter")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader()
	meter := provider.Meter("gosession-test")

	src := &fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters: map[goSession.MetricID]uint64{
				goSession.MetricLogin: 1,
			},
			Histograms: map[goSession.MetricID][]uint64{
				goSession.MetricBranchConfirmLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goSession.MetricLogin] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
