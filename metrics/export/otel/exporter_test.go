package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/finauth"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot finauth.MetricsSnapshot
}

func (f *fakeSource) MetricsSnapshot() finauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := finauth.MetricsSnapshot{
		Counters:   make(map[finauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[finauth.MetricID][]uint64, len(f.snapshot.Histograms)),
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

// sumValue returns the data point of the named sum carrying exactly attrs.
func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name string, attrs ...attribute.KeyValue) (int64, bool) {
	t.Helper()
	want := attribute.NewSet(attrs...)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: expected int64 sum, got %T", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				if dp.Attributes.Equals(&want) {
					return dp.Value, true
				}
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("finauth-test")

	src := &fakeSource{
		snapshot: finauth.MetricsSnapshot{
			Counters: map[finauth.MetricID]uint64{
				finauth.MetricSignInSuccess: 3,
				finauth.MetricAuditDropped:  1,
			},
			Histograms: map[finauth.MetricID][]uint64{
				finauth.MetricRefreshLatency: {1, 1, 1, 1, 1, 1, 1, 1},
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

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected collected metrics, got none")
	}

	for _, tc := range []struct {
		name  string
		attrs []attribute.KeyValue
		want  int64
	}{
		{EventsInstrument, []attribute.KeyValue{OperationKey.String("signin"), OutcomeKey.String("success")}, 3},
		{EventsInstrument, []attribute.KeyValue{OperationKey.String("audit"), OutcomeKey.String("dropped")}, 1},
		{EventsInstrument, []attribute.KeyValue{OperationKey.String("refresh"), OutcomeKey.String("success")}, 0},
		{DurationBucketInstrument, []attribute.KeyValue{OperationKey.String("refresh"), LeKey.String("0.005")}, 1},
		{DurationBucketInstrument, []attribute.KeyValue{OperationKey.String("refresh"), LeKey.String("0.5")}, 7},
		{DurationBucketInstrument, []attribute.KeyValue{OperationKey.String("refresh"), LeKey.String("+Inf")}, 8},
		{DurationCountInstrument, []attribute.KeyValue{OperationKey.String("refresh")}, 8},
	} {
		got, ok := sumValue(t, rm, tc.name, tc.attrs...)
		if !ok {
			t.Fatalf("%s %v: no data point", tc.name, tc.attrs)
		}
		if got != tc.want {
			t.Fatalf("%s %v: expected %d, got %d", tc.name, tc.attrs, tc.want, got)
		}
	}

	// Sign-in latency is absent from the snapshot.
	if _, ok := sumValue(t, rm, DurationCountInstrument, OperationKey.String("signin")); ok {
		t.Fatal("histograms absent from the snapshot must not be observed")
	}
}

func TestExporterSilentWhenMetricsDisabled(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	src := &fakeSource{snapshot: finauth.MetricsSnapshot{
		Counters:   map[finauth.MetricID]uint64{},
		Histograms: map[finauth.MetricID][]uint64{},
	}}
	exp, err := NewOTelExporterFromSource(provider.Meter("finauth-test"), src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if _, ok := sumValue(t, rm, EventsInstrument, OperationKey.String("signin"), OutcomeKey.String("success")); ok {
		t.Fatal("expected no data points for a disabled engine")
	}
}

func TestExporterRejectsNilSource(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("finauth-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("finauth-test")

	src := &fakeSource{
		snapshot: finauth.MetricsSnapshot{
			Counters: map[finauth.MetricID]uint64{
				finauth.MetricSignInSuccess: 1,
			},
			Histograms: map[finauth.MetricID][]uint64{
				finauth.MetricRefreshLatency: {1, 0, 0, 0, 0, 0, 0, 0},
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
			src.snapshot.Counters[finauth.MetricSignInSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
