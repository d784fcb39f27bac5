package monitor_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chomp-dev/chomp/internal/testutil"
	"github.com/chomp-dev/chomp/pkg/cache"
	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/loader"
	"github.com/chomp-dev/chomp/pkg/loader/monitor"
)

func buildMonitored(t *testing.T, name, target string) *ingester.Ingester {
	t.Helper()
	fld := ingester.FieldSpec{}
	fld.Name = "price"
	fld.Type = ingester.TypeFloat64

	spec := ingester.IngesterSpec{
		Kind:         ingester.KindHTTPAPI,
		Interval:     "s10",
		ResourceType: ingester.ResourceValue,
		Target:       target,
		Fields:       []ingester.FieldSpec{fld},
	}
	spec.Name = name
	require.NoError(t, spec.Validate())
	return ingester.New(spec)
}

func buildMonitor(t *testing.T, name, target string) *ingester.Ingester {
	t.Helper()
	fld := ingester.FieldSpec{}
	fld.Name = "latency_ms"
	fld.Type = ingester.TypeFloat64

	spec := ingester.IngesterSpec{
		Kind:         ingester.KindMonitor,
		Interval:     "s10",
		ResourceType: ingester.ResourceValue,
		Target:       target,
		Fields:       []ingester.FieldSpec{fld},
	}
	spec.Name = name
	require.NoError(t, spec.Validate())
	return ingester.New(spec)
}

func TestAcquireProcessVitalsOnEmptyTarget(t *testing.T) {
	ld := monitor.New(logrus.New(), monitor.NewTracker(), nil, nil)
	ing := buildMonitor(t, "instance_monitor", "")

	raw, vitals, err := ld.Acquire(t.Context(), ing)
	require.NoError(t, err)
	require.NotNil(t, vitals)

	m := raw.(map[string]interface{})
	assert.Contains(t, m, "rss_bytes")
	assert.Contains(t, m, "goroutines")
	assert.Contains(t, m, "cpu_pct")
	assert.Contains(t, m, "disk_io_bytes_per_sec")
}

func TestAcquireReportsTrackedVitalsForTarget(t *testing.T) {
	monitored := buildMonitored(t, "eth_price", "http://example.com/price")
	tracker := monitor.NewTracker()
	tracker.Record("eth_price", &loader.Vitals{Latency: 42 * time.Millisecond, Bytes: 128, Status: "200 OK"})

	ld := monitor.New(logrus.New(), tracker, map[string]*ingester.Ingester{"eth_price": monitored}, nil)
	ing := buildMonitor(t, "eth_price_monitor", "eth_price")

	raw, _, err := ld.Acquire(t.Context(), ing)
	require.NoError(t, err)

	m := raw.(map[string]interface{})
	assert.Equal(t, float64(42), m["latency_ms"])
	assert.Equal(t, float64(128), m["bytes"])
	assert.Equal(t, "200 OK", m["status"])
}

func TestAcquireRejectsUnknownTarget(t *testing.T) {
	ld := monitor.New(logrus.New(), monitor.NewTracker(), map[string]*ingester.Ingester{}, nil)
	ing := buildMonitor(t, "ghost_monitor", "nope")

	_, _, err := ld.Acquire(t.Context(), ing)
	require.ErrorIs(t, err, monitor.ErrUnknownTarget)
}

type fakeGeoAdapter struct{ calls int }

func (f *fakeGeoAdapter) Lookup(_ context.Context, _, host string) (monitor.GeoInfo, error) {
	f.calls++
	return monitor.GeoInfo{Country: "NL", City: "Amsterdam", Lat: 52.3, Lon: 4.9}, nil
}

func TestGeoResolverCachesAcrossCalls(t *testing.T) {
	_, client := testutil.NewMiniredisClient(t)
	c := cache.NewFromClient(logrus.New(), client)
	cfg := &cache.Config{Address: "ignored", Namespace: "chomp"}

	adapter := &fakeGeoAdapter{}
	resolver := monitor.NewGeoResolver(adapter, []string{"http://geo"}, time.Millisecond, time.Millisecond, c, cfg)

	info1, err := resolver.Resolve(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, "NL", info1.Country)

	_, err = resolver.Resolve(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.calls, "second resolve should hit the cache, not the adapter")
}
