// Package monitor implements the monitor loader kind (spec.md §4.3):
// per-process runtime vitals, and per-ingester request vitals plus
// geolocation of the ingester's target host.
package monitor

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/loader"
)

// ErrUnknownTarget is returned when a monitor ingester's target names
// an ingester that doesn't exist.
var ErrUnknownTarget = fmt.Errorf("monitor: unknown target ingester")

// Loader is the monitor implementation of loader.Loader. A monitor
// ingester with an empty target reports this process's own runtime
// vitals (one {instance}_monitor table); one with a target naming
// another configured ingester reports that ingester's latest request
// vitals and, if its target is a URL, the host's geolocation
// (one {ingester}_monitor table per spec.md §6).
type Loader struct {
	log       logrus.FieldLogger
	tracker   *Tracker
	ingesters map[string]*ingester.Ingester
	geo       *GeoResolver
	sampler   *sampler
}

// New builds a monitor Loader. geo may be nil if no geolocation
// provider is configured, in which case geolocation fields are simply
// omitted.
func New(log logrus.FieldLogger, tracker *Tracker, ingesters map[string]*ingester.Ingester, geo *GeoResolver) *Loader {
	return &Loader{
		log:       log.WithField("component", "loader_monitor"),
		tracker:   tracker,
		ingesters: ingesters,
		geo:       geo,
		sampler:   newSampler(),
	}
}

var _ loader.Loader = (*Loader)(nil)

// Acquire returns the raw monitoring payload for ing.
func (l *Loader) Acquire(ctx context.Context, ing *ingester.Ingester) (interface{}, *loader.Vitals, error) {
	vitals := &loader.Vitals{Status: "ok", FieldCount: len(ing.Fields)}

	if ing.Target == "" {
		return l.processVitals(), vitals, nil
	}

	raw, err := l.ingesterVitals(ctx, ing.Target)
	if err != nil {
		return nil, nil, fmt.Errorf("monitor %q: %w", ing.Name, err)
	}
	return raw, vitals, nil
}

// Close is a no-op; the monitor loader holds no connections.
func (l *Loader) Close() error { return nil }

// processVitals reads this process's own runtime health via
// runtime.MemStats and os.Getpid, plus system CPU% and disk I/O rate
// sampled from /proc (spec.md §4.3: "per-process vitals (CPU %, RSS,
// disk I/O rate)"). Both are best-effort: on a host without /proc,
// sampler.sample returns 0 rather than fabricating a value, and the
// very first tick always reads 0 since there is no prior sample yet.
func (l *Loader) processVitals() map[string]interface{} {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	cpuPercent, diskBytesPerSec := l.sampler.sample()

	return map[string]interface{}{
		"pid":                   float64(os.Getpid()),
		"hostname":              hostname,
		"goroutines":            float64(runtime.NumGoroutine()),
		"rss_bytes":             float64(mem.Sys),
		"heap_bytes":            float64(mem.HeapAlloc),
		"gc_count":              float64(mem.NumGC),
		"cpu_pct":               cpuPercent,
		"disk_io_bytes_per_sec": diskBytesPerSec,
	}
}

func (l *Loader) ingesterVitals(ctx context.Context, targetName string) (map[string]interface{}, error) {
	target, ok := l.ingesters[targetName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, targetName)
	}

	raw := map[string]interface{}{}
	if v, ok := l.tracker.Get(target.Name); ok {
		raw["latency_ms"] = float64(v.Latency.Milliseconds())
		raw["bytes"] = float64(v.Bytes)
		raw["status"] = v.Status
	}

	if l.geo != nil {
		if host := hostOf(target.Target); host != "" {
			geo, err := l.geo.Resolve(ctx, host)
			if err != nil {
				l.log.WithError(err).WithField("target", target.Name).Debug("Geolocation lookup failed")
			} else {
				raw["geo_country"] = geo.Country
				raw["geo_city"] = geo.City
				raw["geo_lat"] = geo.Lat
				raw["geo_lon"] = geo.Lon
			}
		}
	}

	return raw, nil
}

func hostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Hostname()
}
