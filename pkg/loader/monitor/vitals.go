package monitor

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// sampler tracks the deltas needed to turn /proc's cumulative counters
// into a CPU%/disk-I/O-rate reading, the same non-blocking
// previous-sample-vs-current-sample approach psutil.cpu_percent(
// interval=None) and disk_io_counters() use.
type sampler struct {
	mu sync.Mutex

	lastCPUTotal float64
	lastCPUIdle  float64
	lastCPUAt    time.Time

	lastDiskBytes uint64
	lastDiskAt    time.Time
}

func newSampler() *sampler {
	return &sampler{}
}

// sample returns system-wide CPU utilization (0-100) and disk I/O rate
// in bytes/sec since the previous call, reading /proc/stat and
// /proc/diskstats. Both are best-effort: on a non-Linux host, or a
// read error, the corresponding value is 0 rather than fabricated. The
// first call always returns 0 for both, since there is no prior sample
// to diff against yet.
func (s *sampler) sample() (cpuPercent, diskBytesPerSec float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	if total, idle, err := readCPUTotals(); err == nil {
		if !s.lastCPUAt.IsZero() {
			totalDelta := total - s.lastCPUTotal
			idleDelta := idle - s.lastCPUIdle
			if totalDelta > 0 {
				cpuPercent = 100 * (1 - idleDelta/totalDelta)
				if cpuPercent < 0 {
					cpuPercent = 0
				}
			}
		}
		s.lastCPUTotal, s.lastCPUIdle, s.lastCPUAt = total, idle, now
	}

	if bytes, err := readDiskBytes(); err == nil {
		if !s.lastDiskAt.IsZero() {
			elapsed := now.Sub(s.lastDiskAt).Seconds()
			if elapsed > 0 && bytes >= s.lastDiskBytes {
				diskBytesPerSec = float64(bytes-s.lastDiskBytes) / elapsed
			}
		}
		s.lastDiskBytes, s.lastDiskAt = bytes, now
	}

	return cpuPercent, diskBytesPerSec
}

// readCPUTotals parses the aggregate "cpu" line of /proc/stat: total
// ticks across all counters, and idle+iowait ticks.
func readCPUTotals() (total, idle float64, err error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return 0, 0, fmt.Errorf("open /proc/stat: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, 0, fmt.Errorf("empty /proc/stat")
	}

	fields := strings.Fields(scanner.Text())
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, fmt.Errorf("unexpected /proc/stat format")
	}

	vals := make([]float64, 0, len(fields)-1)
	for _, f := range fields[1:] {
		v, perr := strconv.ParseFloat(f, 64)
		if perr != nil {
			return 0, 0, fmt.Errorf("parse /proc/stat: %w", perr)
		}
		vals = append(vals, v)
	}

	for _, v := range vals {
		total += v
	}
	idle = vals[3] // idle
	if len(vals) > 4 {
		idle += vals[4] // iowait
	}
	return total, idle, nil
}

// readDiskBytes sums sectors read+written (512 bytes/sector) across
// every block device listed in /proc/diskstats.
func readDiskBytes() (uint64, error) {
	f, err := os.Open("/proc/diskstats")
	if err != nil {
		return 0, fmt.Errorf("open /proc/diskstats: %w", err)
	}
	defer f.Close()

	const sectorSize = 512
	var total uint64

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 10 {
			continue
		}
		sectorsRead, err := strconv.ParseUint(fields[5], 10, 64)
		if err != nil {
			continue
		}
		sectorsWritten, err := strconv.ParseUint(fields[9], 10, 64)
		if err != nil {
			continue
		}
		total += (sectorsRead + sectorsWritten) * sectorSize
	}
	return total, nil
}
