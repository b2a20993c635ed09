// Package telemetry holds network telemetry capabilities that are created by the
// composing layer and injected into whatever needs them.
package telemetry

import (
	"sync"
	"time"

	"github.com/hszk-dev/reelfeed/internal/infrastructure/metrics"
)

// BandwidthRecorder receives download samples from media engines.
type BandwidthRecorder interface {
	RecordTransfer(bytes int64, elapsed time.Duration)
}

// BandwidthMonitor maintains a rolling average download rate over a fixed
// number of samples.
type BandwidthMonitor struct {
	mu         sync.RWMutex
	samples    []float64
	maxSamples int
	sum        float64
	index      int
	filled     bool
	totalBytes int64
}

// NewBandwidthMonitor creates a monitor averaging over windowSize samples.
func NewBandwidthMonitor(windowSize int) *BandwidthMonitor {
	if windowSize <= 0 {
		windowSize = 1
	}
	return &BandwidthMonitor{
		samples:    make([]float64, windowSize),
		maxSamples: windowSize,
	}
}

var _ BandwidthRecorder = (*BandwidthMonitor)(nil)

// RecordTransfer adds one sample. Samples with non-positive elapsed time are
// counted towards TotalBytes but not the rate.
func (m *BandwidthMonitor) RecordTransfer(bytes int64, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalBytes += bytes
	if elapsed <= 0 {
		return
	}

	rate := float64(bytes) / elapsed.Seconds()
	if m.filled {
		m.sum -= m.samples[m.index]
	}
	m.samples[m.index] = rate
	m.sum += rate

	m.index++
	if m.index >= m.maxSamples {
		m.index = 0
		m.filled = true
	}

	metrics.BandwidthBytesPerSecond.Set(m.averageLocked())
}

// BytesPerSecond returns the rolling average rate, 0 when there are no samples.
func (m *BandwidthMonitor) BytesPerSecond() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.averageLocked()
}

// TotalBytes returns every byte recorded since creation.
func (m *BandwidthMonitor) TotalBytes() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalBytes
}

func (m *BandwidthMonitor) averageLocked() float64 {
	count := m.index
	if m.filled {
		count = m.maxSamples
	}
	if count == 0 {
		return 0
	}
	return m.sum / float64(count)
}
