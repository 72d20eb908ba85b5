// Package pipeline orchestrates the per-item processing sequence and the
// cross-item drift monitoring that watches the matcher's health.
package pipeline

import (
	"sync"

	"github.com/rs/zerolog"
)

// Drift alert kinds.
const (
	AlertMeanSimilarityDrop = "MEAN_SIMILARITY_DROP"
	AlertLowConfidenceSpike = "LOW_CONFIDENCE_SPIKE"
)

// DriftConfig tunes the drift monitor window and trigger levels.
type DriftConfig struct {
	WindowSize         int     // sliding window of recent similarities
	MinSamples         int     // alerts stay silent below this fill level
	BaselineSimilarity float64 // expected mean similarity for the taxonomy
	MeanDropRatio      float64 // alert when mean < ratio * baseline
	LowSimilarity      float64 // a sample below this counts as low-confidence
	LowRatioLimit      float64 // alert when low-sample share exceeds this
}

// DefaultDriftConfig returns the documented defaults.
func DefaultDriftConfig() DriftConfig {
	return DriftConfig{
		WindowSize:         500,
		MinSamples:         100,
		BaselineSimilarity: 0.82,
		MeanDropRatio:      0.9,
		LowSimilarity:      0.7,
		LowRatioLimit:      0.25,
	}
}

// DriftState is the snapshot exposed on the stats endpoint.
type DriftState struct {
	Samples        int      `json:"samples"`
	MeanSimilarity float64  `json:"mean_similarity"`
	LowRatio       float64  `json:"low_ratio"`
	Alerts         []string `json:"alerts,omitempty"`
}

// DriftMonitor keeps a sliding window of taxonomy similarities and raises
// alerts when the distribution degrades against the configured baseline.
// Safe for concurrent use by the worker pool.
type DriftMonitor struct {
	cfg DriftConfig
	log zerolog.Logger

	mu      sync.Mutex
	window  []float64
	next    int
	filled  bool
	alerted map[string]bool
}

// NewDriftMonitor creates a monitor.
func NewDriftMonitor(cfg DriftConfig, log zerolog.Logger) *DriftMonitor {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultDriftConfig().WindowSize
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultDriftConfig().MinSamples
	}
	return &DriftMonitor{
		cfg:     cfg,
		log:     log.With().Str("component", "drift_monitor").Logger(),
		window:  make([]float64, cfg.WindowSize),
		alerted: make(map[string]bool),
	}
}

// Record adds one matcher similarity to the window and re-evaluates the
// alert conditions. Newly crossed thresholds are logged once; the alert
// clears (and can fire again) when the window recovers.
func (m *DriftMonitor) Record(similarity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.window[m.next] = similarity
	m.next++
	if m.next == len(m.window) {
		m.next = 0
		m.filled = true
	}

	state := m.stateLocked()
	for _, kind := range []string{AlertMeanSimilarityDrop, AlertLowConfidenceSpike} {
		active := contains(state.Alerts, kind)
		if active && !m.alerted[kind] {
			m.log.Warn().
				Str("alert", kind).
				Float64("mean_similarity", state.MeanSimilarity).
				Float64("low_ratio", state.LowRatio).
				Int("samples", state.Samples).
				Msg("taxonomy drift detected")
		}
		m.alerted[kind] = active
	}
}

// State returns the current window statistics and active alerts.
func (m *DriftMonitor) State() DriftState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *DriftMonitor) stateLocked() DriftState {
	n := m.next
	if m.filled {
		n = len(m.window)
	}
	state := DriftState{Samples: n}
	if n == 0 {
		return state
	}

	var sum float64
	low := 0
	for i := 0; i < n; i++ {
		sum += m.window[i]
		if m.window[i] < m.cfg.LowSimilarity {
			low++
		}
	}
	state.MeanSimilarity = sum / float64(n)
	state.LowRatio = float64(low) / float64(n)

	if n < m.cfg.MinSamples {
		return state
	}
	if state.MeanSimilarity < m.cfg.MeanDropRatio*m.cfg.BaselineSimilarity {
		state.Alerts = append(state.Alerts, AlertMeanSimilarityDrop)
	}
	if state.LowRatio > m.cfg.LowRatioLimit {
		state.Alerts = append(state.Alerts, AlertLowConfidenceSpike)
	}
	return state
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
