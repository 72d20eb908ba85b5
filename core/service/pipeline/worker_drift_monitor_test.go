package pipeline

import (
	"testing"

	"github.com/rs/zerolog"
)

func driftMonitor(cfg DriftConfig) *DriftMonitor {
	return NewDriftMonitor(cfg, zerolog.Nop())
}

func TestDriftSilentBelowMinSamples(t *testing.T) {
	m := driftMonitor(DriftConfig{
		WindowSize: 200, MinSamples: 100,
		BaselineSimilarity: 0.82, MeanDropRatio: 0.9,
		LowSimilarity: 0.7, LowRatioLimit: 0.25,
	})
	for i := 0; i < 99; i++ {
		m.Record(0.1) // catastrophic, but the window is not filled enough
	}
	if alerts := m.State().Alerts; len(alerts) != 0 {
		t.Errorf("Alerts = %v below min samples, want none", alerts)
	}
}

func TestDriftMeanSimilarityDrop(t *testing.T) {
	m := driftMonitor(DriftConfig{
		WindowSize: 200, MinSamples: 100,
		BaselineSimilarity: 0.82, MeanDropRatio: 0.9,
		LowSimilarity: 0.1, LowRatioLimit: 1.1, // disable the spike alert
	})
	// Mean 0.72 < 0.9 * 0.82 = 0.738.
	for i := 0; i < 120; i++ {
		m.Record(0.72)
	}
	state := m.State()
	if !contains(state.Alerts, AlertMeanSimilarityDrop) {
		t.Errorf("Alerts = %v, want %s", state.Alerts, AlertMeanSimilarityDrop)
	}
	if contains(state.Alerts, AlertLowConfidenceSpike) {
		t.Errorf("unexpected spike alert: %v", state.Alerts)
	}
}

func TestDriftLowConfidenceSpike(t *testing.T) {
	m := driftMonitor(DriftConfig{
		WindowSize: 200, MinSamples: 100,
		BaselineSimilarity: 0.82, MeanDropRatio: 0.01, // disable the mean alert
		LowSimilarity: 0.7, LowRatioLimit: 0.25,
	})
	// 30% of samples below 0.7.
	for i := 0; i < 100; i++ {
		if i%10 < 3 {
			m.Record(0.5)
		} else {
			m.Record(0.95)
		}
	}
	state := m.State()
	if !contains(state.Alerts, AlertLowConfidenceSpike) {
		t.Errorf("Alerts = %v, want %s", state.Alerts, AlertLowConfidenceSpike)
	}
}

func TestDriftAlertClearsOnRecovery(t *testing.T) {
	m := driftMonitor(DriftConfig{
		WindowSize: 100, MinSamples: 50,
		BaselineSimilarity: 0.82, MeanDropRatio: 0.9,
		LowSimilarity: 0.1, LowRatioLimit: 1.1,
	})
	for i := 0; i < 100; i++ {
		m.Record(0.5)
	}
	if !contains(m.State().Alerts, AlertMeanSimilarityDrop) {
		t.Fatal("drop alert did not fire")
	}
	// Healthy samples displace the window.
	for i := 0; i < 100; i++ {
		m.Record(0.95)
	}
	if alerts := m.State().Alerts; len(alerts) != 0 {
		t.Errorf("Alerts = %v after recovery, want none", alerts)
	}
}

func TestDriftStateStatistics(t *testing.T) {
	m := driftMonitor(DefaultDriftConfig())
	m.Record(0.8)
	m.Record(0.6)

	state := m.State()
	if state.Samples != 2 {
		t.Errorf("Samples = %d, want 2", state.Samples)
	}
	if state.MeanSimilarity != 0.7 {
		t.Errorf("MeanSimilarity = %v, want 0.7", state.MeanSimilarity)
	}
	if state.LowRatio != 0.5 {
		t.Errorf("LowRatio = %v, want 0.5", state.LowRatio)
	}
}
