package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZScoreWarmup(t *testing.T) {
	d := ZScoreDetector{}
	values := []float64{1, 2, 3}
	assert.False(t, d.Detect(values, 5, 3.0, ""))
}

func TestZScoreDeadSignalGuard(t *testing.T) {
	d := ZScoreDetector{}
	values := []float64{5, 5, 5, 5, 5, 5}
	assert.False(t, d.Detect(values, 5, 0.01, ""))
}

// S1 from spec.md §8: W=5, tau=2.0, stream [10.0,10.1,10.2,10.1,10.3,50.0].
func TestZScoreScenarioS1(t *testing.T) {
	d := ZScoreDetector{}
	stream := []float64{10.0, 10.1, 10.2, 10.1, 10.3, 50.0}
	want := []bool{false, false, false, false, false, true}
	for i := range stream {
		got := d.Detect(stream[:i+1], 5, 2.0, "")
		assert.Equalf(t, want[i], got, "sample %d", i)
	}
}

func TestZScoreOutlierOverThreshold(t *testing.T) {
	d := ZScoreDetector{}
	values := []float64{10, 10.1, 9.9, 10, 10.1, 9.9, 10, 100}
	assert.True(t, d.Detect(values, 6, 3.0, ""))
}
