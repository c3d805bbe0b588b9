package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLOFWarmup(t *testing.T) {
	d := LOFDetector{}
	assert.False(t, d.Detect([]float64{1, 2, 3}, 5, 10.0, ""))
}

// S3 from spec.md §8: W=5, tau=10.0, stream [7,7,7,7,7,7], decision at
// position 6 is false (dead/constant signal).
func TestLOFScenarioS3DeadSignal(t *testing.T) {
	d := LOFDetector{}
	stream := []float64{7, 7, 7, 7, 7, 7}
	assert.False(t, d.Detect(stream, 5, 10.0, ""))
}

func TestLOFFlagsIsolatedSpike(t *testing.T) {
	d := LOFDetector{}
	// Tight cluster around 10 except one isolated point far away.
	values := []float64{10, 10.1, 9.9, 10.05, 9.95, 10.1, 9.9, 10.0, 200.0}
	assert.True(t, d.Detect(values, 8, 5.0, ""))
}

func TestLOFNoVerdictOnUniformSpread(t *testing.T) {
	d := LOFDetector{}
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	assert.False(t, d.Detect(values, 8, 25.0, ""))
}

func TestAmmadLOFK(t *testing.T) {
	assert.Equal(t, 3, ammadLOFK(30))  // floor(30/15)=2 -> clamp to 3
	assert.Equal(t, 4, ammadLOFK(60))  // 60/15=4
	assert.Equal(t, 5, ammadLOFK(120)) // 120/15=8 -> clamp to 5
}
