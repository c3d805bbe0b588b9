package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFFTWarmup(t *testing.T) {
	d := FFTDetector{}
	assert.False(t, d.Detect([]float64{1, 2, 3}, 8, 0.3, ""))
}

func TestFFTConstantBlockReturnsFalse(t *testing.T) {
	d := FFTDetector{}
	values := []float64{10, 10, 10, 10, 10, 10, 10, 10}
	assert.False(t, d.Detect(values, 8, 0.3, ""))
}

// S2 from spec.md §8: W=8, tau=0.3. At position 8 (constant block) the
// decision is false; once a high-frequency burst fills the window, the
// decision is true. The burst below concentrates its energy in the
// detector's [W/4, W/2) band (bins 2-3 of an 8-point transform), unlike a
// pure period-2 square wave whose energy lands on the excluded Nyquist
// bin (see spec.md §9 on why that boundary is never shifted).
func TestFFTScenarioS2(t *testing.T) {
	d := FFTDetector{}
	stream := []float64{
		10, 10, 10, 10, 10, 10, 10, 10,
		10, 10, 30, 10, 10, 30, 10, 10,
	}
	assert.False(t, d.Detect(stream[:8], 8, 0.3, ""), "constant block should not be anomalous")
	assert.True(t, d.Detect(stream[:16], 8, 0.3, ""), "burst energy in the high band should trip the detector")
}

func TestFFTZeroEnergyBlockReturnsNotOK(t *testing.T) {
	_, ok := fftHighFreqRatio(make([]float64, 16), 16)
	assert.False(t, ok)
}

func TestForwardFFTNonPowerOfTwoFallsBackToDirectDFT(t *testing.T) {
	x := []complex128{1, 2, 3, 4, 5}
	out := forwardFFT(x)
	assert.Len(t, out, 5)
	// DC component should equal the sum of inputs.
	assert.InDelta(t, 15.0, real(out[0]), 1e-9)
	assert.InDelta(t, 0.0, imag(out[0]), 1e-9)
}

func TestForwardFFTPowerOfTwoMatchesDirectDFT(t *testing.T) {
	x := []complex128{1, -1, 2, -2}
	viaRadix2 := fftRadix2(append([]complex128(nil), x...))
	viaDirect := dftDirect(append([]complex128(nil), x...))
	for i := range x {
		assert.InDelta(t, real(viaDirect[i]), real(viaRadix2[i]), 1e-9)
		assert.InDelta(t, imag(viaDirect[i]), imag(viaRadix2[i]), 1e-9)
	}
}
