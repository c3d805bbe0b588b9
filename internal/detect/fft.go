package detect

import "math"

// FFTDetector flags a sample whose trailing w-sample block carries an
// unusually large share of its spectral energy in the high-frequency band
// (spec.md §4.5).
type FFTDetector struct{}

func (FFTDetector) Detect(values []float64, w int, tau float64, channel string) bool {
	ratio, ok := fftHighFreqRatio(values, w)
	if !ok {
		return false
	}
	return ratio > tau
}

// fftHighFreqRatio computes the high-frequency-band energy ratio over the
// last w samples of values, returning ok=false during warmup or when the
// block carries no usable energy (spec.md §4.5, invariant 4 in §8).
func fftHighFreqRatio(values []float64, w int) (ratio float64, ok bool) {
	if len(values) < w || w <= 0 {
		return 0, false
	}
	block := values[len(values)-w:]

	mean := 0.0
	for _, v := range block {
		mean += v
	}
	mean /= float64(len(block))

	windowed := make([]complex128, w)
	for i, v := range block {
		hann := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(w-1)))
		windowed[i] = complex((v-mean)*hann, 0)
	}

	spectrum := forwardFFT(windowed)

	magnitudes := make([]float64, w)
	var total float64
	for i, c := range spectrum {
		magnitudes[i] = cabs(c)
		total += magnitudes[i]
	}
	if total < 1e-9 {
		return 0, false
	}

	lo := w / 4
	hi := w / 2
	var band float64
	for i := lo; i < hi && i < w; i++ {
		band += magnitudes[i]
	}
	return band / total, true
}

func cabs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

// forwardFFT computes the forward discrete Fourier transform of x. When
// len(x) is a power of two it uses a recursive radix-2 Cooley-Tukey FFT
// (O(n log n)); otherwise it falls back to a direct O(n^2) DFT, which is
// exact for any length and perfectly adequate at the window sizes this
// engine operates on (tens to low hundreds of samples). No FFT/DSP library
// appears anywhere in the retrieval pack (see DESIGN.md), so this is a
// from-scratch implementation over math/cmplx-style complex128 arithmetic.
func forwardFFT(x []complex128) []complex128 {
	n := len(x)
	if n == 0 {
		return nil
	}
	if n&(n-1) == 0 {
		return fftRadix2(x)
	}
	return dftDirect(x)
}

func fftRadix2(x []complex128) []complex128 {
	n := len(x)
	if n == 1 {
		return []complex128{x[0]}
	}
	even := make([]complex128, n/2)
	odd := make([]complex128, n/2)
	for i := 0; i < n/2; i++ {
		even[i] = x[2*i]
		odd[i] = x[2*i+1]
	}
	fe := fftRadix2(even)
	fo := fftRadix2(odd)

	out := make([]complex128, n)
	for k := 0; k < n/2; k++ {
		theta := -2 * math.Pi * float64(k) / float64(n)
		twiddle := complex(math.Cos(theta), math.Sin(theta)) * fo[k]
		out[k] = fe[k] + twiddle
		out[k+n/2] = fe[k] - twiddle
	}
	return out
}

func dftDirect(x []complex128) []complex128 {
	n := len(x)
	out := make([]complex128, n)
	for k := 0; k < n; k++ {
		var sum complex128
		for t := 0; t < n; t++ {
			theta := -2 * math.Pi * float64(k) * float64(t) / float64(n)
			sum += x[t] * complex(math.Cos(theta), math.Sin(theta))
		}
		out[k] = sum
	}
	return out
}
