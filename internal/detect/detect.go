// Package detect implements the four anomaly-detection methods (Z-score,
// LOF, FFT, AMMAD) behind a single uniform call contract, plus the registry
// that resolves a method name to a detector.
package detect

import "errors"

// ErrUnknownMethod is returned by the registry when a method identifier is
// not in the closed set {z_score, lof, fft, ammad}.
var ErrUnknownMethod = errors.New("detect: unknown method")

// Method identifiers, matched case-insensitively at the registry boundary.
const (
	MethodZScore = "z_score"
	MethodLOF    = "lof"
	MethodFFT    = "fft"
	MethodAMMAD  = "ammad"
)

// Default window sizes and thresholds per spec.md §4.3-§4.6.
const (
	DefaultZScoreWindow    = 30
	DefaultZScoreThreshold = 3.0

	DefaultLOFWindow    = 60
	DefaultLOFThreshold = 25.0
	DefaultLOFK         = 5

	DefaultFFTWindow    = 64
	DefaultFFTThreshold = 0.30

	DefaultAMMADThreshold = 0.80
)

// epsilon is the generic "numbers this close are considered equal" guard
// used by LOF's constant-signal and density checks and by AMMAD's noise
// level. Z-score's dead-signal check uses its own 0.01 floor, and FFT's
// zero-energy check compares against a literal 1e-9.
const epsilon = 1e-9

// Detector is the uniform contract every method implements (spec.md §4.2,
// §6.1). values is an oldest-first snapshot of the channel's recent history
// including the current sample as its last element; w is the configured
// window size; tau is the score threshold; channel is advisory and only
// consulted by AMMAD.
type Detector interface {
	Detect(values []float64, w int, tau float64, channel string) bool
}

// DetectorFunc adapts a plain function to the Detector interface.
type DetectorFunc func(values []float64, w int, tau float64, channel string) bool

func (f DetectorFunc) Detect(values []float64, w int, tau float64, channel string) bool {
	return f(values, w, tau, channel)
}
