package detect

import "strings"

// Registry is a fixed name->detector lookup (spec.md §4.7). Name matching
// is case-insensitive; an unknown name yields ErrUnknownMethod. Registry
// also owns the AMMAD per-channel state table and exposes Reset, which
// analysis.State.Reset calls when a stream's record sequence wraps around.
type Registry struct {
	zscore Detector
	lof    Detector
	fft    Detector
	ammad  *AMMADDetector

	ammadState *AMMADState
}

// NewRegistry constructs a Registry with its own AMMAD channel-state table,
// configured against the given channel config provider. Per spec.md §9 and
// §5, callers should construct one Registry per session (or per independent
// batch run) rather than sharing one process-wide, so AMMAD state is never
// aliased across sessions.
func NewRegistry(channels ChannelConfigProvider) *Registry {
	if channels == nil {
		channels = NewStaticChannelConfigProvider()
	}
	state := NewAMMADState()
	return &Registry{
		zscore:     ZScoreDetector{},
		lof:        LOFDetector{},
		fft:        FFTDetector{},
		ammad:      &AMMADDetector{State: state, Channels: channels},
		ammadState: state,
	}
}

// Resolve looks up a detector by method name, case-insensitively.
func (r *Registry) Resolve(method string) (Detector, error) {
	switch strings.ToLower(method) {
	case MethodZScore:
		return r.zscore, nil
	case MethodLOF:
		return r.lof, nil
	case MethodFFT:
		return r.fft, nil
	case MethodAMMAD:
		return r.ammad, nil
	default:
		return nil, ErrUnknownMethod
	}
}

// IsValidMethod reports whether name is a recognized method identifier.
func IsValidMethod(name string) bool {
	switch strings.ToLower(name) {
	case MethodZScore, MethodLOF, MethodFFT, MethodAMMAD:
		return true
	default:
		return false
	}
}

// Reset clears the AMMAD channel-state table.
func (r *Registry) Reset() {
	r.ammadState.Reset()
}

// AMMADChannelCount reports how many channels currently carry AMMAD state;
// used by the health probe.
func (r *Registry) AMMADChannelCount() int {
	return r.ammadState.Len()
}
