package analysis

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/99souls/wellflow/internal/detect"
	"github.com/99souls/wellflow/internal/ringbuffer"
	"github.com/99souls/wellflow/internal/telemetry/metrics"
)

var (
	// ErrInvalidMethod is returned by SetMethod for an unrecognized name
	// (spec.md §7, InvalidMethod).
	ErrInvalidMethod = errors.New("analysis: invalid method")
	// ErrInvalidWindowSize is returned by SetWindowSize for W < 0.
	ErrInvalidWindowSize = errors.New("analysis: window size must be >= 0")
	// ErrInvalidThreshold is returned by SetScoreThreshold for tau < 0.
	ErrInvalidThreshold = errors.New("analysis: score threshold must be >= 0")
)

// Config is the active (method, window size, threshold) triple (spec.md
// §3, "Analysis configuration").
type Config struct {
	Method     string
	WindowSize int
	Threshold  float64
}

// defaultWindowSize is max(FFT_W, LOF_W, Z_W) per spec.md §4.10's stream
// session defaults.
func defaultWindowSize() int {
	w := detect.DefaultZScoreWindow
	if detect.DefaultLOFWindow > w {
		w = detect.DefaultLOFWindow
	}
	if detect.DefaultFFTWindow > w {
		w = detect.DefaultFFTWindow
	}
	return w
}

const defaultThreshold = 0.5

// State is one connection's (or batch run's) live configuration plus its
// channel->Ring Buffer map (spec.md §4.8, "Analysis State"). It owns a
// detect.Registry, which in turn owns the AMMAD per-channel state table;
// constructing a fresh State per session keeps that table from aliasing
// across sessions (spec.md §9).
type State struct {
	mu sync.Mutex

	cfg      Config
	buffers  map[string]*ringbuffer.Buffer
	registry *detect.Registry
	auditor  *Auditor

	metricsProvider  metrics.Provider
	samplesObserved  metrics.Counter
	detections       metrics.Counter
	detectorFaults   metrics.Counter
	ammadChannels    metrics.Gauge
	detectorDuration func() metrics.Timer
	bufferResizes    metrics.Counter
	reconfigurations metrics.Counter

	lastFaultAt time.Time
}

// New constructs a State with the stream session defaults: method fft,
// W = max(FFT_W, LOF_W, Z_W), tau = 0.5 (spec.md §4.10). channels may be
// nil, in which case AMMAD falls back to its built-in default config.
// Metrics are discarded until WithMetrics attaches a real provider.
func New(channels detect.ChannelConfigProvider) *State {
	s := &State{
		cfg: Config{
			Method:     detect.MethodFFT,
			WindowSize: defaultWindowSize(),
			Threshold:  defaultThreshold,
		},
		buffers:  make(map[string]*ringbuffer.Buffer),
		registry: detect.NewRegistry(channels),
	}
	s.WithMetrics(metrics.NewNoopProvider())
	return s
}

// WithMetrics attaches p as this state's metrics provider, instrumenting
// every subsequent Observe call and accepted reconfiguration (spec.md's
// "Telemetry event" data-model entry: a counter increment and histogram
// observation per detector invocation, a counter increment per
// reconfiguration). A nil p reverts to discarding metrics.
func (s *State) WithMetrics(p metrics.Provider) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil {
		p = metrics.NewNoopProvider()
	}
	s.metricsProvider = p
	s.samplesObserved = p.NewCounter(metrics.SamplesObserved)
	s.detections = p.NewCounter(metrics.Detections)
	s.detectorFaults = p.NewCounter(metrics.DetectorFaults)
	s.ammadChannels = p.NewGauge(metrics.AMMADChannels)
	s.detectorDuration = p.NewTimer(metrics.DetectorDuration)
	s.bufferResizes = p.NewCounter(metrics.BufferResizes)
	s.reconfigurations = p.NewCounter(metrics.Reconfigurations)
	return s
}

// Config returns a copy of the current configuration.
func (s *State) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// AMMADChannelCount reports how many channels currently carry live AMMAD
// state, for the health package's AMMADChannelCountProbe.
func (s *State) AMMADChannelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.AMMADChannelCount()
}

// LastFaultAt returns the time of the most recent detector fault absorbed
// by Observe, or the zero Time if none has occurred yet, for the health
// package's DetectorFaultRecencyProbe.
func (s *State) LastFaultAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFaultAt
}

// bufferCapacity translates a window size into a ring buffer capacity,
// honoring ringbuffer.MinCapacity even for W=0 or W=1 (spec.md §4.8
// allows W=0; C1's capacity floor of 2 still applies).
func bufferCapacity(w int) int {
	cap := w + 1
	if cap < ringbuffer.MinCapacity {
		cap = ringbuffer.MinCapacity
	}
	return cap
}

// SetMethod validates name and, on an actual change, clears every channel
// buffer and resets their future capacities to the current W+1 (spec.md
// §4.8, §8 invariant 6).
func (s *State) SetMethod(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !detect.IsValidMethod(name) {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, name)
	}
	normalized := strings.ToLower(name)
	if normalized == s.cfg.Method {
		return nil
	}
	s.cfg.Method = normalized
	s.buffers = make(map[string]*ringbuffer.Buffer)
	s.auditIfAttached()
	s.reconfigurations.Inc(1, "method")
	return nil
}

// SetWindowSize rejects W < 0; on an actual change it resizes every
// existing buffer to capacity W+1, preserving tails (spec.md §4.8, §8
// invariant 7).
func (s *State) SetWindowSize(w int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWindowSize, w)
	}
	if w == s.cfg.WindowSize {
		return nil
	}
	s.cfg.WindowSize = w
	newCap := bufferCapacity(w)
	for ch, buf := range s.buffers {
		if err := buf.Resize(newCap); err != nil {
			return fmt.Errorf("analysis: resizing buffer for channel %q: %w", ch, err)
		}
		s.bufferResizes.Inc(1)
	}
	s.auditIfAttached()
	s.reconfigurations.Inc(1, "window_size")
	return nil
}

// SetScoreThreshold rejects tau < 0; it never touches buffers.
func (s *State) SetScoreThreshold(tau float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tau < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, tau)
	}
	s.cfg.Threshold = tau
	s.auditIfAttached()
	s.reconfigurations.Inc(1, "threshold")
	return nil
}

// auditIfAttached appends a commit record if an Auditor is attached. The
// caller must already hold s.mu.
func (s *State) auditIfAttached() {
	if s.auditor != nil {
		s.auditor.record(s.cfg)
	}
}

// ApplyMessage applies a control frame's fields in the fixed order method,
// window_size, score_threshold, then the legacy aliases (spec.md §4.8,
// §6.2). Each field is independently fallible: a failure on one field
// does not undo an earlier field's successful update from the same
// message. All non-nil errors are returned together, in application
// order.
func (s *State) ApplyMessage(msg *ControlMessage) []error {
	if msg == nil {
		return nil
	}
	var errs []error

	if msg.Method != nil {
		if err := s.SetMethod(*msg.Method); err != nil {
			errs = append(errs, err)
		}
	}
	if msg.WindowSize != nil {
		if err := s.SetWindowSize(*msg.WindowSize); err != nil {
			errs = append(errs, err)
		}
	}
	if msg.ScoreThreshold != nil {
		if err := s.SetScoreThreshold(*msg.ScoreThreshold); err != nil {
			errs = append(errs, err)
		}
	}

	currentMethod := s.Config().Method
	applyLegacy := func(method string, v *float64) {
		if v == nil || currentMethod != method {
			return
		}
		if err := s.SetScoreThreshold(*v); err != nil {
			errs = append(errs, err)
		}
	}
	applyLegacy(detect.MethodFFT, msg.FFT)
	applyLegacy(detect.MethodZScore, msg.ZScore)
	applyLegacy(detect.MethodLOF, msg.LOF)

	return errs
}

// bufferFor returns the channel's ring buffer, lazily creating it at the
// current window capacity on first use (spec.md §3, "a Window is created
// lazily on first sample for a channel").
func (s *State) bufferFor(channel string) *ringbuffer.Buffer {
	if buf, ok := s.buffers[channel]; ok {
		return buf
	}
	buf, err := ringbuffer.New(bufferCapacity(s.cfg.WindowSize))
	if err != nil {
		panic(err) // bufferCapacity always returns >= ringbuffer.MinCapacity
	}
	s.buffers[channel] = buf
	return buf
}

// Observe appends value to channel's buffer and runs the current detector
// against the resulting snapshot, returning its verdict. It is the single
// entry point both orchestrators use to turn a (channel, value) pair into
// a decision (spec.md's data-flow paragraph in §2).
func (s *State) Observe(channel string, value float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.bufferFor(channel)
	buf.Push(value)
	s.samplesObserved.Inc(1, channel, s.cfg.Method)

	d, err := s.registry.Resolve(s.cfg.Method)
	if err != nil {
		s.detectorFaults.Inc(1, channel, s.cfg.Method)
		s.lastFaultAt = time.Now()
		return false, err
	}

	timer := s.detectorDuration()
	snapshot := buf.Snapshot()
	decision := d.Detect(snapshot, s.cfg.WindowSize, s.cfg.Threshold, channel)
	timer.ObserveDuration(s.cfg.Method)

	s.detections.Inc(1, s.cfg.Method, strconv.FormatBool(decision))
	if s.cfg.Method == detect.MethodAMMAD {
		s.ammadChannels.Set(float64(s.registry.AMMADChannelCount()))
	}
	return decision, nil
}

// Reset clears every channel buffer and the AMMAD channel-state table,
// without touching the current configuration. Used when a stream's
// record sequence wraps around (spec.md §4.10 step 4).
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers = make(map[string]*ringbuffer.Buffer)
	s.registry.Reset()
}
