package detect

import (
	"hash/fnv"
	"math"
	"sync"

	"github.com/99souls/wellflow/internal/ringbuffer"
)

// ammadHistoryCapacity is the size of AMMAD's extended per-channel history
// (spec.md §3's "AMMAD channel state").
const ammadHistoryCapacity = 300

// ammadMinHistory is the minimum history length before AMMAD produces a
// statistical verdict (spec.md §4.6 step 2).
const ammadMinHistory = 20

// anomalyHistoryCapacity bounds the rolling anomaly-verdict history kept per
// channel (spec.md §4.6 step 9).
const anomalyHistoryCapacity = 50

// SafetyLimit is a per-channel physical bound: a sample outside [Min, Max]
// is reported anomalous immediately, short-circuiting AMMAD's statistical
// pipeline (spec.md §3, §4.6 step 3).
type SafetyLimit struct {
	Min      float64
	Max      float64
	Critical float64
}

// ChannelConfig bundles the two implementer-observable AMMAD channel
// attributes called out in spec.md §4.6 (base weight triple, safety limit)
// plus the internal adaptive factors (threshold, rate-of-change bound,
// consensus requirement, inertia class).
type ChannelConfig struct {
	BaseWeights       [3]float64 // w_z, w_lof, w_fft
	Threshold         float64    // tau, default 0.75-0.85
	MaxChangeRate     float64    // 0 disables the rate-of-change short circuit
	RequiresConsensus bool
	InertiaClass      string // very_high, high, medium, low, very_low
}

// ChannelConfigProvider resolves per-channel AMMAD configuration and safety
// limits. Callers inject this (see internal/safetylimits) rather than
// relying on a single hardcoded table, per spec.md §9's open question about
// the safety-limit table's canonical source.
type ChannelConfigProvider interface {
	Config(channel string) ChannelConfig
	SafetyLimit(channel string) (SafetyLimit, bool)
}

// DefaultChannelConfig is returned by StaticChannelConfigProvider for any
// channel it has no explicit entry for.
var DefaultChannelConfig = ChannelConfig{
	BaseWeights:       [3]float64{0.4, 0.3, 0.3},
	Threshold:         DefaultAMMADThreshold,
	MaxChangeRate:     0,
	RequiresConsensus: false,
	InertiaClass:      "medium",
}

// StaticChannelConfigProvider is a plain in-memory ChannelConfigProvider.
type StaticChannelConfigProvider struct {
	Configs      map[string]ChannelConfig
	SafetyLimits map[string]SafetyLimit
}

// NewStaticChannelConfigProvider returns a provider with empty tables; use
// Configs/SafetyLimits maps directly or wrap with internal/safetylimits for
// a hot-reloadable YAML-backed table.
func NewStaticChannelConfigProvider() *StaticChannelConfigProvider {
	return &StaticChannelConfigProvider{
		Configs:      make(map[string]ChannelConfig),
		SafetyLimits: make(map[string]SafetyLimit),
	}
}

func (p *StaticChannelConfigProvider) Config(channel string) ChannelConfig {
	if p == nil {
		return DefaultChannelConfig
	}
	if c, ok := p.Configs[channel]; ok {
		return c
	}
	return DefaultChannelConfig
}

func (p *StaticChannelConfigProvider) SafetyLimit(channel string) (SafetyLimit, bool) {
	if p == nil {
		return SafetyLimit{}, false
	}
	l, ok := p.SafetyLimits[channel]
	return l, ok
}

// ammadChannelState is the per-channel adaptive memory described in
// spec.md §3: extended history, last observed value, accumulated trend, and
// rolling anomaly history. It persists across sample ticks and across
// AMMAD reconfigurations; only AMMADState.Reset clears it.
type ammadChannelState struct {
	mu       sync.Mutex
	history  *ringbuffer.Buffer
	last     float64
	hasLast  bool
	trend    float64
	anomHist []bool
}

func newAMMADChannelState() *ammadChannelState {
	buf, err := ringbuffer.New(ammadHistoryCapacity)
	if err != nil {
		panic(err) // ammadHistoryCapacity is a compile-time constant >= MinCapacity
	}
	return &ammadChannelState{history: buf}
}

func (s *ammadChannelState) recordAnomaly(v bool) {
	s.anomHist = append(s.anomHist, v)
	if len(s.anomHist) > anomalyHistoryCapacity {
		s.anomHist = s.anomHist[len(s.anomHist)-anomalyHistoryCapacity:]
	}
}

func (s *ammadChannelState) updateTrend(current float64) {
	if s.hasLast {
		delta := current - s.last
		s.trend = 0.9*s.trend + 0.1*delta
	}
}

// stationarityScore is a ratio-of-segment-variances heuristic: near 1 means
// stationary, near 0 means the signal's variance differs sharply between
// its earlier and later halves (spec.md glossary, "Stationarity score").
func (s *ammadChannelState) stationarityScore() float64 {
	snap := s.history.Snapshot()
	n := len(snap)
	if n < 20 {
		return 1
	}
	mid := n / 2
	_, std1 := meanStdDev(snap[:mid])
	_, std2 := meanStdDev(snap[mid:])
	v1, v2 := std1*std1, std2*std2
	if v1 == 0 && v2 == 0 {
		return 1
	}
	lo, hi := v1, v2
	if hi < lo {
		lo, hi = hi, lo
	}
	if hi == 0 {
		return 1
	}
	return lo / hi
}

// noiseLevel is the coefficient of variation of the full history.
func (s *ammadChannelState) noiseLevel() float64 {
	snap := s.history.Snapshot()
	mean, std := meanStdDev(snap)
	if math.Abs(mean) < epsilon {
		return std
	}
	return std / math.Abs(mean)
}

// trendThreshold scales with the history's spread so "strong trend" is
// relative to the channel's own noise floor.
func (s *ammadChannelState) trendThreshold() float64 {
	snap := s.history.Snapshot()
	_, std := meanStdDev(snap)
	return 0.5 * std
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// adaptiveWeights derives the (w_z, w_lof, w_fft) triple from a per-channel
// base triple, adjusted for non-stationarity, noise, trend strength, and
// inertia class, then renormalized to sum to 1 (spec.md §4.6 step 6).
func adaptiveWeights(base [3]float64, state *ammadChannelState, inertia string) [3]float64 {
	w := base

	if state.stationarityScore() < 0.5 {
		w[2] += 0.15
	}
	if state.noiseLevel() > 1.5 {
		w[2] += 0.10
	}
	if math.Abs(state.trend) > state.trendThreshold() && state.trendThreshold() > 0 {
		w[1] += 0.15
	}
	switch inertia {
	case "very_high":
		w[0] += 0.20
	case "high":
		w[0] += 0.10
	case "low":
		w[0] -= 0.10
	case "very_low":
		w[0] -= 0.20
	}
	for i := range w {
		if w[i] < 0 {
			w[i] = 0
		}
	}
	sum := w[0] + w[1] + w[2]
	if sum <= 0 {
		return [3]float64{1.0 / 3, 1.0 / 3, 1.0 / 3}
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// evaluate runs the full AMMAD pipeline (spec.md §4.6 steps 1-9) for one new
// sample on this channel and returns the verdict.
func (s *ammadChannelState) evaluate(current float64, cfg ChannelConfig, limit *SafetyLimit) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history.Push(current)
	if s.history.Len() < ammadMinHistory {
		s.last, s.hasLast = current, true
		return false
	}

	if limit != nil && (current < limit.Min || current > limit.Max) {
		s.recordAnomaly(true)
		s.updateTrend(current)
		s.last, s.hasLast = current, true
		return true
	}

	if s.hasLast && cfg.MaxChangeRate > 0 {
		if math.Abs(current-s.last) > cfg.MaxChangeRate {
			s.recordAnomaly(true)
			s.updateTrend(current)
			s.last, s.hasLast = current, true
			return true
		}
	}

	snapshot := s.history.Snapshot()

	zW := DefaultZScoreWindow
	if zW > len(snapshot)-1 {
		zW = len(snapshot) - 1
	}
	lofW := DefaultLOFWindow
	if lofW > len(snapshot)-1 {
		lofW = len(snapshot) - 1
	}
	fftW := DefaultFFTWindow
	if fftW > len(snapshot) {
		fftW = len(snapshot)
	}
	lofK := ammadLOFK(lofW)

	zRaw := zScoreRaw(snapshot, zW)
	lofRawValue := lofRaw(snapshot, lofW, lofK)
	fftRatio, fftOK := fftHighFreqRatio(snapshot, fftW)
	if !fftOK {
		fftRatio = 0
	}

	sZ := sigmoid((zRaw - 3.0) / 1.5)
	var sLOF float64
	if lofRawValue > 1 {
		sLOF = clamp01(math.Log1p(lofRawValue-1) / math.Log1p(DefaultLOFThreshold-1))
	}
	sFFT := math.Min(1, fftRatio/DefaultFFTThreshold)

	weights := adaptiveWeights(cfg.BaseWeights, s, cfg.InertiaClass)
	combined := sZ*weights[0] + sLOF*weights[1] + sFFT*weights[2]

	votes := 0
	if zRaw > DefaultZScoreThreshold {
		votes++
	}
	if lofRawValue > DefaultLOFThreshold {
		votes++
	}
	if fftRatio > DefaultFFTThreshold {
		votes++
	}

	tau := cfg.Threshold
	if tau <= 0 {
		tau = DefaultAMMADThreshold
	}

	// Both the consensus path and the high-confidence override path can
	// independently fire true; spec.md §9 leaves their precedence
	// source-ambiguous and directs treating either path's true as true.
	var verdict bool
	if cfg.RequiresConsensus {
		verdict = (votes >= 2 && combined >= tau) || combined >= tau+0.15
	} else {
		maxSub := math.Max(sZ, math.Max(sLOF, sFFT))
		verdict = combined >= tau || (maxSub > 0.9 && combined > tau-0.1)
	}

	s.recordAnomaly(verdict)
	s.updateTrend(current)
	s.last, s.hasLast = current, true
	return verdict
}

// ammadShardCount must be a power of two; grounded on the teacher's
// packages/engine/ratelimit AdaptiveRateLimiter shard count (see
// DESIGN.md's C6 entry).
const ammadShardCount = 16

type ammadShard struct {
	mu       sync.RWMutex
	channels map[string]*ammadChannelState
}

// AMMADState is the sharded, per-(session) channel-state table backing
// AMMADDetector. Sharding by an FNV hash of the channel name avoids a
// single global lock across channels while keeping each channel's state
// strictly serial, matching spec.md §5's no-intra-channel-contention
// requirement.
type AMMADState struct {
	shards [ammadShardCount]*ammadShard
}

// NewAMMADState constructs an empty per-channel state table.
func NewAMMADState() *AMMADState {
	s := &AMMADState{}
	for i := range s.shards {
		s.shards[i] = &ammadShard{channels: make(map[string]*ammadChannelState)}
	}
	return s
}

func (s *AMMADState) shardFor(channel string) *ammadShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(channel))
	return s.shards[h.Sum32()&(ammadShardCount-1)]
}

func (s *AMMADState) stateFor(channel string) *ammadChannelState {
	shard := s.shardFor(channel)
	shard.mu.RLock()
	st := shard.channels[channel]
	shard.mu.RUnlock()
	if st != nil {
		return st
	}
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if st = shard.channels[channel]; st == nil {
		st = newAMMADChannelState()
		shard.channels[channel] = st
	}
	return st
}

// Reset clears all per-channel state (spec.md §4.7's registry reset); it is
// reached through Registry.Reset.
func (s *AMMADState) Reset() {
	for _, shard := range s.shards {
		shard.mu.Lock()
		shard.channels = make(map[string]*ammadChannelState)
		shard.mu.Unlock()
	}
}

// Len returns the number of channels with live state, used by the health
// probe in internal/telemetry/health.
func (s *AMMADState) Len() int {
	n := 0
	for _, shard := range s.shards {
		shard.mu.RLock()
		n += len(shard.channels)
		shard.mu.RUnlock()
	}
	return n
}

// AMMADDetector implements Detector for method "ammad", delegating to a
// shared AMMADState and ChannelConfigProvider (spec.md §4.6).
type AMMADDetector struct {
	State    *AMMADState
	Channels ChannelConfigProvider
}

func (d *AMMADDetector) Detect(values []float64, w int, tau float64, channel string) bool {
	if len(values) == 0 {
		return false
	}
	current := values[len(values)-1]
	cfg := d.Channels.Config(channel)
	if tau > 0 {
		cfg.Threshold = tau
	}
	limit, ok := d.Channels.SafetyLimit(channel)
	var limitPtr *SafetyLimit
	if ok {
		limitPtr = &limit
	}
	return d.State.stateFor(channel).evaluate(current, cfg, limitPtr)
}
