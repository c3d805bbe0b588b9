// Package stream implements the stream orchestrator (spec.md §4.10): one
// subscriber per session, replaying a prepared record sequence with live
// reconfiguration interleaved between emissions.
package stream

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/99souls/wellflow/internal/analysis"
	"github.com/99souls/wellflow/internal/telemetry/metrics"
	"github.com/google/uuid"
)

// TimeChannel mirrors batch.TimeChannel; kept separate to avoid an
// internal/batch<->internal/stream import for one constant.
const TimeChannel = "time"

// Record is one input row (spec.md §6.5).
type Record map[string]float64

// Frame is the outbound emission shape (spec.md §6.3):
// {"data": {channel: [value, decision], ..., "time": t}}.
type Frame struct {
	Data map[string]any `json:"data"`
}

// ErrorSink receives malformed-control-frame and invalid-parameter errors
// without terminating the session (spec.md §7).
type ErrorSink interface {
	ReportError(err error)
}

// ErrorSinkFunc adapts a plain function to ErrorSink.
type ErrorSinkFunc func(error)

func (f ErrorSinkFunc) ReportError(err error) { f(err) }

// Sender delivers one outbound Frame. A non-nil error is treated as a
// TransportFailure and terminates the session's loop (spec.md §7).
type Sender interface {
	Send(Frame) error
}

// Controller supplies the next pending control frame, if any, without
// blocking. ok is false when no message is currently available; closed is
// true once the control channel itself has been closed, at which point
// the session loop exits (spec.md §4.10 step 1).
type Controller interface {
	Poll(ctx context.Context) (raw []byte, ok bool, closed bool)
}

// pollDeadline is the short non-blocking poll window (spec.md §4.10 step
// 1, "~10 ms").
const pollDeadline = 10 * time.Millisecond

// Session owns one Analysis State and replays records to one subscriber
// (spec.md §4.10). It is not safe for concurrent use by more than one
// goroutine; the single-threaded cooperative loop is the whole point.
type Session struct {
	ID      string
	State   *analysis.State
	Records []Record

	Sender     Sender
	Controller Controller
	Errors     ErrorSink

	// Metrics records this session's lifecycle (spec.md §4.11's
	// stream_sessions_active gauge). NewSession sets a noop provider, and
	// Run substitutes one if the field has been set to nil.
	Metrics metrics.Provider

	// Pause overrides the inter-emission sleep duration; nil uses the
	// spec's uniform [1s, 3s) draw. Tests substitute a zero-length pause
	// so the loop runs at full speed.
	Pause func() time.Duration

	cursor int
	rng    *rand.Rand
}

// NewSession constructs a Session with a fresh Analysis State (method fft,
// W=max(FFT_W,LOF_W,Z_W), tau=0.5, per spec.md §4.10) and a random ID
// suitable for namespacing AMMAD state or logging (spec.md §9's
// per-session AMMAD state recommendation; see internal/analysis's State,
// which already owns a fresh detect.Registry/AMMADState per session so no
// further namespacing is required here).
func NewSession(records []Record, sender Sender, controller Controller, errs ErrorSink) *Session {
	return &Session{
		ID:         uuid.NewString(),
		State:      analysis.New(nil),
		Records:    records,
		Sender:     sender,
		Controller: controller,
		Errors:     errs,
		Metrics:    metrics.NewNoopProvider(),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run executes the cooperative loop until the control channel closes, the
// context is cancelled, or a send fails (spec.md §4.10). It never retries
// a failed send; a parse failure on a control frame is reported to Errors
// and the loop continues (spec.md §7).
func (s *Session) Run(ctx context.Context) error {
	if s.Metrics == nil {
		s.Metrics = metrics.NewNoopProvider()
	}
	sessionsActive := s.Metrics.NewGauge(metrics.StreamSessionsActive)
	sessionsActive.Add(1)
	defer sessionsActive.Add(-1)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if s.Controller != nil {
			pollCtx, cancel := context.WithTimeout(ctx, pollDeadline)
			raw, ok, closed := s.Controller.Poll(pollCtx)
			cancel()
			if closed {
				return nil
			}
			if ok {
				s.applyControlFrame(raw)
			}
		}

		if len(s.Records) == 0 {
			return nil
		}

		rec := s.Records[s.cursor]
		frame, err := s.emitOne(rec)
		if err != nil {
			return err
		}
		if s.Sender != nil {
			if err := s.Sender.Send(frame); err != nil {
				return fmt.Errorf("stream: send failed, terminating session %s: %w", s.ID, err)
			}
		}

		s.cursor++
		if s.cursor >= len(s.Records) {
			s.cursor = 0
			s.State.Reset()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.interEmissionPause()):
		}
	}
}

// interEmissionPause draws a uniformly random duration in [1s, 3s)
// (spec.md §4.10 step 3), unless s.Pause overrides it.
func (s *Session) interEmissionPause() time.Duration {
	if s.Pause != nil {
		return s.Pause()
	}
	return time.Second + time.Duration(s.rng.Int63n(int64(2*time.Second)))
}

// emitOne pushes rec's non-time channels through the Analysis State
// sequentially (deterministic order, unlike batch's fan-out) and builds
// the outbound frame.
func (s *Session) emitOne(rec Record) (Frame, error) {
	data := make(map[string]any, len(rec))
	for channel, value := range rec {
		if channel == TimeChannel {
			continue
		}
		decision, err := s.State.Observe(channel, value)
		if err != nil {
			// DetectorFault: absorbed as false, logged via the error
			// sink rather than aborting emission (spec.md §7).
			if s.Errors != nil {
				s.Errors.ReportError(fmt.Errorf("stream: detector fault on channel %q: %w", channel, err))
			}
			decision = false
		}
		data[channel] = [2]any{value, decision}
	}
	data[TimeChannel] = rec[TimeChannel]
	return Frame{Data: data}, nil
}

// applyControlFrame parses raw and applies it to the session's Analysis
// State. A parse failure or any per-field rejection is reported to the
// error sink; the loop never terminates because of it (spec.md §7,
// MalformedControlFrame).
func (s *Session) applyControlFrame(raw []byte) {
	msg, err := analysis.ParseControlMessage(raw)
	if err != nil {
		s.reportError(fmt.Errorf("stream: malformed control frame: %w", err))
		return
	}
	for _, fieldErr := range s.State.ApplyMessage(msg) {
		s.reportError(fmt.Errorf("stream: rejected control frame field: %w", fieldErr))
	}
}

func (s *Session) reportError(err error) {
	if s.Errors != nil {
		s.Errors.ReportError(err)
	}
}

// ErrTransport marks a terminal transport failure distinctly from the
// Sender's own error so callers can match on it with errors.Is if the
// underlying Sender wraps it.
var ErrTransport = errors.New("stream: transport failure")
