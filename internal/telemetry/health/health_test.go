package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateWithNoProbesIsUnknown(t *testing.T) {
	e := NewEvaluator(time.Minute)
	snap := e.Evaluate(context.Background())
	assert.Equal(t, StatusUnknown, snap.Overall)
}

func TestEvaluateRollsUpWorstStatus(t *testing.T) {
	e := NewEvaluator(time.Minute,
		ProbeFunc(func(ctx context.Context) ProbeResult { return Healthy("a") }),
		ProbeFunc(func(ctx context.Context) ProbeResult { return Degraded("b", "slow") }),
	)
	snap := e.Evaluate(context.Background())
	assert.Equal(t, StatusDegraded, snap.Overall)
	require.Len(t, snap.Probes, 2)
}

func TestEvaluateUnhealthyDominatesDegraded(t *testing.T) {
	e := NewEvaluator(time.Minute,
		ProbeFunc(func(ctx context.Context) ProbeResult { return Degraded("a", "slow") }),
		ProbeFunc(func(ctx context.Context) ProbeResult { return Unhealthy("b", "down") }),
	)
	snap := e.Evaluate(context.Background())
	assert.Equal(t, StatusUnhealthy, snap.Overall)
}

func TestEvaluateCachesWithinTTL(t *testing.T) {
	calls := 0
	e := NewEvaluator(time.Hour, ProbeFunc(func(ctx context.Context) ProbeResult {
		calls++
		return Healthy("a")
	}))
	e.Evaluate(context.Background())
	e.Evaluate(context.Background())
	assert.Equal(t, 1, calls)
}

func TestForceInvalidateRecomputes(t *testing.T) {
	calls := 0
	e := NewEvaluator(time.Hour, ProbeFunc(func(ctx context.Context) ProbeResult {
		calls++
		return Healthy("a")
	}))
	e.Evaluate(context.Background())
	e.ForceInvalidate()
	e.Evaluate(context.Background())
	assert.Equal(t, 2, calls)
}

func TestAMMADChannelCountProbeDegradesPastSoftLimit(t *testing.T) {
	p := AMMADChannelCountProbe("ammad", func() int { return 50 }, 10)
	result := p.Check(context.Background())
	assert.Equal(t, StatusDegraded, result.Status)
}

func TestConfigStalenessProbeUnhealthyPastMaxAge(t *testing.T) {
	old := time.Now().Add(-time.Hour)
	p := ConfigStalenessProbe("safety_limits", func() time.Time { return old }, time.Minute)
	result := p.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, result.Status)
}

func TestDetectorFaultRecencyProbeDegradesWithinWindow(t *testing.T) {
	recent := time.Now().Add(-time.Second)
	p := DetectorFaultRecencyProbe("detector_faults", func() time.Time { return recent }, time.Minute)
	result := p.Check(context.Background())
	assert.Equal(t, StatusDegraded, result.Status)
}

func TestDetectorFaultRecencyProbeHealthyOutsideWindow(t *testing.T) {
	old := time.Now().Add(-time.Hour)
	p := DetectorFaultRecencyProbe("detector_faults", func() time.Time { return old }, time.Minute)
	result := p.Check(context.Background())
	assert.Equal(t, StatusHealthy, result.Status)
}

func TestDetectorFaultRecencyProbeHealthyWithNoFaultYet(t *testing.T) {
	p := DetectorFaultRecencyProbe("detector_faults", func() time.Time { return time.Time{} }, time.Minute)
	result := p.Check(context.Background())
	assert.Equal(t, StatusHealthy, result.Status)
}

func TestRegisterAddsProbe(t *testing.T) {
	e := NewEvaluator(time.Minute)
	e.Register(ProbeFunc(func(ctx context.Context) ProbeResult { return Healthy("a") }))
	snap := e.Evaluate(context.Background())
	assert.Len(t, snap.Probes, 1)
}
