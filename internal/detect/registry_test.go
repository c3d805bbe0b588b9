package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolveCaseInsensitive(t *testing.T) {
	r := NewRegistry(nil)
	for _, name := range []string{"Z_SCORE", "z_score", "LOF", "lof", "Fft", "AMMAD", "ammad"} {
		d, err := r.Resolve(name)
		require.NoError(t, err)
		assert.NotNil(t, d)
	}
}

func TestRegistryResolveUnknownMethod(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Resolve("kalman")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestIsValidMethod(t *testing.T) {
	assert.True(t, IsValidMethod("Z_Score"))
	assert.True(t, IsValidMethod("ammad"))
	assert.False(t, IsValidMethod("unknown"))
}

func TestRegistryAMMADStateSharedAcrossResolveCalls(t *testing.T) {
	r := NewRegistry(nil)
	d1, err := r.Resolve(MethodAMMAD)
	require.NoError(t, err)
	d2, err := r.Resolve(MethodAMMAD)
	require.NoError(t, err)
	assert.Same(t, d1, d2)

	ammad := d1.(*AMMADDetector)
	require.NotNil(t, ammad)
	values := make([]float64, 0, 21)
	for i := 0; i < 21; i++ {
		values = append(values, 10)
	}
	d2.Detect(values, 0, 0, "shared")
	assert.Equal(t, 1, r.AMMADChannelCount())
}

func TestRegistryResetClearsAMMADState(t *testing.T) {
	r := NewRegistry(nil)
	d, err := r.Resolve(MethodAMMAD)
	require.NoError(t, err)
	values := make([]float64, 21)
	for i := range values {
		values[i] = 5
	}
	d.Detect(values, 0, 0, "x")
	require.Equal(t, 1, r.AMMADChannelCount())
	r.Reset()
	assert.Equal(t, 0, r.AMMADChannelCount())
}

func TestNewRegistryDefaultsNilProvider(t *testing.T) {
	r := NewRegistry(nil)
	d, err := r.Resolve(MethodAMMAD)
	require.NoError(t, err)
	assert.False(t, d.Detect([]float64{1, 2, 3}, 0, 0, "c"))
}
