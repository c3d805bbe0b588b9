package analysis

import (
	"testing"

	"github.com/99souls/wellflow/internal/detect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditorRecordsSuccessfulMutations(t *testing.T) {
	a := NewAuditor()
	s := New(nil).WithAuditor(a)

	require.NoError(t, s.SetMethod(detect.MethodZScore))
	require.NoError(t, s.SetWindowSize(10))
	require.NoError(t, s.SetScoreThreshold(1.5))

	records := a.Records()
	require.Len(t, records, 3)
	assert.Equal(t, detect.MethodZScore, records[0].Config.Method)
	assert.Equal(t, 10, records[1].Config.WindowSize)
	assert.Equal(t, 1.5, records[2].Config.Threshold)
	for _, r := range records {
		assert.NotEmpty(t, r.Hash)
	}
}

func TestAuditorSkipsRejectedMutations(t *testing.T) {
	a := NewAuditor()
	s := New(nil).WithAuditor(a)

	err := s.SetWindowSize(-5)
	require.Error(t, err)
	assert.Empty(t, a.Records())
}

func TestAuditorNotAttachedIsNoop(t *testing.T) {
	s := New(nil)
	assert.NotPanics(t, func() {
		_ = s.SetMethod(detect.MethodLOF)
	})
}
