package batch

import (
	"context"
	"testing"

	"github.com/99souls/wellflow/internal/analysis"
	"github.com/99souls/wellflow/internal/detect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newZScoreState(w int, tau float64) *analysis.State {
	s := analysis.New(nil)
	if err := s.SetMethod(detect.MethodZScore); err != nil {
		panic(err)
	}
	if err := s.SetWindowSize(w); err != nil {
		panic(err)
	}
	if err := s.SetScoreThreshold(tau); err != nil {
		panic(err)
	}
	return s
}

// Invariant 8 (spec.md §8): data has exactly N entries in input order;
// every entry carries the same channel keys the input had, plus time.
func TestRunProducesOneRowPerRecordWithSameKeys(t *testing.T) {
	s := newZScoreState(30, 3.0)
	records := []Record{
		{"A": 1, "B": 2, TimeChannel: 100},
		{"A": 1.1, "B": 2.1, TimeChannel: 101},
		{"A": 1.2, "B": 2.2, TimeChannel: 102},
	}
	resp, err := Run(context.Background(), s, records)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.TotalRecords)
	require.Len(t, resp.Data, 3)
	for i, row := range resp.Data {
		assert.Equal(t, records[i][TimeChannel], row.Time)
		assert.Contains(t, row.Cells, "A")
		assert.Contains(t, row.Cells, "B")
	}
}

// S6 from spec.md §8: 3 records, 2 channels, method z_score, W=30. With
// all values within 1 sigma, total_anomalies is 0. A gross outlier on
// channel A, run after the window has warmed up, makes total_anomalies 1
// with only that row's "A" cell flagged.
func TestScenarioS6BatchAggregate(t *testing.T) {
	within1Sigma := []Record{
		{"A": 10, "B": 20, TimeChannel: 0},
		{"A": 10, "B": 20, TimeChannel: 1},
		{"A": 10, "B": 20, TimeChannel: 2},
	}
	resp, err := Run(context.Background(), newZScoreState(30, 3.0), within1Sigma)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.TotalAnomalies)

	// A short window (W=5), warmed up with five observed samples per
	// channel, then a one-row batch carrying a gross outlier on A.
	s := newZScoreState(5, 3.0)
	for i := 0; i < 5; i++ {
		_, err := s.Observe("A", 10.0+float64(i)*0.01)
		require.NoError(t, err)
		_, err = s.Observe("B", 20.0+float64(i)*0.01)
		require.NoError(t, err)
	}
	outlierRow := Record{"A": 50.0, "B": 20.0, TimeChannel: 3}
	resp2, err := Run(context.Background(), s, []Record{outlierRow})
	require.NoError(t, err)
	assert.Equal(t, 1, resp2.TotalAnomalies)
	assert.True(t, resp2.Data[0].Cells["A"].Decision)
	assert.False(t, resp2.Data[0].Cells["B"].Decision)
}

func TestRunIsDeterministicAcrossRepeatedCalls(t *testing.T) {
	records := []Record{
		{"A": 1, TimeChannel: 0},
		{"A": 2, TimeChannel: 1},
	}
	resp1, err := Run(context.Background(), newZScoreState(30, 3.0), records)
	require.NoError(t, err)
	resp2, err := Run(context.Background(), newZScoreState(30, 3.0), records)
	require.NoError(t, err)
	assert.Equal(t, resp1.TotalAnomalies, resp2.TotalAnomalies)
}
