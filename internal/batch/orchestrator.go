// Package batch implements the batch orchestrator (spec.md §4.9): apply
// the configured detector to every row of a prepared record sequence,
// fanning each row's channel detections out concurrently.
package batch

import (
	"context"
	"log"
	"sync"

	"github.com/99souls/wellflow/internal/analysis"
	"golang.org/x/sync/errgroup"
)

// TimeChannel is the distinguished key excluded from detection and passed
// through unchanged (spec.md §4.9).
const TimeChannel = "time"

// Record is one input row: a channel name (other than "time") mapped to
// its numeric sample, plus whatever value lives under "time".
type Record map[string]float64

// Cell is a (value, decision) pair, the unit of the response's per-row,
// per-channel output.
type Cell struct {
	Value    float64
	Decision bool
}

// ResultRow is one output row: every non-time channel mapped to its Cell,
// plus the passthrough time value.
type ResultRow struct {
	Cells map[string]Cell
	Time  float64
}

// Response is the full batch result (spec.md §6.4).
type Response struct {
	TotalRecords   int
	TotalAnomalies int
	Data           []ResultRow
}

// Run applies state's configured detector to every record in order,
// fanning each record's channel detections out concurrently via
// errgroup's structured await-all (spec.md §5's "structured concurrency").
// A detector fault on one channel of one row is absorbed as decision
// false for that cell and logged; it never aborts the batch (spec.md §7,
// DetectorFault).
func Run(ctx context.Context, state *analysis.State, records []Record) (Response, error) {
	resp := Response{
		TotalRecords: len(records),
		Data:         make([]ResultRow, len(records)),
	}

	for i, rec := range records {
		row := ResultRow{Cells: make(map[string]Cell, len(rec)), Time: rec[TimeChannel]}

		g, gctx := errgroup.WithContext(ctx)
		var mu sync.Mutex
		for channel, value := range rec {
			if channel == TimeChannel {
				continue
			}
			channel, value := channel, value
			g.Go(func() error {
				decision, err := safeObserve(state, channel, value)
				mu.Lock()
				row.Cells[channel] = Cell{Value: value, Decision: decision}
				mu.Unlock()
				if err != nil {
					log.Printf("batch: detector fault on channel %q (row %d): %v", channel, i, err)
				}
				return gctx.Err()
			})
		}
		// errgroup.Group.Wait's only error source here is ctx
		// cancellation; detector faults are swallowed inside each
		// goroutine per spec.md §7.
		if err := g.Wait(); err != nil {
			return Response{}, err
		}

		for _, cell := range row.Cells {
			if cell.Decision {
				resp.TotalAnomalies++
			}
		}
		resp.Data[i] = row
	}

	return resp, nil
}

// safeObserve absorbs any detector-side error as decision=false, matching
// the DetectorFault policy in spec.md §7.
func safeObserve(state *analysis.State, channel string, value float64) (bool, error) {
	decision, err := state.Observe(channel, value)
	if err != nil {
		return false, err
	}
	return decision, nil
}
