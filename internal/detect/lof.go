package detect

import (
	"math"
	"sort"
)

// LOFDetector flags a sample whose local-density ratio against its k nearest
// neighbours in the trailing window exceeds tau (spec.md §4.4).
type LOFDetector struct{}

func (LOFDetector) Detect(values []float64, w int, tau float64, channel string) bool {
	if len(values) <= w || w <= 0 {
		return false
	}
	current := values[len(values)-1]
	window := values[len(values)-1-w : len(values)-1]
	if isConstantSignal(window, current) {
		return false
	}
	lrdCurrent := localReachabilityDensity(current, window, DefaultLOFK)
	if lrdCurrent < epsilon {
		return false
	}
	score := lofScoreWithK(window, current, DefaultLOFK, lrdCurrent)
	return score > tau
}

// isConstantSignal reports whether every window element and the current
// sample are within epsilon of the window's first element (spec.md §4.4,
// invariant 3 in §8).
func isConstantSignal(window []float64, current float64) bool {
	if len(window) == 0 {
		return false
	}
	first := window[0]
	if math.Abs(current-first) >= epsilon {
		return false
	}
	for _, v := range window {
		if math.Abs(v-first) >= epsilon {
			return false
		}
	}
	return true
}

// ammadLOFK computes the lightweight k used by AMMAD's sub-detector variant:
// k = min(5, max(3, W/15)) (spec.md §4.4).
func ammadLOFK(w int) int {
	k := w / 15
	if k < 3 {
		k = 3
	}
	if k > 5 {
		k = 5
	}
	return k
}

// lofRaw computes the raw (unclamped, un-thresholded) LOF score for the
// current sample against the trailing w-element window, using k neighbours.
// Returns 0 if there isn't enough history or the signal/density guards trip;
// callers (AMMAD's sub-score and consensus vote) treat 0 as "no signal".
func lofRaw(values []float64, w, k int) float64 {
	if len(values) <= w || w <= 0 {
		return 0
	}
	current := values[len(values)-1]
	window := values[len(values)-1-w : len(values)-1]
	if isConstantSignal(window, current) {
		return 0
	}
	lrdCurrent := localReachabilityDensity(current, window, k)
	if lrdCurrent < epsilon {
		return 0
	}
	return lofScoreWithK(window, current, k, lrdCurrent)
}

// lofScoreWithK computes mean_neighbor_lrd / lrd(current) for the k nearest
// window neighbours of current, given current's own lrd (already computed
// by the caller to avoid recomputation).
func lofScoreWithK(window []float64, current float64, k int, lrdCurrent float64) float64 {
	n := len(window)
	kUsed := k
	if kUsed > n {
		kUsed = n
	}
	if kUsed < 1 {
		return 0
	}
	idxs := nearestIndices(current, window, kUsed)
	var sum float64
	refs := make([]float64, 0, n-1)
	for _, idx := range idxs {
		refs = refs[:0]
		for j, v := range window {
			if j != idx {
				refs = append(refs, v)
			}
		}
		sum += localReachabilityDensity(window[idx], refs, k)
	}
	meanNeighborLRD := sum / float64(len(idxs))
	return meanNeighborLRD / lrdCurrent
}

// localReachabilityDensity implements lrd(p, S) from spec.md §4.4: sort
// |s-p| for s in refs; let k_dist be the k-th smallest; lrd is the
// reciprocal of the mean of max(|p-s|, k_dist) over the k nearest s. If refs
// is empty or the density collapses (mean reachability ~0), lrd defaults to 1.
func localReachabilityDensity(p float64, refs []float64, k int) float64 {
	n := len(refs)
	if n == 0 {
		return 1
	}
	kUsed := k
	if kUsed > n {
		kUsed = n
	}
	if kUsed < 1 {
		kUsed = 1
	}
	dists := make([]float64, n)
	for i, v := range refs {
		dists[i] = math.Abs(v - p)
	}
	sort.Float64s(dists)
	kDist := dists[kUsed-1]
	var sum float64
	for i := 0; i < kUsed; i++ {
		d := dists[i]
		if d < kDist {
			d = kDist
		}
		sum += d
	}
	mean := sum / float64(kUsed)
	if mean < epsilon {
		return 1
	}
	return 1 / mean
}

// nearestIndices returns the indices (into refs) of the k reference points
// closest to p, ordered nearest-first.
func nearestIndices(p float64, refs []float64, k int) []int {
	type pair struct {
		idx  int
		dist float64
	}
	pairs := make([]pair, len(refs))
	for i, v := range refs {
		pairs[i] = pair{idx: i, dist: math.Abs(v - p)}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].dist < pairs[j].dist })
	if k > len(pairs) {
		k = len(pairs)
	}
	out := make([]int, k)
	for i := 0; i < k; i++ {
		out[i] = pairs[i].idx
	}
	return out
}
