package postprocess

import (
	"sort"

	"github.com/chewxy/math32"
)

// Softmax returns exp(x_i - max) / sum(exp(x_j - max)).
//
// The max subtraction keeps large logits from overflowing; the result is
// invariant to adding a constant to every input. An empty input yields nil.
func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	peak := logits[0]
	for _, v := range logits[1:] {
		peak = math32.Max(peak, v)
	}

	out := make([]float32, len(logits))
	var sum float32
	for i, v := range logits {
		out[i] = math32.Exp(v - peak)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// ArgMax returns the index of the first maximum, or -1 for an empty slice.
func ArgMax(values []float32) int {
	if len(values) == 0 {
		return -1
	}
	best := 0
	for i, v := range values[1:] {
		if v > values[best] {
			best = i + 1
		}
	}
	return best
}

// TopN returns the indices of the n largest values in descending order.
//
// Equal values keep ascending index order. n is clamped to len(values); a
// non-positive n yields an empty result.
//
// Arguments:
//   - values: The scores to rank.
//   - n: The number of indices to return.
//
// Returns:
//   - []int: Up to n indices into values.
func TopN(values []float32, n int) []int {
	if n <= 0 || len(values) == 0 {
		return []int{}
	}
	if n > len(values) {
		n = len(values)
	}
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return values[idx[a]] > values[idx[b]]
	})
	return idx[:n]
}
