package vector

import (
	"math"
	"sort"
)

// Cosine returns dot(a,b)/(|a||b|). It is 0 when either vector has zero magnitude or the
// lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Ranked is a position in a candidate list with its score.
type Ranked struct {
	Index int
	Score float64
}

// TopK scores every candidate against query and returns the best topK, highest first. Ties keep
// candidate order. topK <= 0 returns nil; topK beyond the candidate count returns all of them.
func TopK(query []float32, candidates [][]float32, topK int) []Ranked {
	if topK <= 0 || len(candidates) == 0 {
		return nil
	}
	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		ranked[i] = Ranked{Index: i, Score: Cosine(query, c)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if topK < len(ranked) {
		ranked = ranked[:topK]
	}
	return ranked
}
