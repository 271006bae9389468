package store

import (
	"math"
	"sort"
)

// Similarity scores a against b under metric; higher is more similar.
// Cosine lies in [-1, 1], euclidean is mapped to (0, 1] as 1/(1+d).
func Similarity(metric Metric, a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	switch metric {
	case MetricDotProduct:
		return dot(a, b)
	case MetricEuclidean:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return 1 / (1 + math.Sqrt(sum))
	default:
		var na, nb float64
		for i := range a {
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			return 0
		}
		return dot(a, b) / (math.Sqrt(na) * math.Sqrt(nb))
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// RankMatches sorts matches by descending score, breaking ties by id so the
// order is stable for a fixed index, and keeps the first topK.
func RankMatches(matches []*VectorMatch, topK int) []*VectorMatch {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if topK >= 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}
