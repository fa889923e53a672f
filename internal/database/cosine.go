package database

import "math"

// maxCosineDistance is returned for vectors that cannot be compared.
const maxCosineDistance = 2.0

// CosineDistance returns 1 - cosine similarity, in [0, 2]. Vectors of
// different length, empty vectors and zero vectors are maximally distant
// so they sort after every real match.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return maxCosineDistance
	}

	var dot, na, nb float64
	for i, x := range a {
		y := float64(b[i])
		dot += float64(x) * y
		na += float64(x) * float64(x)
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return maxCosineDistance
	}

	// float error can push the similarity slightly outside [-1, 1]
	sim := max(-1, min(1, dot/math.Sqrt(na*nb)))
	return 1 - sim
}
