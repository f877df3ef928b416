package match

import "math"

// CosineSimilarity returns the cosine similarity between two vectors, in
// [-1, 1]. Embeddings produced by the pipeline are L2-normalized, so this is
// effectively a dot product; the norms are still computed to keep the result
// correct for arbitrary input. Mismatched or zero vectors score -1.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return -1
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to absorb floating point error
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim
}

// confidence maps a similarity score to the bounded 0-100 scale returned to
// callers. Monotonic in the score; negative similarity floors at 0.
func confidence(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 100
	}
	return math.Round(score*1000) / 10
}
