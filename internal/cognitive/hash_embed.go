package cognitive

import (
	"hash/fnv"
	"math"
	"strings"
)

// hashEmbed projects text into a dim-wide unit vector by hashing each
// lowercased token into a bucket and accumulating a signed weight, the
// classic hashing-trick embedding. Deterministic and dependency-free, which
// is what makes LocalProvider usable without a model download.
func hashEmbed(text string, dim int) []float64 {
	v := make([]float64, dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(dim))
		sign := 1.0
		if sum&1 == 1 {
			sign = -1.0
		}
		v[idx] += sign
	}
	normalize(v)
	return v
}

func normalize(v []float64) {
	var norm float64
	for _, f := range v {
		norm += f * f
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
}
