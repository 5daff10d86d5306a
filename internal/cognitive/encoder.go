package cognitive

import (
	"context"
	"strings"

	"github.com/cogmem/engram/internal/memerr"
	"github.com/cogmem/engram/pkg/types"
)

// CognitiveEncoder fuses a semantic embedding with the 16 rule-derived
// dimensions into one cognitive vector (§4.3): concatenate, scale the
// dimension block relative to the embedding block, then L2-normalize so
// cosine similarity in VectorStore.Search behaves consistently regardless
// of which axis dominates a given memory.
type CognitiveEncoder struct {
	embedder   EmbeddingProvider
	extractor  *DimensionExtractor
	// DimensionWeight scales the 16-wide dimension block before
	// concatenation, since it would otherwise be drowned out by a
	// much higher-dimensional embedding block under cosine similarity.
	DimensionWeight float64
}

func NewCognitiveEncoder(embedder EmbeddingProvider, extractor *DimensionExtractor) *CognitiveEncoder {
	return &CognitiveEncoder{embedder: embedder, extractor: extractor, DimensionWeight: 4.0}
}

// Dimension reports the fused vector's fixed width.
func (c *CognitiveEncoder) Dimension() int {
	return c.embedder.Dimension() + types.DimensionCount
}

// Encode produces the fused cognitive vector and the raw Dimensions struct
// (the latter is stored alongside the vector for explainability, per the
// Memory.Dimensions field).
func (c *CognitiveEncoder) Encode(ctx context.Context, content string) ([]float64, types.Dimensions, error) {
	if strings.TrimSpace(content) == "" {
		return nil, types.Dimensions{}, memerr.New(memerr.EncodingError, "content is empty")
	}
	semantic, err := c.embedder.Embed(ctx, content)
	if err != nil {
		return nil, types.Dimensions{}, memerr.Wrap(memerr.EncodingError, "embed content", err)
	}
	dims := c.extractor.Extract(content)

	fused := make([]float64, 0, len(semantic)+types.DimensionCount)
	fused = append(fused, semantic...)
	for _, d := range dims.Flatten() {
		fused = append(fused, d*c.DimensionWeight)
	}
	normalize(fused)
	return fused, dims, nil
}

// EncodeBatch encodes multiple contents, sharing one embedding batch call.
func (c *CognitiveEncoder) EncodeBatch(ctx context.Context, contents []string) ([][]float64, []types.Dimensions, error) {
	for i, content := range contents {
		if strings.TrimSpace(content) == "" {
			return nil, nil, memerr.New(memerr.EncodingError, "content is empty").WithPayload("index", i)
		}
	}
	semantics, err := c.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		return nil, nil, memerr.Wrap(memerr.EncodingError, "embed batch", err)
	}
	vectors := make([][]float64, len(contents))
	dimsOut := make([]types.Dimensions, len(contents))
	for i, content := range contents {
		dims := c.extractor.Extract(content)
		dimsOut[i] = dims
		fused := make([]float64, 0, len(semantics[i])+types.DimensionCount)
		fused = append(fused, semantics[i]...)
		for _, d := range dims.Flatten() {
			fused = append(fused, d*c.DimensionWeight)
		}
		normalize(fused)
		vectors[i] = fused
	}
	return vectors, dimsOut, nil
}
