package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/cogmem/engram/internal/cognitive"
	"github.com/cogmem/engram/internal/config"
	"github.com/cogmem/engram/internal/storage"
	"github.com/cogmem/engram/pkg/types"
)

// Associative edge weights for §4.11's
// α·cosine + β·lexical_overlap + γ·structural_proximity scoring.
const (
	associativeCosineWeight     = 0.6
	associativeLexicalWeight    = 0.25
	associativeStructuralWeight = 0.15
	associativeEdgeMinScore     = 0.55
	sequentialEdgeStrength      = 0.7
	hierarchicalEdgeStrength    = 1.0
)

// Linguistic feature detectors for classifyLevel, matching the regex-
// density style cognitive.DimensionExtractor uses for its own contextual
// dimensions rather than a statistical POS tagger.
var (
	imperativeVerbRe = regexp.MustCompile(`(?i)\b(run|add|remove|fix|implement|refactor|create|delete|update|install|configure|execute|build|deploy|invoke|ensure)\b`)
	nounSuffixRe     = regexp.MustCompile(`(?i)\b\w+(tion|ment|ness|ity|ance|ence|ism|ship)\b`)
	verbSuffixRe     = regexp.MustCompile(`(?i)\b\w+(ing|izes?|ises?|ed)\b`)
)

// classifyLevel derives a chunk's intended hierarchy level from linguistic
// features per §4.11 step 2: noun/verb ratio, imperative density, code
// fraction, and heading depth. A code fraction above 0.3 or a high
// imperative density mark procedural/episodic content (L2). A high
// noun/verb ratio with low imperative density and a shallow heading marks
// abstract/principle-like content (L0). Everything else is contextual (L1).
func classifyLevel(text string, codeFraction float64, depth int) types.Level {
	if codeFraction > 0.3 {
		return types.LevelEpisode
	}

	words := strings.Fields(text)
	wordCount := float64(len(words))
	if wordCount == 0 {
		return types.LevelContext
	}

	imperativeDensity := float64(len(imperativeVerbRe.FindAllStringIndex(text, -1))) / wordCount
	if imperativeDensity > 0.04 {
		return types.LevelEpisode
	}

	nounCount := float64(len(nounSuffixRe.FindAllStringIndex(text, -1)))
	verbCount := float64(len(verbSuffixRe.FindAllStringIndex(text, -1)))
	nounVerbRatio := nounCount
	switch {
	case verbCount > 0:
		nounVerbRatio = nounCount / verbCount
	case nounCount > 0:
		nounVerbRatio = nounCount * 2
	}

	if nounVerbRatio >= 1.5 && imperativeDensity < 0.02 && depth <= 1 {
		return types.LevelConcept
	}
	return types.LevelContext
}

// DocumentPipeline ingests Markdown documents into the hierarchy: each
// heading section becomes one or more chunks (token-budget bounded),
// encoded into a cognitive vector and stored as a memory whose level
// (L0/L1/L2) classifyLevel derives from the chunk's content, linked to its
// siblings and ancestor by hierarchical/sequential/associative edges.
type DocumentPipeline struct {
	encoder  *cognitive.CognitiveEncoder
	memories storage.MemoryStore
	vectors  storage.VectorStore
	graph    storage.ConnectionGraph
	cfg      config.IngestionConfig

	// Progress, if set, is invoked after each chunk is stored — the
	// callback surface §5 asks for on long-running ingestion.
	Progress func(path string, chunkIndex, totalChunks int)
}

func NewDocumentPipeline(encoder *cognitive.CognitiveEncoder, memories storage.MemoryStore, vectors storage.VectorStore, graph storage.ConnectionGraph, cfg config.IngestionConfig) *DocumentPipeline {
	return &DocumentPipeline{encoder: encoder, memories: memories, vectors: vectors, graph: graph, cfg: cfg}
}

// chunkMemory pairs a stored Memory with the DocumentNode/chunk index it
// came from, for edge derivation after every chunk in a file is created.
type chunkMemory struct {
	memory *types.Memory
	node   *DocumentNode
}

// IngestResult summarizes one file's ingestion: how many chunks were
// stored, the id of its first (root) chunk — the target of cross-document
// wiki-link edges — and the wiki-links the file itself contains, so a
// caller ingesting a whole vault can resolve them once every file's root
// is known.
type IngestResult struct {
	Title     string
	ChunkIDs  []string
	RootID    string
	WikiLinks []WikiLink
}

// Ingest parses, chunks, encodes, and stores one document. Re-ingesting the
// same sourcePath first deletes every existing memory under that path
// (cascading through DeleteBySourcePath), making the operation idempotent
// per file, per §4.11's replace-on-reload semantics.
func (p *DocumentPipeline) Ingest(ctx context.Context, projectID string, absolutePath, relativePath string, content []byte) (*IngestResult, error) {
	parsed, err := ParseMarkdownFile(content, absolutePath, relativePath)
	if err != nil {
		return nil, err
	}

	if _, err := p.memories.DeleteBySourcePath(ctx, projectID, relativePath); err != nil {
		return nil, err
	}

	tree := BuildDocumentTree(parsed.Title, parsed.Content)
	nodes := Flatten(tree)

	var stored []chunkMemory
	order := 0
	for _, node := range nodes {
		chunks := Chunk(node, p.cfg.ChunkTokenBudget)
		for _, chunkText := range chunks {
			if chunkText == "" {
				continue
			}
			assembled := assembleContent(node, chunkText)
			vector, _, err := p.encoder.Encode(ctx, assembled)
			if err != nil {
				return nil, err
			}

			codeFraction := CodeFraction(chunkText)
			level := classifyLevel(chunkText, codeFraction, node.Depth)

			id := documentChunkID(relativePath, order)
			mem := &types.Memory{
				ID:              id,
				ProjectID:       projectID,
				Level:           level,
				Kind:            types.KindSemantic,
				Content:         assembled,
				CognitiveVector: vector,
				CreatedAt:       time.Now().UTC(),
				LastAccessedAt:  time.Now().UTC(),
				Importance:      0.5,
				Tags:            mergeDocumentTags(parsed.Tags),
				SourcePath:      relativePath,
				Payload: types.Payload{
					Kind: types.PayloadDocumentChunk,
					DocumentChunk: &types.DocumentChunkPayload{
						BreadcrumbPath: node.BreadcrumbPath,
						HeadingDepth:   node.Depth,
						CodeFraction:   codeFraction,
						DocumentOrder:  order,
					},
				},
			}
			if err := p.memories.CreateMemory(ctx, mem); err != nil {
				return nil, err
			}
			if err := p.vectors.EnsureCollection(ctx, projectID, level, len(vector)); err != nil {
				return nil, err
			}
			if err := p.vectors.Upsert(ctx, projectID, level, id, vector); err != nil {
				return nil, err
			}

			stored = append(stored, chunkMemory{memory: mem, node: node})
			order++

			if p.Progress != nil {
				p.Progress(relativePath, order, len(nodes))
			}
		}
	}

	if err := p.linkChunks(ctx, projectID, stored); err != nil {
		return nil, err
	}

	result := &IngestResult{Title: parsed.Title, WikiLinks: parsed.WikiLinks}
	for _, c := range stored {
		result.ChunkIDs = append(result.ChunkIDs, c.memory.ID)
	}
	if len(result.ChunkIDs) > 0 {
		result.RootID = result.ChunkIDs[0]
	}
	return result, nil
}

// LinkWikiReference adds an associative edge from a linking chunk to the
// root chunk of the document a [[wiki-link]] resolves to, per §4.11's
// cross-document wiki-link clause. Strength is fixed below the intra-
// document associative threshold since a bare title match carries less
// confidence than a scored content pair.
func (p *DocumentPipeline) LinkWikiReference(ctx context.Context, projectID, sourceChunkID, targetRootID string) error {
	const wikiLinkEdgeStrength = 0.5
	return p.graph.UpsertEdge(ctx, &types.Connection{
		ProjectID: projectID, SourceID: sourceChunkID, TargetID: targetRootID,
		Type: types.ConnAssociative, Strength: wikiLinkEdgeStrength, CreatedAt: time.Now().UTC(),
	})
}

// linkChunks derives the three edge types among one file's freshly stored
// chunks: sequential between document-order neighbors, hierarchical when
// one chunk's breadcrumb is a strict prefix of another's, and associative
// for any pair scoring above the minimum on the weighted cosine/lexical/
// structural blend.
func (p *DocumentPipeline) linkChunks(ctx context.Context, projectID string, chunks []chunkMemory) error {
	for i := 0; i < len(chunks); i++ {
		if i+1 < len(chunks) {
			if err := p.graph.UpsertEdge(ctx, &types.Connection{
				ProjectID: projectID, SourceID: chunks[i].memory.ID, TargetID: chunks[i+1].memory.ID,
				Type: types.ConnSequential, Strength: sequentialEdgeStrength, CreatedAt: time.Now().UTC(),
			}); err != nil {
				return err
			}
		}
		for j := i + 1; j < len(chunks); j++ {
			a, b := chunks[i], chunks[j]
			if isAncestor(a.node, b.node) {
				if err := p.graph.UpsertEdge(ctx, &types.Connection{
					ProjectID: projectID, SourceID: a.memory.ID, TargetID: b.memory.ID,
					Type: types.ConnHierarchical, Strength: hierarchicalEdgeStrength, CreatedAt: time.Now().UTC(),
				}); err != nil {
					return err
				}
				continue
			}
			score := associativeScore(a, b)
			if score >= associativeEdgeMinScore {
				if err := p.graph.UpsertEdge(ctx, &types.Connection{
					ProjectID: projectID, SourceID: a.memory.ID, TargetID: b.memory.ID,
					Type: types.ConnAssociative, Strength: score, CreatedAt: time.Now().UTC(),
				}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func isAncestor(a, b *DocumentNode) bool {
	if len(a.BreadcrumbPath) >= len(b.BreadcrumbPath) {
		return false
	}
	for i, seg := range a.BreadcrumbPath {
		if b.BreadcrumbPath[i] != seg {
			return false
		}
	}
	return len(b.BreadcrumbPath) > 0 && b.BreadcrumbPath[len(a.BreadcrumbPath)] == a.Heading
}

func associativeScore(a, b chunkMemory) float64 {
	cos := cosineSim(a.memory.CognitiveVector, b.memory.CognitiveVector)
	lex := LexicalOverlap(a.memory.Content, b.memory.Content)
	structural := StructuralProximity(a.node, b.node)
	return cos*associativeCosineWeight + lex*associativeLexicalWeight + structural*associativeStructuralWeight
}

func cosineSim(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// assembleContent prepends the node's breadcrumb title path so a chunk
// read in isolation still carries its section context, per §4.11 step 4.
func assembleContent(node *DocumentNode, chunkText string) string {
	path := append(append([]string{}, node.BreadcrumbPath...), node.Heading)
	breadcrumb := ""
	for _, seg := range path {
		if seg == "" {
			continue
		}
		if breadcrumb != "" {
			breadcrumb += " > "
		}
		breadcrumb += seg
	}
	if breadcrumb == "" {
		return chunkText
	}
	return breadcrumb + " :: " + chunkText
}

// documentChunkID derives a deterministic id from the source path and
// chunk order, so re-ingesting the same file produces the same ids and the
// cascading DeleteBySourcePath/CreateMemory pair behaves as a true replace
// rather than an accumulation of duplicates.
func documentChunkID(sourcePath string, order int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", sourcePath, order)))
	return "doc::chunk::" + hex.EncodeToString(h[:])[:24]
}

// mergeDocumentTags ensures every chunk produced by this pipeline carries
// the documentation content-profile tag, alongside whatever frontmatter/
// inline tags markdown.go already extracted, so DualMemoryStore's decay
// rate picks up the documentation multiplier by default.
func mergeDocumentTags(tags []string) []string {
	for _, t := range tags {
		if t == types.ProfileDocumentation {
			return tags
		}
	}
	return append(append([]string{}, tags...), types.ProfileDocumentation)
}
