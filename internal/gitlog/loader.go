package gitlog

import (
	"context"
	"fmt"
	"time"

	"github.com/cogmem/engram/internal/cognitive"
	"github.com/cogmem/engram/internal/memerr"
	"github.com/cogmem/engram/internal/storage"
	"github.com/cogmem/engram/pkg/types"
)

// defaultMaxCommits bounds a full (non-incremental) load, per §4.12 step 2.
const defaultMaxCommits = 1000

// LoadResult summarizes one Load call, matching the load_git_patterns
// facade response shape (§4.14).
type LoadResult struct {
	CommitsLoaded  int
	CommitsSkipped int
	CommitsFailed  int
	Errors         []string
}

// Loader drives the git-commit ingestion pipeline: incremental commit
// discovery, conversion to L2 episodic memories, and co-change/hotspot/
// solution pattern derivation.
type Loader struct {
	source   CommitSource
	encoder  *cognitive.CognitiveEncoder
	memories storage.MemoryStore
	graph    storage.ConnectionGraph

	MaxCommits int
}

func NewLoader(source CommitSource, encoder *cognitive.CognitiveEncoder, memories storage.MemoryStore, graph storage.ConnectionGraph) *Loader {
	return &Loader{source: source, encoder: encoder, memories: memories, graph: graph, MaxCommits: defaultMaxCommits}
}

// Load performs one incremental git ingestion pass over repoPath.
func (l *Loader) Load(ctx context.Context, projectID, repoPath string) (*LoadResult, error) {
	watermark, err := l.currentWatermark(ctx, projectID)
	if err != nil {
		return nil, err
	}

	maxCommits := l.MaxCommits
	if watermark != "" {
		maxCommits = 0 // incremental loads are bounded by the watermark, not a count cap
	}

	events, err := l.source.CommitsSince(ctx, repoPath, watermark, maxCommits)
	if err != nil {
		return nil, err
	}

	result := &LoadResult{}
	cochangeCounts := make(map[[2]string]int)

	for _, ev := range events {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, "context cancelled")
			break
		}
		skipped, err := l.storeCommit(ctx, projectID, ev)
		if err != nil {
			result.CommitsFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", ev.SHA, err))
			continue
		}
		if skipped {
			result.CommitsSkipped++
		} else {
			result.CommitsLoaded++
		}

		for i := 0; i < len(ev.Files); i++ {
			for j := i + 1; j < len(ev.Files); j++ {
				a, b := sortedPair(ev.Files[i].Path, ev.Files[j].Path)
				cochangeCounts[[2]string{a, b}]++
			}
		}
	}

	for pair, delta := range cochangeCounts {
		if err := l.upsertCoChange(ctx, projectID, pair[0], pair[1], delta); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("cochange %s/%s: %v", pair[0], pair[1], err))
		}
	}

	problemTouches := make(map[string]int)
	totalTouches := make(map[string]int)
	for _, ev := range events {
		isProblem := inferCommitType(ev.Subject) == types.CommitTagBugFix
		for _, f := range ev.Files {
			path := canonicalPath(f.Path)
			totalTouches[path]++
			if isProblem {
				problemTouches[path]++
			}
		}
	}
	for path, total := range totalTouches {
		if err := l.upsertHotspot(ctx, projectID, path, problemTouches[path], total); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("hotspot %s: %v", path, err))
		}
	}

	if err := l.upsertSolutions(ctx, projectID, events); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}

	return result, nil
}

// currentWatermark finds the most recently loaded commit's SHA by scanning
// git_commit-tagged memories for the newest CommittedAt, so an incremental
// load only requests commits after it (§4.12 step 1).
func (l *Loader) currentWatermark(ctx context.Context, projectID string) (string, error) {
	memories, err := l.memories.QueryByTags(ctx, projectID, []string{types.ProfileGitCommit})
	if err != nil {
		return "", err
	}
	var latest *types.Memory
	for _, m := range memories {
		if m.Payload.Kind != types.PayloadCommit || m.Payload.Commit == nil {
			continue
		}
		if latest == nil || m.Payload.Commit.CommittedAt.After(latest.Payload.Commit.CommittedAt) {
			latest = m
		}
	}
	if latest == nil {
		return "", nil
	}
	return latest.Payload.Commit.SHA, nil
}

func (l *Loader) storeCommit(ctx context.Context, projectID string, ev CommitEvent) (bool, error) {
	commitType := inferCommitType(ev.Subject)
	subject := sanitizeMessage(ev.Subject)
	body := sanitizeMessage(ev.Body)
	content := assembleCommitContent(commitType, subject, body, ev.Files)

	vector, _, err := l.encoder.Encode(ctx, content)
	if err != nil {
		return false, memerr.Wrap(memerr.EncodingError, "encode commit", err)
	}

	committedAt := time.Unix(ev.CommittedAt, 0).UTC()
	mem := &types.Memory{
		ID:              commitMemoryID(ev.SHA),
		ProjectID:       projectID,
		Level:           types.LevelEpisode,
		Kind:            types.KindEpisodic,
		Content:         content,
		CognitiveVector: vector,
		CreatedAt:       committedAt,
		LastAccessedAt:  committedAt,
		Importance:      0.5,
		Tags:            []string{types.ProfileGitCommit, commitType},
		Payload: types.Payload{
			Kind: types.PayloadCommit,
			Commit: &types.CommitPayload{
				SHA:          ev.SHA,
				ParentSHAs:   ev.ParentSHAs,
				Author:       ev.Author,
				Committer:    ev.Committer,
				CommittedAt:  committedAt,
				Subject:      subject,
				Body:         body,
				FilesChanged: ev.Files,
				InferredType: commitType,
			},
		},
	}

	// Re-ingesting an existing commit is a no-op at the data level (step 6):
	// the deterministic id means CreateMemory's duplicate-id guard is the
	// idempotence check itself, and the commit is reported as skipped.
	if err := l.memories.CreateMemory(ctx, mem); err != nil {
		if memerr.Is(err, memerr.DuplicateID) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}
