package gitlog

import (
	"fmt"
	"strings"
	"time"

	"context"

	"github.com/cogmem/engram/internal/memerr"
	"github.com/cogmem/engram/pkg/types"
)

// Pattern memories are mutable: re-deriving the same pattern updates its
// counts and confidence in place. MemoryStore.UpdateMemory only touches a
// restricted field set that excludes Payload/Content, so an upsert here is
// a read-merge-delete-recreate under the pattern's deterministic id.

// upsertCoChange folds `delta` newly observed co-occurrences of pathA and
// pathB into that pair's co-change pattern memory (§4.12 pattern scoring).
func (l *Loader) upsertCoChange(ctx context.Context, projectID, pathA, pathB string, delta int) error {
	id := cochangeMemoryID(pathA, pathB)
	support := delta
	if existing, err := l.memories.GetMemory(ctx, projectID, id); err == nil && existing.Payload.CoChange != nil {
		support += existing.Payload.CoChange.Support
		if err := l.memories.DeleteMemory(ctx, projectID, id); err != nil {
			return err
		}
	} else if err != nil && !memerr.Is(err, memerr.NotFound) {
		return err
	}

	const recencyWeight = 1.0
	confidence := float64(support) / (float64(support) + 2) * recencyWeight

	content := fmt.Sprintf("Co-change pattern: %s and %s changed together in %d commit(s) (confidence %.2f).",
		pathA, pathB, support, confidence)
	vector, _, err := l.encoder.Encode(ctx, content)
	if err != nil {
		return memerr.Wrap(memerr.EncodingError, "encode cochange pattern", err)
	}

	now := time.Now().UTC()
	return l.memories.CreateMemory(ctx, &types.Memory{
		ID:              id,
		ProjectID:       projectID,
		Level:           types.LevelConcept,
		Kind:            types.KindSemantic,
		Content:         content,
		CognitiveVector: vector,
		CreatedAt:       now,
		LastAccessedAt:  now,
		Importance:      confidence,
		Tags:            []string{"cochange_pattern"},
		Payload: types.Payload{
			Kind: types.PayloadCoChange,
			CoChange: &types.CoChangePayload{
				PathA: pathA, PathB: pathB,
				Support: support, Confidence: confidence, RecencyWeight: recencyWeight,
			},
		},
	})
}

// upsertHotspot folds this batch's problem/total touch counts for path
// into its hotspot pattern memory.
func (l *Loader) upsertHotspot(ctx context.Context, projectID, path string, problemCount, totalCommits int) error {
	id := hotspotMemoryID(path)
	if existing, err := l.memories.GetMemory(ctx, projectID, id); err == nil && existing.Payload.Hotspot != nil {
		problemCount += existing.Payload.Hotspot.ProblemCount
		totalCommits += existing.Payload.Hotspot.TotalCommits
		if err := l.memories.DeleteMemory(ctx, projectID, id); err != nil {
			return err
		}
	} else if err != nil && !memerr.Is(err, memerr.NotFound) {
		return err
	}

	if totalCommits == 0 {
		return nil
	}

	// consistencyFactor rewards paths that keep reappearing in bug-fix
	// commits rather than a single burst; saturates at 5 problem touches.
	consistencyFactor := float64(problemCount) / 5.0
	if consistencyFactor > 1 {
		consistencyFactor = 1
	}
	score := float64(problemCount) / float64(totalCommits) * consistencyFactor

	content := fmt.Sprintf("Hotspot: %s involved in %d of %d commits flagged as bug fixes (score %.2f).",
		path, problemCount, totalCommits, score)
	vector, _, err := l.encoder.Encode(ctx, content)
	if err != nil {
		return memerr.Wrap(memerr.EncodingError, "encode hotspot pattern", err)
	}

	now := time.Now().UTC()
	return l.memories.CreateMemory(ctx, &types.Memory{
		ID:              id,
		ProjectID:       projectID,
		Level:           types.LevelConcept,
		Kind:            types.KindSemantic,
		Content:         content,
		CognitiveVector: vector,
		CreatedAt:       now,
		LastAccessedAt:  now,
		Importance:      score,
		Tags:            []string{"hotspot_pattern"},
		Payload: types.Payload{
			Kind: types.PayloadHotspot,
			Hotspot: &types.HotspotPayload{
				Path: path, ProblemCount: problemCount, TotalCommits: totalCommits,
				ConsistencyFactor: consistencyFactor, Score: score,
			},
		},
	})
}

// upsertSolutions groups this batch's bug-fix commits by a coarse problem
// type/solution approach pairing and folds them into solution pattern
// memories. Success is inferred only from the commit having landed —
// distinguishing a fix that later regressed would need revert-tracking
// this pass does not attempt, so SuccessRate reads as 1.0 until that
// signal exists (documented limitation, not an omission).
func (l *Loader) upsertSolutions(ctx context.Context, projectID string, events []CommitEvent) error {
	type key struct{ problemType, approach string }
	counts := make(map[key]int)
	for _, ev := range events {
		if inferCommitType(ev.Subject) != types.CommitTagBugFix {
			continue
		}
		problemType, approach := splitProblemAndApproach(ev.Subject)
		if problemType == "" {
			continue
		}
		counts[key{problemType, approach}]++
	}

	for k, delta := range counts {
		if err := l.upsertSolution(ctx, projectID, k.problemType, k.approach, delta); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) upsertSolution(ctx context.Context, projectID, problemType, approach string, delta int) error {
	id := solutionMemoryID(problemType, approach)
	attempts := delta
	successes := delta
	if existing, err := l.memories.GetMemory(ctx, projectID, id); err == nil && existing.Payload.Solution != nil {
		attempts += existing.Payload.Solution.TotalAttempts
		successes += existing.Payload.Solution.SuccessfulFixes
		if err := l.memories.DeleteMemory(ctx, projectID, id); err != nil {
			return err
		}
	} else if err != nil && !memerr.Is(err, memerr.NotFound) {
		return err
	}

	successRate := float64(successes) / float64(attempts)
	content := fmt.Sprintf("Solution pattern: %q fixed via %q in %d of %d attempt(s) (success rate %.2f).",
		problemType, approach, successes, attempts, successRate)
	vector, _, err := l.encoder.Encode(ctx, content)
	if err != nil {
		return memerr.Wrap(memerr.EncodingError, "encode solution pattern", err)
	}

	now := time.Now().UTC()
	return l.memories.CreateMemory(ctx, &types.Memory{
		ID:              id,
		ProjectID:       projectID,
		Level:           types.LevelConcept,
		Kind:            types.KindSemantic,
		Content:         content,
		CognitiveVector: vector,
		CreatedAt:       now,
		LastAccessedAt:  now,
		Importance:      successRate,
		Tags:            []string{"solution_pattern"},
		Payload: types.Payload{
			Kind: types.PayloadSolution,
			Solution: &types.SolutionPayload{
				ProblemType: problemType, SolutionApproach: approach,
				SuccessfulFixes: successes, TotalAttempts: attempts, SuccessRate: successRate,
			},
		},
	})
}

// splitProblemAndApproach extracts a coarse (problem_type, solution_approach)
// pair from a bug-fix commit subject: the text after fix/fixes/fixed, up to
// "by"/"via"/"using", names the problem and everything after that word names
// the approach; without such a word the remainder of the subject is the
// problem and the approach is "direct fix".
func splitProblemAndApproach(subject string) (problemType, approach string) {
	lower := strings.ToLower(subject)
	idx := strings.Index(lower, "fix")
	if idx == -1 {
		return "", ""
	}
	rest := strings.TrimSpace(subject[idx:])
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return "", ""
	}
	// Drop the fix/fixes/fixed verb itself, and an optional leading colon.
	fields = fields[1:]
	rest = strings.TrimSpace(strings.Join(fields, " "))
	rest = strings.TrimPrefix(rest, ":")
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", ""
	}

	for _, sep := range []string{" by ", " via ", " using "} {
		if i := strings.Index(strings.ToLower(rest), sep); i != -1 {
			return strings.TrimSpace(rest[:i]), strings.TrimSpace(rest[i+len(sep):])
		}
	}
	return rest, "direct fix"
}
