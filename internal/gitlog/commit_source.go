package gitlog

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/cogmem/engram/internal/memerr"
	"github.com/cogmem/engram/pkg/types"
)

// CommitEvent is one commit as read from a repository, before conversion
// into a memory.
type CommitEvent struct {
	SHA         string
	ParentSHAs  []string
	Author      string
	Committer   string
	CommittedAt int64 // unix seconds, UTC
	Subject     string
	Body        string
	Files       []types.FileChange
}

// CommitSource is the pluggable capability for reading commit history
// (§4.12, §9): implementations never shell out to a git binary.
type CommitSource interface {
	// CommitsSince returns commits reachable from HEAD, newest first,
	// excluding everything reachable from sinceSHA (sinceSHA == "" means a
	// full load). At most maxCommits are returned.
	CommitsSince(ctx context.Context, repoPath, sinceSHA string, maxCommits int) ([]CommitEvent, error)
}

// GoGitSource reads commit history with go-git, a pure-Go git
// implementation — satisfying the "never invokes shell-level git"
// requirement without CGO or an external binary dependency.
type GoGitSource struct{}

func NewGoGitSource() *GoGitSource { return &GoGitSource{} }

func (s *GoGitSource) CommitsSince(ctx context.Context, repoPath, sinceSHA string, maxCommits int) ([]CommitEvent, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, memerr.Wrap(memerr.InvalidSource, "open repository", err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, memerr.Wrap(memerr.InvalidSource, "resolve HEAD", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, memerr.Wrap(memerr.InvalidSource, "open commit log", err)
	}
	defer iter.Close()

	var stopAt plumbing.Hash
	if sinceSHA != "" {
		stopAt = plumbing.NewHash(sinceSHA)
	}

	var out []CommitEvent
	err = iter.ForEach(func(c *object.Commit) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !stopAt.IsZero() && c.Hash == stopAt {
			return object.ErrStopIteration
		}
		if maxCommits > 0 && len(out) >= maxCommits {
			return object.ErrStopIteration
		}
		event, convErr := convertCommit(c)
		if convErr != nil {
			// Skip unreadable commits rather than aborting the whole load.
			return nil
		}
		out = append(out, event)
		return nil
	})
	if err != nil && err != object.ErrStopIteration {
		return nil, memerr.Wrap(memerr.InvalidSource, "walk commit log", err)
	}
	return out, nil
}

func convertCommit(c *object.Commit) (CommitEvent, error) {
	subject, body := splitMessage(c.Message)

	var parents []string
	for _, h := range c.ParentHashes {
		parents = append(parents, h.String())
	}

	files, err := fileChanges(c)
	if err != nil {
		return CommitEvent{}, err
	}

	return CommitEvent{
		SHA:         c.Hash.String(),
		ParentSHAs:  parents,
		Author:      c.Author.Name,
		Committer:   c.Committer.Name,
		CommittedAt: c.Committer.When.UTC().Unix(),
		Subject:     subject,
		Body:        body,
		Files:       files,
	}, nil
}

func fileChanges(c *object.Commit) ([]types.FileChange, error) {
	if c.NumParents() == 0 {
		return rootCommitFiles(c)
	}

	parent, err := c.Parent(0)
	if err != nil {
		return nil, fmt.Errorf("load parent: %w", err)
	}
	patch, err := parent.Patch(c)
	if err != nil {
		return nil, fmt.Errorf("diff against parent: %w", err)
	}

	var out []types.FileChange
	for _, fp := range patch.FilePatches() {
		from, to := fp.Files()
		added, deleted := 0, 0
		for _, chunk := range fp.Chunks() {
			switch chunk.Type() {
			case diff.Add:
				added += lineCount(chunk.Content())
			case diff.Delete:
				deleted += lineCount(chunk.Content())
			}
		}
		out = append(out, types.FileChange{
			Path:         changePath(from, to),
			ChangeType:   changeType(from, to),
			LinesAdded:   added,
			LinesDeleted: deleted,
		})
	}
	return out, nil
}

func rootCommitFiles(c *object.Commit) ([]types.FileChange, error) {
	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}
	var out []types.FileChange
	err = tree.Files().ForEach(func(f *object.File) error {
		out = append(out, types.FileChange{Path: f.Name, ChangeType: "add"})
		return nil
	})
	return out, err
}

func changePath(from, to interface{ Path() string }) string {
	if to != nil && to.Path() != "" {
		return to.Path()
	}
	if from != nil {
		return from.Path()
	}
	return ""
}

func changeType(from, to interface{ Path() string }) string {
	switch {
	case from == nil && to != nil:
		return "add"
	case from != nil && to == nil:
		return "delete"
	case from != nil && to != nil && from.Path() != to.Path():
		return "rename"
	default:
		return "modify"
	}
}

func lineCount(content string) int {
	n := 0
	for _, r := range content {
		if r == '\n' {
			n++
		}
	}
	return n
}

func splitMessage(msg string) (subject, body string) {
	for i, r := range msg {
		if r == '\n' {
			return msg[:i], trimLeadingNewlines(msg[i+1:])
		}
	}
	return msg, ""
}

func trimLeadingNewlines(s string) string {
	for len(s) > 0 && (s[0] == '\n' || s[0] == '\r') {
		s = s[1:]
	}
	return s
}
