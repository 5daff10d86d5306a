package gitlog

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cogmem/engram/pkg/types"
)

// commitTypePatterns maps inferred type to the message patterns that
// signal it (§4.12 step 5), checked in order — the first match wins, so
// more specific patterns (fix) are listed ahead of broader ones (chore).
var commitTypePatterns = []struct {
	tag     string
	pattern *regexp.Regexp
}{
	{types.CommitTagBugFix, regexp.MustCompile(`(?i)^(fix|bugfix|hotfix)(\(|:|\s)`)},
	{types.CommitTagBugFix, regexp.MustCompile(`(?i)\bfix(es|ed)?\b`)},
	{types.CommitTagTest, regexp.MustCompile(`(?i)^test(\(|:|\s)`)},
	{types.CommitTagDocs, regexp.MustCompile(`(?i)^docs?(\(|:|\s)`)},
	{types.CommitTagRefactor, regexp.MustCompile(`(?i)^refactor(\(|:|\s)`)},
	{types.CommitTagFeature, regexp.MustCompile(`(?i)^(feat|feature)(\(|:|\s)`)},
	{types.CommitTagFeature, regexp.MustCompile(`(?i)\badd(s|ed)?\b`)},
	{types.CommitTagChore, regexp.MustCompile(`(?i)^chore(\(|:|\s)`)},
}

// inferCommitType classifies a commit message into one of the tag
// constants in pkg/types/types.go, defaulting to chore.
func inferCommitType(subject string) string {
	for _, p := range commitTypePatterns {
		if p.pattern.MatchString(subject) {
			return p.tag
		}
	}
	return types.CommitTagChore
}

// maxCommitMessageLength bounds content assembled from untrusted commit
// messages (§4.12 step 4: "cap length").
const maxCommitMessageLength = 4000

// sanitizeMessage ensures valid UTF-8 and caps length, replacing invalid
// byte sequences with the Unicode replacement character rather than
// silently dropping them.
func sanitizeMessage(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	if len(s) > maxCommitMessageLength {
		cut := maxCommitMessageLength
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}

// assembleCommitContent builds the natural-language content for a commit
// memory per §6.5: "[<type>] <subject>\n\n<body>\n\nfiles: <path_a>(+N,-M), …".
func assembleCommitContent(commitType, subject, body string, files []types.FileChange) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", commitType, subject)
	if body != "" {
		b.WriteString("\n\n")
		b.WriteString(body)
	}
	if len(files) > 0 {
		b.WriteString("\n\nfiles: ")
		for i, f := range files {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s(+%d,-%d)", f.Path, f.LinesAdded, f.LinesDeleted)
		}
	}
	return b.String()
}
