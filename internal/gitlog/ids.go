package gitlog

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Deterministic memory IDs per §4.12: re-loading the same commit, the same
// co-changing pair, the same hotspot path, or the same problem/solution
// pairing always resolves to the same id, so pattern derivation is an
// upsert rather than an accumulation.

func commitMemoryID(sha string) string {
	return "git::commit::" + sha
}

func cochangeMemoryID(pathA, pathB string) string {
	a, b := canonicalPath(pathA), canonicalPath(pathB)
	if a > b {
		a, b = b, a
	}
	return "git::cochange::" + sha256Hex(a+"|"+b)
}

func hotspotMemoryID(path string) string {
	return "git::hotspot::" + sha256Hex(canonicalPath(path))
}

func solutionMemoryID(problemType, solutionApproach string) string {
	return "git::solution::" + sha256Hex(strings.ToLower(problemType)+"|"+strings.ToLower(solutionApproach))
}

func canonicalPath(p string) string {
	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(p, "\\", "/")))
}

func sha256Hex(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// sortedPair returns a and b in lexical order, matching the canonical
// ordering cochangeMemoryID uses so co-change payload fields stay
// consistent with the id.
func sortedPair(a, b string) (string, string) {
	if canonicalPath(a) > canonicalPath(b) {
		a, b = b, a
	}
	return a, b
}
