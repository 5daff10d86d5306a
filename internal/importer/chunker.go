package importer

import (
	"regexp"
	"strings"
)

// DocumentNode is one heading section of a parsed document, forming a tree
// mirroring the Markdown heading hierarchy (§4.11).
type DocumentNode struct {
	Heading        string
	Depth          int // 1 for H1, up to 6
	BreadcrumbPath []string
	Body           string
	Order          int // document order, assigned by Flatten
	Children       []*DocumentNode
}

var headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// BuildDocumentTree splits body into a tree of DocumentNode by ATX heading
// level. Content before the first heading becomes the root section, whose
// Heading is title.
func BuildDocumentTree(title, body string) *DocumentNode {
	root := &DocumentNode{Heading: title, Depth: 0}
	stack := []*DocumentNode{root}

	var currentLines []string
	flush := func() {
		node := stack[len(stack)-1]
		if len(currentLines) > 0 {
			text := strings.TrimSpace(strings.Join(currentLines, "\n"))
			if node.Body != "" && text != "" {
				node.Body += "\n" + text
			} else if text != "" {
				node.Body += text
			}
		}
		currentLines = nil
	}

	for _, line := range strings.Split(body, "\n") {
		if m := headingRe.FindStringSubmatch(line); m != nil {
			flush()
			depth := len(m[1])
			heading := strings.TrimSpace(m[2])

			for len(stack) > 1 && stack[len(stack)-1].Depth >= depth {
				stack = stack[:len(stack)-1]
			}
			parent := stack[len(stack)-1]

			breadcrumb := append(append([]string{}, parent.BreadcrumbPath...), parent.Heading)
			if parent.Depth == 0 {
				breadcrumb = []string{}
			}
			node := &DocumentNode{Heading: heading, Depth: depth, BreadcrumbPath: breadcrumb}
			parent.Children = append(parent.Children, node)
			stack = append(stack, node)
			continue
		}
		currentLines = append(currentLines, line)
	}
	flush()
	return root
}

// Flatten walks the tree in document order and assigns Order, returning the
// nodes with non-empty bodies (pure structural nodes with only children and
// no prose of their own are skipped as chunk sources but still contribute
// hierarchical edges via their children's BreadcrumbPath).
func Flatten(root *DocumentNode) []*DocumentNode {
	var out []*DocumentNode
	order := 0
	var walk func(n *DocumentNode)
	walk = func(n *DocumentNode) {
		if strings.TrimSpace(n.Body) != "" {
			n.Order = order
			order++
			out = append(out, n)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return out
}

// Chunk splits a node's body further when it exceeds tokenBudget, measured
// as whitespace-separated word count (a cheap proxy; exact tokenizer
// behavior is provider-specific and out of scope here). Paragraph
// boundaries are preserved where possible.
func Chunk(node *DocumentNode, tokenBudget int) []string {
	paragraphs := strings.Split(strings.TrimSpace(node.Body), "\n\n")
	var chunks []string
	var current []string
	currentLen := 0

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			current = nil
			currentLen = 0
		}
	}

	for _, p := range paragraphs {
		words := len(strings.Fields(p))
		if currentLen > 0 && currentLen+words > tokenBudget {
			flush()
		}
		current = append(current, p)
		currentLen += words
	}
	flush()

	if len(chunks) == 0 {
		return []string{""}
	}
	return chunks
}

// CodeFraction estimates the share of a chunk's characters inside fenced
// code blocks, for DocumentChunkPayload.CodeFraction.
func CodeFraction(chunk string) float64 {
	var codeChars int
	inBlock := false
	for _, line := range strings.Split(chunk, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inBlock = !inBlock
			continue
		}
		if inBlock {
			codeChars += len(line) + 1
		}
	}
	if len(chunk) == 0 {
		return 0
	}
	frac := float64(codeChars) / float64(len(chunk))
	if frac > 1 {
		frac = 1
	}
	return frac
}

// LexicalOverlap is the Jaccard similarity of two chunks' lowercased word
// sets, used as one term of the associative-edge score (§4.11).
func LexicalOverlap(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

// StructuralProximity scores two nodes by how much of their breadcrumb path
// they share, 1.0 for the same parent, decaying with divergence.
func StructuralProximity(a, b *DocumentNode) float64 {
	shared := 0
	for i := 0; i < len(a.BreadcrumbPath) && i < len(b.BreadcrumbPath); i++ {
		if a.BreadcrumbPath[i] != b.BreadcrumbPath[i] {
			break
		}
		shared++
	}
	maxLen := len(a.BreadcrumbPath)
	if len(b.BreadcrumbPath) > maxLen {
		maxLen = len(b.BreadcrumbPath)
	}
	if maxLen == 0 {
		return 1
	}
	return float64(shared) / float64(maxLen)
}
