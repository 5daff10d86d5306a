package cognitive

import (
	"regexp"
	"strings"

	"github.com/cogmem/engram/pkg/types"
)

// DimensionExtractor derives the 16 rule-based cognitive dimensions from raw
// content (§4.2). It is deliberately regex/lexicon-based rather than
// model-based: the dimensions need to be cheap, deterministic, and
// explainable, not semantically rich — that is the embedding's job.
type DimensionExtractor struct {
	frustration  *regexp.Regexp
	satisfaction *regexp.Regexp
	curiosity    *regexp.Regexp
	stress       *regexp.Regexp

	urgency    *regexp.Regexp
	deadline   *regexp.Regexp
	timeRef    *regexp.Regexp

	codeBlock    *regexp.Regexp
	imperative   *regexp.Regexp
	docMarker    *regexp.Regexp
	errorMarker  *regexp.Regexp
	configMarker *regexp.Regexp
	collabMarker *regexp.Regexp

	support     *regexp.Regexp
	interaction *regexp.Regexp
}

func NewDimensionExtractor() *DimensionExtractor {
	return &DimensionExtractor{
		frustration:  regexp.MustCompile(`(?i)\b(ugh|argh|frustrat\w*|annoying|broken|stuck|why (won't|doesn't|isn't))\b`),
		satisfaction: regexp.MustCompile(`(?i)\b(finally|works?!|fixed|resolved|great|nice|excellent|passes?)\b`),
		curiosity:    regexp.MustCompile(`(?i)\b(wonder|curious|what if|explore|investigate|interesting)\b`),
		stress:       regexp.MustCompile(`(?i)\b(urgent|asap|critical|blocked|deadline|pressure|emergency)\b`),

		urgency:  regexp.MustCompile(`(?i)\b(urgent|asap|immediately|right away|now)\b`),
		deadline: regexp.MustCompile(`(?i)\b(deadline|due (by|on)|by (eod|tomorrow|friday|monday))\b`),
		timeRef:  regexp.MustCompile(`(?i)\b(today|tomorrow|yesterday|next week|last week|\d{1,2}:\d{2}|\d{4}-\d{2}-\d{2})\b`),

		codeBlock:    regexp.MustCompile("```"),
		imperative:   regexp.MustCompile(`(?i)\b(run|add|remove|fix|implement|refactor|create|delete|update)\b`),
		docMarker:    regexp.MustCompile(`(?i)\b(readme|docs?|documentation|guide|overview)\b`),
		errorMarker:  regexp.MustCompile(`(?i)\b(error|exception|panic|traceback|failed|failure|stack trace)\b`),
		configMarker: regexp.MustCompile(`(?i)\b(config|\.env|environment variable|settings|yaml|toml)\b`),
		collabMarker: regexp.MustCompile(`(?i)\b(review|pr|pull request|pair|team|feedback)\b`),

		support:     regexp.MustCompile(`(?i)\b(help|thanks|thank you|appreciate|please)\b`),
		interaction: regexp.MustCompile(`(?i)\b(you|we|us|@\w+)\b`),
	}
}

// Extract returns the 16-scalar Dimensions vector for content, each axis
// clamped to [0,1] via a saturating density transform.
func (e *DimensionExtractor) Extract(content string) types.Dimensions {
	words := float64(len(strings.Fields(content)))
	if words == 0 {
		words = 1
	}

	density := func(re *regexp.Regexp) float64 {
		n := float64(len(re.FindAllStringIndex(content, -1)))
		return saturate(n / words * 8)
	}

	return types.Dimensions{
		Emotional: [4]float64{
			density(e.frustration),
			density(e.satisfaction),
			density(e.curiosity),
			density(e.stress),
		},
		Temporal: [3]float64{
			density(e.urgency),
			density(e.deadline),
			density(e.timeRef),
		},
		Contextual: [6]float64{
			codeFraction(content),
			density(e.imperative),
			density(e.docMarker),
			density(e.errorMarker),
			density(e.configMarker),
			density(e.collabMarker),
		},
		Social: [3]float64{
			density(e.collabMarker),
			density(e.support),
			density(e.interaction),
		},
	}
}

// saturate maps a non-negative density ratio into [0,1] without a hard
// clip discontinuity, 1 - 1/(1+x).
func saturate(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return x / (1 + x)
}

// codeFraction estimates the share of content inside fenced code blocks.
func codeFraction(content string) float64 {
	if len(content) == 0 {
		return 0
	}
	var codeChars int
	inBlock := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inBlock = !inBlock
			continue
		}
		if inBlock {
			codeChars += len(line) + 1
		}
	}
	return saturate(float64(codeChars) / float64(len(content)) * 2)
}
