package assistant

import (
	"regexp"
	"strings"

	"webbuilder/internal/models"
)

// Fences are matched case-sensitively; only the first match of the preferred
// pattern is used. Replies carrying several blocks lose everything after the
// first one, which is a known limitation rather than something to merge.
var (
	htmlFencePattern     = regexp.MustCompile("```html\\n([\\s\\S]*?)\\n```")
	untaggedFencePattern = regexp.MustCompile("```\\n([\\s\\S]*?)\\n```")
)

// Extract splits a raw reply into the prose before the first markup block and
// the block body. A block tagged html wins over an untagged one; with no
// block at all the whole reply becomes the explanation.
func Extract(raw string) models.ExtractionResult {
	for _, pattern := range []*regexp.Regexp{htmlFencePattern, untaggedFencePattern} {
		loc := pattern.FindStringSubmatchIndex(raw)
		if loc == nil {
			continue
		}
		return models.ExtractionResult{
			Explanation: strings.TrimSpace(raw[:loc[0]]),
			Code:        strings.TrimSpace(raw[loc[2]:loc[3]]),
		}
	}
	return models.ExtractionResult{Explanation: strings.TrimSpace(raw)}
}
