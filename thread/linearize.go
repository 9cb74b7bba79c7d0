package thread

import (
	"fmt"
	"strings"
)

const indentUnit = "  "

// Linearize flattens a normalized comment batch into one display line per
// comment, in arrival order. The listing order of both platforms already
// approximates a pre-order tree traversal, so no re-sorting happens here.
//
// Each line is indented by depth and labeled: "[원댓글]" for top level
// comments, "[대댓글 → <author>]" for replies whose parent resolves inside
// the same batch, and the generic "[대댓글]" when it does not (the parent
// may have existed in a previous fetch generation). Comments with empty
// content are skipped entirely.
func Linearize(comments []Comment) []string {
	if len(comments) == 0 {
		return nil
	}

	idToAuthor := make(map[string]string, len(comments))
	for _, c := range comments {
		if c.ExternalId != "" {
			idToAuthor[c.ExternalId] = authorOrUnknown(c.Author)
		}
	}

	lines := make([]string, 0, len(comments))
	for _, c := range comments {
		content := strings.TrimSpace(c.Content)
		if content == "" {
			continue
		}

		depth := commentDepth(c)

		label := "[원댓글]"
		if depth > 0 {
			label = "[대댓글]"
			if c.ParentExternalId != nil {
				if parentAuthor, ok := idToAuthor[*c.ParentExternalId]; ok {
					label = fmt.Sprintf("[대댓글 → %s]", parentAuthor)
				}
			}
		}

		score := ""
		if c.Score != nil {
			score = fmt.Sprintf(" (+%d)", *c.Score)
		}

		indent := strings.Repeat(indentUnit, depth)
		lines = append(lines, fmt.Sprintf("%s%s %s%s: %s", indent, label, authorOrUnknown(c.Author), score, content))
	}

	return lines
}

func authorOrUnknown(author string) string {
	if author == "" {
		return "unknown"
	}
	return author
}

// commentDepth reads the depth counter carried over from the source
// metadata, falling back to zero for anything unusable.
func commentDepth(c Comment) int {
	raw, ok := c.Metadata["depth"]
	if !ok {
		return 0
	}
	depth := 0
	switch v := raw.(type) {
	case int:
		depth = v
	case int64:
		depth = int(v)
	case float64:
		depth = int(v)
	case string:
		fmt.Sscanf(v, "%d", &depth)
	}
	if depth < 0 {
		return 0
	}
	return depth
}
