// Package thread turns platform specific comment payloads into one shared
// shape and renders the reply structure into model-ready text.
package thread

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/hsh0702/boardsum/utils"
)

// deletion markers the platforms use in place of removed content
var deletionMarkers = []string{"[deleted]", "[removed]", "(삭제된 댓글)"}

// Comment is the canonical comment record shared by both platforms.
type Comment struct {
	ExternalId       string
	Author           string
	Content          string
	CreatedAt        *time.Time
	IsDeleted        bool
	ParentExternalId *string
	Score            *int
	Metadata         map[string]interface{}
}

// RedditRawComment mirrors one "t1" child of a Reddit comment listing.
type RedditRawComment struct {
	Id         string
	Name       string
	Author     string
	Body       string
	Score      *int
	CreatedUTC string
	Permalink  string
	Depth      int
	ParentId   string
	IsDeleted  bool
	Ups        *int
	Stickied   bool
	Collapsed  bool
}

// DCInsideRawComment mirrors one li node of the DCInside mobile comment list.
type DCInsideRawComment struct {
	ExternalId string
	Author     string
	Content    string
	CreatedAt  string
	ParentId   string
	IsDeleted  bool
	Order      string
	DataType   string
	MemberNo   string
}

// NormalizeReddit converts raw Reddit comments into canonical records.
// Comments without any derivable id are dropped silently; ids are forced
// into the prefixed "t1_..." form. A parent reference is honored only when
// it is itself comment shaped ("t1_" prefixed); anything else, including
// the post-level "t3_" parent, means top level.
func NormalizeReddit(raw []RedditRawComment) []Comment {
	normalized := make([]Comment, 0, len(raw))
	for _, rc := range raw {
		externalId := rc.Name
		if externalId == "" {
			externalId = rc.Id
		}
		if externalId == "" {
			continue
		}
		if !strings.HasPrefix(externalId, "t1_") {
			externalId = "t1_" + externalId
		}

		var parent *string
		if strings.HasPrefix(rc.ParentId, "t1_") {
			p := rc.ParentId
			parent = &p
		}

		body := strings.TrimSpace(rc.Body)
		author := rc.Author
		if author == "" {
			author = "unknown"
		}

		metadata := map[string]interface{}{
			"depth": rc.Depth,
		}
		if rc.Score != nil {
			metadata["score"] = *rc.Score
		}
		if rc.Ups != nil {
			metadata["ups"] = *rc.Ups
		}
		if rc.Permalink != "" {
			metadata["permalink"] = rc.Permalink
		}
		if rc.Stickied {
			metadata["stickied"] = true
		}
		if rc.Collapsed {
			metadata["collapsed"] = true
		}

		normalized = append(normalized, Comment{
			ExternalId:       externalId,
			Author:           author,
			Content:          body,
			CreatedAt:        parseCommentTime(rc.CreatedUTC),
			IsDeleted:        rc.IsDeleted || isDeletionMarker(body),
			ParentExternalId: parent,
			Score:            rc.Score,
			Metadata:         metadata,
		})
	}
	return normalized
}

// NormalizeDCInside converts raw DCInside comments into canonical records.
// Nodes without an id are expected noise from malformed DOM rows and are
// dropped silently. A parent value of "0" or empty is the platform's root
// marker. Depth is one level only: the listing page never nests deeper.
func NormalizeDCInside(raw []DCInsideRawComment) []Comment {
	normalized := make([]Comment, 0, len(raw))
	for _, rc := range raw {
		externalId := strings.TrimSpace(rc.ExternalId)
		if externalId == "" {
			continue
		}

		var parent *string
		depth := 0
		parentId := strings.TrimSpace(rc.ParentId)
		if parentId != "" && parentId != "0" {
			parent = &parentId
			depth = 1
		}

		author := rc.Author
		if author == "" {
			author = "unknown"
		}

		content := strings.TrimSpace(rc.Content)

		metadata := map[string]interface{}{
			"depth": depth,
		}
		if rc.Order != "" {
			metadata["order"] = rc.Order
		}
		if rc.DataType != "" {
			metadata["data_type"] = rc.DataType
		}
		if rc.MemberNo != "" {
			metadata["m_no"] = rc.MemberNo
		}

		normalized = append(normalized, Comment{
			ExternalId:       externalId,
			Author:           author,
			Content:          content,
			CreatedAt:        parseCommentTime(rc.CreatedAt),
			IsDeleted:        rc.IsDeleted || strings.Contains(content, "삭제") || isDeletionMarker(content),
			ParentExternalId: parent,
			Metadata:         metadata,
		})
	}
	return normalized
}

func isDeletionMarker(content string) bool {
	return utils.ContainsString(deletionMarkers, strings.ToLower(strings.TrimSpace(content)))
}

func parseCommentTime(value string) *time.Time {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parsed, err := dateparse.ParseAny(value)
	if err != nil {
		return nil
	}
	utc := parsed.UTC()
	return &utc
}
