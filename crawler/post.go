// Package crawler fetches board listings and post details from the
// supported platforms and turns them into persistable items.
package crawler

import (
	"strconv"
	"strings"
	"time"

	"github.com/hsh0702/boardsum/store"
)

const DesktopUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/120.0.0.0 Safari/537.36"

// ItemJob is the queue payload handed from producer to worker.
type ItemJob struct {
	ItemId int64 `json:"item_id"`
}

// Post is one crawled listing entry regardless of platform.
type Post interface {
	// Platform returns the source family, "dcinside" or "reddit".
	Platform() string
	// Item converts the listing entry into the storage input shape.
	Item() store.ItemInput
}

// DCInsidePost is one row of a DCInside board listing.
type DCInsidePost struct {
	ExternalId   string
	Number       string
	Subject      string
	Title        string
	Url          string
	CommentLabel string
	Writer       string
	DateDisplay  string
	DateIso      string
	Views        string
	Recommends   string
}

func (post DCInsidePost) Platform() string {
	return "dcinside"
}

// Item builds the storage input. The listing page has no body text, the
// worker fills the content later from the detail page. The comment badge
// next to the title looks like "[12]" and is parsed into a count when it
// is numeric.
func (post DCInsidePost) Item() store.ItemInput {
	metadata := map[string]interface{}{
		"display_number": post.Number,
		"subject":        post.Subject,
		"views":          post.Views,
		"recommends":     post.Recommends,
		"date_display":   post.DateDisplay,
		"date_iso":       post.DateIso,
	}
	commentText := strings.TrimSpace(post.CommentLabel)
	commentText = strings.TrimSuffix(strings.TrimPrefix(commentText, "["), "]")
	if count, err := strconv.Atoi(commentText); err == nil {
		metadata["comment_count"] = count
	}

	externalId := post.ExternalId
	if externalId == "" {
		externalId = post.Number
	}
	return store.ItemInput{
		ExternalId:  externalId,
		Url:         post.Url,
		Title:       post.Title,
		Author:      post.Writer,
		PublishedAt: post.PublishedAt(),
		Metadata:    metadata,
	}
}

// PublishedAt parses the listing's ISO timestamp, nil when absent or
// malformed.
func (post DCInsidePost) PublishedAt() *time.Time {
	if post.DateIso == "" {
		return nil
	}
	parsed, err := time.Parse("2006-01-02 15:04:05", post.DateIso)
	if err != nil {
		return nil
	}
	utc := parsed.UTC()
	return &utc
}
