package crawler

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/hsh0702/boardsum/model"
	"github.com/hsh0702/boardsum/store"
	"github.com/hsh0702/boardsum/utils"
	Logger "github.com/hsh0702/boardsum/utils/log"
)

// subjects of the DCInside recommend listing worth summarizing, the rest
// is banter and polls
var allowedDCInsideSubjects = map[string]bool{
	"일반":    true,
	"정보/뉴스": true,
	"🏆베스트":  true,
	"사용후기":  true,
	"AI활용":  true,
	"자료실":   true,
	"역노화":   true,
	"토의":    true,
	"대회":    true,
}

// Producer runs one crawl pass per source: fetch the listing, filter,
// upsert, and enqueue a job for every newly inserted item. Re-crawled
// items already in the database are refreshed but not re-queued.
type Producer struct {
	DB     *gorm.DB
	Queue  utils.MessageQueueWriter
	Reddit *RedditClient

	MaxPosts        int
	MinPostAgeHours int
	MaxPostAgeHours int
}

// RunStats summarizes one producer pass over a single source.
type RunStats struct {
	RunId    string
	Fetched  int
	Filtered int
	Queued   int
}

// Run dispatches on the source's parser family.
func (producer *Producer) Run(source model.Source) (*RunStats, error) {
	switch {
	case isDCInsideParser(source.Parser):
		return producer.runDCInside(source)
	case isRedditParser(source.Parser):
		return producer.runReddit(source)
	default:
		return nil, errors.Errorf("no crawler for parser %q of source %q", source.Parser, source.Code)
	}
}

func isDCInsideParser(parser string) bool {
	return strings.HasPrefix(parser, "dcinside")
}

func isRedditParser(parser string) bool {
	return strings.HasPrefix(parser, "reddit")
}

func (producer *Producer) runDCInside(source model.Source) (*RunStats, error) {
	targetUrl := metadataString(source.Metadata, "target_url")
	if targetUrl == "" {
		return nil, errors.Errorf("source %q has no target_url in metadata", source.Code)
	}

	listing := DCInsideListing{TargetUrl: targetUrl}
	posts, err := listing.FetchPosts()
	if err != nil {
		return nil, err
	}

	filtered := producer.filterDCInsidePosts(posts)
	return producer.persistAndEnqueue(source, toPosts(filtered), len(posts))
}

func (producer *Producer) filterDCInsidePosts(posts []DCInsidePost) []DCInsidePost {
	filtered := []DCInsidePost{}
	for _, post := range posts {
		if !allowedDCInsideSubjects[post.Subject] {
			continue
		}
		filtered = append(filtered, post)
	}

	if producer.MinPostAgeHours > 0 || producer.MaxPostAgeHours > 0 {
		now := time.Now().UTC()
		aged := []DCInsidePost{}
		for _, post := range filtered {
			publishedAt := post.PublishedAt()
			if publishedAt == nil {
				continue
			}
			if producer.MinPostAgeHours > 0 &&
				publishedAt.After(now.Add(-time.Duration(producer.MinPostAgeHours)*time.Hour)) {
				continue
			}
			if producer.MaxPostAgeHours > 0 &&
				publishedAt.Before(now.Add(-time.Duration(producer.MaxPostAgeHours)*time.Hour)) {
				continue
			}
			aged = append(aged, post)
		}
		filtered = aged
	}

	if producer.MaxPosts > 0 && len(filtered) > producer.MaxPosts {
		filtered = filtered[:producer.MaxPosts]
	}
	return filtered
}

func (producer *Producer) runReddit(source model.Source) (*RunStats, error) {
	if producer.Reddit == nil {
		return nil, errors.New("reddit client not configured")
	}

	subreddit := metadataString(source.Metadata, "subreddit")
	if subreddit == "" {
		return nil, errors.Errorf("source %q has no subreddit in metadata", source.Code)
	}
	limit := metadataInt(source.Metadata, "limit", 50)

	posts, err := producer.Reddit.FetchNewPosts(subreddit, limit)
	if err != nil {
		return nil, err
	}

	// video posts carry nothing a text summary can use
	filtered := []Post{}
	for _, post := range posts {
		if post.IsVideo || ContainsVideoUrl(post.MediaUrls) {
			continue
		}
		filtered = append(filtered, post)
	}
	return producer.persistAndEnqueue(source, filtered, len(posts))
}

func (producer *Producer) persistAndEnqueue(source model.Source, posts []Post, fetched int) (*RunStats, error) {
	stats := &RunStats{
		RunId:    uuid.New().String(),
		Fetched:  fetched,
		Filtered: len(posts),
	}

	inputs := make([]store.ItemInput, 0, len(posts))
	for _, post := range posts {
		inputs = append(inputs, post.Item())
	}
	results, err := store.UpsertItems(producer.DB, source.Id, inputs)
	if err != nil {
		return stats, err
	}

	for _, result := range results {
		if !result.Inserted {
			continue
		}
		payload, err := json.Marshal(ItemJob{ItemId: result.ItemId})
		if err != nil {
			return stats, err
		}
		if err := producer.Queue.SendMessage(string(payload)); err != nil {
			return stats, errors.Wrapf(err, "fail to enqueue item %d", result.ItemId)
		}
		stats.Queued++
	}

	if err := store.RecordCrawlLog(producer.DB, stats.RunId, source.Code, stats.Fetched, stats.Filtered, stats.Queued); err != nil {
		Logger.Log.Errorf("fail to record crawl log for %s: %v", source.Code, err)
	}

	Logger.Log.WithFields(logrus.Fields{
		"source":   source.Code,
		"run_id":   stats.RunId,
		"fetched":  stats.Fetched,
		"filtered": stats.Filtered,
		"queued":   stats.Queued,
	}).Info("crawl pass finished")
	return stats, nil
}

func toPosts(posts []DCInsidePost) []Post {
	converted := make([]Post, 0, len(posts))
	for _, post := range posts {
		converted = append(converted, post)
	}
	return converted
}

func metadataString(metadata map[string]interface{}, key string) string {
	if value, ok := metadata[key].(string); ok {
		return value
	}
	return ""
}

func metadataInt(metadata map[string]interface{}, key string, fallback int) int {
	switch value := metadata[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	case string:
		var parsed int
		if _, err := fmt.Sscanf(value, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}
