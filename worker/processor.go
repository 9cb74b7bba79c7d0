// Package worker consumes summarization jobs from the queue: it fetches
// the post detail, persists comments and assets, generates a summary and
// records the outcome.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/hsh0702/boardsum/crawler"
	"github.com/hsh0702/boardsum/model"
	"github.com/hsh0702/boardsum/store"
	"github.com/hsh0702/boardsum/summarize"
	"github.com/hsh0702/boardsum/thread"
	"github.com/hsh0702/boardsum/utils"
	Logger "github.com/hsh0702/boardsum/utils/log"
)

const (
	detailFetchTimeout = 30 * time.Second

	// placeholder body for link and media posts without selftext
	linkOnlyBody = "(텍스트 본문 없음 — 링크/미디어 게시물입니다.)"
)

// handlingError wraps a processing failure with its redelivery decision.
// Permanent failures are acknowledged so the message never comes back,
// everything else is returned to the queue.
type handlingError struct {
	err     error
	requeue bool
}

func (e *handlingError) Error() string {
	return e.err.Error()
}

func permanent(err error) *handlingError {
	return &handlingError{err: err, requeue: false}
}

func transient(err error) *handlingError {
	return &handlingError{err: err, requeue: true}
}

// IsRequeue reports whether the error asks for redelivery.
func IsRequeue(err error) bool {
	var handling *handlingError
	if errors.As(err, &handling) {
		return handling.requeue
	}
	// unclassified failures get another chance
	return true
}

// DetailFetcher loads a DCInside post's detail page and comment listing.
type DetailFetcher func(postUrl string, timeout time.Duration) (*crawler.DCInsideDetail, error)

// ItemJobProcessor drains summarization jobs one at a time.
type ItemJobProcessor struct {
	Queue       utils.MessageQueueReader
	DB          *gorm.DB
	Summarizer  *summarize.Client
	Reddit      *crawler.RedditClient
	FetchDetail DetailFetcher

	AssetRoot string
	// MaxDeliveries caps how often one message may be received before it
	// is dropped instead of processed. Zero disables the ceiling.
	MaxDeliveries int
	// MaxTextLength bounds both the composed document body and the
	// fallback summary written when every model failed.
	MaxTextLength int

	// mu serializes ConsumeOne so the drain loop and the HTTP endpoint
	// never hold two unacknowledged messages at once.
	mu sync.Mutex
}

func NewItemJobProcessor(queue utils.MessageQueueReader, db *gorm.DB, summarizer *summarize.Client, reddit *crawler.RedditClient) *ItemJobProcessor {
	return &ItemJobProcessor{
		Queue:         queue,
		DB:            db,
		Summarizer:    summarizer,
		Reddit:        reddit,
		FetchDetail:   crawler.FetchDCInsideDetail,
		AssetRoot:     utils.GetEnvString("WORKER_ASSET_ROOT", "data/assets"),
		MaxDeliveries: utils.GetEnvInt("WORKER_MAX_ATTEMPTS", 3),
		MaxTextLength: utils.GetEnvInt("WORKER_MAX_TEXT_LENGTH", 4000),
	}
}

// ConsumeOne pulls at most one message and processes it. The first return
// value is false when the queue was empty. Acknowledgement follows the
// error classification: success and permanent failures delete the message,
// transient failures return it for redelivery.
func (processor *ItemJobProcessor) ConsumeOne(ctx context.Context) (bool, string, error) {
	processor.mu.Lock()
	defer processor.mu.Unlock()

	messages, err := processor.Queue.ReceiveMessages(1)
	if err != nil {
		return false, "", errors.Wrap(err, "fail to receive from queue")
	}
	if len(messages) == 0 {
		return false, "queue empty", nil
	}
	message := messages[0]

	if processor.MaxDeliveries > 0 && message.ReceivedTimes > processor.MaxDeliveries {
		Logger.Log.Errorf("dropping message after %d deliveries: %s", message.ReceivedTimes, safeBody(message))
		if err := processor.Queue.DeleteMessage(message); err != nil {
			Logger.Log.Error("fail to delete poisoned message: ", err)
		}
		return true, fmt.Sprintf("dropped message after %d deliveries", message.ReceivedTimes), nil
	}

	result, err := processor.processMessage(ctx, message)
	if err == nil {
		if deleteErr := processor.Queue.DeleteMessage(message); deleteErr != nil {
			Logger.Log.Error("fail to delete processed message: ", deleteErr)
		}
		return true, result, nil
	}

	if IsRequeue(err) {
		if returnErr := processor.Queue.ReturnMessage(message); returnErr != nil {
			Logger.Log.Error("fail to return message to queue: ", returnErr)
		}
	} else {
		if deleteErr := processor.Queue.DeleteMessage(message); deleteErr != nil {
			Logger.Log.Error("fail to delete failed message: ", deleteErr)
		}
	}
	return true, "", err
}

func (processor *ItemJobProcessor) fetchDetail(postUrl string) (*crawler.DCInsideDetail, error) {
	if processor.FetchDetail != nil {
		return processor.FetchDetail(postUrl, detailFetchTimeout)
	}
	return crawler.FetchDCInsideDetail(postUrl, detailFetchTimeout)
}

func safeBody(message *utils.MessageQueueMessage) string {
	body, err := message.Read()
	if err != nil {
		return "<empty>"
	}
	return body
}

func (processor *ItemJobProcessor) processMessage(ctx context.Context, message *utils.MessageQueueMessage) (string, error) {
	body, err := message.Read()
	if err != nil {
		return "", permanent(err)
	}

	job := crawler.ItemJob{}
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return "", permanent(errors.Wrap(err, "invalid message payload"))
	}
	if job.ItemId <= 0 {
		return "", permanent(errors.New("message missing valid item_id"))
	}

	item, source, err := store.GetItem(processor.DB, job.ItemId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", permanent(errors.Errorf("item %d not found", job.ItemId))
		}
		return "", transient(errors.Wrapf(err, "fail to load item %d", job.ItemId))
	}

	if strings.HasPrefix(source.Parser, "dcinside") {
		return processor.processDCInsideItem(ctx, item)
	}
	if strings.HasPrefix(source.Parser, "reddit") {
		return processor.processRedditItem(ctx, item)
	}
	return "", permanent(errors.Errorf("no worker for parser %q", source.Parser))
}

func (processor *ItemJobProcessor) processDCInsideItem(ctx context.Context, item *model.Item) (string, error) {
	detail, err := processor.fetchDetail(item.Url)
	if err != nil {
		return processor.recordFetchFailure(item.Id, fmt.Sprintf("Detail fetch failed: %v", err))
	}

	// a video post is worthless to a text digest and is purged outright
	if crawler.ContainsVideoUrl(detail.ImageUrls) {
		if err := store.DeleteItem(processor.DB, item.Id); err != nil {
			return "", transient(errors.Wrapf(err, "fail to delete video item %d", item.Id))
		}
		return fmt.Sprintf("Skipped video post %d", item.Id), nil
	}

	comments := thread.NormalizeDCInside(detail.Comments)
	if err := store.ReplaceComments(processor.DB, item.Id, comments); err != nil {
		return "", transient(err)
	}

	document, composeErr := thread.Compose(
		detail.BodyText, thread.Linearize(comments), len(detail.ImageUrls), processor.MaxTextLength)
	if composeErr != nil {
		document = ""
	}

	assets := crawler.DownloadImages(
		detail.ImageUrls, externalIdOrItemId(item), item.Url, processor.AssetRoot, crawler.DesktopUserAgent)
	if err := store.ReplaceAssets(processor.DB, item.Id, assets); err != nil {
		return "", transient(err)
	}

	return processor.summarizeAndPersist(ctx, item.Id, document, assets)
}

func (processor *ItemJobProcessor) processRedditItem(ctx context.Context, item *model.Item) (string, error) {
	if processor.Reddit == nil {
		return "", transient(errors.New("reddit client not configured"))
	}

	post, err := processor.Reddit.FetchPostByUrl(item.Url)
	if err != nil {
		return processor.recordFetchFailure(item.Id, fmt.Sprintf("Detail fetch failed: %v", err))
	}
	if post == nil {
		return processor.recordFetchFailure(item.Id, "Reddit post not found")
	}
	if post.IsVideo || crawler.ContainsVideoUrl(post.MediaUrls) {
		return processor.recordFetchFailure(item.Id, "Skipped video post")
	}

	comments := thread.NormalizeReddit(post.RawComments)
	if err := store.ReplaceComments(processor.DB, item.Id, comments); err != nil {
		return "", transient(err)
	}

	body := redditDocumentBody(post)
	document, composeErr := thread.Compose(
		body, thread.Linearize(comments), len(post.MediaUrls), processor.MaxTextLength)
	if composeErr != nil {
		document = ""
	}

	assetRoot := filepath.Join(processor.AssetRoot, strings.ToLower(post.Subreddit))
	assets := crawler.DownloadImages(
		post.MediaUrls, post.ExternalId, post.Url, assetRoot, crawler.DesktopUserAgent)
	if err := store.ReplaceAssets(processor.DB, item.Id, assets); err != nil {
		return "", transient(err)
	}

	return processor.summarizeAndPersist(ctx, item.Id, document, assets)
}

// redditDocumentBody renders the post head: title, selftext or a link-post
// placeholder, the engagement line and the canonical url.
func redditDocumentBody(post *crawler.RedditPost) string {
	sections := []string{post.Title}
	if selfText := strings.TrimSpace(post.SelfText); selfText != "" {
		sections = append(sections, selfText)
	} else {
		sections = append(sections, linkOnlyBody)
	}
	sections = append(sections, fmt.Sprintf(
		"작성자: u/%s | 업보트: %d | 댓글: %d", post.Author, post.Score, post.NumComments))
	if post.Url != "" {
		sections = append(sections, "원문: "+post.Url)
	}
	return strings.Join(sections, "\n\n")
}

// recordFetchFailure stores the failure marker on the item and reports the
// job as handled. Retrying a fetch that already failed once produces the
// same dead page again, the next crawl pass re-queues the item anyway.
func (processor *ItemJobProcessor) recordFetchFailure(itemId int64, reason string) (string, error) {
	err := store.ApplySummaryUpdate(processor.DB, itemId, store.SummaryUpdate{
		RawText:   "",
		ModelName: processor.modelName(),
		LastError: reason,
	})
	if err != nil {
		return "", transient(err)
	}
	return fmt.Sprintf("%s for item %d", reason, itemId), nil
}

func (processor *ItemJobProcessor) summarizeAndPersist(ctx context.Context, itemId int64, document string, assets []store.AssetInput) (string, error) {
	imagePaths := make([]string, 0, len(assets))
	for _, asset := range assets {
		imagePaths = append(imagePaths, asset.LocalPath)
	}

	summary, modelName, summarizeErr := processor.Summarizer.Summarize(ctx, document, imagePaths)
	lastError := ""
	if summarizeErr != nil {
		lastError = summarizeErr.Error()
		Logger.Log.Warnf("summarization failed for item %d: %v", itemId, summarizeErr)
		// keep a readable fallback so the digest has something to show
		if document != "" {
			summary = utils.TruncateString(document, processor.MaxTextLength)
		}
		if modelName == "" {
			modelName = processor.modelName()
		}
	}

	update := store.SummaryUpdate{
		Summary:    summary,
		RawText:    document,
		ImageCount: len(imagePaths),
		ModelName:  modelName,
		LastError:  lastError,
	}
	if err := store.ApplySummaryUpdate(processor.DB, itemId, update); err != nil {
		return "", transient(err)
	}
	return fmt.Sprintf("Processed item %d", itemId), nil
}

// modelName names the attempt when no model was ever reached, for the
// error marker rows.
func (processor *ItemJobProcessor) modelName() string {
	return "unattempted"
}

func externalIdOrItemId(item *model.Item) string {
	if item.ExternalId != "" {
		return item.ExternalId
	}
	return fmt.Sprintf("%d", item.Id)
}
