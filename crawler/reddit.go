package crawler

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hsh0702/boardsum/store"
	"github.com/hsh0702/boardsum/thread"
	"github.com/hsh0702/boardsum/utils"
)

const (
	redditBase     = "https://www.reddit.com"
	redditApiBase  = "https://oauth.reddit.com"
	redditTokenUrl = "https://www.reddit.com/api/v1/access_token"
)

// RedditPost is one post from a subreddit listing or a single-post fetch,
// with its full comment tree already flattened.
type RedditPost struct {
	Subreddit   string
	ExternalId  string
	Title       string
	Url         string
	Author      string
	CreatedUTC  time.Time
	Score       int
	NumComments int
	SelfText    string
	Permalink   string
	IsSelf      bool
	IsVideo     bool
	Flair       string
	Thumbnail   string
	MediaUrls   []string
	RawComments []thread.RedditRawComment
	Extra       map[string]interface{}
}

func (post RedditPost) Platform() string {
	return "reddit"
}

func (post RedditPost) Item() store.ItemInput {
	metadata := map[string]interface{}{
		"score":        post.Score,
		"num_comments": post.NumComments,
		"is_self":      post.IsSelf,
		"is_video":     post.IsVideo,
		"permalink":    post.Permalink,
		"fetched_at":   time.Now().UTC().Format(time.RFC3339),
	}
	for key, value := range post.Extra {
		if value != nil {
			metadata[key] = value
		}
	}

	published := post.CreatedUTC
	return store.ItemInput{
		ExternalId:  post.ExternalId,
		Url:         post.Url,
		Title:       post.Title,
		Author:      post.Author,
		PublishedAt: &published,
		Metadata:    metadata,
	}
}

// RedditClient talks to the Reddit OAuth API with a cached script-grant
// token. Safe for concurrent use.
type RedditClient struct {
	clientId     string
	clientSecret string
	username     string
	password     string
	userAgent    string
	http         *http.Client

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewRedditClientFromEnv reads the script app credentials from the
// environment. All four are required, Reddit rejects anonymous API use.
func NewRedditClientFromEnv() (*RedditClient, error) {
	clientId := utils.GetEnvString("REDDIT_CLIENT_ID", "")
	clientSecret := utils.GetEnvString("REDDIT_CLIENT_SECRET", "")
	username := utils.GetEnvString("REDDIT_USERNAME", "")
	password := utils.GetEnvString("REDDIT_PASSWORD", "")
	if clientId == "" || clientSecret == "" || username == "" || password == "" {
		return nil, errors.New(
			"missing Reddit OAuth environment variables, need REDDIT_CLIENT_ID, REDDIT_CLIENT_SECRET, REDDIT_USERNAME, REDDIT_PASSWORD")
	}
	userAgent := utils.GetEnvString("REDDIT_USER_AGENT", DesktopUserAgent)
	return &RedditClient{
		clientId:     clientId,
		clientSecret: clientSecret,
		username:     username,
		password:     password,
		userAgent:    userAgent,
		http:         &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (client *RedditClient) token() (string, error) {
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.accessToken != "" && time.Now().Before(client.expiresAt) {
		return client.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", client.username)
	form.Set("password", client.password)
	req, err := http.NewRequest(http.MethodPost, redditTokenUrl, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(client.clientId, client.clientSecret)
	req.Header.Set("User-Agent", client.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "fail to request Reddit OAuth token")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Reddit token endpoint returned status %d", resp.StatusCode)
	}

	payload := struct {
		AccessToken string  `json:"access_token"`
		ExpiresIn   float64 `json:"expires_in"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", errors.Wrap(err, "invalid Reddit token response")
	}
	if payload.AccessToken == "" {
		return "", errors.New("Reddit token response carries no access_token")
	}

	expiresIn := payload.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	client.accessToken = payload.AccessToken
	// refresh a minute before the server-side expiry
	client.expiresAt = time.Now().Add(time.Duration(expiresIn-60) * time.Second)
	return client.accessToken, nil
}

func (client *RedditClient) invalidateToken() {
	client.mu.Lock()
	client.accessToken = ""
	client.expiresAt = time.Time{}
	client.mu.Unlock()
}

// apiGet performs one authenticated GET. A 401 invalidates the cached
// token and retries once with a fresh one.
func (client *RedditClient) apiGet(path string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	if params.Get("raw_json") == "" {
		params.Set("raw_json", "1")
	}
	requestUrl := redditApiBase + path + "?" + params.Encode()

	var lastStatus int
	for attempt := 0; attempt < 2; attempt++ {
		token, err := client.token()
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequest(http.MethodGet, requestUrl, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "bearer "+token)
		req.Header.Set("User-Agent", client.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := client.http.Do(req)
		if err != nil {
			return nil, errors.Wrapf(err, "fail to call Reddit API %s", path)
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}
		lastStatus = resp.StatusCode
		if resp.StatusCode == http.StatusUnauthorized {
			client.invalidateToken()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("Reddit API %s returned status %d", path, resp.StatusCode)
		}
		return body, nil
	}
	return nil, fmt.Errorf("Reddit API %s kept returning status %d", path, lastStatus)
}

// wire shapes

type redditThing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type redditListing struct {
	Children []redditThing `json:"children"`
}

type redditPostNode struct {
	Id                  string                 `json:"id"`
	Name                string                 `json:"name"`
	Subreddit           string                 `json:"subreddit"`
	Title               string                 `json:"title"`
	Url                 string                 `json:"url"`
	Author              string                 `json:"author"`
	CreatedUTC          float64                `json:"created_utc"`
	Score               int                    `json:"score"`
	NumComments         int                    `json:"num_comments"`
	SelfText            string                 `json:"selftext"`
	Permalink           string                 `json:"permalink"`
	IsSelf              bool                   `json:"is_self"`
	IsVideo             bool                   `json:"is_video"`
	MediaOnly           bool                   `json:"media_only"`
	LinkFlairText       string                 `json:"link_flair_text"`
	AuthorFlairText     string                 `json:"author_flair_text"`
	Thumbnail           string                 `json:"thumbnail"`
	UpvoteRatio         *float64               `json:"upvote_ratio"`
	Over18              *bool                  `json:"over_18"`
	Spoiler             *bool                  `json:"spoiler"`
	PostHint            string                 `json:"post_hint"`
	Domain              string                 `json:"domain"`
	UrlOverriddenByDest string                 `json:"url_overridden_by_dest"`
	Preview             *redditPreview         `json:"preview"`
	GalleryData         *redditGalleryData     `json:"gallery_data"`
	MediaMetadata       map[string]galleryMeta `json:"media_metadata"`
}

type redditPreview struct {
	Images []struct {
		Source struct {
			Url string `json:"url"`
		} `json:"source"`
		Resolutions []struct {
			Url string `json:"url"`
		} `json:"resolutions"`
	} `json:"images"`
}

type redditGalleryData struct {
	Items []struct {
		MediaId string `json:"media_id"`
	} `json:"items"`
}

type galleryMeta struct {
	Status string `json:"status"`
	P      []struct {
		U string `json:"u"`
	} `json:"p"`
	S struct {
		U string `json:"u"`
	} `json:"s"`
}

type redditCommentNode struct {
	Id         string          `json:"id"`
	Name       string          `json:"name"`
	Author     string          `json:"author"`
	Body       string          `json:"body"`
	Score      *int            `json:"score"`
	Ups        *int            `json:"ups"`
	CreatedUTC float64         `json:"created_utc"`
	Permalink  string          `json:"permalink"`
	ParentId   string          `json:"parent_id"`
	Stickied   bool            `json:"stickied"`
	Collapsed  bool            `json:"collapsed"`
	Replies    json.RawMessage `json:"replies"`
}

// FetchNewPosts lists the subreddit's /new feed and loads each post's
// comment tree.
func (client *RedditClient) FetchNewPosts(subreddit string, limit int) ([]RedditPost, error) {
	params := url.Values{}
	params.Set("limit", fmt.Sprintf("%d", limit))
	body, err := client.apiGet(fmt.Sprintf("/r/%s/new", subreddit), params)
	if err != nil {
		return nil, err
	}

	envelope := struct {
		Data redditListing `json:"data"`
	}{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.Wrap(err, "invalid subreddit listing response")
	}

	posts := []RedditPost{}
	for _, child := range envelope.Data.Children {
		node := redditPostNode{}
		if err := json.Unmarshal(child.Data, &node); err != nil || node.Id == "" {
			continue
		}
		post := client.buildPost(subreddit, node, nil)
		comments, err := client.fetchComments(node.Permalink)
		if err == nil {
			post.RawComments = comments
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// FetchPostByUrl loads a single post and its comment tree from a full
// post url. Returns nil without error when the listing shape holds no
// post.
func (client *RedditClient) FetchPostByUrl(postUrl string) (*RedditPost, error) {
	parsed, err := url.Parse(postUrl)
	if err != nil || parsed.Path == "" {
		return nil, errors.Errorf("not a valid Reddit post url: %s", postUrl)
	}
	path := strings.TrimRight(parsed.Path, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	params := url.Values{}
	params.Set("sort", "confidence")
	body, err := client.apiGet(path+".json", params)
	if err != nil {
		return nil, err
	}

	// payload is a two element array: the post listing and the comments
	pages := []struct {
		Data redditListing `json:"data"`
	}{}
	if err := json.Unmarshal(body, &pages); err != nil || len(pages) == 0 {
		return nil, errors.Wrap(err, "invalid single post response")
	}
	if len(pages[0].Data.Children) == 0 {
		return nil, nil
	}

	node := redditPostNode{}
	if err := json.Unmarshal(pages[0].Data.Children[0].Data, &node); err != nil || node.Id == "" {
		return nil, nil
	}

	subreddit := node.Subreddit
	if subreddit == "" {
		segments := strings.Split(strings.Trim(path, "/"), "/")
		for i, segment := range segments {
			if segment == "r" && i+1 < len(segments) {
				subreddit = segments[i+1]
				break
			}
		}
	}

	comments := []thread.RedditRawComment{}
	if len(pages) > 1 {
		comments = flattenCommentListing(pages[1].Data, 0)
	}
	post := client.buildPost(subreddit, node, comments)
	return &post, nil
}

func (client *RedditClient) fetchComments(permalink string) ([]thread.RedditRawComment, error) {
	if permalink == "" {
		return nil, nil
	}
	params := url.Values{}
	params.Set("sort", "confidence")
	body, err := client.apiGet(permalink+".json", params)
	if err != nil {
		return nil, err
	}
	pages := []struct {
		Data redditListing `json:"data"`
	}{}
	if err := json.Unmarshal(body, &pages); err != nil || len(pages) < 2 {
		return nil, nil
	}
	return flattenCommentListing(pages[1].Data, 0), nil
}

// flattenCommentListing walks the nested reply tree in pre-order and tags
// each comment with its depth. "more" stubs and anything that is not a t1
// child are skipped.
func flattenCommentListing(listing redditListing, depth int) []thread.RedditRawComment {
	flattened := []thread.RedditRawComment{}
	for _, child := range listing.Children {
		if child.Kind != "t1" {
			continue
		}
		node := redditCommentNode{}
		if err := json.Unmarshal(child.Data, &node); err != nil {
			continue
		}

		body := strings.TrimSpace(node.Body)
		lowered := strings.ToLower(body)
		comment := thread.RedditRawComment{
			Id:         node.Id,
			Name:       node.Name,
			Author:     node.Author,
			Body:       node.Body,
			Score:      node.Score,
			Ups:        node.Ups,
			CreatedUTC: formatUnixTimestamp(node.CreatedUTC),
			Permalink:  node.Permalink,
			Depth:      depth,
			ParentId:   node.ParentId,
			IsDeleted:  lowered == "[deleted]" || lowered == "[removed]",
			Stickied:   node.Stickied,
			Collapsed:  node.Collapsed,
		}
		flattened = append(flattened, comment)

		// replies is an empty string when the comment is a leaf
		if len(node.Replies) > 0 && node.Replies[0] == '{' {
			nested := struct {
				Data redditListing `json:"data"`
			}{}
			if err := json.Unmarshal(node.Replies, &nested); err == nil {
				flattened = append(flattened, flattenCommentListing(nested.Data, depth+1)...)
			}
		}
	}
	return flattened
}

func (client *RedditClient) buildPost(subreddit string, node redditPostNode, comments []thread.RedditRawComment) RedditPost {
	externalId := node.Name
	if externalId == "" {
		externalId = node.Id
	}

	postUrl := node.Url
	if node.Permalink != "" {
		postUrl = redditBase + node.Permalink
	}

	flair := node.LinkFlairText
	if flair == "" {
		flair = node.AuthorFlairText
	}

	extra := map[string]interface{}{
		"post_hint":              emptyToNil(node.PostHint),
		"domain":                 emptyToNil(node.Domain),
		"url_overridden_by_dest": emptyToNil(node.UrlOverriddenByDest),
		"media_only":             node.MediaOnly,
	}
	if node.UpvoteRatio != nil {
		extra["upvote_ratio"] = *node.UpvoteRatio
	}
	if node.Over18 != nil {
		extra["over_18"] = *node.Over18
	}
	if node.Spoiler != nil {
		extra["spoiler"] = *node.Spoiler
	}

	return RedditPost{
		Subreddit:   subreddit,
		ExternalId:  externalId,
		Title:       titleOrUntitled(node.Title),
		Url:         postUrl,
		Author:      authorOrUnknown(node.Author),
		CreatedUTC:  unixToTime(node.CreatedUTC),
		Score:       node.Score,
		NumComments: node.NumComments,
		SelfText:    node.SelfText,
		Permalink:   node.Permalink,
		IsSelf:      node.IsSelf,
		IsVideo:     node.IsVideo,
		Flair:       flair,
		Thumbnail:   html.UnescapeString(node.Thumbnail),
		MediaUrls:   extractMediaUrls(node),
		RawComments: comments,
		Extra:       extra,
	}
}

// extractMediaUrls gathers image urls from the preview block and the
// gallery metadata, falling back to the destination url when the post has
// neither. Reddit escapes ampersands in these urls.
func extractMediaUrls(node redditPostNode) []string {
	seen := map[string]bool{}
	mediaUrls := []string{}
	add := func(raw string) {
		if raw == "" {
			return
		}
		cleaned := html.UnescapeString(raw)
		if !seen[cleaned] {
			mediaUrls = append(mediaUrls, cleaned)
			seen[cleaned] = true
		}
	}

	if node.Preview != nil {
		for _, image := range node.Preview.Images {
			add(image.Source.Url)
			for _, resolution := range image.Resolutions {
				add(resolution.Url)
			}
		}
	}
	if node.GalleryData != nil {
		for _, item := range node.GalleryData.Items {
			meta, ok := node.MediaMetadata[item.MediaId]
			if !ok || meta.Status != "valid" {
				continue
			}
			for _, variant := range meta.P {
				add(variant.U)
			}
			add(meta.S.U)
		}
	}
	if len(mediaUrls) == 0 {
		add(node.UrlOverriddenByDest)
	}
	return mediaUrls
}

func emptyToNil(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func unixToTime(timestamp float64) time.Time {
	if timestamp <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(int64(timestamp), 0).UTC()
}

func formatUnixTimestamp(timestamp float64) string {
	if timestamp <= 0 {
		return ""
	}
	return time.Unix(int64(timestamp), 0).UTC().Format(time.RFC3339)
}

func titleOrUntitled(title string) string {
	if title == "" {
		return "(untitled)"
	}
	return title
}

func authorOrUnknown(author string) string {
	if author == "" {
		return "unknown"
	}
	return author
}
