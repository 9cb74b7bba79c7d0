package crawler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const commentTreeFixture = `{
  "children": [
    {"kind": "t1", "data": {
      "id": "c1", "name": "t1_c1", "author": "alice", "body": "top comment",
      "score": 10, "created_utc": 1714550400, "parent_id": "t3_post",
      "replies": {"kind": "Listing", "data": {"children": [
        {"kind": "t1", "data": {
          "id": "c2", "name": "t1_c2", "author": "bob", "body": "[deleted]",
          "parent_id": "t1_c1", "replies": ""
        }}
      ]}}
    }},
    {"kind": "more", "data": {"count": 12}},
    {"kind": "t1", "data": {
      "id": "c3", "name": "t1_c3", "author": "carol", "body": "another top",
      "parent_id": "t3_post", "replies": ""
    }}
  ]
}`

func TestFlattenCommentListing(t *testing.T) {
	var listing redditListing
	require.NoError(t, json.Unmarshal([]byte(commentTreeFixture), &listing))

	comments := flattenCommentListing(listing, 0)
	require.Len(t, comments, 3)

	assert.Equal(t, "t1_c1", comments[0].Name)
	assert.Equal(t, 0, comments[0].Depth)
	assert.Equal(t, "2024-05-01T08:00:00Z", comments[0].CreatedUTC)
	require.NotNil(t, comments[0].Score)
	assert.Equal(t, 10, *comments[0].Score)

	// nested reply comes right after its parent, one level deeper
	assert.Equal(t, "t1_c2", comments[1].Name)
	assert.Equal(t, 1, comments[1].Depth)
	assert.True(t, comments[1].IsDeleted)

	assert.Equal(t, "t1_c3", comments[2].Name)
	assert.Equal(t, 0, comments[2].Depth)
}

func TestExtractMediaUrlsPreviewAndGallery(t *testing.T) {
	raw := `{
	  "preview": {"images": [{"source": {"url": "https://preview.redd.it/a.jpg?width=640&amp;s=abc"},
	    "resolutions": [{"url": "https://preview.redd.it/a_small.jpg"}]}]},
	  "gallery_data": {"items": [{"media_id": "m1"}, {"media_id": "m2"}]},
	  "media_metadata": {
	    "m1": {"status": "valid", "p": [{"u": "https://preview.redd.it/m1_p.jpg"}], "s": {"u": "https://i.redd.it/m1.jpg"}},
	    "m2": {"status": "failed", "s": {"u": "https://i.redd.it/m2.jpg"}}
	  }
	}`
	var node redditPostNode
	require.NoError(t, json.Unmarshal([]byte(raw), &node))

	urls := extractMediaUrls(node)
	assert.Equal(t, []string{
		"https://preview.redd.it/a.jpg?width=640&s=abc",
		"https://preview.redd.it/a_small.jpg",
		"https://preview.redd.it/m1_p.jpg",
		"https://i.redd.it/m1.jpg",
	}, urls)
}

func TestExtractMediaUrlsFallsBackToDestination(t *testing.T) {
	node := redditPostNode{UrlOverriddenByDest: "https://i.imgur.com/x.png"}
	assert.Equal(t, []string{"https://i.imgur.com/x.png"}, extractMediaUrls(node))

	assert.Empty(t, extractMediaUrls(redditPostNode{}))
}

func TestRedditPostItemMetadata(t *testing.T) {
	post := RedditPost{
		Subreddit:   "OpenAI",
		ExternalId:  "t3_abc",
		Title:       "A title",
		Url:         "https://www.reddit.com/r/OpenAI/comments/abc/a_title/",
		Author:      "alice",
		CreatedUTC:  unixToTime(1714550400),
		Score:       55,
		NumComments: 9,
		SelfText:    "body text",
		Permalink:   "/r/OpenAI/comments/abc/a_title/",
		IsSelf:      true,
		Extra:       map[string]interface{}{"domain": "self.OpenAI"},
	}

	input := post.Item()
	assert.Equal(t, "t3_abc", input.ExternalId)
	assert.Equal(t, "A title", input.Title)
	assert.Equal(t, 55, input.Metadata["score"])
	assert.Equal(t, 9, input.Metadata["num_comments"])
	assert.Equal(t, true, input.Metadata["is_self"])
	assert.Equal(t, "self.OpenAI", input.Metadata["domain"])
	require.NotNil(t, input.PublishedAt)
}

func TestUnixTimestampHelpers(t *testing.T) {
	assert.Equal(t, "2024-05-01T08:00:00Z", formatUnixTimestamp(1714550400))
	assert.Equal(t, "", formatUnixTimestamp(0))
	assert.Equal(t, "(untitled)", titleOrUntitled(""))
	assert.Equal(t, "unknown", authorOrUnknown(""))
}
