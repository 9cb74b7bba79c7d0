package thread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestNormalizeRedditPrefixesAndParents(t *testing.T) {
	raw := []RedditRawComment{
		{Id: "abc", Author: "alice", Body: "top level", ParentId: "t3_post1", Depth: 0, Score: intPtr(12)},
		{Name: "t1_def", Author: "bob", Body: "a reply", ParentId: "t1_abc", Depth: 1},
		{Id: "", Name: "", Author: "ghost", Body: "no id at all"},
	}

	comments := NormalizeReddit(raw)
	require.Len(t, comments, 2)

	assert.Equal(t, "t1_abc", comments[0].ExternalId)
	assert.Nil(t, comments[0].ParentExternalId, "t3_ parent means top level")
	assert.Equal(t, 12, *comments[0].Score)
	assert.Equal(t, 0, comments[0].Metadata["depth"])

	assert.Equal(t, "t1_def", comments[1].ExternalId)
	require.NotNil(t, comments[1].ParentExternalId)
	assert.Equal(t, "t1_abc", *comments[1].ParentExternalId)
	assert.Equal(t, 1, comments[1].Metadata["depth"])
}

func TestNormalizeRedditDeletionMarkers(t *testing.T) {
	raw := []RedditRawComment{
		{Id: "a1", Author: "x", Body: "[deleted]"},
		{Id: "a2", Author: "y", Body: "[removed]"},
		{Id: "a3", Author: "", Body: "still here"},
	}

	comments := NormalizeReddit(raw)
	require.Len(t, comments, 3)
	assert.True(t, comments[0].IsDeleted)
	assert.True(t, comments[1].IsDeleted)
	assert.False(t, comments[2].IsDeleted)
	assert.Equal(t, "unknown", comments[2].Author)
}

func TestNormalizeDCInsideParentAndDepth(t *testing.T) {
	raw := []DCInsideRawComment{
		{ExternalId: "100", Author: "ㅇㅇ", Content: "원댓글 내용", ParentId: "0", CreatedAt: "2024-05-01 10:30:00"},
		{ExternalId: "101", Author: "익명", Content: "답글 내용", ParentId: "100"},
		{ExternalId: "", Author: "noise", Content: "dropped"},
	}

	comments := NormalizeDCInside(raw)
	require.Len(t, comments, 2)

	assert.Nil(t, comments[0].ParentExternalId)
	assert.Equal(t, 0, comments[0].Metadata["depth"])
	require.NotNil(t, comments[0].CreatedAt)

	require.NotNil(t, comments[1].ParentExternalId)
	assert.Equal(t, "100", *comments[1].ParentExternalId)
	assert.Equal(t, 1, comments[1].Metadata["depth"])
	assert.Nil(t, comments[1].CreatedAt)
}

func TestNormalizeDCInsideDeletedContent(t *testing.T) {
	raw := []DCInsideRawComment{
		{ExternalId: "1", Author: "a", Content: "삭제된 댓글입니다"},
		{ExternalId: "2", Author: "b", Content: "(삭제된 댓글)"},
		{ExternalId: "3", Author: "c", Content: "정상 댓글", IsDeleted: true},
	}

	comments := NormalizeDCInside(raw)
	require.Len(t, comments, 3)
	for i, c := range comments {
		assert.True(t, c.IsDeleted, "comment %d should be marked deleted", i)
	}
}

func TestParseCommentTimeBadInput(t *testing.T) {
	assert.Nil(t, parseCommentTime(""))
	assert.Nil(t, parseCommentTime("not a date"))
	assert.NotNil(t, parseCommentTime("2024-05-01T10:30:00Z"))
}
