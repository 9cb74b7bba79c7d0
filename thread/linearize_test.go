package thread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(v string) *string { return &v }

func TestLinearizeLabelsAndIndent(t *testing.T) {
	comments := []Comment{
		{ExternalId: "1", Author: "alice", Content: "hello", Metadata: map[string]interface{}{"depth": 0}},
		{ExternalId: "2", Author: "bob", Content: "hi back", ParentExternalId: strPtr("1"), Metadata: map[string]interface{}{"depth": 1}},
		{ExternalId: "3", Author: "carol", Content: "orphan reply", ParentExternalId: strPtr("missing"), Metadata: map[string]interface{}{"depth": 1}},
	}

	lines := Linearize(comments)
	require.Len(t, lines, 3)

	assert.Equal(t, "[원댓글] alice: hello", lines[0])
	assert.Equal(t, "  [대댓글 → alice] bob: hi back", lines[1])
	assert.Equal(t, "  [대댓글] carol: orphan reply", lines[2])
}

func TestLinearizeSkipsEmptyAndShowsScore(t *testing.T) {
	comments := []Comment{
		{ExternalId: "1", Author: "alice", Content: "  ", Metadata: map[string]interface{}{"depth": 0}},
		{ExternalId: "2", Author: "bob", Content: "scored", Score: intPtr(7), Metadata: map[string]interface{}{"depth": 0}},
	}

	lines := Linearize(comments)
	require.Len(t, lines, 1)
	assert.Equal(t, "[원댓글] bob (+7): scored", lines[0])
}

func TestLinearizeEmptyBatch(t *testing.T) {
	assert.Nil(t, Linearize(nil))
	assert.Nil(t, Linearize([]Comment{}))
}

func TestCommentDepthCoercion(t *testing.T) {
	assert.Equal(t, 2, commentDepth(Comment{Metadata: map[string]interface{}{"depth": float64(2)}}))
	assert.Equal(t, 3, commentDepth(Comment{Metadata: map[string]interface{}{"depth": "3"}}))
	assert.Equal(t, 0, commentDepth(Comment{Metadata: map[string]interface{}{"depth": -1}}))
	assert.Equal(t, 0, commentDepth(Comment{}))
}
