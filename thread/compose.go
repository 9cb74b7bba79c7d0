package thread

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrNoContent means there is nothing at all to summarize: no body, no
// comments, no images.
var ErrNoContent = errors.New("no text or images available for summarization")

const (
	// placeholder body for image-only posts
	imageOnlyBody = "(본문 텍스트 없음 — 이미지를 기반으로 요약해 주세요.)"

	commentSectionHeader = "댓글 전체 목록 (원댓글/대댓글 구조):"

	truncationMarker = "\n..."
)

// Compose merges the post body and the linearized comment lines into the
// document handed to the summarization backend.
//
// The body alone is bounded by maxBodyLen: anything longer is hard-cut at
// the character boundary and marked with an ellipsis. The comment block is
// appended in full afterwards, so the overall document may exceed the
// budget. The summarization client applies its own bounding pass on top.
func Compose(body string, commentLines []string, imageCount int, maxBodyLen int) (string, error) {
	text := strings.TrimSpace(body)
	if text == "" {
		if imageCount > 0 {
			text = imageOnlyBody
		} else if len(commentLines) == 0 {
			return "", ErrNoContent
		}
	}

	if runes := []rune(text); maxBodyLen > 0 && len(runes) > maxBodyLen {
		text = string(runes[:maxBodyLen]) + truncationMarker
	}

	if len(commentLines) > 0 {
		block := commentSectionHeader + "\n" + strings.Join(commentLines, "\n")
		if text == "" {
			text = block
		} else {
			text = text + "\n\n" + block
		}
	}

	return text, nil
}
