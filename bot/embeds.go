// Package bot runs the Discord front end: slash commands for hot topics
// and digests plus the periodic digest delivery.
package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/hsh0702/boardsum/store"
)

const (
	maxFieldLength       = 1024
	maxDescriptionLength = 4000

	colorGold    = 0xf1c40f
	colorGreen   = 0x57f287
	colorBlurple = 0x5865f2
)

// truncateText bounds text to limit characters, rune aware, marking the
// cut with an ellipsis when space allows.
func truncateText(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return strings.TrimRight(string(runes[:limit-3]), " \t\n") + "..."
}

// BuildDigestEmbed renders the digest briefing. A nil digest means the
// generation failed and the embed says so instead of staying silent.
func BuildDigestEmbed(hours int, digestText string) *discordgo.MessageEmbed {
	description := digestText
	if strings.TrimSpace(description) == "" {
		description = "요약 생성에 실패했습니다. 아래 목록을 참고하세요."
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("최근 %d시간 일어난 일", hours),
		Description: truncateText(strings.TrimSpace(description), maxDescriptionLength),
		Color:       colorGold,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

// recentFieldValue lays out one recent post field: summary body, a link
// back to the original, and a meta line with the engagement counters.
// The summary shrinks first when the field would exceed the Discord cap.
func recentFieldValue(post store.RecentSummary) string {
	summary := strings.TrimSpace(post.SummaryText)
	if summary == "" {
		summary = "요약 없음"
	}

	linkLine := ""
	if post.Url != "" {
		linkLine = fmt.Sprintf("[원문 보기](%s)", post.Url)
	}

	metaParts := []string{}
	if post.Subject != nil && strings.TrimSpace(*post.Subject) != "" {
		metaParts = append(metaParts, strings.TrimSpace(*post.Subject))
	}
	posted := post.FirstSeenAt
	if post.PublishedAt != nil {
		posted = *post.PublishedAt
	}
	if !posted.IsZero() {
		metaParts = append(metaParts, "게시 "+posted.UTC().Format("2006-01-02 15:04"))
	}
	if post.Recommends != nil {
		metaParts = append(metaParts, fmt.Sprintf("추천 %d", *post.Recommends))
	}
	if post.Views != nil {
		metaParts = append(metaParts, fmt.Sprintf("조회 %d", *post.Views))
	}
	if post.CommentCount != nil {
		metaParts = append(metaParts, fmt.Sprintf("댓글 %d", *post.CommentCount))
	}

	tail := ""
	if linkLine != "" {
		tail += "\n\n" + linkLine
	}
	if len(metaParts) > 0 {
		tail += "\n" + strings.Join(metaParts, " • ")
	}

	summaryLimit := maxFieldLength - len([]rune(tail))
	if summaryLimit < 10 {
		summaryLimit = 10
	}
	return truncateText(truncateText(summary, summaryLimit)+tail, maxFieldLength)
}

// BuildRecentEmbed renders the newest summarized posts, one field each.
func BuildRecentEmbed(posts []store.RecentSummary) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("최신 요약 상위 %d개", len(posts)),
		Description: "요약이 수집된 최근 게시물을 보여줍니다.",
		Color:       colorBlurple,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	for i, post := range posts {
		title := strings.TrimSpace(post.Title)
		if title == "" {
			title = "제목 없음"
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   truncateText(fmt.Sprintf("%d. %s", i+1, title), 256),
			Value:  recentFieldValue(post),
			Inline: false,
		})
	}
	return embed
}

// BuildBestEmbed renders one field per hot post: the summary headline when
// one exists, a link back to the original, and the summary body.
func BuildBestEmbed(posts []store.BestPost, hours int) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:     fmt.Sprintf("지난 %d시간 핫 토픽", hours),
		Color:     colorGreen,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	for i, post := range posts {
		displayTitle := ""
		if post.SummaryTitle != nil {
			displayTitle = strings.TrimSpace(*post.SummaryTitle)
		}
		if displayTitle == "" {
			displayTitle = strings.TrimSpace(post.Title)
		}
		if displayTitle == "" {
			displayTitle = "제목 없음"
		}

		summary := strings.TrimSpace(post.SummaryText)
		if summary == "" {
			summary = "요약 없음"
		}

		header := fmt.Sprintf("**%d. %s**", i+1, displayTitle)
		if post.Url != "" {
			header += fmt.Sprintf(" [[원문]](%s)", post.Url)
		}

		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "​",
			Value:  truncateText(header+"\n\n"+summary, maxFieldLength),
			Inline: false,
		})
	}
	return embed
}
