package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hsh0702/boardsum/store"
	"github.com/hsh0702/boardsum/summarize"
	"github.com/hsh0702/boardsum/utils"
)

const digestPromptLimit = 50000

// BuildDigestPrompt numbers the collected summaries into one briefing
// request. The rule block steers the model toward concrete figures and a
// consistent register, both of which it drops without prompting.
func BuildDigestPrompt(entries []store.DigestEntry, hours int) string {
	lines := []string{
		fmt.Sprintf("다음은 최근 %d시간 동안 수집한 게시물 요약들입니다.", hours),
		"이 내용들을 바탕으로 현재 커뮤니티에서 가장 화제가 되고 있는 핵심 이슈 3~5가지를 선정해 브리핑해주세요.",
		"",
		"### 작성 규칙 (반드시 준수)",
		"1. **헤더 형식**: 각 이슈의 제목은 반드시 `### 1. 제목` 형식으로 작성하세요. (굵은 글씨 + 번호)",
		"2. **내용 형식**: 각 이슈당 3~4문장으로 요약하되, 구체적인 사실(모델명, 수치, 사건 등)을 포함하세요.",
		"3. **정량적 표현**: '많다', '높다', '대폭' 같은 모호한 표현 대신, **'88% 증가', '300만 토큰', '1위'** 처럼 구체적인 수치나 퍼센티지를 명확히 명시하세요.",
		"4. **문체**: '~했습니다', '~입니다' 처럼 정중하고 명확한 '해요체'나 '십시오체'를 사용하세요. (음슴체 사용 금지)",
		"5. **구분**: 이슈 사이에는 빈 줄을 하나 넣어 가독성을 높이세요.",
		"6. **종합**: 단순 나열이 아니라, 관련된 내용끼리는 하나로 묶어서 설명하세요. (예: 'Gemini 관련 소식들')",
		"7. **언어**: 기본적으로 한국어로 적되, 전문 용어나 고유 명사는 영어로 적으세요",
		"",
		"--- 수집된 게시물 목록 ---",
	}

	for i, entry := range entries {
		title := entry.Title
		if title == "" {
			title = "제목 없음"
		}
		source := entry.SourceName
		if source == "" {
			source = "Unknown"
		}
		summary := strings.TrimSpace(entry.SummaryText)
		lines = append(lines, fmt.Sprintf("[%d] %s - %s\n내용: %s", i+1, source, title, summary))
	}

	prompt := strings.Join(lines, "\n")
	if runes := []rune(prompt); len(runes) > digestPromptLimit {
		prompt = string(runes[:digestPromptLimit])
	}
	return prompt
}

// newDigestSummarizer builds the digest's own summarization client. The
// digest prompt is long and runs on a second API key so that it cannot
// starve the per-post quota.
func newDigestSummarizer() *summarize.Client {
	config := summarize.DefaultConfig()
	config.ApiKey = utils.GetEnvString("GEMINI_API_KEY2", "")
	config.Timeout = 60 * time.Second
	config.MaxTextLength = 10000
	config.Cooldown = 60 * time.Second

	models := utils.GetEnvString("GEMINI_MODEL_PRIORITIES2", "")
	for _, model := range strings.Split(models, ",") {
		if trimmed := strings.TrimSpace(model); trimmed != "" {
			config.ModelPriorities = append(config.ModelPriorities, trimmed)
		}
	}
	if len(config.ModelPriorities) == 0 {
		config.ModelPriorities = []string{"gemini-2.0-flash-exp", "gemini-1.5-flash"}
	}
	return summarize.NewClient(config, summarize.NewMemoryCooldowns())
}

// SummarizeDigest turns the window's entries into a briefing text.
func (bot *Bot) SummarizeDigest(ctx context.Context, entries []store.DigestEntry, hours int) (string, string, error) {
	prompt := BuildDigestPrompt(entries, hours)
	return bot.digestSummarizer.Summarize(ctx, prompt, nil)
}
