// Package summarize drives the Gemini generateContent API with an ordered
// model priority list and quota-aware per-model cooldowns.
package summarize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	Logger "github.com/hsh0702/boardsum/utils/log"
)

const (
	defaultEndpoint = "https://generativelanguage.googleapis.com"

	// a cooldown shorter than this is pointless against minute-window quotas
	minCooldown = 30 * time.Second

	systemPrompt = "당신은 DCInside나 Reddit 게시물을 한국어로 요약하는 전문가입니다. 출력은 반드시 자연스럽고" +
		" 문어체에 가까운 한국어 문장으로 작성하며 불릿 포인트나 영어 문장은 사용하지 않습니다." +
		" 답변은 3문장 이내로 유지하고 링크는 제외합니다. 이미지에서 확인한 핵심 내용이 있다면 본문" +
		" 맥락에 자연스럽게 녹여 설명합니다. 고유명사는 원문 표기를 유지하세요."
)

var (
	ErrMissingCredential = errors.New("missing Gemini API key")
	ErrNoContent         = errors.New("no text or images available for summarization")
)

// SummaryError carries the last error message once every candidate model
// failed or was cooled down, tagged with the last model that was actually
// attempted so that callers can still record provenance.
type SummaryError struct {
	Message   string
	LastModel string
}

func (e *SummaryError) Error() string {
	return e.Message
}

// Config enumerates everything one summarization call needs. ModelPriorities
// is ordered: earlier models are preferred, later ones are fallbacks.
type Config struct {
	ApiKey          string
	ModelPriorities []string
	Timeout         time.Duration
	MaxTextLength   int
	Cooldown        time.Duration
	ImageLimit      int
	Debug           bool
	Endpoint        string

	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
}

// DefaultConfig returns the generation parameters the original prompt was
// tuned with. Callers fill in ApiKey and ModelPriorities.
func DefaultConfig() Config {
	return Config{
		Timeout:         60 * time.Second,
		MaxTextLength:   4000,
		Cooldown:        10 * time.Minute,
		ImageLimit:      8,
		Endpoint:        defaultEndpoint,
		Temperature:     0.4,
		TopP:            0.95,
		TopK:            40,
		MaxOutputTokens: 512,
	}
}

// Client calls the Gemini API with model fallback. The cooldown store is
// injected so single-instance workers can use the in-memory map while a
// fleet can share a redis-backed one.
type Client struct {
	config    Config
	cooldowns CooldownStore
	http      *http.Client
}

func NewClient(config Config, cooldowns CooldownStore) *Client {
	if config.Endpoint == "" {
		config.Endpoint = defaultEndpoint
	}
	if cooldowns == nil {
		cooldowns = NewMemoryCooldowns()
	}
	return &Client{
		config:    config,
		cooldowns: cooldowns,
		http:      &http.Client{Timeout: config.Timeout},
	}
}

// request/response wire shapes for generateContent

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		Text string `json:"text"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Summarize generates a summary for the given text and images, returning
// the summary and the model that produced it.
//
// Models are tried in priority order. A model inside an active cooldown
// window is skipped without a request. A quota-class failure cools the
// model down and moves on; any other failure is recorded and the next model
// is tried. Success clears that model's cooldown and returns immediately.
func (c *Client) Summarize(ctx context.Context, text string, imagePaths []string) (string, string, error) {
	if c.config.ApiKey == "" {
		return "", "", ErrMissingCredential
	}

	textToUse := strings.TrimSpace(text)
	if textToUse == "" {
		if len(imagePaths) == 0 {
			return "", "", ErrNoContent
		}
		textToUse = "(본문 텍스트 없음 — 이미지를 기반으로 요약해 주세요.)"
	}

	if runes := []rune(textToUse); c.config.MaxTextLength > 0 && len(runes) > c.config.MaxTextLength {
		textToUse = string(runes[:c.config.MaxTextLength]) + "\n..."
	}

	userPrompt := "아래는 게시물 원문과 참고 이미지입니다. 중요 내용을 3문장 이내로 요약해 주세요.\n\n" + textToUse

	models := []string{}
	for _, model := range c.config.ModelPriorities {
		if trimmed := strings.TrimSpace(model); trimmed != "" {
			models = append(models, trimmed)
		}
	}
	if len(models) == 0 {
		return "", "", &SummaryError{Message: "no Gemini models configured"}
	}

	imageParts := c.buildImageParts(imagePaths)

	var lastErr string
	lastModel := ""
	now := time.Now()
	for _, model := range models {
		if until, ok := c.cooldowns.Until(model); ok && until.After(now) {
			continue
		}

		lastModel = model
		summary, err := c.invoke(ctx, model, userPrompt, imageParts)
		if err == nil {
			c.cooldowns.Clear(model)
			return summary, model, nil
		}

		if isQuotaError(err) {
			Logger.Log.Warnf("model %s quota error: %v", model, err)
			cooldown := c.config.Cooldown
			if cooldown < minCooldown {
				cooldown = minCooldown
			}
			c.cooldowns.Set(model, time.Now().Add(cooldown))
		} else {
			Logger.Log.Warnf("model %s failed: %v", model, err)
		}
		lastErr = err.Error()
	}

	if lastErr != "" {
		return "", lastModel, &SummaryError{Message: lastErr, LastModel: lastModel}
	}
	return "", lastModel, &SummaryError{
		Message:   "all Gemini models were skipped due to cooldown or configuration",
		LastModel: lastModel,
	}
}

// SummarizeWithTitle additionally treats the first non-blank output line as
// a title for the summary. Label tokens the model sometimes emits despite
// instruction ("제목:", "Title:", markdown emphasis) are stripped from the
// title line. A response without any non-blank line is a hard failure.
func (c *Client) SummarizeWithTitle(ctx context.Context, text string, imagePaths []string) (title string, summary string, model string, err error) {
	raw, model, err := c.Summarize(ctx, text, imagePaths)
	if err != nil {
		return "", "", model, err
	}

	var bodyLines []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if title == "" {
			title = stripTitleLabel(trimmed)
			continue
		}
		bodyLines = append(bodyLines, trimmed)
	}

	if title == "" {
		return "", "", model, &SummaryError{Message: "model returned no usable output lines", LastModel: model}
	}
	if len(bodyLines) == 0 {
		// single-line output: the line serves as both
		return title, title, model, nil
	}
	return title, strings.Join(bodyLines, "\n"), model, nil
}

func stripTitleLabel(line string) string {
	trimmed := strings.TrimSpace(line)
	for _, label := range []string{"제목:", "제목 :", "Title:", "title:"} {
		if strings.HasPrefix(trimmed, label) {
			trimmed = strings.TrimSpace(trimmed[len(label):])
		}
	}
	trimmed = strings.Trim(trimmed, "#* ")
	return trimmed
}

// buildImageParts base64-encodes at most ImageLimit images. Unreadable or
// empty files are skipped, never fatal.
func (c *Client) buildImageParts(imagePaths []string) []geminiPart {
	parts := []geminiPart{}
	for _, path := range imagePaths {
		if len(parts) >= c.config.ImageLimit {
			break
		}
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil || len(data) == 0 {
			continue
		}
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		parts = append(parts, geminiPart{
			InlineData: &geminiInlineData{
				MimeType: mimeType,
				Data:     base64.StdEncoding.EncodeToString(data),
			},
		})
	}
	return parts
}

func (c *Client) invoke(ctx context.Context, model string, userPrompt string, imageParts []geminiPart) (string, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		strings.TrimRight(c.config.Endpoint, "/"), model, c.config.ApiKey)

	payload := geminiRequest{
		SystemInstruction: &geminiContent{
			Role:  "system",
			Parts: []geminiPart{{Text: systemPrompt}},
		},
		Contents: []geminiContent{{
			Role:  "user",
			Parts: append([]geminiPart{{Text: userPrompt}}, imageParts...),
		}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     c.config.Temperature,
			TopP:            c.config.TopP,
			TopK:            c.config.TopK,
			MaxOutputTokens: c.config.MaxOutputTokens,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "fail to encode request payload")
	}

	if c.config.Debug {
		c.debugDumpRequest(model, payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "Gemini API request failed for model %s", model)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "fail to read Gemini API response")
	}

	parsed := geminiResponse{}
	if resp.StatusCode != http.StatusOK {
		message := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &parsed) == nil && parsed.Error != nil {
			if parsed.Error.Status != "" {
				message = parsed.Error.Status + ": " + parsed.Error.Message
			} else {
				message = parsed.Error.Message
			}
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable || hasQuotaVocabulary(message) {
			return "", &quotaError{message: fmt.Sprintf("Gemini model %s exhausted or unavailable: %s", model, message)}
		}
		return "", fmt.Errorf("Gemini API returned status %d for %s: %s", resp.StatusCode, model, message)
	}

	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", errors.Wrap(err, "invalid JSON from Gemini API")
	}

	summary := extractSummaryText(parsed)
	if summary == "" {
		return "", fmt.Errorf("Gemini API returned no summary text for %s", model)
	}

	if c.config.Debug {
		Logger.Log.Debug("gemini summary: ", summary)
	}

	return summary, nil
}

// extractSummaryText concatenates the first candidate's text parts. Some
// responses carry a flat text field instead of parts.
func extractSummaryText(resp geminiResponse) string {
	for _, candidate := range resp.Candidates {
		texts := []string{}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				texts = append(texts, part.Text)
			}
		}
		if combined := strings.TrimSpace(strings.Join(texts, "\n")); combined != "" {
			return combined
		}
		if fallback := strings.TrimSpace(candidate.Text); fallback != "" {
			return fallback
		}
	}
	return ""
}

// debugDumpRequest logs the outbound payload with image bytes redacted.
// The input text is the user's own document and stays visible; only binary
// payloads are replaced.
func (c *Client) debugDumpRequest(model string, payload geminiRequest) {
	redacted := payload
	redacted.Contents = make([]geminiContent, len(payload.Contents))
	for i, content := range payload.Contents {
		parts := make([]geminiPart, len(content.Parts))
		for j, part := range content.Parts {
			if part.InlineData != nil {
				part.InlineData = &geminiInlineData{MimeType: part.InlineData.MimeType, Data: "<omitted>"}
			}
			parts[j] = part
		}
		redacted.Contents[i] = geminiContent{Role: content.Role, Parts: parts}
	}
	if encoded, err := json.Marshal(redacted); err == nil {
		Logger.Log.Debugf("gemini request model=%s payload=%s", model, string(encoded))
	}
}

type quotaError struct {
	message string
}

func (e *quotaError) Error() string {
	return e.message
}

func isQuotaError(err error) bool {
	if _, ok := err.(*quotaError); ok {
		return true
	}
	return false
}

func hasQuotaVocabulary(message string) bool {
	lowered := strings.ToLower(message)
	for _, keyword := range []string{"quota", "exhaust", "429", "rate"} {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}
