package summarize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGemini serves canned per-model responses and records which models
// were actually hit.
type fakeGemini struct {
	mu        sync.Mutex
	responses map[string]func(w http.ResponseWriter)
	hits      []string
}

func (f *fakeGemini) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// path looks like /v1beta/models/<model>:generateContent
		segments := strings.Split(r.URL.Path, "/")
		last := segments[len(segments)-1]
		model := strings.TrimSuffix(last, ":generateContent")

		f.mu.Lock()
		f.hits = append(f.hits, model)
		respond := f.responses[model]
		f.mu.Unlock()

		if respond == nil {
			http.Error(w, "unknown model", http.StatusNotFound)
			return
		}
		respond(w)
	}
}

func okResponse(text string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		payload := map[string]interface{}{
			"candidates": []map[string]interface{}{{
				"content": map[string]interface{}{
					"parts": []map[string]string{{"text": text}},
				},
			}},
		}
		json.NewEncoder(w).Encode(payload)
	}
}

func errorResponse(status int, message string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": message, "status": ""},
		})
	}
}

func testClient(endpoint string, models ...string) *Client {
	config := DefaultConfig()
	config.ApiKey = "test-key"
	config.ModelPriorities = models
	config.Endpoint = endpoint
	config.Timeout = 5 * time.Second
	return NewClient(config, NewMemoryCooldowns())
}

func TestSummarizeFirstModelSucceeds(t *testing.T) {
	fake := &fakeGemini{responses: map[string]func(http.ResponseWriter){
		"model-a": okResponse("요약 결과입니다."),
	}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := testClient(server.URL, "model-a", "model-b")
	summary, model, err := client.Summarize(context.Background(), "원문 텍스트", nil)

	require.NoError(t, err)
	assert.Equal(t, "요약 결과입니다.", summary)
	assert.Equal(t, "model-a", model)
	assert.Equal(t, []string{"model-a"}, fake.hits)
}

func TestSummarizeQuotaFallsBackAndCoolsDown(t *testing.T) {
	fake := &fakeGemini{responses: map[string]func(http.ResponseWriter){
		"model-a": errorResponse(http.StatusTooManyRequests, "quota exceeded"),
		"model-b": okResponse("두번째 모델의 요약"),
	}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := testClient(server.URL, "model-a", "model-b")
	summary, model, err := client.Summarize(context.Background(), "원문", nil)

	require.NoError(t, err)
	assert.Equal(t, "두번째 모델의 요약", summary)
	assert.Equal(t, "model-b", model)

	until, cooled := client.cooldowns.Until("model-a")
	assert.True(t, cooled)
	assert.True(t, until.After(time.Now()))

	// a second call skips the cooled-down model without a request
	fake.mu.Lock()
	fake.hits = nil
	fake.mu.Unlock()
	_, model, err = client.Summarize(context.Background(), "원문", nil)
	require.NoError(t, err)
	assert.Equal(t, "model-b", model)
	assert.Equal(t, []string{"model-b"}, fake.hits)
}

func TestSummarizeNonQuotaErrorTriesNextWithoutCooldown(t *testing.T) {
	fake := &fakeGemini{responses: map[string]func(http.ResponseWriter){
		"model-a": errorResponse(http.StatusBadRequest, "invalid argument"),
		"model-b": okResponse("summary"),
	}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := testClient(server.URL, "model-a", "model-b")
	_, model, err := client.Summarize(context.Background(), "text", nil)

	require.NoError(t, err)
	assert.Equal(t, "model-b", model)

	_, cooled := client.cooldowns.Until("model-a")
	assert.False(t, cooled, "a non-quota failure must not cool the model down")
}

func TestSummarizeAllModelsFail(t *testing.T) {
	fake := &fakeGemini{responses: map[string]func(http.ResponseWriter){
		"model-a": errorResponse(http.StatusServiceUnavailable, "overloaded"),
		"model-b": errorResponse(http.StatusBadRequest, "broken"),
	}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := testClient(server.URL, "model-a", "model-b")
	_, model, err := client.Summarize(context.Background(), "text", nil)

	require.Error(t, err)
	assert.Equal(t, "model-b", model)

	var summaryErr *SummaryError
	require.ErrorAs(t, err, &summaryErr)
	assert.Equal(t, "model-b", summaryErr.LastModel)
	assert.Contains(t, summaryErr.Message, "broken")
}

func TestSummarizeMissingInputs(t *testing.T) {
	client := testClient("http://localhost:0", "model-a")
	client.config.ApiKey = ""
	_, _, err := client.Summarize(context.Background(), "text", nil)
	assert.ErrorIs(t, err, ErrMissingCredential)

	client = testClient("http://localhost:0", "model-a")
	_, _, err = client.Summarize(context.Background(), "  ", nil)
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestSummarizeWithTitleSplitsLines(t *testing.T) {
	fake := &fakeGemini{responses: map[string]func(http.ResponseWriter){
		"model-a": okResponse("제목: 멋진 제목\n\n첫 문장입니다.\n둘째 문장입니다."),
	}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := testClient(server.URL, "model-a")
	title, summary, model, err := client.SummarizeWithTitle(context.Background(), "원문", nil)

	require.NoError(t, err)
	assert.Equal(t, "멋진 제목", title)
	assert.Equal(t, "첫 문장입니다.\n둘째 문장입니다.", summary)
	assert.Equal(t, "model-a", model)
}

func TestSummarizeWithTitleSingleLine(t *testing.T) {
	fake := &fakeGemini{responses: map[string]func(http.ResponseWriter){
		"model-a": okResponse("**한 줄 요약**"),
	}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := testClient(server.URL, "model-a")
	title, summary, _, err := client.SummarizeWithTitle(context.Background(), "원문", nil)

	require.NoError(t, err)
	assert.Equal(t, "한 줄 요약", title)
	assert.Equal(t, "한 줄 요약", summary)
}

func TestStripTitleLabel(t *testing.T) {
	assert.Equal(t, "제목입니다", stripTitleLabel("제목: 제목입니다"))
	assert.Equal(t, "A Title", stripTitleLabel("Title: **A Title**"))
	assert.Equal(t, "plain", stripTitleLabel("## plain"))
}

func TestQuotaVocabulary(t *testing.T) {
	assert.True(t, hasQuotaVocabulary("RESOURCE_EXHAUSTED: try later"))
	assert.True(t, hasQuotaVocabulary("Quota exceeded for metric"))
	assert.True(t, hasQuotaVocabulary("error 429"))
	assert.False(t, hasQuotaVocabulary("invalid request payload"))
}
