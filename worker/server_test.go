package worker

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/hsh0702/boardsum/utils"
)

func performRequest(router *gin.Engine, method string, path string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestRouterHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(newTestProcessor(&fakeQueueReader{}))

	response := performRequest(router, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, response.Code)
	assert.Contains(t, response.Body.String(), `"ok":true`)
}

func TestRouterConsumeEmptyQueue(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(newTestProcessor(&fakeQueueReader{}))

	response := performRequest(router, http.MethodPost, "/consume")
	assert.Equal(t, http.StatusNoContent, response.Code)
}

func TestRouterConsumeMalformedMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	queue := &fakeQueueReader{messages: []*utils.MessageQueueMessage{
		queueMessage("not json at all", 1),
	}}
	router := NewRouter(newTestProcessor(queue))

	response := performRequest(router, http.MethodPost, "/consume")
	assert.Equal(t, http.StatusBadRequest, response.Code)
	assert.Contains(t, response.Body.String(), `"ok":false`)
	assert.Len(t, queue.deleted, 1)
}

func TestRouterConsumePoisonMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	queue := &fakeQueueReader{messages: []*utils.MessageQueueMessage{
		queueMessage(`{"item_id": 1}`, 4),
	}}
	router := NewRouter(newTestProcessor(queue))

	response := performRequest(router, http.MethodPost, "/consume")
	assert.Equal(t, http.StatusOK, response.Code)
	assert.Contains(t, response.Body.String(), "dropped message")
	assert.Len(t, queue.deleted, 1)
}
