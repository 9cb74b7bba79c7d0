package worker

import (
	"net/http"

	"github.com/gin-gonic/gin"

	Logger "github.com/hsh0702/boardsum/utils/log"
)

// NewRouter exposes the processor over HTTP so a scheduler can drive
// consumption by POSTing /consume. One call drains at most one message.
func NewRouter(processor *ItemJobProcessor) *gin.Engine {
	router := gin.Default()

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	router.POST("/consume", func(c *gin.Context) {
		processed, message, err := processor.ConsumeOne(c.Request.Context())
		if err != nil {
			Logger.Log.Error("message handling failed: ", err)
			status := http.StatusBadRequest
			if IsRequeue(err) {
				status = http.StatusInternalServerError
			}
			c.JSON(status, gin.H{"ok": false, "error": err.Error()})
			return
		}
		if !processed {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "message": message})
	})

	return router
}
