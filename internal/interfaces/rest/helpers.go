package rest

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/ppongpan/Q-Collector-sub006/pkg/errors"
)

// RespondAppError sends a standardised JSON error response using pkg/errors
func RespondAppError(c *gin.Context, err error) {
	code := errors.GetHTTPStatus(err)
	errorCode := errors.GetErrorCode(err)
	message := err.Error()

	if code >= 500 {
		log.Printf("❌ ERROR [%d] %s %s: %s", code, c.Request.Method, c.Request.URL.Path, message)
	}

	c.JSON(code, gin.H{
		"message": message,
		"code":    errorCode,
		"data":    nil,
	})
}

// BindJSON binds the request body and responds with 400 on failure
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		RespondAppError(c, errors.NewValidationError("body", err.Error()))
		return false
	}
	return true
}

// StatusForEditError maps an edit failure to its HTTP status while the
// response body still carries partial results
func StatusForEditError(err error) int {
	return errors.GetHTTPStatus(err)
}

// RespondData sends a success envelope with the payload under one key
func RespondData(c *gin.Context, status int, key string, payload interface{}) {
	c.JSON(status, gin.H{key: payload})
}
