package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// envelope is the uniform response shape for every handler in this package.
type envelope struct {
	Success   bool        `json:"success"`
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, envelope{
		Success:   true,
		Code:      "0",
		Message:   "success",
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, envelope{
		Success:   true,
		Code:      "0",
		Message:   "success",
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func failWithCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, envelope{
		Success:   false,
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func badRequest(c *gin.Context, message string) { failWithCode(c, http.StatusBadRequest, "4001", message) }
func notFound(c *gin.Context, message string)   { failWithCode(c, http.StatusNotFound, "4041", message) }
func unauthorized(c *gin.Context, message string) {
	failWithCode(c, http.StatusUnauthorized, "4011", message)
}
func internalError(c *gin.Context, message string) {
	failWithCode(c, http.StatusInternalServerError, "5001", message)
}
