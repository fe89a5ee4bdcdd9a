package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/sourcequal/codequal/pkg/logger"
)

func recoveryMiddleware(log logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Error("panic recovered: %v", recovered)
		internalError(c, "internal server error")
		c.Abort()
	})
}

func loggingMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		log.Info("[http] %s %s %d %s %s", c.Request.Method, path, c.Writer.Status(), time.Since(start), c.ClientIP())
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept-Encoding, Authorization, X-Hub-Signature-256")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func securityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Next()
	}
}

func rateLimitMiddleware(log logger.Logger) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Every(time.Second), 100)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			log.Warn("rate limit exceeded for %s", c.ClientIP())
			failWithCode(c, http.StatusTooManyRequests, "4291", "too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}

// webhookSignatureMiddleware verifies the X-Hub-Signature-256 header against
// WEBHOOK_SIGNING_SECRET before the handler ever sees the payload, the way a
// CI provider's webhook signing contract requires. A missing secret disables
// verification (local/dev mode).
func webhookSignatureMiddleware(secret string, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			badRequest(c, "failed to read webhook body")
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(strings.NewReader(string(body)))

		sig := strings.TrimPrefix(c.GetHeader("X-Hub-Signature-256"), "sha256=")
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))

		if sig == "" || !hmac.Equal([]byte(sig), []byte(expected)) {
			log.Warn("webhook: signature verification failed")
			unauthorized(c, "invalid webhook signature")
			c.Abort()
			return
		}
		c.Next()
	}
}
