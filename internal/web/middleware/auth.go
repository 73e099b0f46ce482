package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartgateway/internal/switchbot"
)

// RawBodyKey holds the request body after RequireWebhookSignature read it
const RawBodyKey = "rawBody"

// RequireWebhookSignature rejects webhook calls whose sign/t/nonce headers do
// not match the configured secret. Without a secret every call passes.
func (m *MiddlewareManager) RequireWebhookSignature() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "unreadable body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Set(RawBodyKey, body)

		if m.webhookSecret == "" {
			c.Next()
			return
		}

		valid, err := switchbot.VerifyWebhookSignature(
			string(body),
			c.GetHeader("sign"),
			c.GetHeader("t"),
			c.GetHeader("nonce"),
			m.webhookSecret,
			m.now(),
		)
		if err != nil {
			m.logger.Warn("webhook rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": err.Error()})
			return
		}
		if !valid {
			m.logger.Warn("webhook rejected", "reason", "signature mismatch")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid signature"})
			return
		}

		c.Next()
	}
}
