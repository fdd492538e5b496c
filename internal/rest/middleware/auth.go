package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/dagdev/vpnbill/internal/config"
	"github.com/dagdev/vpnbill/internal/logger"
	"github.com/dagdev/vpnbill/internal/types"
	"github.com/gin-gonic/gin"
)

// AdminKeyMiddleware guards operator endpoints with the shared admin key.
// An empty api.admin_key disables those endpoints entirely.
func AdminKeyMiddleware(cfg *config.Configuration, log *logger.Logger) gin.HandlerFunc {
	return sharedSecret(cfg.API.AdminKey, types.HeaderAdminKey, "admin API is disabled", log)
}

// WebhookSecretMiddleware guards payment intake with payment.webhook_secret
func WebhookSecretMiddleware(cfg *config.Configuration, log *logger.Logger) gin.HandlerFunc {
	return sharedSecret(cfg.Payment.WebhookSecret, types.HeaderWebhookSecret, "payment webhook is disabled", log)
}

func sharedSecret(secret, header, disabledMsg string, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": disabledMsg})
			return
		}

		provided := c.GetHeader(header)
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			log.WithContext(c.Request.Context()).Warnw("rejected request with invalid secret",
				"header", header,
				"path", c.FullPath(),
				"client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		c.Next()
	}
}
