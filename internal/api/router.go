package api

import (
	v1 "github.com/dagdev/vpnbill/internal/api/v1"
	"github.com/dagdev/vpnbill/internal/config"
	"github.com/dagdev/vpnbill/internal/logger"
	"github.com/dagdev/vpnbill/internal/metrics"
	"github.com/dagdev/vpnbill/internal/rest/middleware"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Health  *v1.HealthHandler
	Payment *v1.PaymentHandler
	Invoice *v1.InvoiceHandler
	Stats   *v1.StatsHandler
	Access  *v1.AccessHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware,
		middleware.SentryMiddleware(cfg),
		middleware.SentryTagsMiddleware,
		middleware.CORSMiddleware,
		metrics.GinMiddleware(),
		middleware.ErrorHandler(logger),
	)

	router.GET("/health", handlers.Health.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1Router := router.Group("/v1")

	payments := v1Router.Group("/payments", middleware.WebhookSecretMiddleware(cfg, logger))
	{
		payments.POST("/webhook", handlers.Payment.HandleWebhook)
		payments.POST("/pre-checkout", handlers.Payment.PreCheckout)
	}

	private := v1Router.Group("", middleware.AdminKeyMiddleware(cfg, logger))

	invoices := private.Group("/invoices")
	{
		invoices.POST("", handlers.Invoice.CreateInvoice)
		invoices.GET("", handlers.Invoice.ListInvoices)
		invoices.GET("/pending", handlers.Invoice.ListPendingInvoices)
		invoices.GET("/:id", handlers.Invoice.GetInvoice)
		invoices.POST("/:id/retry", handlers.Invoice.RetryInvoice)
	}

	private.GET("/stats", handlers.Stats.GetStats)

	access := private.Group("/payers/:id/access")
	{
		access.GET("", handlers.Access.GetAccess)
		access.PUT("", handlers.Access.SetAccessExpiry)
		access.DELETE("", handlers.Access.RevokeAccess)
	}

	return router
}
