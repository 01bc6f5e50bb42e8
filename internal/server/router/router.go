package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/medistock/internal/server/handlers"
)

// RequestIDHeader carries the correlation id echoed on every response.
const RequestIDHeader = "X-Request-ID"

// Handlers groups the HTTP adapters served by the engine.
type Handlers struct {
	Patients  *handlers.PatientHandler
	Billing   *handlers.BillingHandler
	Medicines *handlers.MedicineHandler
	Dashboard *handlers.DashboardHandler
	Webhook   *handlers.WebhookHandler
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestIDMiddleware())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		patients := api.Group("/patients")
		patients.POST("", h.Patients.Register)
		patients.GET("", h.Patients.List)
		patients.GET("/search", h.Patients.Search)
		patients.GET("/lookup", h.Patients.Lookup)
		patients.GET("/:patientId/history", h.Patients.History)
		patients.DELETE("/:patientId/bills/:billId", h.Patients.DeleteBill)

		api.POST("/bills", h.Billing.Create)

		medicines := api.Group("/medicines")
		medicines.GET("", h.Medicines.List)
		medicines.POST("", h.Medicines.Create)
		medicines.GET("/low-stock", h.Medicines.LowStock)
		medicines.GET("/expiring", h.Medicines.Expiring)
		medicines.PUT("/:id", h.Medicines.Update)
		medicines.DELETE("/:id", h.Medicines.Delete)

		dashboard := api.Group("/dashboard")
		dashboard.GET("/stats", h.Dashboard.Stats)
		dashboard.GET("/income", h.Dashboard.Income)
	}

	if h.Webhook != nil {
		r.GET("/webhook", h.Webhook.Verify)
		r.POST("/webhook", h.Webhook.Receive)
		r.POST("/send-message", h.Webhook.SendMessage)
	}

	logger.Info("router initialized", zap.Int("routes", len(r.Routes())))

	return r
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDHeader, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", c.GetString(RequestIDHeader)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Error("request completed", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("request completed", fields...)
		default:
			logger.Info("request completed", fields...)
		}
	}
}
