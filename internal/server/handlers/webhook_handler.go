package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/medistock/internal/domain/models"
	service "github.com/mamadbah2/medistock/internal/service/whatsapp"
)

// whatsAppObject is the only webhook object type the pharmacy number subscribes to.
const whatsAppObject = "whatsapp_business_account"

// WebhookHandler exposes the WhatsApp command channel and the operator send route.
type WebhookHandler struct {
	svc    service.MessagingService
	logger *zap.Logger
}

// NewWebhookHandler constructs the WhatsApp handler.
func NewWebhookHandler(svc service.MessagingService, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{svc: svc, logger: logger}
}

// Verify echoes hub.challenge as plain text once the subscription token matches.
func (h *WebhookHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	challenge, err := h.svc.VerifyWebhookToken(mode, c.Query("hub.verify_token"), c.Query("hub.challenge"))
	switch {
	case errors.Is(err, service.ErrVerification):
		h.logger.Warn("webhook subscription rejected", zap.String("mode", mode), zap.Error(err))
		c.JSON(http.StatusForbidden, gin.H{"error": service.ErrVerification.Error()})
		return
	case err != nil:
		writeError(c, h.logger, err)
		return
	}
	c.String(http.StatusOK, challenge)
}

// Receive runs the stock and patient commands carried by a callback. A command
// that fails after its reply went out is still acknowledged with 200, otherwise
// Meta redelivers it and the pharmacist gets the answer twice.
func (h *WebhookHandler) Receive(c *gin.Context) {
	var payload models.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, h.logger, "invalid webhook payload", err)
		return
	}
	if payload.Object != whatsAppObject {
		h.logger.Warn("webhook object not subscribed", zap.String("object", payload.Object))
		c.JSON(http.StatusNotFound, gin.H{"error": "unsupported webhook object " + payload.Object})
		return
	}

	status := "processed"
	if err := h.svc.HandleWebhook(c.Request.Context(), payload); err != nil {
		h.logger.Error("webhook commands failed", zap.Int("entries", len(payload.Entry)), zap.Error(err))
		status = "failed"
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// SendMessage pushes an operator message to a pharmacist's number.
func (h *WebhookHandler) SendMessage(c *gin.Context) {
	var req models.OutboundMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "invalid request body", err)
		return
	}

	if err := h.svc.SendOutbound(c.Request.Context(), req); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent", "to": req.To})
}
