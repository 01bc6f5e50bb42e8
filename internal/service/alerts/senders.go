package alerts

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mamadbah2/medistock/internal/domain/models"
	"github.com/mamadbah2/medistock/pkg/clients/whatsapp"
	"github.com/mamadbah2/medistock/pkg/retry"
)

// WhatsAppSender delivers alert messages as WhatsApp text messages to one recipient.
type WhatsAppSender struct {
	client    whatsapp.Client
	recipient string
	logger    *zap.Logger
}

// NewWhatsAppSender builds a sender for the given recipient number.
func NewWhatsAppSender(client whatsapp.Client, recipient string, logger *zap.Logger) *WhatsAppSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhatsAppSender{client: client, recipient: recipient, logger: logger}
}

// Send posts the rendered message. Client errors other than rate limiting are not retried.
func (s *WhatsAppSender) Send(ctx context.Context, msg models.AlertMessage) error {
	resp, err := s.client.SendTextMessage(ctx, whatsapp.SendTextMessageRequest{
		To:   s.recipient,
		Body: Render(msg),
	})
	if err != nil {
		var apiErr *whatsapp.APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return retry.Permanent(fmt.Errorf("send alert %s: %w", msg.BatchID, err))
		}
		return fmt.Errorf("send alert %s: %w", msg.BatchID, err)
	}

	s.logger.Debug("alert sent over whatsapp",
		zap.String("batch_id", msg.BatchID),
		zap.String("message_id", resp.MessageID()))
	return nil
}

// LogSender writes alert messages to the log; used when no WhatsApp account is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender builds a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg models.AlertMessage) error {
	s.logger.Info("inventory alert",
		zap.String("batch_id", msg.BatchID),
		zap.String("subject", msg.Subject),
		zap.Int("out_of_stock", len(msg.Content.OutOfStock)),
		zap.Int("low_stock", len(msg.Content.LowStock)),
		zap.Int("expiring", len(msg.Content.Expiring)),
		zap.String("body", Render(msg)))
	return nil
}
