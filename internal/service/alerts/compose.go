package alerts

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mamadbah2/medistock/internal/domain/models"
)

// Compose groups a batch into one message. Every call gets a fresh batch id.
func Compose(batch []models.Alert) models.AlertMessage {
	var content models.AlertContent
	for _, a := range batch {
		switch a.Type {
		case models.AlertOutOfStock:
			content.OutOfStock = append(content.OutOfStock, a)
		case models.AlertLowStock:
			content.LowStock = append(content.LowStock, a)
		case models.AlertExpiring:
			content.Expiring = append(content.Expiring, a)
		}
	}

	return models.AlertMessage{
		BatchID: uuid.NewString(),
		Subject: fmt.Sprintf("Inventory Alert - %d item(s) need attention", content.Size()),
		Content: content,
	}
}

// Render turns a message into the plain text body sent to the pharmacy.
func Render(msg models.AlertMessage) string {
	var b strings.Builder
	b.WriteString(msg.Subject)

	if len(msg.Content.OutOfStock) > 0 {
		b.WriteString("\n\nOut of Stock:")
		for _, a := range msg.Content.OutOfStock {
			fmt.Fprintf(&b, "\n- %s", a.MedicineName)
		}
	}

	if len(msg.Content.LowStock) > 0 {
		b.WriteString("\n\nLow Stock:")
		for _, a := range msg.Content.LowStock {
			fmt.Fprintf(&b, "\n- %s: %d left", a.MedicineName, a.Quantity)
		}
	}

	if len(msg.Content.Expiring) > 0 {
		b.WriteString("\n\nExpiring Soon:")
		for _, a := range msg.Content.Expiring {
			fmt.Fprintf(&b, "\n- %s: expires %s (%d in stock)", a.MedicineName, a.ExpiryDate.Format("2006-01-02"), a.Quantity)
		}
	}

	return b.String()
}
