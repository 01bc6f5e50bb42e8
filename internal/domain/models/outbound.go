package models

// OutboundMessageRequest is a manual message pushed through the API.
type OutboundMessageRequest struct {
	To         string `json:"to" binding:"required" validate:"required,number,min=8,max=15"`
	Message    string `json:"message" binding:"required" validate:"required,max=4096"`
	PreviewURL bool   `json:"preview_url"`
}

// AlertMessage is the grouped notification produced from one alert batch.
type AlertMessage struct {
	BatchID string       `json:"batchId"`
	Subject string       `json:"subject"`
	Content AlertContent `json:"content"`
}

// AlertContent groups alerts by type; empty groups are omitted when rendered.
type AlertContent struct {
	OutOfStock []Alert `json:"outOfStock,omitempty"`
	LowStock   []Alert `json:"lowStock,omitempty"`
	Expiring   []Alert `json:"expiring,omitempty"`
}

// Size is the number of alerts across all groups.
func (c AlertContent) Size() int {
	return len(c.OutOfStock) + len(c.LowStock) + len(c.Expiring)
}
