package http

import "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"

// --- Request DTOs ---

// OrderLineRequest is one requested (item, quantity) pair.
type OrderLineRequest struct {
	ItemID   string `json:"item_id" validate:"required,max=64"`
	Quantity int    `json:"quantity" validate:"required,gte=1,lte=1000"`
}

// CreateOrderRequest is the JSON body of POST /api/v1/orders. Prices are
// never accepted from the client.
type CreateOrderRequest struct {
	Family string             `json:"family" validate:"omitempty,oneof=product_order event_reservation"`
	Lines  []OrderLineRequest `json:"lines" validate:"required,min=1,max=50,dive"`
}

func (r CreateOrderRequest) family() domain.Family {
	if r.Family == "" {
		return domain.FamilyProductOrder
	}
	return domain.Family(r.Family)
}

func (r CreateOrderRequest) lines() []domain.RequestedLine {
	lines := make([]domain.RequestedLine, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = domain.RequestedLine{ItemID: l.ItemID, Quantity: l.Quantity}
	}
	return lines
}

// SetStatusRequest is the JSON body of PUT /api/v1/admin/orders/{id}/status.
type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending paid confirmed cancelled"`
	Reason string `json:"reason" validate:"max=500"`
}

// --- Response DTOs ---

// WebhookAck is returned for every acknowledged notification.
type WebhookAck struct {
	Received bool                  `json:"received"`
	Outcome  domain.WebhookOutcome `json:"outcome"`
}
