package domain

import (
	"encoding/json"
	"time"
)

// Notification is a provider payment notification after parsing. PaymentID
// is the provider's id; ExternalReference is our order id as echoed back by
// the provider. Status and ExternalReference may be empty when the provider
// only sends an id and expects a lookup.
type Notification struct {
	Provider          string
	DeliveryID        string
	Topic             string
	PaymentID         string
	ExternalReference string
	Status            string
	Payload           json.RawMessage
}

// Resolved reports whether the notification already names an order and a
// status.
func (n Notification) Resolved() bool {
	return n.ExternalReference != "" && n.Status != ""
}

// WebhookOutcome records what ingesting a notification did.
type WebhookOutcome string

const (
	OutcomeApplied           WebhookOutcome = "applied"
	OutcomeRefreshed         WebhookOutcome = "refreshed"
	OutcomeNoop              WebhookOutcome = "noop"
	OutcomeAlreadyTerminal   WebhookOutcome = "already_terminal"
	OutcomeIllegalIgnored    WebhookOutcome = "illegal_ignored"
	OutcomeUnmappedStatus    WebhookOutcome = "unmapped_status"
	OutcomeUnknownOrder      WebhookOutcome = "unknown_order"
	OutcomeUnknownPayment    WebhookOutcome = "unknown_payment"
	OutcomePaymentConflict   WebhookOutcome = "payment_conflict"
	OutcomeIgnoredTopic      WebhookOutcome = "ignored_topic"
	OutcomeRejectedAuth      WebhookOutcome = "rejected_auth"
	OutcomeRejectedMalformed WebhookOutcome = "rejected_malformed"
	OutcomeFailed            WebhookOutcome = "failed"
)

// WebhookEvent is the durable record of one delivery. Redeliveries of the
// same (provider, delivery id) bump Attempts on the existing row.
type WebhookEvent struct {
	ID             string          `json:"id"`
	Provider       string          `json:"provider"`
	DeliveryID     string          `json:"delivery_id"`
	Topic          string          `json:"topic"`
	PaymentID      string          `json:"payment_id"`
	OrderRef       string          `json:"order_ref,omitempty"`
	ProviderStatus string          `json:"provider_status,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	Attempts       int             `json:"attempts"`
	Outcome        WebhookOutcome  `json:"outcome,omitempty"`
	ReceivedAt     time.Time       `json:"received_at"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
}

// PaymentIntent is what the gateway returns for a checkout.
type PaymentIntent struct {
	IntentID    string `json:"intent_id"`
	RedirectURL string `json:"redirect_url"`
}

// Payer identifies the customer to the payment provider.
type Payer struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

// PaymentInfo is the provider's view of one payment.
type PaymentInfo struct {
	PaymentID         string
	ExternalReference string
	Status            string
}

// RawNotification is an inbound delivery before verification: the body as
// received plus the transport metadata the signature covers.
type RawNotification struct {
	Body      []byte
	Signature string
	RequestID string
	// Query carries URL query parameters (data.id, type) some providers
	// send alongside the body.
	Query map[string]string
}
