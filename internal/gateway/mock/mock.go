// Package mock is an in-process payment gateway for development and tests.
// Its notifications carry the order reference and status inline and are
// signed with an HMAC-SHA256 of the body.
package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/gateway"
	apperrors "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/errors"
)

// ProviderName identifies the mock gateway.
const ProviderName = "mock"

// Gateway is the mock payment provider.
type Gateway struct {
	checkoutBaseURL string

	mu       sync.RWMutex
	payments map[string]domain.PaymentInfo
}

// NewGateway creates a mock gateway whose redirect URLs start with
// checkoutBaseURL.
func NewGateway(checkoutBaseURL string) *Gateway {
	return &Gateway{
		checkoutBaseURL: checkoutBaseURL,
		payments:        make(map[string]domain.PaymentInfo),
	}
}

// Name returns the provider name.
func (g *Gateway) Name() string {
	return ProviderName
}

// CreateIntent returns a fresh intent id and a local checkout URL.
func (g *Gateway) CreateIntent(_ context.Context, _ string, _ []domain.OrderLine, _ domain.Payer) (domain.PaymentIntent, error) {
	id := "mock_pref_" + uuid.NewString()
	return domain.PaymentIntent{
		IntentID:    id,
		RedirectURL: g.checkoutBaseURL + "/mock-checkout/" + id,
	}, nil
}

// SetPayment registers the provider-side state of a payment.
func (g *Gateway) SetPayment(info domain.PaymentInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[info.PaymentID] = info
}

// GetPayment returns a payment registered with SetPayment.
func (g *Gateway) GetPayment(_ context.Context, paymentID string) (*domain.PaymentInfo, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	info, ok := g.payments[paymentID]
	if !ok {
		return nil, apperrors.NotFound("payment", paymentID)
	}
	return &info, nil
}

// Notification is the mock webhook body.
type Notification struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	PaymentID         string `json:"payment_id"`
	ExternalReference string `json:"external_reference"`
	Status            string `json:"status"`
}

// ParseNotification decodes a mock webhook body.
func (g *Gateway) ParseNotification(raw domain.RawNotification) (domain.Notification, error) {
	var n Notification
	if err := json.Unmarshal(raw.Body, &n); err != nil {
		return domain.Notification{}, apperrors.InvalidInput("malformed notification body")
	}
	if n.Type == "" {
		n.Type = gateway.TopicPayment
	}
	if n.Type == gateway.TopicPayment && n.PaymentID == "" {
		return domain.Notification{}, apperrors.InvalidInput("notification has no payment_id")
	}
	delivery := n.ID
	if delivery == "" {
		delivery = raw.RequestID
	}
	if delivery == "" {
		delivery = n.PaymentID + ":" + n.Status
	}
	return domain.Notification{
		Provider:          ProviderName,
		DeliveryID:        delivery,
		Topic:             n.Type,
		PaymentID:         n.PaymentID,
		ExternalReference: n.ExternalReference,
		Status:            n.Status,
		Payload:           json.RawMessage(raw.Body),
	}, nil
}

// Verifier checks that the signature is the hex HMAC-SHA256 of the body.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Sign returns the signature a valid delivery of body carries.
func (v *Verifier) Sign(body []byte) string {
	return gateway.SignHMAC(v.secret, body)
}

// Verify implements gateway.NotificationVerifier.
func (v *Verifier) Verify(raw domain.RawNotification) error {
	if raw.Signature == "" {
		return domain.AuthError("missing signature")
	}
	if !gateway.EqualHMAC(v.Sign(raw.Body), raw.Signature) {
		return domain.AuthError("signature mismatch")
	}
	return nil
}
