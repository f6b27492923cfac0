// Package gateway defines the payment provider contract the order engine
// depends on. Implementations live in sub-packages.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
)

// TopicPayment is the notification topic that carries payment updates.
const TopicPayment = "payment"

// Gateway creates payment intents and answers payment lookups.
type Gateway interface {
	// Name identifies the provider in logs and persisted webhook events.
	Name() string

	// CreateIntent registers a checkout for orderID and returns where to
	// send the payer.
	CreateIntent(ctx context.Context, orderID string, lines []domain.OrderLine, payer domain.Payer) (domain.PaymentIntent, error)

	// GetPayment fetches the provider's current view of a payment. An
	// unknown payment fails with apperrors.ErrNotFound.
	GetPayment(ctx context.Context, paymentID string) (*domain.PaymentInfo, error)

	// ParseNotification decodes a verified delivery. A payload that cannot
	// be decoded fails with apperrors.ErrInvalidInput.
	ParseNotification(raw domain.RawNotification) (domain.Notification, error)
}

// NotificationVerifier authenticates inbound deliveries. It fails with
// domain.ErrAuth when the signature does not match.
type NotificationVerifier interface {
	Verify(raw domain.RawNotification) error
}

// SignHMAC returns the hex HMAC-SHA256 of message under secret.
func SignHMAC(secret, message []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// EqualHMAC compares two hex digests in constant time.
func EqualHMAC(want, got string) bool {
	return hmac.Equal([]byte(want), []byte(got))
}
