package mercadopago

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/gateway"
	apperrors "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/errors"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/httpclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	cfg.Headers = http.Header{"Authorization": []string{"Bearer test-token"}}
	return newClient(httpclient.NewWithHTTPClient(srv.Client(), cfg), Config{
		BaseURL:         srv.URL,
		NotificationURL: "https://shop.example/api/v1/webhooks/payments",
	}, testLogger())
}

// ============================================================================
// Signature
// ============================================================================

func TestSignatureVerifier(t *testing.T) {
	v := NewSignatureVerifier("whsec")
	ts := "1704908010"
	sig := gateway.SignHMAC([]byte("whsec"), []byte(Manifest("123456", "req-1", ts)))

	raw := domain.RawNotification{
		Body:      []byte(`{"type":"payment","data":{"id":"123456"}}`),
		Signature: "ts=" + ts + ",v1=" + sig,
		RequestID: "req-1",
		Query:     map[string]string{"data.id": "123456"},
	}
	assert.NoError(t, v.Verify(raw))

	tampered := raw
	tampered.RequestID = "req-2"
	assert.ErrorIs(t, v.Verify(tampered), domain.ErrAuth)

	noHeader := raw
	noHeader.Signature = ""
	assert.ErrorIs(t, v.Verify(noHeader), domain.ErrAuth)
}

func TestSignatureVerifier_BodyDataID(t *testing.T) {
	v := NewSignatureVerifier("whsec")
	sig := gateway.SignHMAC([]byte("whsec"), []byte(Manifest("987", "", "100")))

	raw := domain.RawNotification{
		Body:      []byte(`{"type":"payment","data":{"id":987}}`),
		Signature: "ts=100,v1=" + sig,
	}
	assert.NoError(t, v.Verify(raw))
}

func TestSignatureVerifier_MaxAge(t *testing.T) {
	v := NewSignatureVerifier("whsec")
	v.MaxAge = time.Minute
	v.now = func() time.Time { return time.Unix(1000, 0) }

	sig := gateway.SignHMAC([]byte("whsec"), []byte(Manifest("1", "r", "100")))
	raw := domain.RawNotification{Signature: "ts=100,v1=" + sig, RequestID: "r", Query: map[string]string{"data.id": "1"}}
	assert.ErrorIs(t, v.Verify(raw), domain.ErrAuth)
}

func TestManifest(t *testing.T) {
	assert.Equal(t, "id:abc;request-id:r1;ts:9;", Manifest("ABC", "r1", "9"))
	assert.Equal(t, "ts:9;", Manifest("", "", "9"))
}

// ============================================================================
// API calls
// ============================================================================

func TestCreateIntent(t *testing.T) {
	var got preferenceRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/checkout/preferences", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "order-1", r.Header.Get("X-Idempotency-Key"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"id":"pref-1","init_point":"https://mp.example/checkout?pref=pref-1"}`))
	})

	price := decimal.RequireFromString("12.50")
	intent, err := c.CreateIntent(context.Background(), "order-1", []domain.OrderLine{
		{ItemID: "crepe", ItemName: "Crepe", Quantity: 2, UnitPrice: price},
	}, domain.Payer{Email: "ana@example.com"})
	require.NoError(t, err)

	assert.Equal(t, "pref-1", intent.IntentID)
	assert.Equal(t, "https://mp.example/checkout?pref=pref-1", intent.RedirectURL)
	assert.Equal(t, "order-1", got.ExternalReference)
	assert.Equal(t, 12.5, got.Items[0].UnitPrice)
	assert.Equal(t, "ana@example.com", got.Payer.Email)
}

func TestGetPayment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/payments/404" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Payment not found","error":"not_found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":123,"status":"approved","external_reference":"order-1"}`))
	})

	info, err := c.GetPayment(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "123", info.PaymentID)
	assert.Equal(t, "approved", info.Status)
	assert.Equal(t, "order-1", info.ExternalReference)

	_, err = c.GetPayment(context.Background(), "404")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// ============================================================================
// Notifications
// ============================================================================

func TestParseNotification(t *testing.T) {
	c := newClient(nil, Config{}, testLogger())

	n, err := c.ParseNotification(domain.RawNotification{
		Body: []byte(`{"id":12345,"type":"payment","action":"payment.updated","data":{"id":"999"}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "12345", n.DeliveryID)
	assert.Equal(t, "999", n.PaymentID)
	assert.Equal(t, "payment", n.Topic)
	assert.False(t, n.Resolved())

	n, err = c.ParseNotification(domain.RawNotification{
		Body:      []byte(`{}`),
		RequestID: "req-9",
		Query:     map[string]string{"type": "payment", "data.id": "55"},
	})
	require.NoError(t, err)
	assert.Equal(t, "req-9", n.DeliveryID)
	assert.Equal(t, "55", n.PaymentID)

	_, err = c.ParseNotification(domain.RawNotification{Body: []byte(`not json`)})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = c.ParseNotification(domain.RawNotification{Body: []byte(`{"type":"payment"}`)})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
