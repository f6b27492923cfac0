package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/httputil"
)

// Headers carrying the provider signature and delivery request id.
const (
	HeaderSignature = "X-Signature"
	HeaderRequestID = "X-Request-Id"
)

// webhookQueryKeys are the query parameters forwarded to the gateway.
var webhookQueryKeys = []string{"data.id", "type", "topic", "id"}

// NotificationIngester is the webhook reconciler.
type NotificationIngester interface {
	Ingest(ctx context.Context, raw domain.RawNotification) (domain.WebhookOutcome, error)
}

// WebhookHandler receives payment provider notifications.
type WebhookHandler struct {
	reconciler NotificationIngester
	logger     *slog.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(reconciler NotificationIngester, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, logger: logger}
}

// Payments handles POST /api/v1/webhooks/payments. Anything but a 2xx makes
// the provider redeliver, so every outcome the engine has settled is
// acknowledged with 200.
func (h *WebhookHandler) Payments(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "unreadable request body"},
		})
		return
	}

	raw := domain.RawNotification{
		Body:      body,
		Signature: r.Header.Get(HeaderSignature),
		RequestID: r.Header.Get(HeaderRequestID),
		Query:     make(map[string]string),
	}
	q := r.URL.Query()
	for _, k := range webhookQueryKeys {
		if v := q.Get(k); v != "" {
			raw.Query[k] = v
		}
	}

	outcome, err := h.reconciler.Ingest(r.Context(), raw)
	if err != nil {
		// Malformed payloads map to 400 and storage failures to 5xx.
		if errors.Is(err, domain.ErrAuth) {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: "invalid notification signature"},
			})
			return
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: WebhookAck{Received: true, Outcome: outcome}})
}
