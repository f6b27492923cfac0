// Package mercadopago implements the payment gateway against the Mercado
// Pago REST API: checkout preferences, payment lookups and signed
// notifications.
package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
	apperrors "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/errors"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/httpclient"
)

const (
	ProviderName   = "mercadopago"
	DefaultBaseURL = "https://api.mercadopago.com"
	currencyID     = "ARS"
)

// doer is satisfied by *httpclient.CircuitBreakerClient.
type doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config configures the client.
type Config struct {
	BaseURL string
	// NotificationURL is where the provider posts payment notifications.
	NotificationURL string
	// ReturnURL is where the payer lands after checkout.
	ReturnURL string
}

// Client talks to the Mercado Pago API.
type Client struct {
	http   doer
	cfg    Config
	logger *slog.Logger
}

// NewClient builds a client with bearer-token auth behind a circuit
// breaker.
func NewClient(accessToken string, cfg Config, logger *slog.Logger) *Client {
	hcfg := httpclient.DefaultConfig()
	hcfg.Headers = http.Header{
		"Authorization": []string{"Bearer " + accessToken},
		"Accept":        []string{"application/json"},
	}
	cb := httpclient.NewCircuitBreakerClient(
		httpclient.New(hcfg),
		httpclient.DefaultCircuitBreakerConfig(ProviderName),
		logger,
	)
	return newClient(cb, cfg, logger)
}

func newClient(d doer, cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{http: d, cfg: cfg, logger: logger}
}

// Name implements gateway.Gateway.
func (c *Client) Name() string { return ProviderName }

type preferenceItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

type preferenceRequest struct {
	Items             []preferenceItem  `json:"items"`
	ExternalReference string            `json:"external_reference"`
	NotificationURL   string            `json:"notification_url,omitempty"`
	Payer             *preferencePayer  `json:"payer,omitempty"`
	BackURLs          map[string]string `json:"back_urls,omitempty"`
	AutoReturn        string            `json:"auto_return,omitempty"`
}

type preferencePayer struct {
	Email string `json:"email"`
}

type preferenceResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// CreateIntent creates a checkout preference whose external_reference is
// the order id. The order id doubles as the idempotency key, so a retried
// checkout does not open a second preference.
func (c *Client) CreateIntent(ctx context.Context, orderID string, lines []domain.OrderLine, payer domain.Payer) (domain.PaymentIntent, error) {
	items := make([]preferenceItem, len(lines))
	for i, l := range lines {
		items[i] = preferenceItem{
			ID:         l.ItemID,
			Title:      l.ItemName,
			Quantity:   l.Quantity,
			UnitPrice:  l.UnitPrice.InexactFloat64(),
			CurrencyID: currencyID,
		}
	}
	body := preferenceRequest{
		Items:             items,
		ExternalReference: orderID,
		NotificationURL:   c.cfg.NotificationURL,
	}
	if payer.Email != "" {
		body.Payer = &preferencePayer{Email: payer.Email}
	}
	if c.cfg.ReturnURL != "" {
		body.BackURLs = map[string]string{
			"success": c.cfg.ReturnURL,
			"failure": c.cfg.ReturnURL,
			"pending": c.cfg.ReturnURL,
		}
		body.AutoReturn = "approved"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("marshal preference: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/checkout/preferences", bytes.NewReader(payload))
	if err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("build preference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", orderID)

	var pref preferenceResponse
	if err := c.do(ctx, req, &pref); err != nil {
		return domain.PaymentIntent{}, err
	}

	c.logger.InfoContext(ctx, "payment preference created",
		slog.String("order_id", orderID),
		slog.String("preference_id", pref.ID),
	)
	return domain.PaymentIntent{IntentID: pref.ID, RedirectURL: pref.InitPoint}, nil
}

type paymentResponse struct {
	ID                flexID `json:"id"`
	Status            string `json:"status"`
	StatusDetail      string `json:"status_detail"`
	ExternalReference string `json:"external_reference"`
}

// GetPayment looks a payment up by id.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*domain.PaymentInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/payments/"+url.PathEscape(paymentID), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build payment request: %w", err)
	}

	var p paymentResponse
	if err := c.do(ctx, req, &p); err != nil {
		return nil, err
	}
	return &domain.PaymentInfo{
		PaymentID:         p.ID.String(),
		ExternalReference: p.ExternalReference,
		Status:            p.Status,
	}, nil
}

func (c *Client) do(ctx context.Context, req *http.Request, out any) error {
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return apperrors.ServiceUnavailable("payment provider unavailable", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return httpclient.ParseResponseError(resp, ProviderName)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", ProviderName, err)
	}
	return nil
}

// notificationBody is the webhook payload. Only data.id is trusted; status
// and order reference come from a payment lookup.
type notificationBody struct {
	ID     flexID `json:"id"`
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Action string `json:"action"`
	Data   struct {
		ID flexID `json:"id"`
	} `json:"data"`
}

// flexID accepts an id sent either as a JSON number or a string.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func (f flexID) String() string { return string(f) }

func decodeBody(b []byte) (notificationBody, error) {
	var n notificationBody
	err := json.Unmarshal(b, &n)
	return n, err
}

// ParseNotification implements gateway.Gateway.
func (c *Client) ParseNotification(raw domain.RawNotification) (domain.Notification, error) {
	n, err := decodeBody(raw.Body)
	if err != nil {
		return domain.Notification{}, apperrors.InvalidInput("malformed notification body")
	}

	topic := n.Type
	if topic == "" {
		topic = n.Topic
	}
	if topic == "" {
		topic = raw.Query["type"]
	}
	paymentID := n.Data.ID.String()
	if paymentID == "" {
		paymentID = raw.Query["data.id"]
	}
	if topic == "" {
		return domain.Notification{}, apperrors.InvalidInput("notification has no type")
	}
	if topic == "payment" && paymentID == "" {
		return domain.Notification{}, apperrors.InvalidInput("payment notification has no data.id")
	}

	delivery := n.ID.String()
	if delivery == "" {
		delivery = raw.RequestID
	}
	if delivery == "" {
		delivery = topic + ":" + paymentID + ":" + n.Action
	}

	return domain.Notification{
		Provider:   ProviderName,
		DeliveryID: delivery,
		Topic:      topic,
		PaymentID:  paymentID,
		Payload:    json.RawMessage(raw.Body),
	}, nil
}
