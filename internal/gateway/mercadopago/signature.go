package mercadopago

import (
	"strconv"
	"strings"
	"time"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/gateway"
)

// SignatureVerifier checks the x-signature header Mercado Pago sends with
// each notification: "ts=<unix>,v1=<hex hmac>", where the HMAC covers the
// manifest "id:<data.id>;request-id:<x-request-id>;ts:<ts>;".
type SignatureVerifier struct {
	secret []byte
	// MaxAge rejects signatures older than this when positive.
	MaxAge time.Duration
	now    func() time.Time
}

// NewSignatureVerifier creates a verifier for the webhook secret.
func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret), now: time.Now}
}

// Verify implements gateway.NotificationVerifier.
func (v *SignatureVerifier) Verify(raw domain.RawNotification) error {
	ts, v1 := parseSignatureHeader(raw.Signature)
	if ts == "" || v1 == "" {
		return domain.AuthError("missing or malformed x-signature")
	}

	dataID := raw.Query["data.id"]
	if dataID == "" {
		if n, err := decodeBody(raw.Body); err == nil {
			dataID = n.Data.ID.String()
		}
	}

	want := gateway.SignHMAC(v.secret, []byte(Manifest(dataID, raw.RequestID, ts)))
	if !gateway.EqualHMAC(want, v1) {
		return domain.AuthError("signature mismatch")
	}

	if v.MaxAge > 0 {
		sec, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return domain.AuthError("invalid signature timestamp")
		}
		// ts is in milliseconds on current deliveries, seconds on older ones.
		signed := time.Unix(sec, 0)
		if sec > 1e12 {
			signed = time.UnixMilli(sec)
		}
		if v.now().Sub(signed) > v.MaxAge {
			return domain.AuthError("signature expired")
		}
	}
	return nil
}

// Manifest builds the signed template. Parts whose value is absent are
// left out, as the provider does when signing.
func Manifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	if ts != "" {
		b.WriteString("ts:" + ts + ";")
	}
	return b.String()
}

func parseSignatureHeader(h string) (ts, v1 string) {
	for _, part := range strings.Split(h, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "ts":
			ts = value
		case "v1":
			v1 = value
		}
	}
	return ts, v1
}
