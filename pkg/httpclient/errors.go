package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/errors"
)

// remoteError accepts both the {"error":{"code","message"}} envelope and the
// flat {"error":"...","message":"..."} shape payment APIs commonly return.
type remoteError struct {
	Code    string
	Message string
}

func (e *remoteError) UnmarshalJSON(b []byte) error {
	var nested struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(b, &nested); err == nil && nested.Error != nil {
		e.Code, e.Message = nested.Error.Code, nested.Error.Message
		return nil
	}

	var flat struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(b, &flat); err != nil {
		return err
	}
	e.Code, e.Message = flat.Error, flat.Message
	return nil
}

// ParseResponseError consumes and closes a non-2xx response body and maps
// it onto an AppError keyed by status. remote names the peer in messages.
func ParseResponseError(resp *http.Response, remote string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", remote, resp.StatusCode, err)
	}

	var re remoteError
	if json.Unmarshal(body, &re) != nil || (re.Code == "" && re.Message == "") {
		re = remoteError{Message: string(body)}
	}
	return mapRemoteError(resp.StatusCode, re, remote)
}

func mapRemoteError(status int, re remoteError, remote string) error {
	msg := fmt.Sprintf("%s: %s", remote, re.Message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(remote+" resource", re.Message)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(msg)
	case status == http.StatusConflict:
		return apperrors.Conflict(msg)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(msg)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(msg)
	case status == http.StatusGone:
		return apperrors.Gone(msg)
	case status == http.StatusUnprocessableEntity:
		return apperrors.PaymentFailed(msg)
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return apperrors.ServiceUnavailable(msg, fmt.Errorf("%s status %d %s", remote, status, re.Code))
	default:
		return &apperrors.AppError{Code: re.Code, Message: msg, Status: status}
	}
}

// IsClientError reports whether status is 4xx.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
