package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// DownstreamErrorResponse mirrors the error envelope written by httputil.
type DownstreamErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError reads a non-2xx response and converts it into an
// AppError carrying the same semantics. The body is consumed and closed.
func ParseResponseError(resp *http.Response, service string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", service, resp.StatusCode, err)
	}

	var downstream DownstreamErrorResponse
	if json.Unmarshal(body, &downstream) == nil && downstream.Error != nil {
		return mapDownstreamError(resp.StatusCode, downstream.Error.Code, downstream.Error.Message, service)
	}
	return mapDownstreamError(resp.StatusCode, "", string(body), service)
}

func mapDownstreamError(status int, code, message, service string) error {
	msg := fmt.Sprintf("%s: %s", service, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(service, message)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(msg)
	case status == http.StatusConflict:
		return apperrors.Conflict(msg)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(msg)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(msg)
	case status == http.StatusServiceUnavailable, status == http.StatusTooManyRequests:
		return apperrors.ServiceUnavailable(msg)
	case status >= 500:
		return fmt.Errorf("%s server error (%d/%s): %s", service, status, code, message)
	default:
		if code == "" {
			code = http.StatusText(status)
		}
		return &apperrors.AppError{Code: code, Message: msg, Status: status}
	}
}
