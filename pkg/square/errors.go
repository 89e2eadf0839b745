package square

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"

	pkgerrors "github.com/zaavg/storefront/pkg/errors"
)

// mapSquareError classifies an SDK failure. A reused idempotency key is a
// conflict regardless of the HTTP status Square answered with.
func (c *Client) mapSquareError(err error, op string) error {
	message := "square " + op + " failed"
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
	}
	code := domainCodeForStatus(apiErr.StatusCode)
	for _, detail := range c.extractSquareErrors(apiErr) {
		if detail != nil && detail.Code == sq.ErrorCodeIdempotencyKeyReused {
			code = pkgerrors.CodeConflict
			break
		}
	}
	return pkgerrors.Wrap(code, err, message)
}

// extractSquareErrors decodes the {"errors": [...]} body the SDK keeps as
// the APIError's wrapped error.
func (c *Client) extractSquareErrors(apiErr *sqcore.APIError) []*sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if json.Unmarshal([]byte(strings.TrimSpace(inner.Error())), &body) != nil {
		return nil
	}
	return body.Errors
}

// Authentication and server failures are the storefront's dependency
// problem; only malformed requests are reported as validation errors.
func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return pkgerrors.CodeValidation
	default:
		return pkgerrors.CodeDependency
	}
}
