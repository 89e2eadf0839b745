package checkout

import (
	"fmt"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/zaavg/storefront/pkg/errors"
)

// LineValidationInput describes the data required to verify a payable line.
type LineValidationInput struct {
	Key       string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// LineViolationDetail exposes the data returned to callers when a validation fails.
type LineViolationDetail struct {
	Key      string `json:"key"`
	Name     string `json:"name,omitempty"`
	Reason   string `json:"reason"`
	Quantity int    `json:"quantity"`
}

// ValidateLines ensures every line can be charged: a positive quantity and a
// non-negative unit price.
func ValidateLines(items []LineValidationInput) error {
	var violations []LineViolationDetail
	for _, item := range items {
		switch {
		case item.Quantity < 1:
			violations = append(violations, LineViolationDetail{
				Key:      item.Key,
				Name:     item.Name,
				Reason:   "quantity must be at least 1",
				Quantity: item.Quantity,
			})
		case item.UnitPrice.IsNegative():
			violations = append(violations, LineViolationDetail{
				Key:      item.Key,
				Name:     item.Name,
				Reason:   "unit price must not be negative",
				Quantity: item.Quantity,
			})
		}
	}
	if len(violations) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%d cart line(s) cannot be charged", len(violations))).WithDetails(map[string]any{
		"violations": violations,
	})
}
