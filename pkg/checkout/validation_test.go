package checkout

import (
	"testing"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/zaavg/storefront/pkg/errors"
)

func TestValidateLines_NoViolations(t *testing.T) {
	items := []LineValidationInput{
		{Key: "ring-M", Name: "Ring", Quantity: 1, UnitPrice: decimal.NewFromInt(100)},
		{Key: "gift-card-~nosize", Name: "Gift card", Quantity: 3, UnitPrice: decimal.Zero},
	}
	if err := ValidateLines(items); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateLines_Violations(t *testing.T) {
	items := []LineValidationInput{
		{Key: "ring-M", Name: "Ring", Quantity: 0, UnitPrice: decimal.NewFromInt(100)},
		{Key: "chain-~nosize", Name: "Chain", Quantity: 2, UnitPrice: decimal.NewFromInt(-1)},
		{Key: "ok-~nosize", Name: "Fine", Quantity: 1, UnitPrice: decimal.NewFromInt(5)},
	}

	err := ValidateLines(items)
	if err == nil {
		t.Fatal("expected validation error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation code, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", typed.Details())
	}
	violations, ok := details["violations"].([]LineViolationDetail)
	if !ok {
		t.Fatalf("expected violations slice, got %T", details["violations"])
	}
	if len(violations) != 2 {
		t.Fatalf("expected 2 violations, got %d", len(violations))
	}
	if violations[0].Key != "ring-M" || violations[1].Key != "chain-~nosize" {
		t.Fatalf("unexpected violations %+v", violations)
	}
}
