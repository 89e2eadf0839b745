package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/zaavg/storefront/internal/cart"
	pkgcheckout "github.com/zaavg/storefront/pkg/checkout"
	pkgerrors "github.com/zaavg/storefront/pkg/errors"
)

// LineDescriptor is the per-line summary handed to payment gateways.
type LineDescriptor struct {
	Key       string  `json:"key"`
	Name      string  `json:"name"`
	Size      *string `json:"size,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice string  `json:"unit_price"`
}

// Request is what a payment gateway needs to open a session for a cart.
type Request struct {
	// TotalAmount is rendered with exactly two fraction digits.
	TotalAmount string
	ItemNames   []string
	Lines       []LineDescriptor
}

// BuildRequest sums unitPrice * quantity over lines. Sub-cent remainders are
// truncated, never rounded up. An empty cart is a validation error; callers
// should check for emptiness first.
func BuildRequest(lines []cart.Line) (Request, error) {
	if len(lines) == 0 {
		return Request{}, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	inputs := make([]pkgcheckout.LineValidationInput, 0, len(lines))
	for _, line := range lines {
		inputs = append(inputs, pkgcheckout.LineValidationInput{
			Key:       line.Key(),
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	if err := pkgcheckout.ValidateLines(inputs); err != nil {
		return Request{}, err
	}

	total := decimal.Zero
	req := Request{
		ItemNames: make([]string, 0, len(lines)),
		Lines:     make([]LineDescriptor, 0, len(lines)),
	}
	for _, line := range lines {
		total = total.Add(line.Subtotal())
		req.ItemNames = append(req.ItemNames, line.Name)

		desc := LineDescriptor{
			Key:       line.Key(),
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.String(),
		}
		if label, ok := line.Size.Label(); ok {
			desc.Size = &label
		}
		req.Lines = append(req.Lines, desc)
	}
	req.TotalAmount = total.Truncate(2).StringFixed(2)
	return req, nil
}
