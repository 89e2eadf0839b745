package cart

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// nosizeSuffix is appended to the product key of sizeless lines so they never
// share an identity key with a sized line of the same product.
const nosizeSuffix = "~nosize"

// Size is either a concrete size label or the absence of sizing.
type Size struct {
	label string
	sized bool
}

// Sized returns a size selection for label.
func Sized(label string) Size {
	return Size{label: label, sized: true}
}

// Sizeless returns the selection used by products without sizes.
func Sizeless() Size {
	return Size{}
}

// SizeFromOptional maps an optional label to a Size; nil means sizeless.
func SizeFromOptional(label *string) Size {
	if label == nil {
		return Sizeless()
	}
	return Sized(*label)
}

func (s Size) Label() (string, bool) {
	return s.label, s.sized
}

func (s Size) IsSized() bool {
	return s.sized
}

func (s Size) String() string {
	if !s.sized {
		return "none"
	}
	return s.label
}

// IdentityKey derives the key under which lines are merged.
func IdentityKey(productKey string, size Size) string {
	if label, ok := size.Label(); ok {
		return productKey + "-" + label
	}
	return productKey + "-" + nosizeSuffix
}

// Line is one (product, size) selection in a cart. UnitPrice and ImageURL
// are snapshots taken when the line was created.
type Line struct {
	ProductKey string
	Name       string
	Size       Size
	Quantity   int
	UnitPrice  decimal.Decimal
	ImageURL   string
}

// Key returns the identity key of the line.
func (l Line) Key() string {
	return IdentityKey(l.ProductKey, l.Size)
}

// Subtotal is UnitPrice * Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type lineJSON struct {
	Key          string          `json:"key"`
	ProductKey   string          `json:"product_key"`
	Name         string          `json:"name"`
	SelectedSize *string         `json:"selected_size,omitempty"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	ImageURL     string          `json:"image_url,omitempty"`
}

func (l Line) MarshalJSON() ([]byte, error) {
	wire := lineJSON{
		Key:        l.Key(),
		ProductKey: l.ProductKey,
		Name:       l.Name,
		Quantity:   l.Quantity,
		UnitPrice:  l.UnitPrice,
		ImageURL:   l.ImageURL,
	}
	if label, ok := l.Size.Label(); ok {
		wire.SelectedSize = &label
	}
	return json.Marshal(wire)
}

func (l *Line) UnmarshalJSON(data []byte) error {
	var wire lineJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode cart line: %w", err)
	}
	*l = Line{
		ProductKey: wire.ProductKey,
		Name:       wire.Name,
		Size:       SizeFromOptional(wire.SelectedSize),
		Quantity:   wire.Quantity,
		UnitPrice:  wire.UnitPrice,
		ImageURL:   wire.ImageURL,
	}
	return nil
}

func indexOf(lines []Line, key string) int {
	for i, line := range lines {
		if line.Key() == key {
			return i
		}
	}
	return -1
}

func cloneLines(lines []Line) []Line {
	out := make([]Line, len(lines))
	copy(out, lines)
	return out
}

// Total sums the subtotals of lines.
func Total(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	return total
}
