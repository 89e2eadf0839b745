package catalog

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Cell is a spreadsheet value. The upstream feed is not consistent about
// quoting, so numbers and booleans are accepted and kept in their text form.
type Cell string

func (c *Cell) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Cell(s)
		return nil
	}
	*c = Cell(data)
	return nil
}

func (c Cell) String() string {
	return string(c)
}

// Row is one product row as delivered by the catalog feed.
type Row struct {
	Name       Cell `json:"name"`
	ImgLink    Cell `json:"imgLink"`
	Price      Cell `json:"price"`
	Sizes      Cell `json:"sizes"`
	Type       Cell `json:"type"`
	NewItem    Cell `json:"newItem"`
	Collection Cell `json:"collection"`
	BackImages Cell `json:"backImages"`
}

// Product is an immutable catalog entry. RawStockSpec is kept verbatim so
// stock can be re-derived on demand.
type Product struct {
	Key          string          `json:"key"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	ImageURL     string          `json:"image_url"`
	Price        decimal.Decimal `json:"price"`
	Category     string          `json:"category"`
	IsNew        bool            `json:"is_new"`
	Collection   *string         `json:"collection"`
	RawStockSpec string          `json:"-"`
	BackImages   []string        `json:"back_images"`
}

// Stock re-parses the raw stock spec.
func (p Product) Stock() StockMap {
	stock, _ := ParseStock(p.RawStockSpec)
	return stock
}

// Sized reports whether the product exposes at least one size.
func (p Product) Sized() bool {
	return len(p.Stock()) > 0
}

// FromRow converts a feed row into a Product. Malformed cells fall back to
// safe defaults and are reported as degradations.
func FromRow(row Row) (Product, []Degradation) {
	var degradations []Degradation

	name := strings.TrimSpace(row.Name.String())
	price, deg := parsePrice(row.Price.String())
	if deg.Degraded() {
		degradations = append(degradations, deg)
	}
	if _, deg := ParseStock(row.Sizes.String()); deg.Degraded() {
		degradations = append(degradations, deg)
	}
	backImages, deg := parseBackImages(row.BackImages.String())
	if deg.Degraded() {
		degradations = append(degradations, deg)
	}

	var collection *string
	if c := row.Collection.String(); c != "FALSE" && strings.TrimSpace(c) != "" {
		collection = &c
	}

	category := row.Type.String()
	return Product{
		Key:          Slugify(name),
		Name:         name,
		Description:  "Beautiful " + category + " from our collection",
		ImageURL:     strings.TrimSpace(row.ImgLink.String()),
		Price:        price,
		Category:     category,
		IsNew:        row.NewItem.String() == "TRUE",
		Collection:   collection,
		RawStockSpec: row.Sizes.String(),
		BackImages:   backImages,
	}, degradations
}

// parsePrice reads the leading integer of raw, defaulting to zero.
func parsePrice(raw string) (decimal.Decimal, Degradation) {
	clean := strings.TrimSpace(raw)
	end := 0
	for end < len(clean) && clean[end] >= '0' && clean[end] <= '9' {
		end++
	}
	if end == 0 {
		return decimal.Zero, Degradation{Field: "price", Raw: raw, Reason: "price is not an integer"}
	}
	price, err := decimal.NewFromString(clean[:end])
	if err != nil {
		return decimal.Zero, Degradation{Field: "price", Raw: raw, Reason: err.Error()}
	}
	return price, Degradation{}
}

func parseBackImages(raw string) ([]string, Degradation) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return []string{}, Degradation{}
	}
	var images []string
	if err := json.Unmarshal([]byte(clean), &images); err != nil || images == nil {
		return []string{}, Degradation{Field: "backImages", Raw: raw, Reason: "back images are not a JSON array of strings"}
	}
	return images, Degradation{}
}

// Slugify lowercases name, joins whitespace runs with a hyphen and drops
// everything that is not a letter, digit, underscore or hyphen.
func Slugify(name string) string {
	var b strings.Builder
	inSpace := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('-')
			}
			inSpace = true
			continue
		}
		inSpace = false
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
