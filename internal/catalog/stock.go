package catalog

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// StockMap maps a size label to the units available in that size. A missing
// label means the size does not exist; a zero value means it is sold out.
type StockMap map[string]int

// Degradation marks a value that was recovered from malformed input. The zero
// value means the input parsed cleanly.
type Degradation struct {
	Field  string
	Raw    string
	Reason string
}

// Degraded reports whether the parse fell back to a default or partial value.
func (d Degradation) Degraded() bool {
	return d.Reason != ""
}

// Available returns the stock for size; ok is false when the size is unknown.
func (m StockMap) Available(size string) (int, bool) {
	qty, ok := m[size]
	return qty, ok
}

// ParseStock normalizes a raw stock spec. It never fails: JSON objects are
// read first, anything else goes through the comma/colon fallback, and blank
// input yields an empty map.
func ParseStock(raw string) (StockMap, Degradation) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return StockMap{}, Degradation{}
	}

	if strings.HasPrefix(clean, "{") && strings.HasSuffix(clean, "}") {
		if stock, dropped, ok := parseStockJSON(clean); ok {
			if dropped > 0 {
				return stock, Degradation{Field: "sizes", Raw: raw, Reason: "dropped non-numeric quantities"}
			}
			return stock, Degradation{}
		}
	}

	stock, skipped := parseStockPairs(clean)
	if skipped > 0 || strings.ContainsAny(clean, "{}") {
		return stock, Degradation{Field: "sizes", Raw: raw, Reason: "recovered from malformed stock spec"}
	}
	return stock, Degradation{}
}

func parseStockJSON(clean string) (StockMap, int, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(clean), &fields); err != nil {
		return nil, 0, false
	}

	stock := make(StockMap, len(fields))
	dropped := 0
	for size, rawQty := range fields {
		qty, ok := jsonQuantity(rawQty)
		if !ok {
			dropped++
			continue
		}
		stock[size] = qty
	}
	return stock, dropped, true
}

// jsonQuantity accepts JSON numbers and numeric strings.
func jsonQuantity(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		return numericQuantity(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	return numericQuantity(n.String())
}

func parseStockPairs(clean string) (StockMap, int) {
	stripped := strings.NewReplacer("{", "", "}", "").Replace(clean)
	stock := StockMap{}
	skipped := 0
	for _, segment := range strings.Split(stripped, ",") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		key, value, found := strings.Cut(segment, ":")
		if !found {
			skipped++
			continue
		}
		key = strings.TrimSpace(key)
		qty, ok := numericQuantity(value)
		if key == "" || !ok {
			skipped++
			continue
		}
		stock[key] = qty
	}
	return stock, skipped
}

// numericQuantity truncates fractions and clamps negatives to zero.
func numericQuantity(value string) (int, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	f = math.Trunc(f)
	switch {
	case f < 0:
		return 0, true
	case f > math.MaxInt32:
		return math.MaxInt32, true
	}
	return int(f), true
}
