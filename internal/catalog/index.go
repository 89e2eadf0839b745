package catalog

import (
	"net/url"
	"strings"
)

// Index is an immutable snapshot of the catalog. A refresh builds a new Index
// and swaps it in; an Index is never modified after NewIndex returns.
type Index struct {
	products []Product
	byKey    map[string]int
}

// NewIndex builds a snapshot. When two products share a key the first one wins.
func NewIndex(products []Product) *Index {
	idx := &Index{
		products: make([]Product, len(products)),
		byKey:    make(map[string]int, len(products)),
	}
	copy(idx.products, products)
	for i, p := range idx.products {
		if _, exists := idx.byKey[p.Key]; !exists {
			idx.byKey[p.Key] = i
		}
	}
	return idx
}

// Len returns the number of products in the snapshot.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.products)
}

// Products returns a copy of the snapshot in feed order.
func (i *Index) Products() []Product {
	if i == nil {
		return nil
	}
	out := make([]Product, len(i.products))
	copy(out, i.products)
	return out
}

// ByKey resolves a product by its stable product key.
func (i *Index) ByKey(key string) (Product, bool) {
	if i == nil {
		return Product{}, false
	}
	pos, ok := i.byKey[key]
	if !ok {
		return Product{}, false
	}
	return i.products[pos], true
}

// Lookup resolves a human-typed or URL-derived name. Each strategy is tried
// against every product before moving to the next one:
//
//  1. slug equality
//  2. case-insensitive equality with whitespace runs collapsed
//  3. case-insensitive equality after turning hyphens in key into spaces
func (i *Index) Lookup(key string) (Product, bool) {
	if i == nil || len(i.products) == 0 {
		return Product{}, false
	}
	decoded := key
	if unescaped, err := url.PathUnescape(key); err == nil {
		decoded = unescaped
	}
	lowered := strings.ToLower(decoded)

	slug := Slugify(decoded)
	if slug != "" {
		if p, ok := i.ByKey(slug); ok {
			return p, true
		}
	}

	collapsed := collapseSpaces(lowered)
	for _, p := range i.products {
		if collapseSpaces(strings.ToLower(p.Name)) == collapsed {
			return p, true
		}
	}

	dehyphenated := strings.ReplaceAll(lowered, "-", " ")
	for _, p := range i.products {
		if strings.ToLower(p.Name) == dehyphenated {
			return p, true
		}
	}
	return Product{}, false
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
