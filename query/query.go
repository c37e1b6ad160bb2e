// Package query implements the list-query engine shared by all Folio
// resources: a whitelisted ordering expression, normalized page-based
// pagination, and a generic result envelope.
package query

import (
	"errors"
	"fmt"
	"strings"
)

// Pagination bounds. Requests outside these are clamped, never rejected.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ErrUnknownOrderField is returned when an ordering expression names a field
// outside the resource's whitelist.
var ErrUnknownOrderField = errors.New("query: unknown order field")

// Sort is a parsed ordering expression.
type Sort struct {
	Field string
	Desc  bool
}

// ParseSort parses an ordering expression of the form "field" or "-field"
// against a whitelist. An empty expression falls back to def (which must
// itself be valid; ParseSort panics otherwise since that is a programming
// error in the caller's whitelist).
func ParseSort(expr, def string, allowed []string) (Sort, error) {
	if strings.TrimSpace(expr) == "" {
		expr = def
	}

	desc := false
	field := strings.TrimSpace(expr)
	if strings.HasPrefix(field, "-") {
		desc = true
		field = field[1:]
	}

	for _, a := range allowed {
		if field == a {
			return Sort{Field: field, Desc: desc}, nil
		}
	}

	if expr == def {
		panic(fmt.Sprintf("query: default order %q not in whitelist %v", def, allowed))
	}

	return Sort{}, fmt.Errorf("%w: %q (allowed: %s)", ErrUnknownOrderField, field, strings.Join(allowed, ", "))
}

// PageRequest is a caller-supplied page selection before normalization.
type PageRequest struct {
	Page     int
	PageSize int
}

// Normalize clamps the request into valid bounds: page >= 1, size between 1
// and MaxPageSize, defaulting to DefaultPageSize when unset.
func (p PageRequest) Normalize() PageRequest {
	if p.Page <= 0 {
		p.Page = 1
	}
	switch {
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	case p.PageSize <= 0:
		p.PageSize = DefaultPageSize
	}
	return p
}

// Offset returns the row offset for a normalized request.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Page is the envelope returned by every list operation.
type Page[T any] struct {
	Results    []T `json:"results"`
	Count      int `json:"count"`
	Number     int `json:"current_page"`
	Size       int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// NewPage builds a Page from one slice of results, the total match count,
// and the normalized request that produced it. A page past the end carries
// an empty result set, never an error.
func NewPage[T any](results []T, total int, req PageRequest) Page[T] {
	if results == nil {
		results = []T{}
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + req.PageSize - 1) / req.PageSize
	}

	return Page[T]{
		Results:    results,
		Count:      total,
		Number:     req.Page,
		Size:       req.PageSize,
		TotalPages: totalPages,
	}
}

// HasNext reports whether a later page exists.
func (p Page[T]) HasNext() bool { return p.Number < p.TotalPages }

// HasPrevious reports whether an earlier page exists.
func (p Page[T]) HasPrevious() bool { return p.Number > 1 }
