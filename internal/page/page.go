// Package page holds offset pagination shared by every list endpoint.
package page

import (
	"net/http"
	"strconv"
	"strings"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Params is a normalised pagination request. SortBy uses the "field:asc|desc" form.
type Params struct {
	Page   int
	Limit  int
	SortBy string
}

type Result[T any] struct {
	Results      []T `json:"results"`
	Page         int `json:"page"`
	Limit        int `json:"limit"`
	TotalPages   int `json:"totalPages"`
	TotalResults int `json:"totalResults"`
}

// FromRequest reads page, limit and sortBy from the query string.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()
	p, _ := strconv.Atoi(q.Get("page"))
	l, _ := strconv.Atoi(q.Get("limit"))
	return Params{Page: p, Limit: l, SortBy: q.Get("sortBy")}.Normalize()
}

func (p Params) Normalize() Params {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

func (p Params) Offset() int { return (p.Page - 1) * p.Limit }

// OrderBy turns SortBy into an ORDER BY clause. Only columns in allowed are
// accepted (keys are API field names, values are column names); anything else
// falls back to def.
func (p Params) OrderBy(allowed map[string]string, def string) string {
	var parts []string
	for _, s := range strings.Split(p.SortBy, ",") {
		field, dir, _ := strings.Cut(strings.TrimSpace(s), ":")
		col, ok := allowed[field]
		if !ok {
			continue
		}
		if strings.EqualFold(dir, "desc") {
			parts = append(parts, col+" DESC")
		} else {
			parts = append(parts, col+" ASC")
		}
	}
	if len(parts) == 0 {
		return def
	}
	return strings.Join(parts, ", ")
}

func NewResult[T any](items []T, p Params, total int) Result[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Result[T]{
		Results:      items,
		Page:         p.Page,
		Limit:        p.Limit,
		TotalPages:   pages,
		TotalResults: total,
	}
}
