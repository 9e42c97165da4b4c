// Package content stores the static about, privacy and terms pages.
package content

import (
	"context"
	"errors"
	"html"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-commerce-backend/internal/apperr"
)

type Kind string

const (
	About   Kind = "about"
	Privacy Kind = "privacy"
	Terms   Kind = "terms"
)

func (k Kind) Valid() bool { return k == About || k == Privacy || k == Terms }

type Page struct {
	Kind      Kind      `json:"kind"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Repo struct{ DB *pgxpool.Pool }

// Upsert replaces the page body. Entity-escaped HTML is stored decoded.
func (r *Repo) Upsert(ctx context.Context, kind Kind, body string) (*Page, error) {
	if !kind.Valid() {
		return nil, apperr.NotFound("Page not found")
	}
	p := &Page{Kind: kind, Content: html.UnescapeString(body)}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO content_pages(kind, content) VALUES ($1, $2)
		ON CONFLICT (kind) DO UPDATE SET content = EXCLUDED.content, updated_at = now()
		RETURNING updated_at`, kind, p.Content).Scan(&p.UpdatedAt)
	if err != nil {
		return nil, apperr.Wrap(http.StatusInternalServerError, "Failed to save page", err)
	}
	return p, nil
}

// Get returns the page, or an empty one when it was never written.
func (r *Repo) Get(ctx context.Context, kind Kind) (*Page, error) {
	if !kind.Valid() {
		return nil, apperr.NotFound("Page not found")
	}
	p := &Page{Kind: kind}
	err := r.DB.QueryRow(ctx, `SELECT content, updated_at FROM content_pages WHERE kind=$1`, kind).
		Scan(&p.Content, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return nil, apperr.Wrap(http.StatusInternalServerError, "Failed to load page", err)
	}
	return p, nil
}
