package products

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-commerce-backend/internal/page"
)

var (
	ErrNotFound      = errors.New("product not found")
	ErrNegativeStock = errors.New("stock cannot go below zero")
)

type Store interface {
	Create(ctx context.Context, p *Product) error
	Get(ctx context.Context, id uuid.UUID) (*Product, error)
	GetBySlug(ctx context.Context, slug string) (*Product, error)
	List(ctx context.Context, f Filter, p page.Params) ([]Product, int, error)
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*Product, error)
}

type Repo struct{ DB *pgxpool.Pool }

const columns = `id, name, slug, description, price, compare_at_price, category, subcategory,
	stock, COALESCE(sku, ''), images, tags, is_active, is_featured, rating, review_count,
	created_at, updated_at`

const searchVector = `to_tsvector('simple', name || ' ' || description || ' ' || category || ' ' || array_to_string(tags, ' '))`

var sortable = map[string]string{
	"name":      "name",
	"price":     "price",
	"createdAt": "created_at",
	"rating":    "rating",
	"stock":     "stock",
}

func scan(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.Price, &p.CompareAtPrice, &p.Category,
		&p.Subcategory, &p.Stock, &p.SKU, &p.Images, &p.Tags, &p.IsActive, &p.IsFeatured, &p.Rating,
		&p.ReviewCount, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *Repo) Create(ctx context.Context, p *Product) error {
	return r.DB.QueryRow(ctx, `
		INSERT INTO products(id, name, slug, description, price, compare_at_price, category, subcategory,
			stock, sku, images, tags, is_active, is_featured)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING rating, review_count, created_at, updated_at`,
		p.ID, p.Name, p.Slug, p.Description, p.Price, p.CompareAtPrice, p.Category, p.Subcategory,
		p.Stock, nullIfEmpty(p.SKU), p.Images, p.Tags, p.IsActive, p.IsFeatured,
	).Scan(&p.Rating, &p.ReviewCount, &p.CreatedAt, &p.UpdatedAt)
}

func (r *Repo) Get(ctx context.Context, id uuid.UUID) (*Product, error) {
	return scan(r.DB.QueryRow(ctx, `SELECT `+columns+` FROM products WHERE id=$1`, id))
}

func (r *Repo) GetBySlug(ctx context.Context, slug string) (*Product, error) {
	return scan(r.DB.QueryRow(ctx, `SELECT `+columns+` FROM products WHERE slug=$1 AND is_active`, slug))
}

func (r *Repo) List(ctx context.Context, f Filter, p page.Params) ([]Product, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.ActiveOnly {
		where = append(where, "is_active")
	}
	if f.Featured != nil {
		add("is_featured = $%d", *f.Featured)
	}
	if f.Search != "" {
		add(searchVector+" @@ plainto_tsquery('simple', $%d)", f.Search)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT count(*) FROM products`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	args = append(args, p.Limit, p.Offset())
	q := fmt.Sprintf(`SELECT %s FROM products%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		columns, clause, p.OrderBy(sortable, "created_at DESC"), len(args)-1, len(args))
	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		prod, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *prod)
	}
	return out, total, rows.Err()
}

func (r *Repo) Update(ctx context.Context, p *Product) error {
	err := r.DB.QueryRow(ctx, `
		UPDATE products SET name=$2, slug=$3, description=$4, price=$5, compare_at_price=$6,
			category=$7, subcategory=$8, sku=$9, images=$10, tags=$11, is_active=$12,
			is_featured=$13, updated_at=now()
		WHERE id=$1
		RETURNING updated_at`,
		p.ID, p.Name, p.Slug, p.Description, p.Price, p.CompareAtPrice, p.Category, p.Subcategory,
		nullIfEmpty(p.SKU), p.Images, p.Tags, p.IsActive, p.IsFeatured,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *Repo) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AdjustStock adds delta (which may be negative) in a single guarded update.
func (r *Repo) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*Product, error) {
	p, err := scan(r.DB.QueryRow(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING `+columns, id, delta))
	if !errors.Is(err, ErrNotFound) {
		return p, err
	}
	var exists bool
	if err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id=$1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrNegativeStock
	}
	return nil, ErrNotFound
}
