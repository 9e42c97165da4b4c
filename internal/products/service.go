package products

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-commerce-backend/internal/apperr"
	"github.com/ariefcatur/go-commerce-backend/internal/page"
	"github.com/ariefcatur/go-commerce-backend/internal/postgres"
)

type Service struct {
	Store Store
	Log   *logrus.Entry
}

func storeErr(err error, msg string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("Product not found")
	case errors.Is(err, ErrNegativeStock):
		return apperr.BadRequest("Insufficient stock")
	case postgres.IsUniqueViolation(err, "products_sku_key"):
		return apperr.BadRequest("SKU already exists")
	case postgres.IsUniqueViolation(err, "products_slug_key"):
		return apperr.BadRequest("A product with this name already exists")
	case postgres.IsCheckViolation(err):
		return apperr.Wrap(http.StatusBadRequest, "Invalid product values", err)
	}
	return apperr.Wrap(http.StatusInternalServerError, msg, err)
}

func normalize(p *Product) {
	if p.Images == nil {
		p.Images = []Image{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Product, error) {
	if in.Price.IsNegative() {
		return nil, apperr.BadRequest("Price cannot be negative")
	}
	p := &Product{
		ID:             uuid.New(),
		Name:           in.Name,
		Slug:           Slugify(in.Name),
		Description:    in.Description,
		Price:          in.Price,
		CompareAtPrice: in.CompareAtPrice,
		Category:       in.Category,
		Subcategory:    in.Subcategory,
		Stock:          in.Stock,
		SKU:            in.SKU,
		Images:         in.Images,
		Tags:           in.Tags,
		IsActive:       true,
		IsFeatured:     in.IsFeatured,
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if p.Slug == "" {
		return nil, apperr.BadRequest("Product name must contain letters or digits")
	}
	normalize(p)
	if err := s.Store.Create(ctx, p); err != nil {
		return nil, storeErr(err, "Failed to create product")
	}
	s.Log.WithFields(logrus.Fields{"product_id": p.ID, "slug": p.Slug}).Info("product created")
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Product, error) {
	p, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Failed to load product")
	}
	return p, nil
}

// GetBySlug only returns active products.
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Product, error) {
	p, err := s.Store.GetBySlug(ctx, slug)
	if err != nil {
		return nil, storeErr(err, "Failed to load product")
	}
	return p, nil
}

func (s *Service) Query(ctx context.Context, f Filter, p page.Params) (page.Result[Product], error) {
	p = p.Normalize()
	items, total, err := s.Store.List(ctx, f, p)
	if err != nil {
		return page.Result[Product]{}, storeErr(err, "Failed to query products")
	}
	return page.NewResult(items, p, total), nil
}

func (s *Service) Search(ctx context.Context, q string, p page.Params) (page.Result[Product], error) {
	if q == "" {
		return page.Result[Product]{}, apperr.BadRequest("Search query is required")
	}
	return s.Query(ctx, Filter{Search: q, ActiveOnly: true}, p)
}

func (s *Service) ByCategory(ctx context.Context, category string, p page.Params) (page.Result[Product], error) {
	return s.Query(ctx, Filter{Category: category, ActiveOnly: true}, p)
}

func (s *Service) Featured(ctx context.Context, p page.Params) (page.Result[Product], error) {
	featured := true
	return s.Query(ctx, Filter{Featured: &featured, ActiveOnly: true}, p)
}

// Update applies the set fields. Renaming regenerates the slug.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Product, error) {
	p, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Failed to load product")
	}
	if in.Name != nil && *in.Name != p.Name {
		p.Name = *in.Name
		p.Slug = Slugify(p.Name)
		if p.Slug == "" {
			return nil, apperr.BadRequest("Product name must contain letters or digits")
		}
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Price != nil {
		if in.Price.IsNegative() {
			return nil, apperr.BadRequest("Price cannot be negative")
		}
		p.Price = *in.Price
	}
	if in.CompareAtPrice != nil {
		p.CompareAtPrice = in.CompareAtPrice
	}
	if in.Category != nil {
		p.Category = *in.Category
	}
	if in.Subcategory != nil {
		p.Subcategory = *in.Subcategory
	}
	if in.SKU != nil {
		p.SKU = *in.SKU
	}
	if in.Images != nil {
		p.Images = in.Images
	}
	if in.Tags != nil {
		p.Tags = in.Tags
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if in.IsFeatured != nil {
		p.IsFeatured = *in.IsFeatured
	}
	normalize(p)
	if err := s.Store.Update(ctx, p); err != nil {
		return nil, storeErr(err, "Failed to update product")
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.Store.Delete(ctx, id); err != nil {
		return storeErr(err, "Failed to delete product")
	}
	return nil
}

// AdjustStock adds quantity (negative to remove). Stock never drops below zero.
func (s *Service) AdjustStock(ctx context.Context, id uuid.UUID, quantity int) (*Product, error) {
	p, err := s.Store.AdjustStock(ctx, id, quantity)
	if err != nil {
		return nil, storeErr(err, "Failed to update stock")
	}
	s.Log.WithFields(logrus.Fields{"product_id": id, "delta": quantity, "stock": p.Stock}).Info("stock adjusted")
	return p, nil
}
