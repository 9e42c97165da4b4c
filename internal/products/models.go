package products

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Image struct {
	URL  string `json:"url" validate:"required,url"`
	Path string `json:"path,omitempty"`
	Alt  string `json:"alt,omitempty"`
}

type Product struct {
	ID             uuid.UUID        `json:"id"`
	Name           string           `json:"name"`
	Slug           string           `json:"slug"`
	Description    string           `json:"description"`
	Price          decimal.Decimal  `json:"price"`
	CompareAtPrice *decimal.Decimal `json:"compareAtPrice,omitempty"`
	Category       string           `json:"category"`
	Subcategory    string           `json:"subcategory,omitempty"`
	Stock          int              `json:"stock"`
	SKU            string           `json:"sku,omitempty"`
	Images         []Image          `json:"images"`
	Tags           []string         `json:"tags"`
	IsActive       bool             `json:"isActive"`
	IsFeatured     bool             `json:"isFeatured"`
	Rating         decimal.Decimal  `json:"rating"`
	ReviewCount    int              `json:"reviewCount"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

type CreateInput struct {
	Name           string           `json:"name" validate:"required,max=200"`
	Description    string           `json:"description" validate:"max=5000"`
	Price          decimal.Decimal  `json:"price" validate:"required"`
	CompareAtPrice *decimal.Decimal `json:"compareAtPrice,omitempty"`
	Category       string           `json:"category" validate:"required"`
	Subcategory    string           `json:"subcategory,omitempty"`
	Stock          int              `json:"stock" validate:"min=0"`
	SKU            string           `json:"sku,omitempty"`
	Images         []Image          `json:"images,omitempty" validate:"dive"`
	Tags           []string         `json:"tags,omitempty"`
	IsActive       *bool            `json:"isActive,omitempty"`
	IsFeatured     bool             `json:"isFeatured,omitempty"`
}

// UpdateInput carries only the fields being changed.
type UpdateInput struct {
	Name           *string          `json:"name,omitempty" validate:"omitempty,max=200"`
	Description    *string          `json:"description,omitempty"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	CompareAtPrice *decimal.Decimal `json:"compareAtPrice,omitempty"`
	Category       *string          `json:"category,omitempty"`
	Subcategory    *string          `json:"subcategory,omitempty"`
	SKU            *string          `json:"sku,omitempty"`
	Images         []Image          `json:"images,omitempty" validate:"dive"`
	Tags           []string         `json:"tags,omitempty"`
	IsActive       *bool            `json:"isActive,omitempty"`
	IsFeatured     *bool            `json:"isFeatured,omitempty"`
}

type Filter struct {
	Category   string
	ActiveOnly bool
	Featured   *bool
	Search     string
}
