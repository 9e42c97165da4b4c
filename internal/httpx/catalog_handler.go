package httpx

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-commerce-backend/internal/page"
	"github.com/ariefcatur/go-commerce-backend/internal/products"
	"github.com/ariefcatur/go-commerce-backend/internal/users"
)

type UserService interface {
	Create(ctx context.Context, in users.CreateInput) (*users.User, error)
	Get(ctx context.Context, id uuid.UUID) (*users.User, error)
	Query(ctx context.Context, f users.Filter, p page.Params) (page.Result[users.User], error)
	Update(ctx context.Context, id uuid.UUID, in users.UpdateInput) (*users.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type ProductService interface {
	Create(ctx context.Context, in products.CreateInput) (*products.Product, error)
	Get(ctx context.Context, id uuid.UUID) (*products.Product, error)
	GetBySlug(ctx context.Context, slug string) (*products.Product, error)
	Query(ctx context.Context, f products.Filter, p page.Params) (page.Result[products.Product], error)
	Search(ctx context.Context, q string, p page.Params) (page.Result[products.Product], error)
	ByCategory(ctx context.Context, category string, p page.Params) (page.Result[products.Product], error)
	Featured(ctx context.Context, p page.Params) (page.Result[products.Product], error)
	Update(ctx context.Context, id uuid.UUID, in products.UpdateInput) (*products.Product, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AdjustStock(ctx context.Context, id uuid.UUID, quantity int) (*products.Product, error)
}

type UsersHandler struct {
	Users UserService
	Auth  *Auth
	Log   *logrus.Entry
}

func (h *UsersHandler) Register(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.With(h.Auth.Require(RightManageUsers)).Post("/", h.create)
		r.With(h.Auth.Require(RightGetUsers)).Get("/", h.query)
		r.With(h.Auth.RequireUser).Get("/{id}", h.get)
		r.With(h.Auth.RequireUser).Patch("/{id}", h.update)
		r.With(h.Auth.Require(RightManageUsers)).Delete("/{id}", h.delete)
	})
}

// target resolves the {id} path user and checks the caller may act on it.
func (h *UsersHandler) target(r *http.Request, right string) (Caller, uuid.UUID, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return Caller{}, uuid.Nil, err
	}
	c, err := caller(r)
	if err != nil {
		return Caller{}, uuid.Nil, err
	}
	if !c.Owns(id, right) {
		return Caller{}, uuid.Nil, errForbidden()
	}
	return c, id, nil
}

func (h *UsersHandler) create(w http.ResponseWriter, r *http.Request) {
	var in users.CreateInput
	if err := decode(r, &in); err != nil {
		writeError(w, h.Log, err)
		return
	}
	u, err := h.Users.Create(r.Context(), in)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *UsersHandler) query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := users.Filter{FullName: q.Get("fullName"), Email: q.Get("email"), Role: q.Get("role")}
	res, err := h.Users.Query(r.Context(), f, page.FromRequest(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *UsersHandler) get(w http.ResponseWriter, r *http.Request) {
	_, id, err := h.target(r, RightGetUsers)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	u, err := h.Users.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *UsersHandler) update(w http.ResponseWriter, r *http.Request) {
	c, id, err := h.target(r, RightManageUsers)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	var in users.UpdateInput
	if err := decode(r, &in); err != nil {
		writeError(w, h.Log, err)
		return
	}
	if in.Role != nil && !c.Can(RightManageUsers) {
		writeError(w, h.Log, errForbidden())
		return
	}
	u, err := h.Users.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *UsersHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if err := h.Users.Delete(r.Context(), id); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ProductsHandler struct {
	Products ProductService
	Auth     *Auth
	Log      *logrus.Entry
}

type stockReq struct {
	Quantity int `json:"quantity" validate:"required"`
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.query)
		r.Get("/search", h.search)
		r.Get("/featured", h.featured)
		r.Get("/category/{category}", h.byCategory)
		r.Get("/slug/{slug}", h.bySlug)
		r.Get("/{id}", h.get)
		r.Group(func(r chi.Router) {
			r.Use(h.Auth.Require(RightManageProducts))
			r.Post("/", h.create)
			r.Patch("/{id}", h.update)
			r.Delete("/{id}", h.delete)
			r.Patch("/{id}/stock", h.stock)
		})
	})
}

func (h *ProductsHandler) list(w http.ResponseWriter, res page.Result[products.Product], err error) {
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ProductsHandler) one(w http.ResponseWriter, code int, p *products.Product, err error) {
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, code, p)
}

func (h *ProductsHandler) create(w http.ResponseWriter, r *http.Request) {
	var in products.CreateInput
	if err := decode(r, &in); err != nil {
		writeError(w, h.Log, err)
		return
	}
	p, err := h.Products.Create(r.Context(), in)
	h.one(w, http.StatusCreated, p, err)
}

func (h *ProductsHandler) query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := products.Filter{Category: q.Get("category"), Search: q.Get("search")}
	if v, err := strconv.ParseBool(q.Get("isActive")); err == nil {
		f.ActiveOnly = v
	}
	if v, err := strconv.ParseBool(q.Get("isFeatured")); err == nil {
		f.Featured = &v
	}
	res, err := h.Products.Query(r.Context(), f, page.FromRequest(r))
	h.list(w, res, err)
}

func (h *ProductsHandler) search(w http.ResponseWriter, r *http.Request) {
	res, err := h.Products.Search(r.Context(), r.URL.Query().Get("q"), page.FromRequest(r))
	h.list(w, res, err)
}

func (h *ProductsHandler) featured(w http.ResponseWriter, r *http.Request) {
	res, err := h.Products.Featured(r.Context(), page.FromRequest(r))
	h.list(w, res, err)
}

func (h *ProductsHandler) byCategory(w http.ResponseWriter, r *http.Request) {
	res, err := h.Products.ByCategory(r.Context(), chi.URLParam(r, "category"), page.FromRequest(r))
	h.list(w, res, err)
}

func (h *ProductsHandler) bySlug(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	h.one(w, http.StatusOK, p, err)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	p, err := h.Products.Get(r.Context(), id)
	h.one(w, http.StatusOK, p, err)
}

func (h *ProductsHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	var in products.UpdateInput
	if err := decode(r, &in); err != nil {
		writeError(w, h.Log, err)
		return
	}
	p, err := h.Products.Update(r.Context(), id, in)
	h.one(w, http.StatusOK, p, err)
}

func (h *ProductsHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if err := h.Products.Delete(r.Context(), id); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// stock applies a signed quantity delta.
func (h *ProductsHandler) stock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	var req stockReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	p, err := h.Products.AdjustStock(r.Context(), id, req.Quantity)
	h.one(w, http.StatusOK, p, err)
}
