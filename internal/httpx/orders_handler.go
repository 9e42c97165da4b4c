package httpx

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-commerce-backend/internal/apperr"
	"github.com/ariefcatur/go-commerce-backend/internal/orders"
	"github.com/ariefcatur/go-commerce-backend/internal/page"
)

type OrderService interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, in orders.CreateOrderInput, idemKey string) (*orders.Order, bool, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*orders.Order, error)
	QueryOrders(ctx context.Context, f orders.Filter, p page.Params) (page.Result[orders.Order], error)
	GetUserOrders(ctx context.Context, userID uuid.UUID, p page.Params) (page.Result[orders.Order], error)
	GetOrdersByStatus(ctx context.Context, status orders.Status, p page.Params) (page.Result[orders.Order], error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status orders.Status) (*orders.Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID, reason string) (*orders.Order, error)
}

type OrdersHandler struct {
	Orders OrderService
	Auth   *Auth
	Log    *logrus.Entry
}

type updateStatusReq struct {
	Status orders.Status `json:"status" validate:"required"`
}

type cancelReq struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.With(h.Auth.RequireUser).Post("/", h.createOrder)
		r.With(h.Auth.Require(RightGetOrders)).Get("/", h.queryOrders)
		r.With(h.Auth.RequireUser).Get("/my-orders", h.myOrders)
		r.With(h.Auth.Require(RightGetOrders)).Get("/status/{status}", h.byStatus)
		r.With(h.Auth.RequireUser).Get("/{id}", h.getOrder)
		r.With(h.Auth.Require(RightManageOrders)).Patch("/{id}/status", h.updateStatus)
		r.With(h.Auth.RequireUser).Post("/{id}/cancel", h.cancel)
	})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	var in orders.CreateOrderInput
	if err := decode(r, &in); err != nil {
		writeError(w, h.Log, err)
		return
	}
	o, replayed, err := h.Orders.CreateOrder(r.Context(), uid, in, r.Header.Get("Idempotency-Key"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if replayed {
		w.Header().Set("Idempotent-Replayed", "true")
		writeJSON(w, http.StatusOK, o)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) queryOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := orders.Filter{
		Status:        orders.Status(q.Get("status")),
		PaymentStatus: orders.PaymentStatus(q.Get("paymentStatus")),
		PaymentMethod: q.Get("paymentMethod"),
	}
	if u := q.Get("user"); u != "" {
		id, err := uuid.Parse(u)
		if err != nil {
			writeError(w, h.Log, errBadParam("user"))
			return
		}
		f.UserID = &id
	}
	res, err := h.Orders.QueryOrders(r.Context(), f, page.FromRequest(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) myOrders(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	res, err := h.Orders.GetUserOrders(r.Context(), uid, page.FromRequest(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) byStatus(w http.ResponseWriter, r *http.Request) {
	res, err := h.Orders.GetOrdersByStatus(r.Context(), orders.Status(chi.URLParam(r, "status")), page.FromRequest(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	o, err := h.ownedOrder(r, id, RightGetOrders)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// ownedOrder loads the order and checks the caller placed it or holds right.
// Orders of other users read as missing.
func (h *OrdersHandler) ownedOrder(r *http.Request, id uuid.UUID, right string) (*orders.Order, error) {
	c, err := caller(r)
	if err != nil {
		return nil, err
	}
	o, err := h.Orders.GetOrder(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if !c.Owns(o.UserID, right) {
		return nil, apperr.NotFound("Order not found")
	}
	return o, nil
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	var req updateStatusReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	o, err := h.Orders.UpdateOrderStatus(r.Context(), id, req.Status)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	var req cancelReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	if _, err := h.ownedOrder(r, id, RightManageOrders); err != nil {
		writeError(w, h.Log, err)
		return
	}
	o, err := h.Orders.CancelOrder(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
