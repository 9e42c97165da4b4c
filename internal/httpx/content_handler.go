package httpx

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-commerce-backend/internal/content"
)

type ContentStore interface {
	Upsert(ctx context.Context, kind content.Kind, body string) (*content.Page, error)
	Get(ctx context.Context, kind content.Kind) (*content.Page, error)
}

type ContentHandler struct {
	Content ContentStore
	Auth    *Auth
	Log     *logrus.Entry
}

type contentReq struct {
	Content string `json:"content" validate:"required"`
}

func (h *ContentHandler) Register(r chi.Router) {
	for _, kind := range []content.Kind{content.About, content.Privacy, content.Terms} {
		r.Get("/"+string(kind), h.get(kind))
		r.With(h.Auth.Require(RightManageContent)).Put("/"+string(kind), h.put(kind))
	}
}

func (h *ContentHandler) get(kind content.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := h.Content.Get(r.Context(), kind)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func (h *ContentHandler) put(kind content.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req contentReq
		if err := decode(r, &req); err != nil {
			writeError(w, h.Log, err)
			return
		}
		p, err := h.Content.Upsert(r.Context(), kind, req.Content)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}
