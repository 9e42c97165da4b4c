package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-commerce-backend/internal/apperr"
	"github.com/ariefcatur/go-commerce-backend/internal/report"
)

type ReportScheduler interface {
	Status() report.Status
	SendNow(ctx context.Context, recipients []string, days int) (report.BulkResult, error)
}

type ReportsHandler struct {
	Scheduler ReportScheduler
	Auth      *Auth
	Log       *logrus.Entry
}

type sendReportReq struct {
	Recipients []string `json:"recipients" validate:"omitempty,dive,email"`
	Days       int      `json:"days" validate:"omitempty,min=1,max=365"`
}

func (h *ReportsHandler) Register(r chi.Router) {
	r.Route("/reports/logs", func(r chi.Router) {
		r.Use(h.Auth.Require(RightManageReports))
		r.Post("/send", h.send)
		r.Get("/status", h.status)
		r.Get("/schedules", h.schedules)
	})
}

func (h *ReportsHandler) send(w http.ResponseWriter, r *http.Request) {
	var req sendReportReq
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, h.Log, err)
			return
		}
	}
	res, err := h.Scheduler.SendNow(r.Context(), req.Recipients, req.Days)
	if errors.Is(err, report.ErrNoRecipients) {
		writeError(w, h.Log, apperr.BadRequest("No recipients specified"))
		return
	}
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Log report sent", "result": res})
}

func (h *ReportsHandler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Scheduler.Status())
}

func (h *ReportsHandler) schedules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, report.AvailableSchedules())
}
