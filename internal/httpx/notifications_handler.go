package httpx

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-commerce-backend/internal/apperr"
	"github.com/ariefcatur/go-commerce-backend/internal/inbox"
	"github.com/ariefcatur/go-commerce-backend/internal/jobs"
	"github.com/ariefcatur/go-commerce-backend/internal/notify"
	"github.com/ariefcatur/go-commerce-backend/internal/page"
	"github.com/ariefcatur/go-commerce-backend/internal/queue"
)

type EmailEnqueuer interface {
	AddEmailJob(ctx context.Context, j jobs.EmailJob) (*queue.Job, error)
}

type PushSender interface {
	Send(ctx context.Context, token string, m notify.PushMessage) (string, error)
	SendMulticast(ctx context.Context, tokens []string, m notify.PushMessage) (*notify.BatchResult, error)
	SendTopic(ctx context.Context, topic string, m notify.PushMessage) (string, error)
	Subscribe(ctx context.Context, tokens []string, topic string) (*notify.BatchResult, error)
	Unsubscribe(ctx context.Context, tokens []string, topic string) (*notify.BatchResult, error)
}

type Inbox interface {
	ListFor(ctx context.Context, receiver uuid.UUID, p page.Params) (page.Result[inbox.Notification], int, error)
	MarkViewed(ctx context.Context, receiver, id uuid.UUID) error
}

type NotificationsHandler struct {
	Jobs  EmailEnqueuer
	Push  PushSender
	Inbox Inbox
	Auth  *Auth
	Log   *logrus.Entry
}

type emailReq struct {
	To      string `json:"to" validate:"required,email"`
	Subject string `json:"subject" validate:"required"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

type pushReq struct {
	Token string            `json:"token" validate:"required"`
	Title string            `json:"title" validate:"required"`
	Body  string            `json:"body" validate:"required"`
	Data  map[string]string `json:"data"`
}

type multicastReq struct {
	Tokens []string          `json:"tokens" validate:"required,min=1,max=500"`
	Title  string            `json:"title" validate:"required"`
	Body   string            `json:"body" validate:"required"`
	Data   map[string]string `json:"data"`
}

type topicReq struct {
	Topic string            `json:"topic" validate:"required"`
	Title string            `json:"title" validate:"required"`
	Body  string            `json:"body" validate:"required"`
	Data  map[string]string `json:"data"`
}

type subscriptionReq struct {
	Tokens []string `json:"tokens" validate:"required,min=1,max=1000"`
	Topic  string   `json:"topic" validate:"required"`
}

type feedResponse struct {
	page.Result[inbox.Notification]
	Unread int `json:"unread"`
}

func (h *NotificationsHandler) Register(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.Auth.Require(RightManageNotifications))
			r.Post("/email", h.email)
			r.Post("/push", h.push)
			r.Post("/push/multicast", h.multicast)
			r.Post("/push/topic", h.topic)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.Auth.RequireUser)
			r.Post("/topic/subscribe", h.subscribe)
			r.Post("/topic/unsubscribe", h.unsubscribe)
			r.Get("/me", h.mine)
			r.Patch("/{id}/view", h.view)
		})
	})
}

func (h *NotificationsHandler) email(w http.ResponseWriter, r *http.Request) {
	var req emailReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	if req.Text == "" && req.HTML == "" {
		writeError(w, h.Log, apperr.BadRequest(`"text" or "html" is required`))
		return
	}
	job, err := h.Jobs.AddEmailJob(r.Context(), jobs.EmailJob{
		To: req.To, Subject: req.Subject, Text: req.Text, HTML: req.HTML,
		Priority: jobs.PriorityConfirmation,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Email queued successfully", "jobId": job.ID})
}

func (h *NotificationsHandler) push(w http.ResponseWriter, r *http.Request) {
	var req pushReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	id, err := h.Push.Send(r.Context(), req.Token, notify.PushMessage{Title: req.Title, Body: req.Body, Data: req.Data})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messageId": id})
}

func (h *NotificationsHandler) multicast(w http.ResponseWriter, r *http.Request) {
	var req multicastReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	res, err := h.Push.SendMulticast(r.Context(), req.Tokens, notify.PushMessage{Title: req.Title, Body: req.Body, Data: req.Data})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *NotificationsHandler) topic(w http.ResponseWriter, r *http.Request) {
	var req topicReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	id, err := h.Push.SendTopic(r.Context(), req.Topic, notify.PushMessage{Title: req.Title, Body: req.Body, Data: req.Data})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messageId": id})
}

func (h *NotificationsHandler) subscribe(w http.ResponseWriter, r *http.Request) {
	h.manageTopic(w, r, h.Push.Subscribe)
}

func (h *NotificationsHandler) unsubscribe(w http.ResponseWriter, r *http.Request) {
	h.manageTopic(w, r, h.Push.Unsubscribe)
}

func (h *NotificationsHandler) manageTopic(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, []string, string) (*notify.BatchResult, error)) {
	var req subscriptionReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	res, err := fn(r.Context(), req.Tokens, req.Topic)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *NotificationsHandler) mine(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	res, unread, err := h.Inbox.ListFor(r.Context(), uid, page.FromRequest(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, feedResponse{Result: res, Unread: unread})
}

func (h *NotificationsHandler) view(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if err := h.Inbox.MarkViewed(r.Context(), uid, id); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
