// Package inbox keeps the in-app notification feed shown to each user.
package inbox

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-commerce-backend/internal/apperr"
	"github.com/ariefcatur/go-commerce-backend/internal/page"
)

const (
	TypeOrder   = "order"
	TypePayment = "payment"
	TypeSystem  = "system"
)

var ErrNotFound = errors.New("notification not found")

type Notification struct {
	ID         uuid.UUID `json:"id"`
	ReceiverID uuid.UUID `json:"receiverId"`
	Message    string    `json:"message"`
	Type       string    `json:"type"`
	LinkID     string    `json:"linkId,omitempty"`
	ViewStatus bool      `json:"viewStatus"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Create(ctx context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Type == "" {
		n.Type = TypeSystem
	}
	return r.DB.QueryRow(ctx, `
		INSERT INTO notifications(id, receiver_id, message, type, link_id)
		VALUES ($1,$2,$3,$4,$5) RETURNING view_status, created_at`,
		n.ID, n.ReceiverID, n.Message, n.Type, n.LinkID,
	).Scan(&n.ViewStatus, &n.CreatedAt)
}

// ListFor returns the receiver's feed newest first, plus the unread count.
func (r *Repo) ListFor(ctx context.Context, receiver uuid.UUID, p page.Params) (page.Result[Notification], int, error) {
	p = p.Normalize()
	var total, unread int
	if err := r.DB.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE NOT view_status)
		FROM notifications WHERE receiver_id=$1`, receiver).Scan(&total, &unread); err != nil {
		return page.Result[Notification]{}, 0, err
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id, receiver_id, message, type, link_id, view_status, created_at
		FROM notifications WHERE receiver_id=$1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, receiver, p.Limit, p.Offset())
	if err != nil {
		return page.Result[Notification]{}, 0, err
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.ReceiverID, &n.Message, &n.Type, &n.LinkID, &n.ViewStatus, &n.CreatedAt); err != nil {
			return page.Result[Notification]{}, 0, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return page.Result[Notification]{}, 0, err
	}
	return page.NewResult(out, p, total), unread, nil
}

// MarkViewed flags one of the receiver's notifications as read.
func (r *Repo) MarkViewed(ctx context.Context, receiver, id uuid.UUID) error {
	ct, err := r.DB.Exec(ctx, `UPDATE notifications SET view_status=true WHERE id=$1 AND receiver_id=$2`, id, receiver)
	if err != nil {
		return apperr.Wrap(http.StatusInternalServerError, "Failed to update notification", err)
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound("Notification not found")
	}
	return nil
}
