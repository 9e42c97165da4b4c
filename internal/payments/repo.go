package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("payment not found")

type Store interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetByIntent(ctx context.Context, intentID string) (*Payment, error)
	SetStatus(ctx context.Context, intentID, status string) error
	SaveDeadLetter(ctx context.Context, dl *DeadLetter) error
	PendingDeadLetters(ctx context.Context, limit int) ([]DeadLetter, error)
	ResolveDeadLetter(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordDeadLetterAttempt(ctx context.Context, id uuid.UUID, lastErr string) error
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) CreatePayment(ctx context.Context, p *Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Metadata == nil {
		p.Metadata = map[string]string{}
	}
	return r.DB.QueryRow(ctx, `
		INSERT INTO payments(id, user_id, order_id, amount, currency, method, status, payment_intent_id, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.OrderID, p.Amount, p.Currency, p.Method, p.Status, p.PaymentIntentID, p.Metadata,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *Repo) GetByIntent(ctx context.Context, intentID string) (*Payment, error) {
	var p Payment
	err := r.DB.QueryRow(ctx, `
		SELECT id, user_id, order_id, amount, currency, method, status, payment_intent_id, metadata, created_at, updated_at
		FROM payments WHERE payment_intent_id=$1`, intentID,
	).Scan(&p.ID, &p.UserID, &p.OrderID, &p.Amount, &p.Currency, &p.Method, &p.Status,
		&p.PaymentIntentID, &p.Metadata, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SetStatus is a no-op for intents created outside this service.
// SetStatus moves the payment row to status when CanReplace allows it; stale
// outcomes leave the row as is.
func (r *Repo) SetStatus(ctx context.Context, intentID, status string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE payments SET status=$2, updated_at=now()
		WHERE payment_intent_id=$1 AND status = ANY($3)`,
		intentID, status, replaces[status])
	return err
}

// SaveDeadLetter stores an unmatched event. A redelivered event only bumps
// its attempt counter.
func (r *Repo) SaveDeadLetter(ctx context.Context, dl *DeadLetter) error {
	if dl.ID == uuid.Nil {
		dl.ID = uuid.New()
	}
	return r.DB.QueryRow(ctx, `
		INSERT INTO webhook_dead_letters(id, event_id, event_type, payment_intent_id, payload, last_error)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (event_id) DO UPDATE
			SET attempts = webhook_dead_letters.attempts + 1, last_error = EXCLUDED.last_error
		RETURNING id, attempts, created_at`,
		dl.ID, dl.EventID, dl.EventType, dl.PaymentIntentID, dl.Payload, dl.LastError,
	).Scan(&dl.ID, &dl.Attempts, &dl.CreatedAt)
}

func (r *Repo) PendingDeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, event_id, event_type, payment_intent_id, payload, attempts, last_error, created_at
		FROM webhook_dead_letters
		WHERE resolved_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DeadLetter
	for rows.Next() {
		var dl DeadLetter
		if err := rows.Scan(&dl.ID, &dl.EventID, &dl.EventType, &dl.PaymentIntentID, &dl.Payload,
			&dl.Attempts, &dl.LastError, &dl.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, dl)
	}
	return out, rows.Err()
}

func (r *Repo) ResolveDeadLetter(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.DB.Exec(ctx, `UPDATE webhook_dead_letters SET resolved_at=$2 WHERE id=$1`, id, at)
	return err
}

func (r *Repo) RecordDeadLetterAttempt(ctx context.Context, id uuid.UUID, lastErr string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE webhook_dead_letters SET attempts = attempts + 1, last_error=$2 WHERE id=$1`, id, lastErr)
	return err
}
