package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-commerce-backend/internal/page"
	"github.com/ariefcatur/go-commerce-backend/internal/postgres"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// BuildFunc turns the locked product rows into the order to insert. Returning
// an error aborts the transaction before anything is written.
type BuildFunc func(products map[uuid.UUID]ProductSnapshot) (*Order, error)

// MutateFunc edits a locked order in place. restock returns every line item's
// quantity to its product within the same transaction.
type MutateFunc func(o *Order) (restock bool, err error)

type Store interface {
	CreateOrder(ctx context.Context, productIDs []uuid.UUID, build BuildFunc) (*Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	FindByPaymentIntent(ctx context.Context, intentID string) (*Order, error)
	ListOrders(ctx context.Context, f Filter, p page.Params) ([]Order, int, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, mutate MutateFunc) (*Order, error)
	SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) error
	MarkConfirmationSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, order_number, user_id, shipping_address, payment_method,
	subtotal, tax, shipping_cost, discount, total_amount, status, payment_status,
	COALESCE(payment_intent_id, ''), notes, cancel_reason, delivered_at, cancelled_at,
	confirmation_sent_at, created_at, updated_at`

var sortable = map[string]string{
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
	"totalAmount": "total_amount",
	"status":      "status",
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.ShippingAddress, &o.PaymentMethod,
		&o.Subtotal, &o.Tax, &o.ShippingCost, &o.Discount, &o.TotalAmount, &o.Status, &o.PaymentStatus,
		&o.PaymentIntentID, &o.Notes, &o.CancelReason, &o.DeliveredAt, &o.CancelledAt,
		&o.ConfirmationSentAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CreateOrder locks every referenced product (in id order, so concurrent
// checkouts cannot deadlock), lets build validate and price against those
// rows, then writes the order and decrements stock. Nothing is committed
// unless every step succeeds.
func (r *Repo) CreateOrder(ctx context.Context, productIDs []uuid.UUID, build BuildFunc) (*Order, error) {
	var out *Order
	err := postgres.WithRetry(ctx, r.DB, postgres.DefaultTxOptions(), func(tx pgx.Tx) error {
		products, err := lockProducts(ctx, tx, productIDs)
		if err != nil {
			return err
		}
		o, err := build(products)
		if err != nil {
			return err
		}

		if err := tx.QueryRow(ctx, `
			INSERT INTO orders(id, order_number, user_id, shipping_address, payment_method,
				subtotal, tax, shipping_cost, discount, total_amount, status, payment_status,
				payment_intent_id, notes)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			RETURNING created_at, updated_at`,
			o.ID, o.OrderNumber, o.UserID, o.ShippingAddress, o.PaymentMethod,
			o.Subtotal, o.Tax, o.ShippingCost, o.Discount, o.TotalAmount, o.Status, o.PaymentStatus,
			nullIfEmpty(o.PaymentIntentID), o.Notes,
		).Scan(&o.CreatedAt, &o.UpdatedAt); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i, it := range o.Items {
			if _, err := tx.Exec(ctx, `
				INSERT INTO order_items(order_id, position, product_id, name, price, quantity, image)
				VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				o.ID, i, it.ProductID, it.Name, it.Price, it.Quantity, it.Image); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		for _, it := range o.Items {
			ct, err := tx.Exec(ctx, `
				UPDATE products SET stock = stock - $2, updated_at = now()
				WHERE id = $1 AND stock >= $2`, it.ProductID, it.Quantity)
			if err != nil {
				return fmt.Errorf("decrement stock: %w", err)
			}
			if ct.RowsAffected() != 1 {
				return fmt.Errorf("%w for %s", ErrInsufficientStock, it.Name)
			}
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func lockProducts(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) (map[uuid.UUID]ProductSnapshot, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, name, price, stock, COALESCE(images->0->>'url', '')
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]ProductSnapshot, len(ids))
	for rows.Next() {
		var p ProductSnapshot
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Image); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r *Repo) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, r.DB, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repo) FindByPaymentIntent(ctx context.Context, intentID string) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_intent_id=$1`, intentID))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, r.DB, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repo) loadItems(ctx context.Context, q querier, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(orders))
	byID := make(map[uuid.UUID]*Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Items = []OrderItem{}
	}
	rows, err := q.Query(ctx, `
		SELECT order_id, product_id, name, price, quantity, image
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY order_id, position`, ids)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var orderID uuid.UUID
		var it OrderItem
		if err := rows.Scan(&orderID, &it.ProductID, &it.Name, &it.Price, &it.Quantity, &it.Image); err != nil {
			return err
		}
		if o := byID[orderID]; o != nil {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}

func (r *Repo) ListOrders(ctx context.Context, f Filter, p page.Params) ([]Order, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != nil {
		add("user_id = $%d", *f.UserID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.PaymentStatus != "" {
		add("payment_status = $%d", f.PaymentStatus)
	}
	if f.PaymentMethod != "" {
		add("payment_method = $%d", f.PaymentMethod)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT count(*) FROM orders`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	args = append(args, p.Limit, p.Offset())
	q := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		orderColumns, clause, p.OrderBy(sortable, "created_at DESC"), len(args)-1, len(args))
	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	var ptrs []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		ptrs = append(ptrs, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.loadItems(ctx, r.DB, ptrs); err != nil {
		return nil, 0, err
	}

	out := make([]Order, len(ptrs))
	for i, o := range ptrs {
		out[i] = *o
	}
	return out, total, nil
}

// UpdateOrder locks the order row, applies mutate and persists the result.
// Stock restoration, when requested, commits or rolls back with the order.
func (r *Repo) UpdateOrder(ctx context.Context, id uuid.UUID, mutate MutateFunc) (*Order, error) {
	var out *Order
	err := postgres.WithRetry(ctx, r.DB, postgres.DefaultTxOptions(), func(tx pgx.Tx) error {
		o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err := r.loadItems(ctx, tx, []*Order{o}); err != nil {
			return err
		}
		restock, err := mutate(o)
		if err != nil {
			return err
		}

		if err := tx.QueryRow(ctx, `
			UPDATE orders SET status=$2, payment_status=$3, payment_intent_id=$4, notes=$5,
				cancel_reason=$6, delivered_at=$7, cancelled_at=$8, updated_at=now()
			WHERE id=$1
			RETURNING updated_at`,
			o.ID, o.Status, o.PaymentStatus, nullIfEmpty(o.PaymentIntentID), o.Notes,
			o.CancelReason, o.DeliveredAt, o.CancelledAt,
		).Scan(&o.UpdatedAt); err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		if restock {
			for _, it := range o.Items {
				if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`,
					it.ProductID, it.Quantity); err != nil {
					return fmt.Errorf("restore stock: %w", err)
				}
			}
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET payment_intent_id=$2, updated_at=now() WHERE id=$1`, id, intentID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkConfirmationSent stamps the marker once; later calls leave the first stamp.
func (r *Repo) MarkConfirmationSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE orders SET confirmation_sent_at=$2
		WHERE id=$1 AND confirmation_sent_at IS NULL`, id, at)
	return err
}
