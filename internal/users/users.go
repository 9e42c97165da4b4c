// Package users stores customer and admin accounts. Credentials live in the
// upstream auth gateway; this package only keeps profile data.
package users

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-commerce-backend/internal/apperr"
	"github.com/ariefcatur/go-commerce-backend/internal/page"
	"github.com/ariefcatur/go-commerce-backend/internal/postgres"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var ErrNotFound = errors.New("user not found")

type User struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	FCMToken  string    `json:"fcmToken,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateInput struct {
	FullName string `json:"fullName" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Role     string `json:"role,omitempty" validate:"omitempty,oneof=user admin"`
	FCMToken string `json:"fcmToken,omitempty"`
}

type UpdateInput struct {
	FullName *string `json:"fullName,omitempty" validate:"omitempty,max=255"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	Role     *string `json:"role,omitempty" validate:"omitempty,oneof=user admin"`
	FCMToken *string `json:"fcmToken,omitempty"`
}

// Filter matches name and email by case-insensitive substring.
type Filter struct {
	FullName string
	Email    string
	Role     string
}

type Repo struct{ DB *pgxpool.Pool }

const columns = `id, full_name, email, role, fcm_token, created_at, updated_at`

func scan(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.Role, &u.FCMToken, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) Create(ctx context.Context, u *User) error {
	return r.DB.QueryRow(ctx, `
		INSERT INTO users(id, full_name, email, role, fcm_token) VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		u.ID, u.FullName, u.Email, u.Role, u.FCMToken,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (r *Repo) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return scan(r.DB.QueryRow(ctx, `SELECT `+columns+` FROM users WHERE id=$1`, id))
}

func (r *Repo) Update(ctx context.Context, u *User) error {
	err := r.DB.QueryRow(ctx, `
		UPDATE users SET full_name=$2, email=$3, role=$4, fcm_token=$5, updated_at=now()
		WHERE id=$1 RETURNING updated_at`,
		u.ID, u.FullName, u.Email, u.Role, u.FCMToken,
	).Scan(&u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *Repo) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) List(ctx context.Context, f Filter, p page.Params) ([]User, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.FullName != "" {
		add("full_name ILIKE '%%' || $%d || '%%'", f.FullName)
	}
	if f.Email != "" {
		add("email ILIKE '%%' || $%d || '%%'", f.Email)
	}
	if f.Role != "" {
		add("role = $%d", f.Role)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT count(*) FROM users`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, p.Limit, p.Offset())
	order := p.OrderBy(map[string]string{"createdAt": "created_at", "fullName": "full_name", "email": "email"}, "created_at DESC")
	rows, err := r.DB.Query(ctx, fmt.Sprintf(`SELECT %s FROM users%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		columns, clause, order, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *u)
	}
	return out, total, rows.Err()
}

// Admins returns every admin account, used for operational alerts.
func (r *Repo) Admins(ctx context.Context) ([]User, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+columns+` FROM users WHERE role=$1`, RoleAdmin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

type Service struct{ Repo *Repo }

func storeErr(err error, msg string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("User not found")
	case postgres.IsUniqueViolation(err, "users_email_key"):
		return apperr.BadRequest("Email already taken")
	}
	return apperr.Wrap(http.StatusInternalServerError, msg, err)
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*User, error) {
	u := &User{
		ID:       uuid.New(),
		FullName: strings.TrimSpace(in.FullName),
		Email:    strings.ToLower(strings.TrimSpace(in.Email)),
		Role:     in.Role,
		FCMToken: in.FCMToken,
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if err := s.Repo.Create(ctx, u); err != nil {
		return nil, storeErr(err, "Failed to create user")
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Failed to load user")
	}
	return u, nil
}

func (s *Service) Query(ctx context.Context, f Filter, p page.Params) (page.Result[User], error) {
	p = p.Normalize()
	items, total, err := s.Repo.List(ctx, f, p)
	if err != nil {
		return page.Result[User]{}, storeErr(err, "Failed to query users")
	}
	return page.NewResult(items, p, total), nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*User, error) {
	u, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Failed to load user")
	}
	if in.FullName != nil {
		u.FullName = strings.TrimSpace(*in.FullName)
	}
	if in.Email != nil {
		u.Email = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.Role != nil {
		u.Role = *in.Role
	}
	if in.FCMToken != nil {
		u.FCMToken = *in.FCMToken
	}
	if err := s.Repo.Update(ctx, u); err != nil {
		return nil, storeErr(err, "Failed to update user")
	}
	return u, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.Repo.Delete(ctx, id); err != nil {
		return storeErr(err, "Failed to delete user")
	}
	return nil
}
