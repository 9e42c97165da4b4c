package httpx

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-commerce-backend/internal/apperr"
	"github.com/ariefcatur/go-commerce-backend/internal/users"
)

// Rights granted per role. Plain users act on their own records only.
const (
	RightGetUsers            = "getUsers"
	RightManageUsers         = "manageUsers"
	RightManageProducts      = "manageProducts"
	RightGetOrders           = "getOrders"
	RightManageOrders        = "manageOrders"
	RightManageNotifications = "manageNotifications"
	RightManageContent       = "manageContent"
	RightManageReports       = "manageReports"
)

var roleRights = map[string]map[string]bool{
	users.RoleUser: {},
	users.RoleAdmin: {
		RightGetUsers:            true,
		RightManageUsers:         true,
		RightManageProducts:      true,
		RightGetOrders:           true,
		RightManageOrders:        true,
		RightManageNotifications: true,
		RightManageContent:       true,
		RightManageReports:       true,
	},
}

// Caller is the authenticated user behind a request.
type Caller struct {
	ID   uuid.UUID
	Role string
}

func (c Caller) Can(right string) bool { return roleRights[c.Role][right] }

// Owns reports whether the caller may act on a record belonging to owner.
func (c Caller) Owns(owner uuid.UUID, right string) bool {
	return c.ID == owner || c.Can(right)
}

type callerKey struct{}

func callerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

type UserLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*users.User, error)
}

// Auth resolves the X-User-Id set by the auth gateway to a stored user and
// enforces role rights.
type Auth struct {
	Users UserLookup
	Log   *logrus.Entry
}

func errUnauthenticated() error { return apperr.Unauthorized("Please authenticate") }

func errForbidden() error { return apperr.Forbidden("Forbidden") }

// RequireUser rejects requests without a known caller with 401.
func (a *Auth) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get(HeaderUserID))
		if err != nil || a == nil || a.Users == nil {
			writeError(w, a.log(), errUnauthenticated())
			return
		}
		u, err := a.Users.Get(r.Context(), id)
		if err != nil {
			if apperr.StatusOf(err) == http.StatusNotFound {
				err = errUnauthenticated()
			}
			writeError(w, a.log(), err)
			return
		}
		ctx := context.WithValue(r.Context(), callerKey{}, Caller{ID: u.ID, Role: u.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require authenticates the caller and then checks right, answering 403 when
// the caller's role lacks it.
func (a *Auth) Require(right string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return a.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, _ := callerFrom(r.Context())
			if !c.Can(right) {
				writeError(w, a.log(), errForbidden())
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func (a *Auth) log() *logrus.Entry {
	if a == nil || a.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return a.Log
}
