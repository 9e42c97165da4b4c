package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-commerce-backend/internal/apperr"
)

const HeaderUserID = "X-User-Id"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError serializes err as {code, message}. Internal details stay in the log.
func writeError(w http.ResponseWriter, log *logrus.Entry, err error) {
	status := apperr.StatusOf(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
	}
	writeJSON(w, status, errorBody{Code: status, Message: apperr.MessageOf(err)})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}
	fe := verrs[0]
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%q is required", field)
	case "oneof":
		return fmt.Sprintf("%q must be one of [%s]", field, fe.Param())
	case "min", "max", "len":
		return fmt.Sprintf("%q must satisfy %s=%s", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%q is invalid", field)
}

// decode reads a JSON body into v and validates it.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Wrap(http.StatusBadRequest, "Invalid JSON body", err)
	}
	if err := validate.Struct(v); err != nil {
		return apperr.Wrap(http.StatusBadRequest, validationMessage(err), err)
	}
	return nil
}

// userID returns the caller attached by Auth.RequireUser.
func userID(r *http.Request) (uuid.UUID, error) {
	c, err := caller(r)
	return c.ID, err
}

func caller(r *http.Request) (Caller, error) {
	c, ok := callerFrom(r.Context())
	if !ok {
		return Caller{}, errUnauthenticated()
	}
	return c, nil
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.BadRequest("Invalid " + name)
	}
	return id, nil
}

func errBadParam(name string) error {
	return apperr.BadRequest("Invalid " + name)
}
