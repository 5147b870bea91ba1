package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

const (
	UserHeader    = "X-User-Id"
	SessionHeader = "X-Session-Id"
	SessionCookie = "session_id"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

var errBadBody = errors.New("invalid body")

// Decode reads a JSON body into dst and runs struct validation on it.
func Decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errBadBody
	}
	if err := validate.Struct(dst); err != nil {
		return apperr.Wrap(apperr.CodeValidation, err, "invalid request")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func StatusFor(err error) int {
	if errors.Is(err, errBadBody) {
		return http.StatusBadRequest
	}
	switch apperr.CodeOf(err) {
	case apperr.CodeValidation:
		return http.StatusUnprocessableEntity
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeStateConflict:
		return http.StatusConflict
	case apperr.CodeDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func WriteError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed", "err", err)
		msg = "internal error"
	}
	WriteJSON(w, status, map[string]string{"error": msg})
}

// IDParam parses a positive int64 chi URL parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

// UserID returns the authenticated user forwarded by the edge, if any.
func UserID(r *http.Request) *int64 {
	raw := r.Header.Get(UserHeader)
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

func SessionID(r *http.Request) string {
	if v := r.Header.Get(SessionHeader); v != "" {
		return v
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func SetSessionID(w http.ResponseWriter, id string) {
	w.Header().Set(SessionHeader, id)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
