package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/ParcelTrack/internal/apperr"
	"github.com/BearBump/ParcelTrack/internal/validation"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Data    any                 `json:"data,omitempty"`
	Errors  []apperr.FieldError `json:"errors,omitempty"`
}

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindDependency:
		return http.StatusServiceUnavailable
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// fail maps err onto the failure envelope. Internal details never leave the
// process.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	ae, isApp := apperr.As(err)
	if !isApp || ae.Kind == apperr.KindInternal {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Message: "Internal Server Error"})
		return
	}
	status := statusFor(ae.Kind)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, envelope{Message: ae.Message, Errors: ae.Fields})
}

// decode reads a JSON body into dst and runs its validate tags.
func decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apperr.Validation("Invalid request body")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperr.Validation("Invalid JSON body")
	}
	return validation.Struct(dst)
}

type pageQuery struct {
	page, limit int
}

func parsePaging(r *http.Request) (pageQuery, error) {
	var out pageQuery
	var err error
	if out.page, err = intParam(r, "page"); err != nil {
		return out, err
	}
	if out.limit, err = intParam(r, "limit"); err != nil {
		return out, err
	}
	return out, nil
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperr.Validation("", apperr.FieldError{Field: name, Message: name + " must be a positive integer"})
	}
	return v, nil
}

// timeParam accepts RFC 3339 or a bare date. A bare end date covers the whole day.
func timeParam(r *http.Request, name string, endOfDay bool) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, apperr.Validation("", apperr.FieldError{Field: name, Message: name + " must be a date (YYYY-MM-DD or RFC 3339)"})
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Millisecond)
	}
	return &t, nil
}

func dateRange(r *http.Request) (*time.Time, *time.Time, error) {
	from, err := timeParam(r, "startDate", false)
	if err != nil {
		return nil, nil, err
	}
	to, err := timeParam(r, "endDate", true)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}
