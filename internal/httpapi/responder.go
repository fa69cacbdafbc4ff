package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"bk-go/internal/bk"
)

var (
	errBadRequestBody = errors.New("request body must be a JSON object")
	errRoomIDRequired = errors.New("room id is required")
	errRoomNumberReq  = errors.New("roomNumber is required")
)

// envelope is the shape of every API response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) ok(ctx context.Context, w http.ResponseWriter, data any) {
	r.writeJSON(ctx, w, http.StatusOK, envelope{Success: true, Data: data})
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil && err.Error() != "" {
		message = err.Error()
	}
	r.writeJSON(ctx, w, status, envelope{Success: false, Error: message})
}

// handleServiceError maps a service error to a status code. Storage failures
// never leak their cause to the client.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err, "error_kind", bk.ErrorKind(err))
		r.writeError(ctx, w, status, nil)
		return
	}
	r.writeError(ctx, w, status, err)
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, bk.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, bk.ErrAlreadyExists),
		errors.Is(err, bk.ErrDuplicateCheckIn),
		errors.Is(err, bk.ErrInvalidDate),
		errors.Is(err, bk.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, bk.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}
