package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"bk-go/internal/bk"
)

type roomService interface {
	CreateRoom(ctx context.Context, id string) (bk.Room, error)
	RenameRoom(ctx context.Context, oldID, newID string) (bk.Room, error)
	DeleteRoom(ctx context.Context, id string) (bool, error)
	ListRooms(ctx context.Context) ([]bk.Room, error)
}

type sessionService interface {
	Today(ctx context.Context) (bk.Session, error)
	GetSession(ctx context.Context, date string) (bk.Session, error)
	AddCheckIn(ctx context.Context, date, room string) (bk.CheckInRecord, error)
	ListSessionsWithCheckIns(ctx context.Context) ([]bk.Session, error)
}

type roomRequest struct {
	ID string `json:"id"`
}

type checkInRequest struct {
	RoomNumber string `json:"roomNumber"`
}

// RoomHandler serves /api/rooms.
type RoomHandler struct {
	service   roomService
	responder responder
	logger    *slog.Logger
}

func NewRoomHandler(service roomService, logger *slog.Logger) *RoomHandler {
	base := defaultLogger(logger)
	return &RoomHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *RoomHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "RoomHandler", operation, attrs...)
}

func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.service.ListRooms(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, rooms)
}

func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode room request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errRoomIDRequired)
		return
	}

	room, err := h.service.CreateRoom(r.Context(), req.ID)
	if err != nil {
		h.log(r.Context(), "Create", "room_id", req.ID).InfoContext(r.Context(), "room creation rejected",
			"error", err, "error_kind", bk.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, room)
}

func (h *RoomHandler) Rename(w http.ResponseWriter, r *http.Request) {
	oldID := r.PathValue("id")

	var req roomRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		h.log(r.Context(), "Rename", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode room request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errRoomIDRequired)
		return
	}

	room, err := h.service.RenameRoom(r.Context(), oldID, req.ID)
	if err != nil {
		h.log(r.Context(), "Rename", "from", oldID, "to", req.ID).InfoContext(r.Context(), "room rename rejected",
			"error", err, "error_kind", bk.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, room)
}

func (h *RoomHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	deleted, err := h.service.DeleteRoom(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if !deleted {
		h.responder.writeError(r.Context(), w, http.StatusNotFound, fmt.Errorf("room %s: %w", id, bk.ErrNotFound))
		return
	}
	h.responder.ok(r.Context(), w, roomRequest{ID: id})
}

// SessionHandler serves /api/sessions.
type SessionHandler struct {
	service   sessionService
	responder responder
	logger    *slog.Logger
}

func NewSessionHandler(service sessionService, logger *slog.Logger) *SessionHandler {
	base := defaultLogger(logger)
	return &SessionHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *SessionHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "SessionHandler", operation, attrs...)
}

// List returns the sessions that have at least one check-in.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.ListSessionsWithCheckIns(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, sessions)
}

// Today returns the session for the current date, opening it if needed.
func (h *SessionHandler) Today(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Today(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, session)
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.GetSession(r.Context(), r.PathValue("date"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, session)
}

func (h *SessionHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")

	var req checkInRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		h.log(r.Context(), "CheckIn", "date", date, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode check-in request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if strings.TrimSpace(req.RoomNumber) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errRoomNumberReq)
		return
	}

	record, err := h.service.AddCheckIn(r.Context(), date, req.RoomNumber)
	if err != nil {
		h.log(r.Context(), "CheckIn", "date", date, "room", req.RoomNumber).InfoContext(r.Context(), "check-in rejected",
			"error", err, "error_kind", bk.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, record)
}

const maxBodyBytes = 1 << 16

func decodeJSON(body io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	return dec.Decode(v)
}
