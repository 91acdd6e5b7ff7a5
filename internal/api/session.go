package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/hint-tutor/internal/hint"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// HintService is the session lifecycle consumed by SessionHandler.
type HintService interface {
	Begin(ctx context.Context, question string) (string, string, error)
	Advance(ctx context.Context, id, attempt string) (string, bool, error)
	Resolve(ctx context.Context, id string) (string, error)
	Inspect(ctx context.Context, id string) (string, string, error)
}

// StartRequest is the body of POST /start.
type StartRequest struct {
	Question string `json:"question" validate:"required,notblank"`
}

// StartResponse is returned by POST /start.
type StartResponse struct {
	SessionID string `json:"sessionId"`
	Hint      string `json:"hint"`
}

// NextRequest is the body of POST /session/{id}/next.
type NextRequest struct {
	UserAttempt string `json:"userAttempt"`
}

// NextResponse is returned by POST /session/{id}/next.
type NextResponse struct {
	Hint string `json:"hint"`
	Done bool   `json:"done"`
}

// SessionResponse is returned by GET /session/{id}.
type SessionResponse struct {
	Question string `json:"question"`
	LastHint string `json:"lastHint"`
}

// SolutionResponse is returned by GET /session/{id}/solution.
type SolutionResponse struct {
	Solution string `json:"solution"`
}

// Error messages returned to clients. Upstream details are only logged.
const (
	msgInvalidQuestion = "Missing or invalid 'question' in body"
	msgInvalidBody     = "Invalid request body"
	msgBodyTooLarge    = "Request body too large"
	msgNotFound        = "Session not found"
	msgTimeout         = "Hint generation timed out"
	msgInternal        = "Internal server error"
)

// SessionHandler serves the hint session endpoints.
type SessionHandler struct {
	svc          HintService
	validate     *validator.Validate
	maxBodyBytes int64
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(svc HintService) *SessionHandler {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", notBlank)
	return &SessionHandler{
		svc:          svc,
		validate:     v,
		maxBodyBytes: defaultMaxRequestBodySize,
	}
}

// RegisterRoutes registers the session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/start", h.Start)
	r.Get("/session/{id}", h.Get)
	r.Post("/session/{id}/next", h.Next)
	r.Get("/session/{id}/solution", h.Solution)
}

// Start begins a new session and returns the first hint.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := decodeJSON(w, r, h.validate, h.maxBodyBytes, &req); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			Error(w, http.StatusBadRequest, msgBodyTooLarge)
			return
		}
		Error(w, http.StatusBadRequest, msgInvalidQuestion)
		return
	}

	id, first, err := h.svc.Begin(r.Context(), req.Question)
	if err != nil {
		h.writeServiceError(w, r, "start", err)
		return
	}

	JSON(w, http.StatusOK, StartResponse{SessionID: id, Hint: first})
}

// Get returns the question and most recent transcript entry of a session.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	question, last, err := h.svc.Inspect(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "get", err)
		return
	}

	JSON(w, http.StatusOK, SessionResponse{Question: question, LastHint: last})
}

// Next records the user's attempt and returns the next hint.
// An absent body or attempt is accepted.
func (h *SessionHandler) Next(w http.ResponseWriter, r *http.Request) {
	var req NextRequest
	if err := decodeJSON(w, r, h.validate, h.maxBodyBytes, &req); err != nil && !errors.Is(err, errEmptyBody) {
		if errors.Is(err, errBodyTooLarge) {
			Error(w, http.StatusBadRequest, msgBodyTooLarge)
			return
		}
		Error(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	next, done, err := h.svc.Advance(r.Context(), chi.URLParam(r, "id"), req.UserAttempt)
	if err != nil {
		h.writeServiceError(w, r, "next", err)
		return
	}

	JSON(w, http.StatusOK, NextResponse{Hint: next, Done: done})
}

// Solution returns the full solution and ends the session.
func (h *SessionHandler) Solution(w http.ResponseWriter, r *http.Request) {
	solution, err := h.svc.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "solution", err)
		return
	}

	JSON(w, http.StatusOK, SolutionResponse{Solution: solution})
}

// writeServiceError maps a service error onto a status code and generic message.
func (h *SessionHandler) writeServiceError(w http.ResponseWriter, r *http.Request, route string, err error) {
	kind := hint.KindOf(err)
	status, msg := statusFor(kind)

	attrs := []any{
		"route", route,
		"kind", kind,
		"error", err,
		"request_id", chiMiddleware.GetReqID(r.Context()),
	}
	if id := chi.URLParam(r, "id"); id != "" {
		attrs = append(attrs, "session_id", id)
	}
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", attrs...)
	} else {
		slog.Debug("Request rejected", attrs...)
	}

	Error(w, status, msg)
}

func statusFor(kind hint.Kind) (int, string) {
	switch kind {
	case hint.KindValidation:
		return http.StatusBadRequest, msgInvalidQuestion
	case hint.KindNotFound:
		return http.StatusNotFound, msgNotFound
	case hint.KindTimeout:
		return http.StatusGatewayTimeout, msgTimeout
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}
