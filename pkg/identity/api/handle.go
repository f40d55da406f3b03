package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	apperrors "github.com/tendant/user-permission/pkg/errors"
	"github.com/tendant/user-permission/pkg/identity"
	"github.com/tendant/user-permission/pkg/metrics"
)

const (
	opRegister   = "register"
	opLogin      = "login"
	opAssignRole = "assign_role"
	opGetUser    = "get_user"

	msgValidationFailed   = "Validation failed"
	msgInvalidCredentials = "Invalid email or password"
	msgUserNotFound       = "User not found"
	msgInternal           = "Internal server error"
)

// IdentityService is the part of identity.Service the handlers call.
type IdentityService interface {
	Register(ctx context.Context, params identity.RegisterParams) (identity.UserView, error)
	Authenticate(ctx context.Context, email, password string) (identity.UserView, bool, error)
	AssignRole(ctx context.Context, userID uuid.UUID, roleName string) error
	GetByID(ctx context.Context, id uuid.UUID) (identity.UserView, bool, error)
}

// OutcomeRecorder counts operation outcomes. *metrics.Metrics satisfies it.
type OutcomeRecorder interface {
	RecordOutcome(operation, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) RecordOutcome(string, string) {}

type Handle struct {
	service          IdentityService
	recorder         OutcomeRecorder
	doc              *openapi3.T
	loginMiddleware  []func(http.Handler) http.Handler
	signupMiddleware []func(http.Handler) http.Handler
}

type Option func(*Handle)

func WithOutcomeRecorder(recorder OutcomeRecorder) Option {
	return func(h *Handle) {
		if recorder != nil {
			h.recorder = recorder
		}
	}
}

// WithLoginMiddleware wraps POST /auth/login only.
func WithLoginMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(h *Handle) {
		h.loginMiddleware = append(h.loginMiddleware, mw...)
	}
}

// WithRegisterMiddleware wraps POST /users only.
func WithRegisterMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(h *Handle) {
		h.signupMiddleware = append(h.signupMiddleware, mw...)
	}
}

// NewHandle loads the embedded OpenAPI document and fails if it is invalid.
func NewHandle(ctx context.Context, service IdentityService, opts ...Option) (*Handle, error) {
	if service == nil {
		return nil, fmt.Errorf("identity service is required")
	}
	doc, err := LoadOpenAPI(ctx)
	if err != nil {
		return nil, err
	}
	h := &Handle{
		service:  service,
		recorder: noopRecorder{},
		doc:      doc,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Handle) RegisterRoutes(r chi.Router) {
	r.With(h.signupMiddleware...).Post("/users", h.Register)
	r.With(h.loginMiddleware...).Post("/auth/login", h.Login)
	r.Get("/users/{id}", h.GetUser)
	r.Post("/users/{id}/roles", h.AssignRole)
	r.Get("/openapi.json", h.OpenAPI)
}

// Handler returns a router serving every identity endpoint.
func (h *Handle) Handler() http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// Register handles POST /users
func (h *Handle) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, opRegister, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		h.validationFailed(w, r, opRegister, errs)
		return
	}

	view, err := h.service.Register(r.Context(), identity.RegisterParams{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.handleServiceError(w, r, opRegister, err)
		return
	}

	h.recorder.RecordOutcome(opRegister, metrics.OutcomeSuccess)
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+view.ID.String())
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, view)
}

// Login handles POST /auth/login
func (h *Handle) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, opLogin, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		h.validationFailed(w, r, opLogin, errs)
		return
	}

	view, ok, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.handleServiceError(w, r, opLogin, err)
		return
	}
	if !ok {
		h.recorder.RecordOutcome(opLogin, metrics.OutcomeUnauthorized)
		writeError(w, r, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}

	h.recorder.RecordOutcome(opLogin, metrics.OutcomeSuccess)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, view)
}

// AssignRole handles POST /users/{id}/roles
func (h *Handle) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.recorder.RecordOutcome(opAssignRole, metrics.OutcomeNotFound)
		writeError(w, r, http.StatusNotFound, msgUserNotFound)
		return
	}

	var req AssignRoleRequest
	if !h.decode(w, r, opAssignRole, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		h.validationFailed(w, r, opAssignRole, errs)
		return
	}

	if err := h.service.AssignRole(r.Context(), userID, req.RoleName); err != nil {
		h.handleServiceError(w, r, opAssignRole, err)
		return
	}

	h.recorder.RecordOutcome(opAssignRole, metrics.OutcomeSuccess)
	render.NoContent(w, r)
}

// GetUser handles GET /users/{id}
func (h *Handle) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.recorder.RecordOutcome(opGetUser, metrics.OutcomeNotFound)
		writeError(w, r, http.StatusNotFound, msgUserNotFound)
		return
	}

	view, ok, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, opGetUser, err)
		return
	}
	if !ok {
		h.recorder.RecordOutcome(opGetUser, metrics.OutcomeNotFound)
		writeError(w, r, http.StatusNotFound, msgUserNotFound)
		return
	}

	h.recorder.RecordOutcome(opGetUser, metrics.OutcomeSuccess)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, view)
}

// OpenAPI handles GET /openapi.json
func (h *Handle) OpenAPI(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, h.doc)
}

// decode reads the JSON body into dst. On failure it writes the 400 response
// and returns false.
func (h *Handle) decode(w http.ResponseWriter, r *http.Request, op string, dst interface{}) bool {
	err := render.DecodeJSON(r.Body, dst)
	if err == nil {
		return true
	}
	message := "Request body is not valid JSON"
	if errors.Is(err, io.EOF) {
		message = "Request body is required"
	}
	slog.Debug("Failed to decode request body", "operation", op, "error", err)
	h.validationFailed(w, r, op, []FieldError{{Field: "body", Message: message}})
	return false
}

func (h *Handle) validationFailed(w http.ResponseWriter, r *http.Request, op string, errs []FieldError) {
	h.recorder.RecordOutcome(op, metrics.OutcomeInvalid)
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Message: msgValidationFailed, Errors: errs})
}

// handleServiceError maps classified service failures to their status codes.
// Anything unclassified is logged and hidden behind a 500.
func (h *Handle) handleServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code == apperrors.ErrCodeInternal {
		slog.Error("Identity operation failed", "operation", op, "error", err)
		h.recorder.RecordOutcome(op, metrics.OutcomeError)
		writeError(w, r, http.StatusInternalServerError, msgInternal)
		return
	}

	switch appErr.Code {
	case apperrors.ErrCodeInvalidInput, apperrors.ErrCodeValidationFailed:
		h.validationFailed(w, r, op, []FieldError{{Field: appErr.Field, Message: appErr.Message}})
		return
	case apperrors.ErrCodeConflict:
		h.recorder.RecordOutcome(op, metrics.OutcomeConflict)
	case apperrors.ErrCodeNotFound:
		h.recorder.RecordOutcome(op, metrics.OutcomeNotFound)
	default:
		h.recorder.RecordOutcome(op, metrics.OutcomeError)
	}
	writeError(w, r, appErr.HTTPStatusCode(), appErr.Message)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Message: message})
}
