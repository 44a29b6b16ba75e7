package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hiroki-koketsu/todo-service/internal/model"
	"github.com/hiroki-koketsu/todo-service/internal/service"
	"github.com/hiroki-koketsu/todo-service/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/hiroki-koketsu/todo-service/internal/handler")

const (
	routeTodos        = "/api/v1/todos"
	routeTodo         = "/api/v1/todos/{id}"
	routeTodoComplete = "/api/v1/todos/{id}/complete"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TodoHandler handles HTTP requests for todos.
type TodoHandler struct {
	svc      *service.TodoService
	store    Pinger
	validate *validator.Validate
	logger   *slog.Logger
	metrics  *telemetry.Metrics
}

// NewTodoHandler creates a new TodoHandler.
func NewTodoHandler(svc *service.TodoService, store Pinger, logger *slog.Logger, metrics *telemetry.Metrics) *TodoHandler {
	return &TodoHandler{
		svc:      svc,
		store:    store,
		validate: newValidator(),
		logger:   logger,
		metrics:  metrics,
	}
}

// Routes returns the chi router with todo routes.
func (h *TodoHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.GetByID)
	r.Patch("/{id}", h.Update)
	r.Patch("/{id}/complete", h.Complete)
	r.Delete("/{id}", h.Delete)

	return r
}

// List returns all todos.
func (h *TodoHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "TodoHandler.List")
	defer span.End()

	todos, err := h.svc.List(ctx)
	if err != nil {
		h.fail(ctx, w, r.Method, routeTodos, err, start)
		return
	}

	span.SetAttributes(attribute.Int("todo.count", len(todos)))

	h.respondJSON(w, http.StatusOK, todos)
	h.metrics.Record(ctx, r.Method, routeTodos, http.StatusOK, start)
}

// Create adds a new todo.
func (h *TodoHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "TodoHandler.Create")
	defer span.End()

	var req model.CreateTodoRequest
	if !h.decode(ctx, w, r, routeTodos, &req, start) {
		return
	}

	todo, err := h.svc.Create(ctx, req)
	if err != nil {
		h.fail(ctx, w, r.Method, routeTodos, err, start)
		return
	}

	span.SetAttributes(attribute.String("todo.id", todo.ID.String()))

	h.respondJSON(w, http.StatusCreated, todo)
	h.metrics.Record(ctx, r.Method, routeTodos, http.StatusCreated, start)
}

// GetByID returns a todo by ID.
func (h *TodoHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	ctx, span, id, ok := h.begin(w, r, "TodoHandler.GetByID", routeTodo)
	if !ok {
		return
	}
	defer span.End()
	start := time.Now()

	todo, err := h.svc.Get(ctx, id)
	if err != nil {
		h.fail(ctx, w, r.Method, routeTodo, err, start)
		return
	}

	h.respondJSON(w, http.StatusOK, todo)
	h.metrics.Record(ctx, r.Method, routeTodo, http.StatusOK, start)
}

// Update modifies the title and/or description of a todo.
func (h *TodoHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, span, id, ok := h.begin(w, r, "TodoHandler.Update", routeTodo)
	if !ok {
		return
	}
	defer span.End()
	start := time.Now()

	var req model.UpdateTodoRequest
	if !h.decode(ctx, w, r, routeTodo, &req, start) {
		return
	}

	todo, err := h.svc.Update(ctx, id, req)
	if err != nil {
		h.fail(ctx, w, r.Method, routeTodo, err, start)
		return
	}

	h.respondJSON(w, http.StatusOK, todo)
	h.metrics.Record(ctx, r.Method, routeTodo, http.StatusOK, start)
}

// Complete marks a todo as completed.
func (h *TodoHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ctx, span, id, ok := h.begin(w, r, "TodoHandler.Complete", routeTodoComplete)
	if !ok {
		return
	}
	defer span.End()
	start := time.Now()

	todo, err := h.svc.Complete(ctx, id)
	if err != nil {
		h.fail(ctx, w, r.Method, routeTodoComplete, err, start)
		return
	}

	h.respondJSON(w, http.StatusOK, todo)
	h.metrics.Record(ctx, r.Method, routeTodoComplete, http.StatusOK, start)
}

// Delete removes a todo.
func (h *TodoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, span, id, ok := h.begin(w, r, "TodoHandler.Delete", routeTodo)
	if !ok {
		return
	}
	defer span.End()
	start := time.Now()

	if err := h.svc.Delete(ctx, id); err != nil {
		h.fail(ctx, w, r.Method, routeTodo, err, start)
		return
	}

	w.WriteHeader(http.StatusNoContent)
	h.metrics.Record(ctx, r.Method, routeTodo, http.StatusNoContent, start)
}

// Health reports whether the service can reach its store.
func (h *TodoHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.ErrorContext(ctx, "health check failed", slog.Any("error", err))
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// begin opens the handler span and parses the {id} path parameter. When the
// id is malformed it answers 422 itself and returns ok == false.
func (h *TodoHandler) begin(w http.ResponseWriter, r *http.Request, name, route string) (context.Context, trace.Span, uuid.UUID, bool) {
	start := time.Now()
	raw := chi.URLParam(r, "id")

	ctx, span := tracer.Start(r.Context(), name,
		trace.WithAttributes(attribute.String("todo.id", raw)),
	)

	id, err := uuid.Parse(raw)
	if err != nil {
		defer span.End()
		h.logger.WarnContext(ctx, "malformed todo id", slog.String("id", raw))
		h.fail(ctx, w, r.Method, route, model.ValidationErrors{{
			Code:    model.CodeInvalidID,
			Field:   "id",
			Message: "id must be a valid UUID",
		}}, start)
		return ctx, span, uuid.Nil, false
	}
	return ctx, span, id, true
}

// decode reads a JSON body into dst and validates it. On failure it writes the
// response itself and returns false.
func (h *TodoHandler) decode(ctx context.Context, w http.ResponseWriter, r *http.Request, route string, dst any, start time.Time) bool {
	dec := json.NewDecoder(r.Body)
	err := dec.Decode(dst)
	if err == nil && dec.Decode(&struct{}{}) != io.EOF {
		err = errors.New("unexpected data after JSON body")
	}

	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		h.fail(ctx, w, r.Method, route, model.ValidationErrors{{
			Code:    model.CodeInvalid,
			Field:   field,
			Message: fmt.Sprintf("%s must be a JSON %s", field, jsonKind(typeErr.Type)),
		}}, start)
		return false
	case err != nil:
		h.logger.WarnContext(ctx, "invalid request body", slog.Any("error", err))
		h.respondError(w, http.StatusBadRequest, "invalid request body", nil)
		h.metrics.Record(ctx, r.Method, route, http.StatusBadRequest, start)
		return false
	}
	if err := h.validate.StructCtx(ctx, dst); err != nil {
		h.fail(ctx, w, r.Method, route, translateValidation(err), start)
		return false
	}
	return true
}

// jsonKind names the JSON type a Go type decodes from.
func jsonKind(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	default:
		return "object"
	}
}

// fail maps err to a status code and error body.
func (h *TodoHandler) fail(ctx context.Context, w http.ResponseWriter, method, route string, err error, start time.Time) {
	var status int

	var ve *model.ValidationError
	var ves model.ValidationErrors
	switch {
	case errors.As(err, &ves):
		status = http.StatusUnprocessableEntity
		h.logger.WarnContext(ctx, "validation failed", slog.Any("error", err))
		h.respondError(w, status, ves.Error(), ves)
	case errors.As(err, &ve):
		status = http.StatusUnprocessableEntity
		h.logger.WarnContext(ctx, "validation failed", slog.Any("error", err))
		h.respondError(w, status, ve.Error(), model.ValidationErrors{ve})
	case errors.Is(err, model.ErrTodoNotFound):
		status = http.StatusNotFound
		h.respondError(w, status, err.Error(), nil)
	default:
		status = http.StatusInternalServerError
		h.logger.ErrorContext(ctx, "request failed", slog.String("route", route), slog.Any("error", err))
		h.respondError(w, status, "internal server error", nil)
	}

	h.metrics.Record(ctx, method, route, status, start)
}

type errorDetail struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error   string        `json:"error"`
	Details []errorDetail `json:"details,omitempty"`
}

func (h *TodoHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func (h *TodoHandler) respondError(w http.ResponseWriter, status int, message string, details model.ValidationErrors) {
	resp := errorResponse{Error: message}
	for _, d := range details {
		resp.Details = append(resp.Details, errorDetail{Field: d.Field, Code: d.Code, Message: d.Message})
	}
	h.respondJSON(w, status, resp)
}
