package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hiroki-koketsu/todo-service/internal/model"
	"github.com/hiroki-koketsu/todo-service/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/hiroki-koketsu/todo-service/internal/service")

// TodoService implements the todo use cases. Each call runs in its own unit of work.
type TodoService struct {
	uow    repository.UnitOfWork
	logger *slog.Logger
}

// NewTodoService creates a new TodoService.
func NewTodoService(uow repository.UnitOfWork, logger *slog.Logger) *TodoService {
	return &TodoService{
		uow:    uow,
		logger: logger,
	}
}

// Create validates the request and stores a new todo.
func (s *TodoService) Create(ctx context.Context, req model.CreateTodoRequest) (model.TodoResponse, error) {
	ctx, span := tracer.Start(ctx, "TodoService.Create")
	defer span.End()

	s.logger.InfoContext(ctx, "creating todo", slog.String("title", req.Title))

	todo, err := model.NewTodo(req.Title, req.Description)
	if err != nil {
		return model.TodoResponse{}, s.fail(span, "create todo", err)
	}

	err = s.uow.Do(ctx, func(ctx context.Context, repo repository.TodoRepository) error {
		return repo.Add(ctx, todo)
	})
	if err != nil {
		return model.TodoResponse{}, s.fail(span, "create todo", err)
	}

	span.SetAttributes(attribute.String("todo.id", todo.ID().String()))
	s.logger.InfoContext(ctx, "todo created", slog.String("id", todo.ID().String()))
	return model.NewTodoResponse(todo), nil
}

// Get returns the todo with the given id.
func (s *TodoService) Get(ctx context.Context, id uuid.UUID) (model.TodoResponse, error) {
	ctx, span := startSpan(ctx, "TodoService.Get", id)
	defer span.End()

	s.logger.DebugContext(ctx, "fetching todo", slog.String("id", id.String()))

	var todo model.Todo
	err := s.uow.Do(ctx, func(ctx context.Context, repo repository.TodoRepository) error {
		var err error
		todo, err = s.load(ctx, repo, id)
		return err
	})
	if err != nil {
		return model.TodoResponse{}, s.fail(span, "get todo", err)
	}
	return model.NewTodoResponse(todo), nil
}

// List returns every todo, most recently created first.
func (s *TodoService) List(ctx context.Context) ([]model.TodoResponse, error) {
	ctx, span := tracer.Start(ctx, "TodoService.List")
	defer span.End()

	s.logger.DebugContext(ctx, "fetching all todos")

	var todos []model.Todo
	err := s.uow.Do(ctx, func(ctx context.Context, repo repository.TodoRepository) error {
		var err error
		todos, err = repo.ListAll(ctx)
		return err
	})
	if err != nil {
		return nil, s.fail(span, "list todos", err)
	}

	out := make([]model.TodoResponse, len(todos))
	for i, todo := range todos {
		out[i] = model.NewTodoResponse(todo)
	}

	span.SetAttributes(attribute.Int("todo.count", len(out)))
	s.logger.InfoContext(ctx, "todos listed", slog.Int("count", len(out)))
	return out, nil
}

// Update changes the title and/or description of an existing todo.
func (s *TodoService) Update(ctx context.Context, id uuid.UUID, req model.UpdateTodoRequest) (model.TodoResponse, error) {
	ctx, span := startSpan(ctx, "TodoService.Update", id)
	defer span.End()

	s.logger.InfoContext(ctx, "updating todo", slog.String("id", id.String()))

	var updated model.Todo
	err := s.uow.Do(ctx, func(ctx context.Context, repo repository.TodoRepository) error {
		todo, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		updated, err = todo.Update(req.Title, req.Description)
		if err != nil {
			return err
		}
		return repo.Update(ctx, updated)
	})
	if err != nil {
		return model.TodoResponse{}, s.fail(span, "update todo", err)
	}

	s.logger.InfoContext(ctx, "todo updated", slog.String("id", id.String()))
	return model.NewTodoResponse(updated), nil
}

// Complete marks an existing todo as completed.
func (s *TodoService) Complete(ctx context.Context, id uuid.UUID) (model.TodoResponse, error) {
	ctx, span := startSpan(ctx, "TodoService.Complete", id)
	defer span.End()

	s.logger.InfoContext(ctx, "completing todo", slog.String("id", id.String()))

	var completed model.Todo
	err := s.uow.Do(ctx, func(ctx context.Context, repo repository.TodoRepository) error {
		todo, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		completed = todo.Complete()
		return repo.Update(ctx, completed)
	})
	if err != nil {
		return model.TodoResponse{}, s.fail(span, "complete todo", err)
	}

	s.logger.InfoContext(ctx, "todo completed", slog.String("id", id.String()))
	return model.NewTodoResponse(completed), nil
}

// Delete removes an existing todo.
func (s *TodoService) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := startSpan(ctx, "TodoService.Delete", id)
	defer span.End()

	s.logger.InfoContext(ctx, "deleting todo", slog.String("id", id.String()))

	err := s.uow.Do(ctx, func(ctx context.Context, repo repository.TodoRepository) error {
		// Checked first so that a missing id is reported the same way for every operation.
		if _, err := s.load(ctx, repo, id); err != nil {
			return err
		}
		return repo.Delete(ctx, id)
	})
	if err != nil {
		return s.fail(span, "delete todo", err)
	}

	s.logger.InfoContext(ctx, "todo deleted", slog.String("id", id.String()))
	return nil
}

// load fetches a todo and turns absence into a NotFoundError.
func (s *TodoService) load(ctx context.Context, repo repository.TodoRepository, id uuid.UUID) (model.Todo, error) {
	todo, ok, err := repo.GetByID(ctx, id)
	if err != nil {
		return model.Todo{}, err
	}
	if !ok {
		s.logger.WarnContext(ctx, "todo not found", slog.String("id", id.String()))
		return model.Todo{}, &model.NotFoundError{ID: id}
	}
	return todo, nil
}

// fail annotates span with the error kind. Domain errors are returned as is,
// anything else is recorded on the span and wrapped with op.
func (s *TodoService) fail(span trace.Span, op string, err error) error {
	if model.IsValidationError(err) {
		span.SetAttributes(attribute.String("todo.error", "validation"))
		return err
	}
	if errors.Is(err, model.ErrTodoNotFound) {
		span.SetAttributes(attribute.String("todo.error", "not_found"))
		return err
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return fmt.Errorf("%s: %w", op, err)
}

func startSpan(ctx context.Context, name string, id uuid.UUID) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("todo.id", id.String())))
}
