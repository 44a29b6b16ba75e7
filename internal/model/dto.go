package model

import (
	"time"

	"github.com/google/uuid"
)

// CreateTodoRequest represents the request body for creating a todo.
type CreateTodoRequest struct {
	Title       string  `json:"title" validate:"required"`
	Description *string `json:"description,omitempty"`
}

// UpdateTodoRequest represents the request body for updating a todo.
// At least one field must be present.
type UpdateTodoRequest struct {
	Title       *string `json:"title,omitempty" validate:"required_without=Description"`
	Description *string `json:"description,omitempty" validate:"required_without=Title"`
}

// TodoResponse is the external representation of a todo.
type TodoResponse struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewTodoResponse projects a todo into its response shape.
func NewTodoResponse(t Todo) TodoResponse {
	resp := TodoResponse{
		ID:        t.ID(),
		Title:     t.Title(),
		Completed: t.Completed(),
		CreatedAt: t.CreatedAt(),
		UpdatedAt: t.UpdatedAt(),
	}
	if d, ok := t.Description(); ok {
		resp.Description = &d
	}
	return resp
}

// ToEntity rehydrates the todo the response was projected from.
func (r TodoResponse) ToEntity() (Todo, error) {
	return RestoreTodo(r.ID, r.Title, r.Description, r.Completed, r.CreatedAt, r.UpdatedAt)
}
