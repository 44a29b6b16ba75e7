package model

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func strPtr(s string) *string { return &s }

// withClock makes now() return the given times in order, repeating the last one.
func withClock(t *testing.T, times ...time.Time) {
	t.Helper()
	orig := now
	i := 0
	now = func() time.Time {
		ts := times[i]
		if i < len(times)-1 {
			i++
		}
		return ts
	}
	t.Cleanup(func() { now = orig })
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationError with code %s, got %v", code, err)
	}
	if ve.Code != code {
		t.Errorf("Expected code %s, got %s", code, ve.Code)
	}
}

func TestNewTodo(t *testing.T) {
	todo, err := NewTodo("Buy milk", strPtr("From the store"))
	if err != nil {
		t.Fatalf("Failed to create todo: %v", err)
	}

	if todo.ID() == uuid.Nil {
		t.Error("Expected non-nil UUID for ID")
	}
	if todo.Title() != "Buy milk" {
		t.Errorf("Expected title %q, got %q", "Buy milk", todo.Title())
	}
	if d, ok := todo.Description(); !ok || d != "From the store" {
		t.Errorf("Expected description %q, got %q (present=%v)", "From the store", d, ok)
	}
	if todo.Completed() {
		t.Error("Expected new todo to be incomplete")
	}
	if !todo.CreatedAt().Equal(todo.UpdatedAt()) {
		t.Error("Expected CreatedAt and UpdatedAt to be equal for new todo")
	}
	if todo.CreatedAt().Location() != time.UTC {
		t.Errorf("Expected UTC timestamps, got %v", todo.CreatedAt().Location())
	}
}

func TestNewTodoUniqueIDs(t *testing.T) {
	a, _ := NewTodo("a", nil)
	b, _ := NewTodo("a", nil)
	if a.ID() == b.ID() {
		t.Error("Expected distinct ids for distinct todos")
	}
}

func TestNewTodoValidation(t *testing.T) {
	tests := []struct {
		name        string
		title       string
		description *string
		wantCode    string
	}{
		{name: "empty title", title: "", wantCode: CodeTitleEmpty},
		{name: "whitespace title", title: "   \t\n", wantCode: CodeTitleEmpty},
		{name: "title 201 chars", title: strings.Repeat("a", 201), wantCode: CodeTitleTooLong},
		{name: "title 200 chars", title: strings.Repeat("a", 200)},
		{name: "title 200 chars padded", title: "  " + strings.Repeat("a", 200) + "  "},
		{name: "multibyte title 200 runes", title: strings.Repeat("я", 200)},
		{name: "description 1001 chars", title: "t", description: strPtr(strings.Repeat("d", 1001)), wantCode: CodeDescriptionTooLong},
		{name: "description 1000 chars", title: "t", description: strPtr(strings.Repeat("d", 1000))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTodo(tt.title, tt.description)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			assertCode(t, err, tt.wantCode)
		})
	}
}

func TestNewTodoNormalization(t *testing.T) {
	padded, err := NewTodo("  A  ", strPtr("  B  "))
	if err != nil {
		t.Fatalf("Failed to create todo: %v", err)
	}
	plain, err := NewTodo("A", strPtr("B"))
	if err != nil {
		t.Fatalf("Failed to create todo: %v", err)
	}
	if padded.Title() != plain.Title() {
		t.Errorf("Expected normalized titles to match, got %q and %q", padded.Title(), plain.Title())
	}
	if d, _ := padded.Description(); d != "B" {
		t.Errorf("Expected trimmed description %q, got %q", "B", d)
	}

	blank, err := NewTodo("A", strPtr("   "))
	if err != nil {
		t.Fatalf("Failed to create todo: %v", err)
	}
	if _, ok := blank.Description(); ok {
		t.Error("Expected whitespace-only description to be absent")
	}
}

func TestTodoComplete(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	withClock(t, t0, t0.Add(time.Minute), t0.Add(2*time.Minute))

	todo, err := NewTodo("task", nil)
	if err != nil {
		t.Fatalf("Failed to create todo: %v", err)
	}

	first := todo.Complete()
	if !first.Completed() {
		t.Error("Expected completed after first Complete")
	}
	if todo.Completed() {
		t.Error("Expected original snapshot to stay incomplete")
	}
	if !first.UpdatedAt().Equal(t0.Add(time.Minute)) {
		t.Errorf("Expected UpdatedAt %v, got %v", t0.Add(time.Minute), first.UpdatedAt())
	}
	if !first.CreatedAt().Equal(todo.CreatedAt()) || first.ID() != todo.ID() {
		t.Error("Expected id and CreatedAt to be preserved")
	}

	second := first.Complete()
	if !second.Completed() {
		t.Error("Expected completed after second Complete")
	}
	if second.UpdatedAt().Before(first.UpdatedAt()) {
		t.Errorf("Expected second UpdatedAt >= first, got %v < %v", second.UpdatedAt(), first.UpdatedAt())
	}
}

func TestTodoCompleteClockSkew(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	withClock(t, t0, t0.Add(-time.Hour))

	todo, _ := NewTodo("task", nil)
	done := todo.Complete()
	if done.UpdatedAt().Before(done.CreatedAt()) {
		t.Errorf("Expected UpdatedAt >= CreatedAt, got %v < %v", done.UpdatedAt(), done.CreatedAt())
	}
}

func TestTodoUpdate(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	withClock(t, t0, t0.Add(time.Second))

	todo, err := NewTodo("Original", strPtr("Original description"))
	if err != nil {
		t.Fatalf("Failed to create todo: %v", err)
	}

	t.Run("no fields returns same snapshot", func(t *testing.T) {
		same, err := todo.Update(nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !same.Equal(todo) {
			t.Error("Expected unchanged todo when no fields are given")
		}
	})

	t.Run("title only", func(t *testing.T) {
		updated, err := todo.Update(strPtr("  New title "), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.Title() != "New title" {
			t.Errorf("Expected title %q, got %q", "New title", updated.Title())
		}
		if d, _ := updated.Description(); d != "Original description" {
			t.Errorf("Expected description to be kept, got %q", d)
		}
		if !updated.UpdatedAt().After(todo.UpdatedAt()) {
			t.Error("Expected UpdatedAt to move forward")
		}
		if todo.Title() != "Original" {
			t.Error("Expected original snapshot to be untouched")
		}
	})

	t.Run("empty description clears it", func(t *testing.T) {
		updated, err := todo.Update(nil, strPtr(""))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := updated.Description(); ok {
			t.Error("Expected description to be cleared")
		}
		if updated.Title() != "Original" {
			t.Errorf("Expected title to be kept, got %q", updated.Title())
		}
	})

	t.Run("empty title is rejected", func(t *testing.T) {
		_, err := todo.Update(strPtr("   "), nil)
		assertCode(t, err, CodeTitleEmpty)
	})

	t.Run("title too long", func(t *testing.T) {
		_, err := todo.Update(strPtr(strings.Repeat("x", 201)), nil)
		assertCode(t, err, CodeTitleTooLong)
	})

	t.Run("description too long", func(t *testing.T) {
		_, err := todo.Update(nil, strPtr(strings.Repeat("x", 1001)))
		assertCode(t, err, CodeDescriptionTooLong)
	})

	t.Run("completed flag is preserved", func(t *testing.T) {
		done := todo.Complete()
		updated, err := done.Update(strPtr("after completion"), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !updated.Completed() {
			t.Error("Expected completed flag to survive an update")
		}
	})
}

func TestRestoreTodo(t *testing.T) {
	id := uuid.New()
	created := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)

	tests := []struct {
		name        string
		id          uuid.UUID
		title       string
		createdAt   time.Time
		updatedAt   time.Time
		expectError bool
	}{
		{name: "valid", id: id, title: "t", createdAt: created, updatedAt: updated},
		{name: "nil id", id: uuid.Nil, title: "t", createdAt: created, updatedAt: updated, expectError: true},
		{name: "empty title", id: id, title: "", createdAt: created, updatedAt: updated, expectError: true},
		{name: "zero created_at", id: id, title: "t", updatedAt: updated, expectError: true},
		{name: "zero updated_at", id: id, title: "t", createdAt: created, expectError: true},
		{name: "updated before created", id: id, title: "t", createdAt: updated, updatedAt: created, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			todo, err := RestoreTodo(tt.id, tt.title, nil, true, tt.createdAt, tt.updatedAt)
			if tt.expectError {
				if err == nil {
					t.Error("expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if todo.ID() != tt.id || !todo.Completed() {
				t.Error("Expected restored fields to match input")
			}
		})
	}
}

func TestNotFoundError(t *testing.T) {
	id := uuid.New()
	var err error = &NotFoundError{ID: id}

	if !errors.Is(err, ErrTodoNotFound) {
		t.Error("Expected NotFoundError to match ErrTodoNotFound")
	}
	if !strings.Contains(err.Error(), "not found") || !strings.Contains(err.Error(), id.String()) {
		t.Errorf("Unexpected message: %q", err.Error())
	}
	if IsValidationError(err) {
		t.Error("NotFoundError must not be a validation error")
	}
}
