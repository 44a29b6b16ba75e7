package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// MaxTitleLength is the maximum title length in characters after trimming.
	MaxTitleLength = 200
	// MaxDescriptionLength is the maximum description length in characters after trimming.
	MaxDescriptionLength = 1000
)

// now returns the current time in UTC at the precision the stores keep.
var now = func() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Todo represents a todo item. It is an immutable value: every transition
// returns a new Todo and leaves the receiver unchanged.
type Todo struct {
	id          uuid.UUID
	title       string
	description string // "" means absent
	completed   bool
	createdAt   time.Time
	updatedAt   time.Time
}

// NewTodo validates the input and creates a new, not yet completed todo.
func NewTodo(title string, description *string) (Todo, error) {
	cleanTitle, err := normalizeTitle(title)
	if err != nil {
		return Todo{}, err
	}
	cleanDescription, err := normalizeDescription(description)
	if err != nil {
		return Todo{}, err
	}

	ts := now()
	return Todo{
		id:          uuid.New(),
		title:       cleanTitle,
		description: cleanDescription,
		completed:   false,
		createdAt:   ts,
		updatedAt:   ts,
	}, nil
}

// RestoreTodo rebuilds a todo from a stored snapshot.
func RestoreTodo(id uuid.UUID, title string, description *string, completed bool, createdAt, updatedAt time.Time) (Todo, error) {
	if id == uuid.Nil {
		return Todo{}, newValidationError(CodeInvalidID, "id", "id is required")
	}
	if createdAt.IsZero() {
		return Todo{}, newValidationError(CodeInvalid, "created_at", "created_at is required")
	}
	if updatedAt.IsZero() {
		return Todo{}, newValidationError(CodeInvalid, "updated_at", "updated_at is required")
	}
	if updatedAt.Before(createdAt) {
		return Todo{}, newValidationError(CodeInvalid, "updated_at", "updated_at cannot be before created_at")
	}

	cleanTitle, err := normalizeTitle(title)
	if err != nil {
		return Todo{}, err
	}
	cleanDescription, err := normalizeDescription(description)
	if err != nil {
		return Todo{}, err
	}

	return Todo{
		id:          id,
		title:       cleanTitle,
		description: cleanDescription,
		completed:   completed,
		createdAt:   createdAt.UTC(),
		updatedAt:   updatedAt.UTC(),
	}, nil
}

// ID returns the todo identifier.
func (t Todo) ID() uuid.UUID { return t.id }

// Title returns the normalized title.
func (t Todo) Title() string { return t.title }

// Description returns the description and whether it is present.
func (t Todo) Description() (string, bool) { return t.description, t.description != "" }

// Completed reports whether the todo has been completed.
func (t Todo) Completed() bool { return t.completed }

// CreatedAt returns the creation time in UTC.
func (t Todo) CreatedAt() time.Time { return t.createdAt }

// UpdatedAt returns the time of the last mutation in UTC.
func (t Todo) UpdatedAt() time.Time { return t.updatedAt }

// Complete returns a completed copy of the todo. Completing an already
// completed todo only refreshes UpdatedAt.
func (t Todo) Complete() Todo {
	next := t
	next.completed = true
	next.updatedAt = later(now(), t.updatedAt)
	return next
}

// Update returns a copy with the given fields replaced. Nil arguments keep the
// current value; when both are nil the todo is returned unchanged. An empty
// description clears it, an empty title is rejected.
func (t Todo) Update(title, description *string) (Todo, error) {
	if title == nil && description == nil {
		return t, nil
	}

	next := t
	if title != nil {
		cleanTitle, err := normalizeTitle(*title)
		if err != nil {
			return Todo{}, err
		}
		next.title = cleanTitle
	}
	if description != nil {
		cleanDescription, err := normalizeDescription(description)
		if err != nil {
			return Todo{}, err
		}
		next.description = cleanDescription
	}
	next.updatedAt = later(now(), t.updatedAt)
	return next, nil
}

// Equal reports whether both snapshots hold the same values.
func (t Todo) Equal(other Todo) bool {
	return t.id == other.id &&
		t.title == other.title &&
		t.description == other.description &&
		t.completed == other.completed &&
		t.createdAt.Equal(other.createdAt) &&
		t.updatedAt.Equal(other.updatedAt)
}

// IsValidationError reports whether err carries a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	var ves ValidationErrors
	return errors.As(err, &ve) || errors.As(err, &ves)
}

func normalizeTitle(title string) (string, error) {
	cleaned := strings.TrimSpace(title)
	if cleaned == "" {
		return "", newValidationError(CodeTitleEmpty, "title", "title cannot be empty")
	}
	if utf8.RuneCountInString(cleaned) > MaxTitleLength {
		return "", newValidationError(CodeTitleTooLong, "title", "title cannot exceed 200 characters")
	}
	return cleaned, nil
}

func normalizeDescription(description *string) (string, error) {
	if description == nil {
		return "", nil
	}
	cleaned := strings.TrimSpace(*description)
	if utf8.RuneCountInString(cleaned) > MaxDescriptionLength {
		return "", newValidationError(CodeDescriptionTooLong, "description", "description cannot exceed 1000 characters")
	}
	return cleaned, nil
}

// later keeps UpdatedAt monotonic when the wall clock steps backwards.
func later(a, b time.Time) time.Time {
	if a.Before(b) {
		return b
	}
	return a
}
