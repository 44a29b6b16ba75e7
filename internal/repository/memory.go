package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/hiroki-koketsu/todo-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type memoryEntry struct {
	todo model.Todo
	seq  uint64
}

// MemoryStore provides an in-memory storage for todos.
type MemoryStore struct {
	mu    sync.RWMutex
	todos map[uuid.UUID]memoryEntry
	seq   uint64
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		todos: make(map[uuid.UUID]memoryEntry),
	}
}

// Do runs fn against the store itself. Writes are applied immediately and are
// not rolled back when fn fails.
func (s *MemoryStore) Do(ctx context.Context, fn func(ctx context.Context, repo TodoRepository) error) error {
	return fn(ctx, s)
}

// Add stores a new todo.
func (s *MemoryStore) Add(ctx context.Context, todo model.Todo) error {
	_, span := tracer.Start(ctx, "MemoryStore.Add",
		trace.WithAttributes(attribute.String("todo.id", todo.ID().String())),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.todos[todo.ID()]; ok {
		return fmt.Errorf("add %s: %w", todo.ID(), ErrDuplicateID)
	}

	s.seq++
	s.todos[todo.ID()] = memoryEntry{todo: todo, seq: s.seq}
	return nil
}

// GetByID retrieves a todo by its ID.
func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (model.Todo, bool, error) {
	_, span := tracer.Start(ctx, "MemoryStore.GetByID",
		trace.WithAttributes(attribute.String("todo.id", id.String())),
	)
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.todos[id]
	span.SetAttributes(attribute.Bool("todo.found", ok))
	return entry.todo, ok, nil
}

// ListAll returns all todos, newest first.
func (s *MemoryStore) ListAll(ctx context.Context) ([]model.Todo, error) {
	_, span := tracer.Start(ctx, "MemoryStore.ListAll")
	defer span.End()

	s.mu.RLock()
	entries := make([]memoryEntry, 0, len(s.todos))
	for _, entry := range s.todos {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.todo.CreatedAt().Equal(b.todo.CreatedAt()) {
			return a.todo.CreatedAt().After(b.todo.CreatedAt())
		}
		return a.seq > b.seq
	})

	todos := make([]model.Todo, len(entries))
	for i, entry := range entries {
		todos[i] = entry.todo
	}

	span.SetAttributes(attribute.Int("todo.count", len(todos)))
	return todos, nil
}

// Update replaces an existing todo.
func (s *MemoryStore) Update(ctx context.Context, todo model.Todo) error {
	_, span := tracer.Start(ctx, "MemoryStore.Update",
		trace.WithAttributes(attribute.String("todo.id", todo.ID().String())),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.todos[todo.ID()]
	span.SetAttributes(attribute.Bool("todo.found", ok))
	if !ok {
		return nil
	}

	entry.todo = todo
	s.todos[todo.ID()] = entry
	return nil
}

// Delete removes a todo.
func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, span := tracer.Start(ctx, "MemoryStore.Delete",
		trace.WithAttributes(attribute.String("todo.id", id.String())),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.todos[id]
	span.SetAttributes(attribute.Bool("todo.found", ok))
	delete(s.todos, id)
	return nil
}

// Count returns the current number of todos.
func (s *MemoryStore) Count(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.todos)), nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
