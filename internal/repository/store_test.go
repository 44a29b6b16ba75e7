package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hiroki-koketsu/todo-service/internal/model"
)

func strPtr(s string) *string { return &s }

func mustTodo(t *testing.T, title string, description *string, createdAt time.Time) model.Todo {
	t.Helper()
	todo, err := model.RestoreTodo(uuid.New(), title, description, false, createdAt, createdAt)
	if err != nil {
		t.Fatalf("RestoreTodo: %v", err)
	}
	return todo
}

func add(t *testing.T, store UnitOfWork, todos ...model.Todo) {
	t.Helper()
	err := store.Do(context.Background(), func(ctx context.Context, repo TodoRepository) error {
		for _, todo := range todos {
			if err := repo.Add(ctx, todo); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
}

func get(t *testing.T, store UnitOfWork, id uuid.UUID) (model.Todo, bool) {
	t.Helper()
	var (
		todo model.Todo
		ok   bool
	)
	err := store.Do(context.Background(), func(ctx context.Context, repo TodoRepository) error {
		var err error
		todo, ok, err = repo.GetByID(ctx, id)
		return err
	})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return todo, ok
}

func list(t *testing.T, store UnitOfWork) []model.Todo {
	t.Helper()
	var todos []model.Todo
	err := store.Do(context.Background(), func(ctx context.Context, repo TodoRepository) error {
		var err error
		todos, err = repo.ListAll(ctx)
		return err
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return todos
}

// testStore runs the behaviour every Store implementation shares.
// newStore must return an empty store.
func testStore(t *testing.T, newStore func(t *testing.T) Store) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("add and get", func(t *testing.T) {
		store := newStore(t)
		want := mustTodo(t, "Buy milk", strPtr("From the store"), base)
		add(t, store, want)

		got, ok := get(t, store, want.ID())
		if !ok {
			t.Fatal("expected todo to be found")
		}
		if !got.Equal(want) {
			t.Errorf("got %+v, want %+v", got, want)
		}
	})

	t.Run("absent description round trips", func(t *testing.T) {
		store := newStore(t)
		want := mustTodo(t, "No notes", nil, base)
		add(t, store, want)

		got, _ := get(t, store, want.ID())
		if _, ok := got.Description(); ok {
			t.Error("description should be absent")
		}
	})

	t.Run("get absent", func(t *testing.T) {
		store := newStore(t)
		if _, ok := get(t, store, uuid.New()); ok {
			t.Error("expected not found")
		}
	})

	t.Run("duplicate add", func(t *testing.T) {
		store := newStore(t)
		todo := mustTodo(t, "once", nil, base)
		add(t, store, todo)

		err := store.Do(context.Background(), func(ctx context.Context, repo TodoRepository) error {
			return repo.Add(ctx, todo)
		})
		if !errors.Is(err, ErrDuplicateID) {
			t.Errorf("expected ErrDuplicateID, got %v", err)
		}
	})

	t.Run("list newest first", func(t *testing.T) {
		store := newStore(t)
		if got := list(t, store); len(got) != 0 {
			t.Fatalf("expected empty list, got %d", len(got))
		}

		oldest := mustTodo(t, "oldest", nil, base)
		middle := mustTodo(t, "middle", nil, base.Add(time.Minute))
		newest := mustTodo(t, "newest", nil, base.Add(2*time.Minute))
		add(t, store, middle, oldest, newest)

		got := list(t, store)
		if len(got) != 3 {
			t.Fatalf("len = %d, want 3", len(got))
		}
		for i, want := range []model.Todo{newest, middle, oldest} {
			if got[i].ID() != want.ID() {
				t.Errorf("position %d = %s, want %s", i, got[i].Title(), want.Title())
			}
		}
	})

	t.Run("update replaces snapshot", func(t *testing.T) {
		store := newStore(t)
		todo := mustTodo(t, "draft", strPtr("notes"), base)
		add(t, store, todo)

		updated, err := todo.Update(strPtr("final"), strPtr(""))
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		updated = updated.Complete()

		err = store.Do(context.Background(), func(ctx context.Context, repo TodoRepository) error {
			return repo.Update(ctx, updated)
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}

		got, _ := get(t, store, todo.ID())
		if !got.Equal(updated) {
			t.Errorf("got %+v, want %+v", got, updated)
		}
		if !got.CreatedAt().Equal(todo.CreatedAt()) {
			t.Error("created_at must not change")
		}
	})

	t.Run("update and delete absent are no-ops", func(t *testing.T) {
		store := newStore(t)
		ghost := mustTodo(t, "ghost", nil, base)

		err := store.Do(context.Background(), func(ctx context.Context, repo TodoRepository) error {
			if err := repo.Update(ctx, ghost); err != nil {
				return err
			}
			return repo.Delete(ctx, ghost.ID())
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, ok := get(t, store, ghost.ID()); ok {
			t.Error("update must not insert")
		}
	})

	t.Run("delete and count", func(t *testing.T) {
		store := newStore(t)
		keep := mustTodo(t, "keep", nil, base)
		drop := mustTodo(t, "drop", nil, base)
		add(t, store, keep, drop)

		n, err := store.Count(context.Background())
		if err != nil || n != 2 {
			t.Fatalf("Count = %d, %v; want 2", n, err)
		}

		err = store.Do(context.Background(), func(ctx context.Context, repo TodoRepository) error {
			return repo.Delete(ctx, drop.ID())
		})
		if err != nil {
			t.Fatalf("delete: %v", err)
		}

		if _, ok := get(t, store, drop.ID()); ok {
			t.Error("deleted todo still present")
		}
		if n, _ := store.Count(context.Background()); n != 1 {
			t.Errorf("Count = %d, want 1", n)
		}
	})

	t.Run("ping", func(t *testing.T) {
		store := newStore(t)
		if err := store.Ping(context.Background()); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})
}

// testRollback checks that a failing unit of work leaves no trace.
func testRollback(t *testing.T, newStore func(t *testing.T) Store) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("error", func(t *testing.T) {
		store := newStore(t)
		todo := mustTodo(t, "rolled back", nil, base)
		boom := errors.New("boom")

		err := store.Do(context.Background(), func(ctx context.Context, repo TodoRepository) error {
			if err := repo.Add(ctx, todo); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if _, ok := get(t, store, todo.ID()); ok {
			t.Error("write survived a failed unit of work")
		}
	})

	t.Run("panic", func(t *testing.T) {
		store := newStore(t)
		todo := mustTodo(t, "panicked", nil, base)

		func() {
			defer func() {
				if recover() == nil {
					t.Error("expected panic to propagate")
				}
			}()
			_ = store.Do(context.Background(), func(ctx context.Context, repo TodoRepository) error {
				if err := repo.Add(ctx, todo); err != nil {
					return err
				}
				panic("boom")
			})
		}()

		if _, ok := get(t, store, todo.ID()); ok {
			t.Error("write survived a panicking unit of work")
		}
	})
}
