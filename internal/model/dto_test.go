package model

import (
	"encoding/json"
	"testing"
)

func TestTodoResponseRoundTrip(t *testing.T) {
	tests := []struct {
		name        string
		description *string
	}{
		{name: "with description", description: strPtr("details")},
		{name: "without description", description: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			todo, err := NewTodo("Round trip", tt.description)
			if err != nil {
				t.Fatalf("Failed to create todo: %v", err)
			}
			todo = todo.Complete()

			restored, err := NewTodoResponse(todo).ToEntity()
			if err != nil {
				t.Fatalf("Failed to restore todo: %v", err)
			}
			if !restored.Equal(todo) {
				t.Errorf("Expected %+v, got %+v", todo, restored)
			}
		})
	}
}

func TestTodoResponseJSON(t *testing.T) {
	todo, err := NewTodo("Buy milk", nil)
	if err != nil {
		t.Fatalf("Failed to create todo: %v", err)
	}

	b, err := json.Marshal(NewTodoResponse(todo))
	if err != nil {
		t.Fatalf("Failed to marshal response: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(b, &body); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	for _, key := range []string{"id", "title", "description", "completed", "created_at", "updated_at"} {
		if _, ok := body[key]; !ok {
			t.Errorf("Expected key %q in response", key)
		}
	}
	if body["description"] != nil {
		t.Errorf("Expected null description, got %v", body["description"])
	}
}
