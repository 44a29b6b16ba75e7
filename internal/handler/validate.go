package handler

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hiroki-koketsu/todo-service/internal/model"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json field names rather than Go ones.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// translateValidation turns validator output into domain validation errors.
// Errors that are not validator.ValidationErrors are returned unchanged.
func translateValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := make(model.ValidationErrors, 0, len(verrs))
	seen := make(map[string]bool)
	for _, fe := range verrs {
		ve := fieldError(fe)
		// required_without fires on both fields; report it once.
		if seen[ve.Code+ve.Field] {
			continue
		}
		seen[ve.Code+ve.Field] = true
		out = append(out, ve)
	}
	return out
}

func fieldError(fe validator.FieldError) *model.ValidationError {
	switch fe.Tag() {
	case "required":
		if fe.Field() == "title" {
			return &model.ValidationError{Code: model.CodeTitleEmpty, Field: "title", Message: "title cannot be empty"}
		}
		return &model.ValidationError{Code: model.CodeInvalid, Field: fe.Field(), Message: fe.Field() + " is required"}
	case "required_without":
		return &model.ValidationError{Code: model.CodeNoFields, Message: "at least one of title or description must be provided"}
	default:
		return &model.ValidationError{Code: model.CodeInvalid, Field: fe.Field(), Message: fe.Error()}
	}
}
