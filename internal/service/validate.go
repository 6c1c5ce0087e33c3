package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs the struct's validate tags and turns failures into a ValidationError.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate request: %w", err)
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Add(fe.Field(), fieldMessage(fe))
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	attr := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", attr)
	case "max":
		return fmt.Sprintf("The %s field must not be greater than %s characters.", attr, fe.Param())
	case "min":
		if fe.Param() == "1" {
			return fmt.Sprintf("The %s field is required.", attr)
		}
		return fmt.Sprintf("The %s field must be at least %s characters.", attr, fe.Param())
	case "email":
		return fmt.Sprintf("The %s field must be a valid email address.", attr)
	case "eqfield":
		return fmt.Sprintf("The %s confirmation does not match.", attr)
	case "dive", "oneof":
		return fmt.Sprintf("The selected %s is invalid.", attr)
	default:
		return fmt.Sprintf("The %s field is invalid.", attr)
	}
}

// isEmail reports whether s is a syntactically valid email address.
func isEmail(s string) bool {
	return validate.Var(s, "required,email") == nil
}
