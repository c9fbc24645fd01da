package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError is one invalid configuration value.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every invalid configuration value found.
type ValidationError struct {
	Errors []FieldError
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("config error:")
	for _, fe := range ve.Errors {
		sb.WriteString(fmt.Sprintf("\n  %s: %s", fe.Field, fe.Message))
	}
	return sb.String()
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("toml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// Validate checks field constraints and that every query names a known source.
func (c *Config) Validate(knownSources []string) error {
	ve := &ValidationError{}

	if err := newValidator().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("config error: %w", err)
		}
		for _, fe := range fieldErrs {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   fieldPath(fe.Namespace()),
				Message: describe(fe),
			})
		}
	}

	known := make(map[string]bool, len(knownSources))
	for _, name := range knownSources {
		known[name] = true
	}
	for i, q := range c.Queries {
		for j, src := range q.Sources {
			if src != "" && !known[src] {
				ve.Errors = append(ve.Errors, FieldError{
					Field:   fmt.Sprintf("queries[%d].sources[%d]", i, j),
					Message: fmt.Sprintf("unknown source %q (known: %s)", src, strings.Join(knownSources, ", ")),
				})
			}
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_with":
		return fmt.Sprintf("is required when %s is set", strings.ToLower(fe.Param()))
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "url":
		return fmt.Sprintf("must be a valid URL, got %q", fmt.Sprint(fe.Value()))
	case "email":
		return fmt.Sprintf("must be a valid email address, got %q", fmt.Sprint(fe.Value()))
	case "hostname_port":
		return fmt.Sprintf("must be host:port, got %q", fmt.Sprint(fe.Value()))
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
