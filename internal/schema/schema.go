// Package schema checks inbound payloads against their declared Go shape.
//
// Decoding is two-phase: encoding/json enforces field types, then validator tags
// enforce presence and value constraints:
//
//	type job struct {
//	    ID    string `json:"job_id" validate:"required"`
//	    State string `json:"state" validate:"oneof=queued building"`
//	}
//
// A payload that fails either phase is rejected; nothing is coerced.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrEmptyBody is returned when a shape is expected but the body is empty.
var ErrEmptyBody = errors.New("empty response body")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// instance returns the shared validator, reporting field names by their JSON key.
func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Decode unmarshals data into v (a pointer to a struct) and validates it.
func Decode(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return ErrEmptyBody
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return Check(v)
}

// Check validates an already decoded value.
func Check(v any) error {
	if err := instance().Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fieldErrors(verrs)
		}
		return err
	}
	return nil
}

// FieldError describes a single failed constraint.
type FieldError struct {
	Field string // namespaced JSON path, e.g. "collections[0].name"
	Tag   string // failed constraint, e.g. "required"
}

// Errors is returned when one or more constraints fail.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fmt.Sprintf("%s failed %q", fe.Field, fe.Tag)
	}
	return "shape mismatch: " + strings.Join(parts, ", ")
}

func fieldErrors(verrs validator.ValidationErrors) Errors {
	out := make(Errors, len(verrs))
	for i, fe := range verrs {
		ns := fe.Namespace()
		// Drop the root type name.
		if _, rest, ok := strings.Cut(ns, "."); ok {
			ns = rest
		}
		out[i] = FieldError{Field: ns, Tag: fe.Tag()}
	}
	return out
}
