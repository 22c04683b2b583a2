package validator

import (
	"errors"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"servicecenter/internal/pkg/apperr"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate returns field -> failed tag, or nil when v is valid.
func Validate(v interface{}) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Namespace()] = fe.Tag()
	}
	return fields
}

// Struct validates v and reports failures as a validation error.
func Struct(v interface{}) error {
	fields := Validate(v)
	if fields == nil {
		return nil
	}
	parts := make([]string, 0, len(fields))
	for f, tag := range fields {
		parts = append(parts, f+" ("+tag+")")
	}
	sort.Strings(parts)
	return apperr.Validation("invalid_request", "invalid fields: "+strings.Join(parts, ", "))
}
