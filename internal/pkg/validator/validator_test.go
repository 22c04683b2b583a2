package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"servicecenter/internal/pkg/apperr"
)

type sample struct {
	Name     string `validate:"required"`
	Quantity int    `validate:"gte=1"`
}

func TestStruct(t *testing.T) {
	assert.NoError(t, Struct(sample{Name: "oil", Quantity: 1}))

	err := Struct(sample{Quantity: 0})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Contains(t, err.Error(), "sample.Name (required)")
	assert.Contains(t, err.Error(), "sample.Quantity (gte)")
}
