package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidasi/sidasi-backend/internal/apperror"
)

type item struct {
	ProductID uint64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

type order struct {
	Email  string `json:"email" validate:"required,email"`
	Status string `json:"status" validate:"omitempty,oneof=Pending Done"`
	Items  []item `json:"items" validate:"required,min=1,dive"`
}

func TestStructReportsFieldPaths(t *testing.T) {
	err := Struct("order.create", order{
		Email:  "nope",
		Status: "Later",
		Items:  []item{{ProductID: 1, Quantity: 0}},
	})

	require.True(t, apperror.Is(err, apperror.KindValidation))
	fields := apperror.FieldsOf(err)
	assert.ElementsMatch(t, []apperror.FieldError{
		{Field: "email", Problem: "must be a valid email address"},
		{Field: "status", Problem: "must be one of: Pending, Done"},
		{Field: "items[0].quantity", Problem: "is required"},
	}, fields)
}

func TestStructAcceptsValidInput(t *testing.T) {
	assert.NoError(t, Struct("order.create", order{Email: "a@b.co", Items: []item{{ProductID: 1, Quantity: 2}}}))
}

func TestStructRequiresItems(t *testing.T) {
	err := Struct("order.create", order{Email: "a@b.co"})
	assert.Equal(t, []apperror.FieldError{{Field: "items", Problem: "is required"}}, apperror.FieldsOf(err))
}

func TestDate(t *testing.T) {
	d, ok := Date("2026-02-28")
	require.True(t, ok)
	assert.Equal(t, 28, d.Day())

	d, ok = Date("2026-02-28T23:10:00+07:00")
	require.True(t, ok)
	assert.Equal(t, "2026-02-28", d.Format("2006-01-02"))

	_, ok = Date("2026-02-30")
	assert.False(t, ok)
	_, ok = Date("yesterday")
	assert.False(t, ok)
}
