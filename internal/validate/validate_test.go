package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bazaar/internal/domain"
)

type item struct {
	ProductID string `json:"productId" validate:"required,resid"`
	UnitPrice string `json:"unitPrice" validate:"required,numeric"`
}

type order struct {
	Items []item `json:"items" validate:"required,min=1,dive"`
}

func TestStruct(t *testing.T) {
	assert.NoError(t, Struct(order{Items: []item{{ProductID: "gbc-001", UnitPrice: "129.99"}}}))

	err := Struct(order{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = Struct(order{Items: []item{{ProductID: "../etc", UnitPrice: "1"}}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "resid")

	err = Struct(order{Items: []item{{ProductID: "p", UnitPrice: "cheap"}}})
	assert.Contains(t, err.Error(), "numeric")
}

func TestEmailAndPassword(t *testing.T) {
	_, ok := Email("alice@bazaar.test")
	assert.True(t, ok)
	_, ok = Email("alice")
	assert.False(t, ok)

	assert.True(t, Password("Passw0rd!"))
	assert.False(t, Password("password"))
}

func TestID(t *testing.T) {
	id, ok := ID("  nes-001 ")
	assert.True(t, ok)
	assert.Equal(t, "nes-001", id)
	_, ok = ID("a b")
	assert.False(t, ok)
}
