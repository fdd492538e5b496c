package validator

import (
	"testing"

	ierr "github.com/dagdev/vpnbill/internal/errors"
	"github.com/stretchr/testify/assert"
)

type sample struct {
	Currency string `validate:"required,len=3"`
	PayerID  int64  `validate:"required"`
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(sample{Currency: "RUB", PayerID: 1}))

	err := ValidateRequest(sample{Currency: "RUBLE"})
	assert.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
}
