package util

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAndFormatAmountRoundTrip(t *testing.T) {
	r, err := ParseAmount("123.456789")
	assert.NoError(t, err)
	assert.Equal(t, "123.456789", FormatAmount(r))
}

func TestParseAmountEmptyIsZero(t *testing.T) {
	r, err := ParseAmount("")
	assert.NoError(t, err)
	assert.Equal(t, "0.000000", FormatAmount(r))
}

func TestParseAmountInvalid(t *testing.T) {
	_, err := ParseAmount("not-a-number")
	assert.Error(t, err)
}

func TestFormatAmountNil(t *testing.T) {
	assert.Equal(t, "0", FormatAmount(nil))
}

func TestAddAmounts(t *testing.T) {
	a := big.NewRat(1, 1)
	b := big.NewRat(2, 1)
	assert.Equal(t, "3.000000", FormatAmount(AddAmounts(a, b)))
	assert.Equal(t, "2.000000", FormatAmount(AddAmounts(nil, b)))
}
