package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRoundAndClamp(t *testing.T) {
	assert.True(t, Round(d("12.345")).Equal(d("12.35")))
	assert.True(t, NonNegative(d("-1")).IsZero())
	assert.True(t, Clamp(d("150"), Zero, d("100")).Equal(d("100")))
	assert.True(t, Clamp(d("-5"), Zero, d("100")).IsZero())
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(11250), MinorUnits(d("112.50")))
	assert.Equal(t, int64(1), MinorUnits(d("0.005")))
	assert.True(t, FromMinorUnits(4000).Equal(d("40")))
}

func TestMulAndSum(t *testing.T) {
	assert.True(t, Mul(d("25.00"), 3).Equal(d("75")))
	assert.True(t, Sum(d("50"), d("75")).Equal(d("125")))
}
