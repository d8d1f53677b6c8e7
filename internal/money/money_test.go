package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRound2HalfAwayFromZero(t *testing.T) {
	assert.Equal(t, "0.13", Round2(MustParse("0.125")).StringFixed(2))
	assert.Equal(t, "-0.13", Round2(MustParse("-0.125")).StringFixed(2))
	assert.Equal(t, "10.00", Format(MustParse("9.999")))
}

func TestMulRoundsImmediately(t *testing.T) {
	got := Mul(MustParse("600000"), MustParse("1.10"))
	require.True(t, got.Equal(MustParse("660000.00")))

	// 33.335 rounds before it can feed the next step.
	step := Mul(MustParse("333.35"), MustParse("0.1"))
	require.Equal(t, "33.34", Format(step))
}

func TestSumRoundsEachAddition(t *testing.T) {
	total := Sum(MustParse("0.005"), MustParse("0.005"))
	assert.Equal(t, "0.02", Format(total))
	assert.True(t, Sum().IsZero())
}
