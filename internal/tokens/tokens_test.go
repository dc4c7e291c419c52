package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountTokens(t *testing.T) {
	require.Equal(t, int64(0), CountTokens(""))
	require.Equal(t, int64(1), CountTokens("abc"))
	require.Equal(t, int64(1), CountTokens("abcd"))
	require.Equal(t, int64(2), CountTokens("abcde"))
	require.Equal(t, int64(25), CountTokens(strings.Repeat("x", 100)))
}

func TestEstimateOutputTokens(t *testing.T) {
	prose := strings.Repeat("write an essay about history ", 10)
	require.Equal(t, CountTokens(prose)*2, EstimateOutputTokens(prose))

	math := "solve the equation x^2 + 2x + 1 = 0"
	require.Equal(t, CountTokens(math)*3, EstimateOutputTokens(math))

	// keyword match is case-insensitive and word-bounded
	require.Equal(t, CountTokens("CALCULATE the sum")*3, EstimateOutputTokens("CALCULATE the sum"))
	noKeyword := "the dissolved matter settled"
	require.Equal(t, CountTokens(noKeyword)*2, EstimateOutputTokens(noKeyword))
}

func TestCreditTiers(t *testing.T) {
	require.Equal(t, int64(2_000), CreditTiers["1"])
	require.Equal(t, int64(30_000), CreditTiers["10"])
	require.Equal(t, int64(600_000), CreditTiers["100"])
	require.Equal(t, int64(10_000_000), CreditTiers["1000"])
}

func TestGenerateSessionID(t *testing.T) {
	a := GenerateSessionID()
	b := GenerateSessionID()
	require.Len(t, a, 32)
	require.NotEqual(t, a, b)
}

func TestTodayDate(t *testing.T) {
	require.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, TodayDate())
}
