package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"EURUSD", "EURUSD"},
		{"eurusd.r", "EURUSD"},
		{"EURUSD_pro", "EURUSD"},
		{"EURUSD-ecn", "EURUSD"},
		{"EUR/USD", "EURUSD"},
		{"eur/usd.m", "EURUSD"},
		{"EUR-USD", "EURUSD"},
		{"XAUUSD", "XAUUSD"},
		{"xauusd#2", "XAUUSD"},
		{"US30.cash", "US30"},
		{"  gbpjpy  ", "GBPJPY"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), "input %q", tc.in)
	}
}

func TestParse(t *testing.T) {
	sym := Parse("eur/usd")
	assert.Equal(t, "EUR", sym.Base)
	assert.Equal(t, "USD", sym.Quote)
	assert.Equal(t, "EURUSD", sym.Canonical())
	assert.Equal(t, "EUR/USD", sym.Display())

	assert.Equal(t, Symbol{}, Parse("US30"))
	assert.Equal(t, "XAU", Parse("XAUUSD").Base)
}

func TestNormalizeList(t *testing.T) {
	got := NormalizeList([]string{"eurusd.r", "EUR/USD", "gbpjpy", "", "GBPJPY_pro"})
	assert.Equal(t, []string{"EURUSD", "GBPJPY"}, got)
	assert.Nil(t, NormalizeList(nil))
}

func TestIsPair(t *testing.T) {
	assert.True(t, IsPair("EURUSD.r"))
	assert.False(t, IsPair("US30"))
}
