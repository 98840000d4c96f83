package vocab

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTokens(t *testing.T) {
	v := Default()

	assert.ElementsMatch(t, []string{"W2", "W1", "BE", "L1", "L2"}, v.Tokens(DimOutcome))
	assert.ElementsMatch(t, []string{"FLASH", "QUICK", "LONG", "EXTENDED"}, v.Tokens(DimDuration))
	assert.ElementsMatch(t, []string{"PRE_1H", "AT_EVENT", "POST_30M"}, v.Tokens(DimProximity))
	assert.ElementsMatch(t, []string{"LONG", "SHORT", "ANY"}, v.Tokens(DimDirection))
	assert.Nil(t, v.Tokens("nonsense"))

	min, max := v.GenerationRange()
	assert.Equal(t, 1, min)
	assert.Equal(t, 3, max)
}

func TestCalendarMatching(t *testing.T) {
	v := Default()

	assert.True(t, v.IsCalendar("NONE"))
	assert.True(t, v.IsCalendar("CAL8_USD_NFP_H"))
	assert.True(t, v.IsCalendar("CAL5_FOMC"))
	assert.False(t, v.IsCalendar("none"))
	assert.False(t, v.IsCalendar("ECB_RATE"))
	assert.False(t, v.IsCalendar(""))
}

func TestValidateContext(t *testing.T) {
	v := Default()

	ok, reasons := v.ValidateContext("W1", "QUICK", "AT_EVENT", "CAL8_USD_NFP_H", "LONG", 1)
	assert.True(t, ok)
	assert.Empty(t, reasons)

	ok, reasons = v.ValidateContext("W9", "QUICK", "SOON", "NONE", "LONG", 7)
	assert.False(t, ok)
	assert.Len(t, reasons, 3)
}

func TestLoadOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.yaml")
	body := `
outcomes: [WIN, LOSS]
generation:
  min: 1
  max: 2
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	v, err := Load(path)
	require.NoError(t, err)
	assert.True(t, v.IsOutcome("WIN"))
	assert.False(t, v.IsOutcome("W1"))
	// untouched dimensions keep their defaults
	assert.True(t, v.IsDuration("QUICK"))
	_, max := v.GenerationRange()
	assert.Equal(t, 2, max)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.yaml")
	require.NoError(t, os.WriteFile(path, []byte("outcome_tokens: [W1]\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadTokens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.yaml")
	require.NoError(t, os.WriteFile(path, []byte("outcomes: [\"w1\"]\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("durations: [\"TOO_SLOW\"]\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoadEmptyPathUsesDefault(t *testing.T) {
	v, err := Load("")
	require.NoError(t, err)
	assert.True(t, v.IsOutcome("W1"))
}
