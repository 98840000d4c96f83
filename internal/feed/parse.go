package feed

import (
	"bytes"
	"encoding/json"
	"fmt"

	"reentry/internal/reentry"

	"github.com/tidwall/gjson"
)

// ParseTrade decodes one drop-file payload into a trade context. The
// payload must be a single JSON object; unknown keys are rejected so a
// misspelled field fails loudly instead of silently defaulting.
func ParseTrade(raw []byte) (reentry.TradeContext, error) {
	var trade reentry.TradeContext
	if !gjson.ValidBytes(raw) {
		return trade, fmt.Errorf("payload is not valid JSON")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return trade, fmt.Errorf("payload must be a JSON object, got %s", root.Type)
	}
	// Probe the identity fields up front for a readable error; everything
	// else is covered by the processor's own context validation.
	for _, key := range []string{"trade_id", "symbol"} {
		if !root.Get(key).Exists() {
			return trade, fmt.Errorf("payload missing %q", key)
		}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&trade); err != nil {
		return trade, fmt.Errorf("decode trade: %w", err)
	}
	return trade, nil
}
