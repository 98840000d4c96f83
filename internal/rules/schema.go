package rules

import (
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ruleFileSchema is the structural contract for the parameter-set file.
// Token legality, pattern syntax and cross-field checks happen in code
// after the structural pass; the schema catches shape mistakes with
// readable paths before any of that runs.
const ruleFileSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["parameter_sets"],
  "properties": {
    "parameter_sets": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {
        "type": "object",
        "additionalProperties": false,
        "required": ["tier", "rules"],
        "properties": {
          "id": {"type": "string"},
          "tier": {"type": "string", "enum": ["EXACT", "TIER1", "TIER2", "TIER3", "GLOBAL"]},
          "disabled": {"type": "boolean"},
          "match": {
            "type": "object",
            "additionalProperties": false,
            "properties": {
              "outcome": {"type": "string"},
              "duration": {"type": "string"},
              "proximity": {"type": "string"},
              "calendar": {"type": "string"},
              "symbol": {"type": "string"}
            }
          },
          "rules": {
            "type": "object",
            "additionalProperties": false,
            "required": ["reentry_enabled", "max_generation", "lot_multiplier"],
            "properties": {
              "reentry_enabled": {"type": "boolean"},
              "max_generation": {"type": "integer", "minimum": 1},
              "lot_multiplier": {"type": "number", "exclusiveMinimum": 0},
              "stop_loss_pips": {"type": "number", "minimum": 0},
              "take_profit_pips": {"type": "number", "minimum": 0},
              "confidence_threshold": {"type": "number", "minimum": 0, "maximum": 1},
              "min_wait_seconds": {"type": "integer", "minimum": 0},
              "max_wait_seconds": {"type": "integer", "minimum": 0}
            }
          }
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compiledRuleSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("rules.json", strings.NewReader(ruleFileSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile("rules.json")
	})
	return compiledSchema, schemaErr
}
