// Package ledger is the append-only, checksum-protected record store the
// decision pipeline commits its output to. Files are plain UTF-8 CSV so
// the terminal-side tooling can both produce and audit them; the writer
// and the validator share one checksum contract and neither trusts the
// other.
package ledger

import (
	"fmt"
	"sort"
	"sync"
)

// Fixed leading columns of every ledger file, in declared order.
const (
	FieldSeq       = "file_seq"
	FieldChecksum  = "checksum_sha256"
	FieldTimestamp = "timestamp"
)

// FieldKind drives the validator's type checks for a column.
type FieldKind int

const (
	KindString FieldKind = iota
	KindNumber
	KindInteger
	KindTime
)

type FieldSpec struct {
	Name string
	Kind FieldKind
}

// Schema declares a record type: its name (also the filename prefix) and
// the record-specific columns following the three fixed ones.
type Schema struct {
	RecordType string
	Fields     []FieldSpec
}

// FieldNames returns the record-specific column names in declared order.
func (s Schema) FieldNames() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// DecisionSchema is the record type this core writes: one row per
// processed re-entry decision.
var DecisionSchema = Schema{
	RecordType: "reentry_decisions",
	Fields: []FieldSpec{
		{Name: "trade_id", Kind: KindString},
		{Name: "hybrid_id", Kind: KindString},
		{Name: "symbol", Kind: KindString},
		{Name: "classification", Kind: KindString},
		{Name: "action", Kind: KindString},
		{Name: "tier", Kind: KindString},
		{Name: "chain_position", Kind: KindString},
		{Name: "lot_size", Kind: KindNumber},
		{Name: "stop_loss_pips", Kind: KindNumber},
		{Name: "take_profit_pips", Kind: KindNumber},
	},
}

// TradeResultSchema is produced by the terminal-side ingestion service;
// the validator accepts it so one audit pass covers both directions.
var TradeResultSchema = Schema{
	RecordType: "trade_results",
	Fields: []FieldSpec{
		{Name: "ticket", Kind: KindInteger},
		{Name: "symbol", Kind: KindString},
		{Name: "direction", Kind: KindString},
		{Name: "open_time", Kind: KindTime},
		{Name: "close_time", Kind: KindTime},
		{Name: "open_price", Kind: KindNumber},
		{Name: "close_price", Kind: KindNumber},
		{Name: "lot_size", Kind: KindNumber},
		{Name: "pips", Kind: KindNumber},
		{Name: "generation", Kind: KindInteger},
	},
}

var (
	schemaMu  sync.RWMutex
	schemaReg = map[string]Schema{
		DecisionSchema.RecordType:    DecisionSchema,
		TradeResultSchema.RecordType: TradeResultSchema,
	}
)

// Register adds a schema for an additional record type. Sibling services
// sharing a ledger directory register theirs before verifying.
func Register(s Schema) error {
	if s.RecordType == "" || len(s.Fields) == 0 {
		return fmt.Errorf("schema needs a record type and at least one field")
	}
	seen := map[string]struct{}{FieldSeq: {}, FieldChecksum: {}, FieldTimestamp: {}}
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema %s: empty field name", s.RecordType)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("schema %s: duplicate field %q", s.RecordType, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	schemaMu.Lock()
	defer schemaMu.Unlock()
	if _, dup := schemaReg[s.RecordType]; dup {
		return fmt.Errorf("schema %s already registered", s.RecordType)
	}
	schemaReg[s.RecordType] = s
	return nil
}

// SchemaFor looks up a registered record type.
func SchemaFor(recordType string) (Schema, bool) {
	schemaMu.RLock()
	defer schemaMu.RUnlock()
	s, ok := schemaReg[recordType]
	return s, ok
}

// RegisteredTypes lists known record types, sorted.
func RegisteredTypes() []string {
	schemaMu.RLock()
	defer schemaMu.RUnlock()
	out := make([]string, 0, len(schemaReg))
	for name := range schemaReg {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
