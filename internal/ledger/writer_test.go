package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testClock = time.Date(2025, 3, 7, 9, 30, 0, 0, time.UTC)

func newTestWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)
	w.now = func() time.Time { return testClock }
	return w, dir
}

func decisionFields() map[string]string {
	return map[string]string{
		"trade_id":         "T1001",
		"hybrid_id":        "W1_QUICK_AT_EVENT_CAL8_USD_NFP_H_LONG_1",
		"symbol":           "EURUSD",
		"classification":   "WIN_QUICK",
		"action":           "R1",
		"tier":             "GLOBAL",
		"chain_position":   "O",
		"lot_size":         "0.10",
		"stop_loss_pips":   "20",
		"take_profit_pips": "40",
	}
}

func TestAppendCreatesSessionFile(t *testing.T) {
	w, dir := newTestWriter(t)

	res, err := w.Append(context.Background(), Record{Type: DecisionSchema.RecordType, Fields: decisionFields()})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Seq)
	assert.Len(t, res.Checksum, 64)
	assert.Equal(t, filepath.Join(dir, "reentry_decisions_20250307_093000.csv"), res.Path)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "file_seq,checksum_sha256,timestamp,trade_id,hybrid_id,symbol,classification,action,tier,chain_position,lot_size,stop_loss_pips,take_profit_pips", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1,"+res.Checksum+",2025-03-07T09:30:00Z,T1001,"))

	// no stray temp file once the rename has landed
	_, err = os.Stat(res.Path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestAppendAccumulatesRows(t *testing.T) {
	w, _ := newTestWriter(t)

	first, err := w.Append(context.Background(), Record{Type: DecisionSchema.RecordType, Fields: decisionFields()})
	require.NoError(t, err)

	fields := decisionFields()
	fields["trade_id"] = "T1002"
	second, err := w.Append(context.Background(), Record{Type: DecisionSchema.RecordType, Fields: fields})
	require.NoError(t, err)

	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, first.Path, second.Path)

	data, err := os.ReadFile(second.Path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "T1001")
	assert.Contains(t, lines[2], "T1002")
}

func TestAppendPreservesForeignRows(t *testing.T) {
	w, dir := newTestWriter(t)

	// a previous session (same clock second) already wrote a valid row
	path := filepath.Join(dir, "reentry_decisions_20250307_093000.csv")
	row := map[string]string{FieldSeq: "41", FieldTimestamp: "2025-03-07T09:00:00Z"}
	for k, v := range decisionFields() {
		row[k] = v
	}
	row[FieldChecksum] = Checksum(row)
	content := headerLine(DecisionSchema) + "\n" + renderRow(DecisionSchema, row) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	res, err := w.Append(context.Background(), Record{Type: DecisionSchema.RecordType, Fields: decisionFields()})
	require.NoError(t, err)
	assert.Equal(t, path, res.Path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3, "old row, new row and one header")
	assert.True(t, strings.HasPrefix(lines[1], "41,"))
	assert.True(t, strings.HasPrefix(lines[2], "1,"))
}

func TestAppendConcurrentSequenceMonotonic(t *testing.T) {
	w, _ := newTestWriter(t)

	const n = 16
	var (
		mu   sync.Mutex
		seqs []uint64
		wg   sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fields := decisionFields()
			fields["trade_id"] = fmt.Sprintf("T%04d", i)
			res, err := w.Append(context.Background(), Record{Type: DecisionSchema.RecordType, Fields: fields})
			assert.NoError(t, err)
			mu.Lock()
			seqs = append(seqs, res.Seq)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	require.Len(t, seqs, n)
	seen := make(map[uint64]bool, n)
	for _, s := range seqs {
		assert.False(t, seen[s], "sequence %d assigned twice", s)
		seen[s] = true
		assert.GreaterOrEqual(t, s, uint64(1))
		assert.LessOrEqual(t, s, uint64(n))
	}

	rep, err := NewValidator().Verify(w.files[DecisionSchema.RecordType])
	require.NoError(t, err)
	assert.True(t, rep.OK(), "violations: %v", rep.Violations)
	assert.Equal(t, n, rep.RowsPassed)
}

func TestAppendRejectsBadRecords(t *testing.T) {
	w, _ := newTestWriter(t)
	ctx := context.Background()

	_, err := w.Append(ctx, Record{Type: "no_such_type", Fields: decisionFields()})
	assert.Error(t, err)

	missing := decisionFields()
	delete(missing, "symbol")
	_, err = w.Append(ctx, Record{Type: DecisionSchema.RecordType, Fields: missing})
	assert.Error(t, err)

	extra := decisionFields()
	extra["surplus"] = "x"
	_, err = w.Append(ctx, Record{Type: DecisionSchema.RecordType, Fields: extra})
	assert.Error(t, err)

	owned := decisionFields()
	owned[FieldSeq] = "99"
	_, err = w.Append(ctx, Record{Type: DecisionSchema.RecordType, Fields: owned})
	assert.Error(t, err)

	breaking := decisionFields()
	breaking["symbol"] = "EUR,USD"
	_, err = w.Append(ctx, Record{Type: DecisionSchema.RecordType, Fields: breaking})
	assert.Error(t, err)

	// none of the rejected records consumed a sequence number
	res, err := w.Append(ctx, Record{Type: DecisionSchema.RecordType, Fields: decisionFields()})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Seq)
}

func TestAppendHonorsCancellationBeforeReservation(t *testing.T) {
	w, _ := newTestWriter(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.Append(ctx, Record{Type: DecisionSchema.RecordType, Fields: decisionFields()})
	assert.ErrorIs(t, err, context.Canceled)

	res, err := w.Append(context.Background(), Record{Type: DecisionSchema.RecordType, Fields: decisionFields()})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Seq)
}

func TestChecksumContract(t *testing.T) {
	fields := map[string]string{
		"b": "2",
		"a": "1",
		"c": "3",
	}
	// sorted names a,b,c -> "1|2|3"
	assert.Equal(t, Checksum(fields), Checksum(map[string]string{"a": "1", "c": "3", "b": "2"}))

	withChecksum := map[string]string{"a": "1", "b": "2", "c": "3", FieldChecksum: "ignored"}
	assert.Equal(t, Checksum(fields), Checksum(withChecksum), "checksum field itself is excluded")

	changed := map[string]string{"a": "1", "b": "2", "c": "4"}
	assert.NotEqual(t, Checksum(fields), Checksum(changed))
}

func TestParseFilename(t *testing.T) {
	typ, ok := parseFilename("reentry_decisions_20250307_093000.csv")
	assert.True(t, ok)
	assert.Equal(t, "reentry_decisions", typ)

	typ, ok = parseFilename("trade_results_20250307_093000.csv")
	assert.True(t, ok)
	assert.Equal(t, "trade_results", typ)

	for _, name := range []string{
		"reentry_decisions.csv",
		"reentry_decisions_20250307_093000.tmp",
		"reentry_decisions_2025037_093000.csv",
		"notes.txt",
	} {
		_, ok := parseFilename(name)
		assert.False(t, ok, "name %q", name)
	}
}
