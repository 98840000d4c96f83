package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"reentry/internal/logger"
)

// ErrWriteFailure wraps any I/O error while committing a row. The row is
// either fully in the file or not present at all; callers own retry policy.
var ErrWriteFailure = errors.New("ledger write failure")

// Record is one append request. The writer supplies the three fixed
// fields; Fields must cover the schema's record-specific columns exactly.
type Record struct {
	Type   string
	Fields map[string]string
}

// AppendResult reports a committed row.
type AppendResult struct {
	Seq       uint64
	Checksum  string
	Path      string
	Timestamp time.Time
}

// Writer appends checksummed rows to per-record-type CSV files under one
// directory. The sequence counter spans the writer's lifetime and all
// record types; reservation and file write happen under one mutex, so two
// rows can never share a number and a failed write never burns one.
type Writer struct {
	dir string

	mu    sync.Mutex
	seq   uint64
	files map[string]string

	now func() time.Time
}

func NewWriter(dir string) (*Writer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("ledger writer requires a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	return &Writer{dir: dir, files: make(map[string]string), now: time.Now}, nil
}

// Append durably commits one record and returns its assigned sequence
// number and checksum. Cancellation is honored only before the sequence is
// reserved; once past that point the write completes or fails as a unit.
func (w *Writer) Append(ctx context.Context, rec Record) (AppendResult, error) {
	if err := ctx.Err(); err != nil {
		return AppendResult{}, err
	}
	schema, ok := SchemaFor(rec.Type)
	if !ok {
		return AppendResult{}, fmt.Errorf("unknown record type %q", rec.Type)
	}
	if err := checkFields(schema, rec.Fields); err != nil {
		return AppendResult{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	seq := w.seq + 1
	ts := w.now().UTC()

	row := make(map[string]string, len(rec.Fields)+3)
	for name, value := range rec.Fields {
		row[name] = value
	}
	row[FieldSeq] = strconv.FormatUint(seq, 10)
	row[FieldTimestamp] = ts.Format(time.RFC3339)
	sum := Checksum(row)
	row[FieldChecksum] = sum

	path, opened := w.files[rec.Type]
	if !opened {
		path = filepath.Join(w.dir, buildFilename(rec.Type, ts))
	}
	if err := commit(path, headerLine(schema), renderRow(schema, row)); err != nil {
		return AppendResult{}, fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	// the sequence number is consumed only by a committed row
	w.seq = seq
	if !opened {
		w.files[rec.Type] = path
		logger.Infof("ledger writing %s rows to %s", rec.Type, filepath.Base(path))
	}
	return AppendResult{Seq: seq, Checksum: sum, Path: path, Timestamp: ts}, nil
}

// checkFields rejects records that do not fit the schema before any state
// changes: missing or surplus columns, writer-owned fields supplied by the
// caller, and values that would break the unquoted CSV shape.
func checkFields(schema Schema, fields map[string]string) error {
	for _, fixed := range []string{FieldSeq, FieldChecksum, FieldTimestamp} {
		if _, clash := fields[fixed]; clash {
			return fmt.Errorf("field %q is writer-owned", fixed)
		}
	}
	for _, spec := range schema.Fields {
		value, ok := fields[spec.Name]
		if !ok {
			return fmt.Errorf("record missing field %q", spec.Name)
		}
		if strings.ContainsAny(value, ",\"\r\n") {
			return fmt.Errorf("field %q value %q contains CSV-breaking characters", spec.Name, value)
		}
	}
	if len(fields) != len(schema.Fields) {
		known := make(map[string]struct{}, len(schema.Fields))
		for _, spec := range schema.Fields {
			known[spec.Name] = struct{}{}
		}
		for name := range fields {
			if _, ok := known[name]; !ok {
				return fmt.Errorf("field %q is not part of schema %s", name, schema.RecordType)
			}
		}
	}
	return nil
}

// commit writes the complete new content (existing rows plus the new one)
// to a sibling .tmp file, forces it to stable storage and renames it over
// the target. Both the fresh-file and append paths go through here, so a
// reader never observes a partial row.
func commit(path, header, line string) error {
	var content strings.Builder
	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		content.Write(existing)
		if len(existing) > 0 && existing[len(existing)-1] != '\n' {
			content.WriteByte('\n')
		}
	case errors.Is(err, fs.ErrNotExist):
		content.WriteString(header)
		content.WriteByte('\n')
	default:
		return err
	}
	content.WriteString(line)
	content.WriteByte('\n')

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content.String()); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return syncDir(filepath.Dir(path))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

func headerLine(schema Schema) string {
	cols := append([]string{FieldSeq, FieldChecksum, FieldTimestamp}, schema.FieldNames()...)
	return strings.Join(cols, ",")
}

func renderRow(schema Schema, row map[string]string) string {
	values := make([]string, 0, len(schema.Fields)+3)
	values = append(values, row[FieldSeq], row[FieldChecksum], row[FieldTimestamp])
	for _, spec := range schema.Fields {
		values = append(values, row[spec.Name])
	}
	return strings.Join(values, ",")
}

// buildFilename stamps the session file name: <record_type>_<YYYYMMDD>_<HHMMSS>.csv.
func buildFilename(recordType string, t time.Time) string {
	return fmt.Sprintf("%s_%s.csv", recordType, t.Format("20060102_150405"))
}

// parseFilename recovers the record type from a ledger file name, or
// ok=false when the name does not follow the convention.
func parseFilename(name string) (recordType string, ok bool) {
	base := strings.TrimSuffix(name, ".csv")
	if base == name {
		return "", false
	}
	segs := strings.Split(base, "_")
	if len(segs) < 3 {
		return "", false
	}
	date, clock := segs[len(segs)-2], segs[len(segs)-1]
	if !allDigits(date, 8) || !allDigits(clock, 6) {
		return "", false
	}
	return strings.Join(segs[:len(segs)-2], "_"), true
}

func allDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
