package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Violation kinds reported by the validator.
const (
	ViolationChecksum = "checksum_mismatch"
	ViolationSequence = "sequence_violation"
	ViolationShape    = "shape_violation"
)

type Violation struct {
	Line    int
	Field   string
	Kind    string
	Message string
}

// Report is the complete audit result for one file. Every violation is
// listed, not just the first, so a corrupted file yields the full repair
// picture in one pass.
type Report struct {
	Path       string
	RecordType string
	VerifiedAt time.Time

	RowsChecked int
	RowsPassed  int
	RowsFailed  int

	ChecksumFailures   int
	SequenceViolations int
	ShapeViolations    int

	Violations []Violation
}

func (r *Report) OK() bool {
	return len(r.Violations) == 0
}

func (r *Report) add(v Violation) {
	r.Violations = append(r.Violations, v)
	switch v.Kind {
	case ViolationChecksum:
		r.ChecksumFailures++
	case ViolationSequence:
		r.SequenceViolations++
	case ViolationShape:
		r.ShapeViolations++
	}
}

// Validator re-verifies ledger files without trusting the writer. It never
// mutates the files it inspects; quarantine decisions belong to the
// invoking collaborator.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Verify audits one file: checksum per row, strictly increasing file_seq,
// and shape/type conformance against the registered schema when the
// filename identifies one. The returned error covers unreadable files
// only; content problems land in the report.
func (v *Validator) Verify(path string) (Report, error) {
	report := Report{Path: path, VerifiedAt: time.Now().UTC()}

	data, err := os.ReadFile(path)
	if err != nil {
		return report, fmt.Errorf("read ledger file: %w", err)
	}

	recordType, named := parseFilename(filepath.Base(path))
	if named {
		report.RecordType = recordType
	} else {
		report.add(Violation{Line: 0, Kind: ViolationShape,
			Message: fmt.Sprintf("filename %q does not follow <record_type>_<YYYYMMDD>_<HHMMSS>.csv", filepath.Base(path))})
	}

	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	if len(lines) == 0 {
		report.add(Violation{Line: 0, Kind: ViolationShape, Message: "file is empty"})
		return report, nil
	}

	header := strings.Split(lines[0], ",")
	if len(header) < 4 ||
		header[0] != FieldSeq || header[1] != FieldChecksum || header[2] != FieldTimestamp {
		report.add(Violation{Line: 1, Kind: ViolationShape,
			Message: fmt.Sprintf("header must begin with %s,%s,%s", FieldSeq, FieldChecksum, FieldTimestamp)})
		return report, nil
	}

	kinds := map[string]FieldKind{FieldTimestamp: KindTime}
	if schema, known := SchemaFor(report.RecordType); known {
		declared := strings.Join(header[3:], ",")
		expected := strings.Join(schema.FieldNames(), ",")
		if declared != expected {
			report.add(Violation{Line: 1, Kind: ViolationShape,
				Message: fmt.Sprintf("columns %q do not match schema %s (%q)", declared, schema.RecordType, expected)})
		} else {
			for _, spec := range schema.Fields {
				kinds[spec.Name] = spec.Kind
			}
		}
	}

	var prevSeq uint64
	for i, line := range lines[1:] {
		lineNo := i + 2
		report.RowsChecked++
		before := len(report.Violations)

		cols := strings.Split(line, ",")
		if len(cols) != len(header) {
			report.add(Violation{Line: lineNo, Kind: ViolationShape,
				Message: fmt.Sprintf("row has %d columns, header has %d", len(cols), len(header))})
			report.RowsFailed++
			continue
		}

		row := make(map[string]string, len(cols))
		for j, name := range header {
			row[name] = cols[j]
		}

		seq, err := strconv.ParseUint(row[FieldSeq], 10, 64)
		if err != nil {
			report.add(Violation{Line: lineNo, Field: FieldSeq, Kind: ViolationShape,
				Message: fmt.Sprintf("%s %q is not an unsigned integer", FieldSeq, row[FieldSeq])})
		} else {
			if seq <= prevSeq {
				report.add(Violation{Line: lineNo, Field: FieldSeq, Kind: ViolationSequence,
					Message: fmt.Sprintf("%s %d does not increase over %d", FieldSeq, seq, prevSeq)})
			}
			prevSeq = seq
		}

		if !checksumShape(row[FieldChecksum]) {
			report.add(Violation{Line: lineNo, Field: FieldChecksum, Kind: ViolationShape,
				Message: "checksum is not 64 lowercase hex characters"})
		} else if sum := Checksum(row); sum != row[FieldChecksum] {
			report.add(Violation{Line: lineNo, Field: FieldChecksum, Kind: ViolationChecksum,
				Message: fmt.Sprintf("stored checksum %s, recomputed %s", row[FieldChecksum], sum)})
		}

		for _, name := range header[2:] {
			kind, typed := kinds[name]
			if !typed {
				continue
			}
			value := row[name]
			switch kind {
			case KindNumber:
				if _, err := strconv.ParseFloat(value, 64); err != nil {
					report.add(Violation{Line: lineNo, Field: name, Kind: ViolationShape,
						Message: fmt.Sprintf("%s %q is not numeric", name, value)})
				}
			case KindInteger:
				if _, err := strconv.ParseInt(value, 10, 64); err != nil {
					report.add(Violation{Line: lineNo, Field: name, Kind: ViolationShape,
						Message: fmt.Sprintf("%s %q is not an integer", name, value)})
				}
			case KindTime:
				if _, err := time.Parse(time.RFC3339, value); err != nil {
					report.add(Violation{Line: lineNo, Field: name, Kind: ViolationShape,
						Message: fmt.Sprintf("%s %q is not an RFC 3339 instant", name, value)})
				}
			}
		}

		if len(report.Violations) == before {
			report.RowsPassed++
		} else {
			report.RowsFailed++
		}
	}
	return report, nil
}

// VerifyDir audits every .csv ledger in dir concurrently. In-flight .tmp
// files are ignored. Reports come back sorted by path.
func (v *Validator) VerifyDir(ctx context.Context, dir string, workers int) ([]Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read ledger directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	reports := make([]Report, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rep, err := v.Verify(path)
			if err != nil {
				return err
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}
