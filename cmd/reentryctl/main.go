// reentryctl is the operator companion to the engine: ledger audits,
// identifier codec round-trips and rule-resolution dry runs without
// touching a live process.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"reentry/internal/hybrid"
	"reentry/internal/ledger"
	"reentry/internal/rules"
	"reentry/internal/store/journal"
	"reentry/internal/vocab"
)

var osExit = os.Exit

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Print(err)
		osExit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return errors.New("command required")
	}
	switch args[0] {
	case "verify":
		return verifyCmd(args[1:], out)
	case "compose":
		return composeCmd(args[1:], out)
	case "parse":
		return parseCmd(args[1:], out)
	case "hash":
		return hashCmd(args[1:], out)
	case "resolve":
		return resolveCmd(args[1:], out)
	case "recent":
		return recentCmd(args[1:], out)
	default:
		usage(out)
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "reentryctl commands:")
	fmt.Fprintln(out, "  verify --path <ledger file or dir> [--workers 4]")
	fmt.Fprintln(out, "  compose --outcome W1 --duration QUICK --proximity AT_EVENT --direction LONG --generation 1 [--calendar NONE] [--suffix ab12cd]")
	fmt.Fprintln(out, "  parse --id W1_QUICK_AT_EVENT_NONE_LONG_1")
	fmt.Fprintln(out, "  hash --id W1_QUICK_AT_EVENT_NONE_LONG_1")
	fmt.Fprintln(out, "  resolve --rules configs/parameter_sets.yaml --outcome L1 --duration FLASH [--proximity ...] [--calendar ...] [--symbol ...] [--generation 1]")
	fmt.Fprintln(out, "  recent --journal <journal.db> [--symbol EURUSD] [--limit 20]")
	fmt.Fprintln(out, "compose/parse/hash/resolve accept --vocab <file> to replace the built-in token sets")
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func loadVocab(path string) (*vocab.Vocabulary, error) {
	if strings.TrimSpace(path) == "" {
		return vocab.Default(), nil
	}
	return vocab.Load(path)
}

func verifyCmd(args []string, out io.Writer) error {
	fs := newFlagSet("verify")
	path := fs.String("path", "", "ledger file or directory")
	workers := fs.Int("workers", 4, "parallel file verifications")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return errors.New("path required")
	}
	info, err := os.Stat(*path)
	if err != nil {
		return fmt.Errorf("stat path: %w", err)
	}

	validator := ledger.NewValidator()
	var reports []ledger.Report
	if info.IsDir() {
		reports, err = validator.VerifyDir(context.Background(), *path, *workers)
		if err != nil {
			return fmt.Errorf("verify directory: %w", err)
		}
	} else {
		report, err := validator.Verify(*path)
		if err != nil {
			return fmt.Errorf("verify file: %w", err)
		}
		reports = append(reports, report)
	}

	failed := 0
	for i := range reports {
		printReport(out, &reports[i])
		if !reports[i].OK() {
			failed++
		}
	}
	fmt.Fprintf(out, "%d file(s) verified, %d with violations\n", len(reports), failed)
	if failed > 0 {
		return fmt.Errorf("%d ledger file(s) failed verification", failed)
	}
	return nil
}

func printReport(out io.Writer, r *ledger.Report) {
	status := "OK  "
	if !r.OK() {
		status = "FAIL"
	}
	fmt.Fprintf(out, "%s %s: %d rows, %d passed, %d failed\n", status, r.Path, r.RowsChecked, r.RowsPassed, r.RowsFailed)
	for _, v := range r.Violations {
		fmt.Fprintf(out, "     line %d [%s] %s\n", v.Line, v.Kind, v.Message)
	}
}

func composeCmd(args []string, out io.Writer) error {
	fs := newFlagSet("compose")
	outcome := fs.String("outcome", "", "outcome token")
	duration := fs.String("duration", "", "duration token")
	proximity := fs.String("proximity", "", "proximity token")
	calendar := fs.String("calendar", vocab.CalendarNone, "calendar token")
	direction := fs.String("direction", "", "direction token")
	generation := fs.Int("generation", 1, "chain generation")
	suffix := fs.String("suffix", "", "optional six-char lowercase suffix")
	vocabPath := fs.String("vocab", "", "vocabulary override file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	voc, err := loadVocab(*vocabPath)
	if err != nil {
		return fmt.Errorf("load vocabulary: %w", err)
	}
	id, err := hybrid.NewCodec(voc).Compose(*outcome, *duration, *proximity, *calendar, *direction, *generation, *suffix)
	if err != nil {
		return err
	}
	position, err := hybrid.ChainPosition(id.Generation)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, id.String())
	fmt.Fprintf(out, "hash: %s  chain: %s\n", id.Hash(), position)
	return nil
}

func parseCmd(args []string, out io.Writer) error {
	fs := newFlagSet("parse")
	raw := fs.String("id", "", "identifier to decode")
	vocabPath := fs.String("vocab", "", "vocabulary override file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *raw == "" {
		return errors.New("id required")
	}
	voc, err := loadVocab(*vocabPath)
	if err != nil {
		return fmt.Errorf("load vocabulary: %w", err)
	}
	id, err := hybrid.NewCodec(voc).Parse(*raw)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "outcome:    %s\n", id.Outcome)
	fmt.Fprintf(out, "duration:   %s\n", id.Duration)
	fmt.Fprintf(out, "proximity:  %s\n", id.Proximity)
	fmt.Fprintf(out, "calendar:   %s\n", id.Calendar)
	fmt.Fprintf(out, "direction:  %s\n", id.Direction)
	fmt.Fprintf(out, "generation: %d\n", id.Generation)
	if id.Suffix != "" {
		fmt.Fprintf(out, "suffix:     %s\n", id.Suffix)
	}
	fmt.Fprintf(out, "hash:       %s\n", id.Hash())
	return nil
}

func hashCmd(args []string, out io.Writer) error {
	fs := newFlagSet("hash")
	raw := fs.String("id", "", "identifier to hash")
	vocabPath := fs.String("vocab", "", "vocabulary override file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *raw == "" {
		return errors.New("id required")
	}
	voc, err := loadVocab(*vocabPath)
	if err != nil {
		return fmt.Errorf("load vocabulary: %w", err)
	}
	id, err := hybrid.NewCodec(voc).Parse(*raw)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, id.Hash())
	return nil
}

func resolveCmd(args []string, out io.Writer) error {
	fs := newFlagSet("resolve")
	rulesPath := fs.String("rules", "", "parameter-set file")
	outcome := fs.String("outcome", "", "outcome token")
	duration := fs.String("duration", "", "duration token")
	proximity := fs.String("proximity", "", "proximity token")
	calendar := fs.String("calendar", "", "calendar token")
	symbol := fs.String("symbol", "", "canonical symbol")
	generation := fs.Int("generation", 1, "chain generation")
	vocabPath := fs.String("vocab", "", "vocabulary override file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rulesPath == "" {
		return errors.New("rules required")
	}
	voc, err := loadVocab(*vocabPath)
	if err != nil {
		return fmt.Errorf("load vocabulary: %w", err)
	}
	reg, err := rules.NewRegistry(*rulesPath, voc, false)
	if err != nil {
		return fmt.Errorf("load parameter sets: %w", err)
	}
	res := rules.NewResolver(reg).Resolve(rules.Query{
		Outcome:    *outcome,
		Duration:   *duration,
		Proximity:  *proximity,
		Calendar:   *calendar,
		Symbol:     strings.ToUpper(strings.TrimSpace(*symbol)),
		Generation: *generation,
	})
	if res.Emergency {
		fmt.Fprintln(out, "EMERGENCY: no parameter set matched, re-entry disabled")
	} else {
		fmt.Fprintf(out, "matched %s (tier %s, specificity %.2f)\n", res.SetID, res.Tier, res.Specificity)
	}
	fmt.Fprintf(out, "reentry_enabled:      %v\n", res.ReentryEnabled)
	fmt.Fprintf(out, "max_generation:       %d (generation within: %v)\n", res.MaxGeneration, res.WithinMaxGeneration)
	fmt.Fprintf(out, "lot_multiplier:       %g\n", res.LotMultiplier)
	fmt.Fprintf(out, "stop_loss_pips:       %g\n", res.StopLossPips)
	fmt.Fprintf(out, "take_profit_pips:     %g\n", res.TakeProfitPips)
	fmt.Fprintf(out, "confidence_threshold: %g\n", res.ConfidenceThreshold)
	fmt.Fprintf(out, "wait_window_seconds:  %d..%d\n", res.MinWaitSeconds, res.MaxWaitSeconds)
	return nil
}

func recentCmd(args []string, out io.Writer) error {
	fs := newFlagSet("recent")
	path := fs.String("journal", "", "journal sqlite file")
	symbol := fs.String("symbol", "", "filter by symbol")
	limit := fs.Int("limit", 20, "maximum rows")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return errors.New("journal required")
	}
	// Open would create a fresh database on a typo; insist the file exists.
	if _, err := os.Stat(*path); err != nil {
		return fmt.Errorf("journal file: %w", err)
	}
	store, err := journal.Open(*path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer store.Close()

	entries, err := store.Recent(context.Background(), *symbol, *limit)
	if err != nil {
		return fmt.Errorf("query journal: %w", err)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "no decisions recorded")
		return nil
	}
	for _, e := range entries {
		line, err := json.Marshal(e.Response)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s %s\n", e.RecordedAt.Format(time.RFC3339), e.TraceID, line)
	}
	return nil
}
