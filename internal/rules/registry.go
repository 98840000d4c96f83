package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"reentry/internal/logger"
	"reentry/internal/pkg/wildcard"
	"reentry/internal/vocab"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	ParameterSets map[string]ParameterSet `mapstructure:"parameter_sets" yaml:"parameter_sets"`
}

// Snapshot is an immutable view of the loaded parameter sets, sorted by
// tier rank then id.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Sets     []ParameterSet

	byTier map[Tier][]ParameterSet
}

// ChangeListener fires after a successful reload.
type ChangeListener func(Snapshot)

// Registry owns the rule file. Loads are all-or-nothing: any invalid entry
// rejects the whole file and, on reload, keeps the previous snapshot.
type Registry struct {
	path  string
	v     *viper.Viper
	vocab *vocab.Vocabulary

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry loads path against voc and optionally watches the file for
// changes. Construction fails if the initial load fails.
func NewRegistry(path string, voc *vocab.Vocabulary, watch bool) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("rule registry requires a file path")
	}
	if voc == nil {
		return nil, fmt.Errorf("rule registry requires a vocabulary")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read rule file failed: %w", err)
	}
	r := &Registry{path: path, v: v, vocab: voc}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	if watch {
		v.OnConfigChange(func(fsnotify.Event) {
			if err := r.Reload(); err != nil {
				logger.Errorf("rule reload failed, keeping previous snapshot: %v", err)
			}
		})
		v.WatchConfig()
	}
	return r, nil
}

// Snapshot returns a copy of the current set collection.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		Version:  r.snapshot.Version,
		LoadedAt: r.snapshot.LoadedAt,
		Sets:     append([]ParameterSet(nil), r.snapshot.Sets...),
	}
}

// current hands the resolver the live snapshot without copying; snapshots
// are never mutated after the swap.
func (r *Registry) current() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// Subscribe registers a listener for successful reloads.
func (r *Registry) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Reload re-reads and re-validates the rule file, swapping in a new
// snapshot only when the whole file is valid.
func (r *Registry) Reload() error {
	sets, err := loadRuleFile(r.path, r.vocab)
	if err != nil {
		return err
	}
	byTier := make(map[Tier][]ParameterSet)
	for _, set := range sets {
		byTier[set.Tier] = append(byTier[set.Tier], set)
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Sets:     sets,
		byTier:   byTier,
	}
	r.mu.Unlock()
	logger.Infof("rule registry loaded %d parameter sets from %s", len(sets), filepath.Base(r.path))
	r.notifyListeners()
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := Snapshot{
		Version:  r.snapshot.Version,
		LoadedAt: r.snapshot.LoadedAt,
		Sets:     append([]ParameterSet(nil), r.snapshot.Sets...),
	}
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer safeRecover("rule change listener")
			cb(snap)
		}(fn)
	}
}

func safeRecover(tag string) {
	if rec := recover(); rec != nil {
		logger.Errorf("%s panic: %v", tag, rec)
	}
}

// loadRuleFile runs the full validation pipeline: structural schema pass,
// strict typed decode, then token/pattern/range checks. Every problem is
// collected so one load attempt reports the complete error list.
func loadRuleFile(path string, voc *vocab.Vocabulary) ([]ParameterSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file failed: %w", err)
	}

	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("parse rule file failed: %w", err)
	}
	// The schema validator expects json-decoded values, so the yaml document
	// goes through encoding/json before validation.
	doc, err := jsonDocument(generic)
	if err != nil {
		return nil, fmt.Errorf("encode rule file for validation failed: %w", err)
	}
	schema, err := compiledRuleSchema()
	if err != nil {
		return nil, fmt.Errorf("compile rule schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("rule file %s rejected by schema: %w", filepath.Base(path), err)
	}

	var cfg fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse rule file failed: %w", err)
	}

	sets := make([]ParameterSet, 0, len(cfg.ParameterSets))
	var problems []string
	seen := make(map[string]string, len(cfg.ParameterSets))
	for name, set := range cfg.ParameterSets {
		set.ID = strings.TrimSpace(set.ID)
		if set.ID == "" {
			set.ID = strings.TrimSpace(name)
		}
		if prev, dup := seen[set.ID]; dup {
			problems = append(problems, fmt.Sprintf("%s: id %q already used by %s", name, set.ID, prev))
			continue
		}
		seen[set.ID] = name
		problems = append(problems, validateSet(set, voc)...)
		sets = append(sets, set)
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, fmt.Errorf("rule file %s invalid: %s", filepath.Base(path), strings.Join(problems, "; "))
	}

	sort.Slice(sets, func(i, j int) bool {
		if a, b := tierRank(sets[i].Tier), tierRank(sets[j].Tier); a != b {
			return a < b
		}
		return sets[i].ID < sets[j].ID
	})
	return sets, nil
}

func jsonDocument(v any) (any, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func validateSet(set ParameterSet, voc *vocab.Vocabulary) []string {
	var problems []string
	fail := func(format string, v ...any) {
		problems = append(problems, set.ID+": "+fmt.Sprintf(format, v...))
	}

	if _, err := ParseTier(string(set.Tier)); err != nil {
		fail("%v", err)
	}

	m := set.Match
	if !isWildcard(m.Outcome) && !voc.IsOutcome(m.Outcome) {
		fail("match outcome %q is not a legal token", m.Outcome)
	}
	if !isWildcard(m.Duration) && !voc.IsDuration(m.Duration) {
		fail("match duration %q is not a legal token", m.Duration)
	}
	if !isWildcard(m.Proximity) && !voc.IsProximity(m.Proximity) {
		fail("match proximity %q is not a legal token", m.Proximity)
	}
	if m.Calendar != "" {
		if err := wildcard.Validate(m.Calendar); err != nil {
			fail("match calendar: %v", err)
		} else if wildcard.IsExact(m.Calendar) && !voc.IsCalendar(m.Calendar) {
			fail("match calendar %q is not a legal token", m.Calendar)
		}
	}
	if m.Symbol != "" {
		if err := wildcard.Validate(m.Symbol); err != nil {
			fail("match symbol: %v", err)
		}
	}

	vals := set.Values
	_, genMax := voc.GenerationRange()
	if vals.MaxGeneration < 1 || vals.MaxGeneration > genMax {
		fail("max_generation %d outside 1..%d", vals.MaxGeneration, genMax)
	}
	if vals.LotMultiplier <= 0 {
		fail("lot_multiplier must be positive")
	}
	if vals.ConfidenceThreshold < 0 || vals.ConfidenceThreshold > 1 {
		fail("confidence_threshold %v outside [0,1]", vals.ConfidenceThreshold)
	}
	if vals.MaxWaitSeconds > 0 && vals.MinWaitSeconds > vals.MaxWaitSeconds {
		fail("wait window %d..%d is inverted", vals.MinWaitSeconds, vals.MaxWaitSeconds)
	}
	return problems
}

func tierRank(t Tier) int {
	for i, x := range tierOrder {
		if x == t {
			return i
		}
	}
	return len(tierOrder)
}
