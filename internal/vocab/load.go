package vocab

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// overrideFile is the on-disk override shape. Omitted sections keep their
// built-in defaults; unknown keys fail the load.
type overrideFile struct {
	Outcomes         []string `yaml:"outcomes"`
	Durations        []string `yaml:"durations"`
	Proximities      []string `yaml:"proximities"`
	Directions       []string `yaml:"directions"`
	CalendarPatterns []string `yaml:"calendar_patterns"`
	Generation       *struct {
		Min int `yaml:"min"`
		Max int `yaml:"max"`
	} `yaml:"generation"`
}

// Load builds a Vocabulary from an override file, or the built-in default
// when path is empty. The file is decoded strictly and the merged result is
// validated as a whole; any problem fails the load.
func Load(path string) (*Vocabulary, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary file: %w", err)
	}
	var of overrideFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&of); err != nil {
		return nil, fmt.Errorf("parse vocabulary file %s: %w", path, err)
	}

	outcomes := pick(of.Outcomes, defaultOutcomes)
	durations := pick(of.Durations, defaultDurations)
	proximities := pick(of.Proximities, defaultProximities)
	directions := pick(of.Directions, defaultDirections)
	patterns := pick(of.CalendarPatterns, defaultCalendarPatterns)
	genMin, genMax := defaultGenerationMin, defaultGenerationMax
	if of.Generation != nil {
		genMin, genMax = of.Generation.Min, of.Generation.Max
	}

	v, err := build(outcomes, durations, proximities, directions, patterns, genMin, genMax)
	if err != nil {
		return nil, fmt.Errorf("vocabulary file %s: %w", path, err)
	}
	return v, nil
}

func pick(override, fallback []string) []string {
	if len(override) > 0 {
		return override
	}
	return fallback
}
