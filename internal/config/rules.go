// Package config loads the audit rules file: allow-lists, the test-account
// marker, age brackets and identifier formats.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/yourorg/case-audit/internal/analysis"
	"github.com/yourorg/case-audit/internal/cleaner"
	"github.com/yourorg/case-audit/internal/pipeline"
	"github.com/yourorg/case-audit/internal/predicate"
)

var ErrInvalid = errors.New("invalid rules")

// Identifier binds a column to the format it is validated against.
type Identifier struct {
	Field  string          `yaml:"field"`
	Format pipeline.Format `yaml:",inline"`
}

// Rules is the YAML rules document. Omitted fields take the defaults.
type Rules struct {
	AllowedStates     []string           `yaml:"allowed_states"`
	AllowedOwnerTypes []string           `yaml:"allowed_owner_types"`
	TestMarker        string             `yaml:"test_marker"`
	SkipOwnerType     bool               `yaml:"skip_owner_type"`
	AgeBrackets       predicate.Brackets `yaml:"age_brackets"`
	Aadhaar           Identifier         `yaml:"aadhaar"`
	Phone             Identifier         `yaml:"phone"`
	Languages         []string           `yaml:"languages"`
	// PartitionPattern selects data files inside a partition folder.
	PartitionPattern string `yaml:"partition_pattern"`
	// LocationFixture is the URI of the location table.
	LocationFixture string `yaml:"location_fixture"`
}

// Default returns the rules used when no file is given.
func Default() Rules {
	r := Rules{}
	r.applyDefaults()
	return r
}

func (r *Rules) applyDefaults() {
	if len(r.AllowedStates) == 0 {
		r.AllowedStates = append([]string(nil), cleaner.DefaultStates...)
	}
	if len(r.AllowedOwnerTypes) == 0 {
		r.AllowedOwnerTypes = []string{"aww"}
	}
	if r.TestMarker == "" {
		r.TestMarker = "test"
	}
	if len(r.AgeBrackets) == 0 {
		r.AgeBrackets = predicate.DefaultBrackets
	}
	if r.Aadhaar.Field == "" {
		r.Aadhaar.Field = "aadhar_number"
	}
	if r.Aadhaar.Format == (pipeline.Format{}) {
		r.Aadhaar.Format = pipeline.Aadhaar
	}
	if r.Phone.Field == "" {
		r.Phone.Field = "contact_phone_number"
	}
	if r.Phone.Format == (pipeline.Format{}) {
		r.Phone.Format = pipeline.Phone
	}
	if len(r.Languages) == 0 {
		r.Languages = append([]string(nil), analysis.LanguageCodes...)
	}
	if r.PartitionPattern == "" {
		r.PartitionPattern = `^Cases_\d+\.csv(\.gz)?$`
	}
}

// Validate reports the first problem found.
func (r Rules) Validate() error {
	if !r.AgeBrackets.Valid() {
		return fmt.Errorf("%w: age brackets must be labelled and ascending", ErrInvalid)
	}
	for _, id := range []Identifier{r.Aadhaar, r.Phone} {
		if err := id.Format.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	if _, err := regexp.Compile(r.PartitionPattern); err != nil {
		return fmt.Errorf("%w: partition_pattern: %v", ErrInvalid, err)
	}
	return nil
}

// Parse decodes a rules document. ${VAR} references are expanded from the
// environment before decoding.
func Parse(data []byte) (Rules, error) {
	var r Rules
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &r); err != nil {
		return Rules{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	r.applyDefaults()
	if err := r.Validate(); err != nil {
		return Rules{}, err
	}
	return r, nil
}

// Load reads a rules file. An empty path yields Default.
func Load(path string) (Rules, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, err
	}
	return Parse(data)
}

// Cleaner returns the cleaner settings the rules imply.
func (r Rules) Cleaner() cleaner.Config {
	cfg := cleaner.DefaultConfig()
	cfg.AllowedStates = r.AllowedStates
	cfg.AllowedOwnerTypes = r.AllowedOwnerTypes
	cfg.TestMarker = r.TestMarker
	cfg.SkipOwnerType = r.SkipOwnerType
	return cfg
}

// Pattern compiles PartitionPattern. Rules from Parse always compile.
func (r Rules) Pattern() *regexp.Regexp {
	return regexp.MustCompile(r.PartitionPattern)
}
