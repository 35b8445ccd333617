// Package vocabulary holds the read-only dictionaries the matcher consults:
// the synonym index, the stop-word set and the severity weight table. They
// are built once at start-up, either from the built-in Vietnamese lists or
// from a YAML file, and passed by pointer into the extractor and scorer.
package vocabulary

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Vocabulary bundles the three dictionaries.
type Vocabulary struct {
	Synonyms  *SynonymIndex
	StopWords *StopWords
	Severity  *SeverityTable
}

// Default builds the vocabulary from the built-in lists.
func Default() (*Vocabulary, error) {
	return build(DefaultSynonymGroups(), DefaultStopWords(), DefaultSeverityWeights())
}

// File is the on-disk vocabulary format:
//
//	synonyms:
//	  - canonical: vàng
//	    variants: [úa vàng, vàng úa]
//	stopwords: [của, là, cây]
//	severity:
//	  - term: nghiêm trọng
//	    weight: 0.9
//
// A section left empty falls back to the built-in list.
type File struct {
	Synonyms  []SynonymGroup   `yaml:"synonyms"`
	StopWords []string         `yaml:"stopwords"`
	Severity  []SeverityWeight `yaml:"severity"`
}

// LoadFile reads a vocabulary YAML file.
func LoadFile(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vocabulary file %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing vocabulary file %s: %w", path, err)
	}
	return FromFile(f)
}

// FromFile builds a vocabulary from a decoded File.
func FromFile(f File) (*Vocabulary, error) {
	synonyms := f.Synonyms
	if len(synonyms) == 0 {
		synonyms = DefaultSynonymGroups()
	}
	stops := f.StopWords
	if len(stops) == 0 {
		stops = DefaultStopWords()
	}
	severity := f.Severity
	if len(severity) == 0 {
		severity = DefaultSeverityWeights()
	}
	return build(synonyms, stops, severity)
}

// Load returns the vocabulary at path, or the built-in one when path is
// empty.
func Load(path string) (*Vocabulary, error) {
	if path == "" {
		return Default()
	}
	return LoadFile(path)
}

func build(groups []SynonymGroup, stops []string, weights []SeverityWeight) (*Vocabulary, error) {
	severity, err := NewSeverityTable(weights)
	if err != nil {
		return nil, fmt.Errorf("building severity table: %w", err)
	}
	return &Vocabulary{
		Synonyms:  NewSynonymIndex(groups),
		StopWords: NewStopWords(stops),
		Severity:  severity,
	}, nil
}
