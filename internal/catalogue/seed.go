package catalogue

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// seedFile is the YAML catalogue format:
//
//	diseases:
//	  - name: Đạo ôn
//	    symptoms: vết bệnh hình thoi, tâm xám, viền nâu
//	    severity: high
//	    treatment: phun thuốc đặc trị đạo ôn
//
// active defaults to true when omitted.
type seedFile struct {
	Diseases []seedEntry `yaml:"diseases"`
}

type seedEntry struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	ScientificName string `yaml:"scientificName"`
	Symptoms       string `yaml:"symptoms"`
	Severity       string `yaml:"severity"`
	Treatment      string `yaml:"treatment"`
	Active         *bool  `yaml:"active"`
}

// LoadSeed reads a YAML catalogue file.
func LoadSeed(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file %s: %w", path, err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes a YAML catalogue document.
func ParseSeed(data []byte) ([]Entry, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	entries := make([]Entry, 0, len(f.Diseases))
	for _, d := range f.Diseases {
		entries = append(entries, Entry{
			ID:             d.ID,
			Name:           d.Name,
			ScientificName: d.ScientificName,
			Symptoms:       d.Symptoms,
			Severity:       d.Severity,
			Treatment:      d.Treatment,
			Active:         d.Active == nil || *d.Active,
		})
	}
	return entries, nil
}

type bulkUpserter interface {
	UpsertAll(ctx context.Context, entries []Entry) error
}

// Seed writes entries into s, in one transaction when the store supports it.
func Seed(ctx context.Context, s Store, entries []Entry) error {
	if bulk, ok := s.(bulkUpserter); ok {
		return bulk.UpsertAll(ctx, entries)
	}
	for _, e := range entries {
		if err := s.Upsert(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
