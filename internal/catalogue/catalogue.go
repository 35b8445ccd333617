// Package catalogue stores the disease records the matcher ranks against.
// Stores are interchangeable: PostgreSQL for the service, SQLite for the CLI
// and local development, and an in-memory store for tests and seeding.
package catalogue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/matcher"
	apperrors "github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/errors"
)

// Entry is one disease record.
type Entry struct {
	ID             string    `yaml:"id" json:"id"`
	Name           string    `yaml:"name" json:"name"`
	ScientificName string    `yaml:"scientificName" json:"scientific_name,omitempty"`
	Symptoms       string    `yaml:"symptoms" json:"symptoms"`
	Severity       string    `yaml:"severity" json:"severity"`
	Treatment      string    `yaml:"treatment" json:"treatment,omitempty"`
	Active         bool      `yaml:"active" json:"active"`
	UpdatedAt      time.Time `yaml:"-" json:"updated_at"`
}

// Disease returns the read-only view the matcher consumes.
func (e Entry) Disease() matcher.Disease {
	return matcher.Disease{
		ID:       e.ID,
		Name:     e.Name,
		Symptoms: e.Symptoms,
		Severity: e.Severity,
		Active:   e.Active,
	}
}

// Diseases converts entries in order.
func Diseases(entries []Entry) []matcher.Disease {
	out := make([]matcher.Disease, len(entries))
	for i, e := range entries {
		out[i] = e.Disease()
	}
	return out
}

// Store is a disease catalogue. ActiveDiseases returns records in a stable
// order so ties in matching resolve the same way on every call.
type Store interface {
	ActiveDiseases(ctx context.Context) ([]Entry, error)
	Lookup(ctx context.Context, name string) (Entry, error)
	Upsert(ctx context.Context, e Entry) error
	Close() error
}

// Treatment returns the treatment text of the disease best matching name.
func Treatment(ctx context.Context, s Store, name string) (string, error) {
	e, err := s.Lookup(ctx, name)
	if err != nil {
		return "", err
	}
	return e.Treatment, nil
}

// prepare validates e and fills in its ID and timestamp.
func prepare(e Entry) (Entry, error) {
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return e, fmt.Errorf("disease name is required: %w", apperrors.ErrInvalidInput)
	}
	if strings.TrimSpace(e.Symptoms) == "" {
		return e, fmt.Errorf("disease %q has no symptoms: %w", e.Name, apperrors.ErrInvalidInput)
	}
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	return e, nil
}
