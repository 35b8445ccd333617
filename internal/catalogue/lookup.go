package catalogue

import (
	"fmt"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/textnorm"
	apperrors "github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/errors"
)

// minNameSimilarity is the Jaro-Winkler score a fuzzy name match must reach.
const minNameSimilarity = 0.85

// resolve finds the entry named name, ignoring case and diacritics, and
// falls back to the closest name by Jaro-Winkler similarity. Image
// recognition labels rarely match catalogue names byte for byte.
func resolve(entries []Entry, name string) (Entry, error) {
	target := textnorm.Text(strings.TrimSpace(name))
	if target == "" {
		return Entry{}, fmt.Errorf("empty disease name: %w", apperrors.ErrDiseaseNotFound)
	}

	best := -1
	var bestSim float32
	for i, e := range entries {
		candidate := textnorm.Text(e.Name)
		if candidate == target {
			return e, nil
		}
		sim, err := edlib.StringsSimilarity(target, candidate, edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if sim > bestSim {
			best, bestSim = i, sim
		}
	}
	if best >= 0 && bestSim >= minNameSimilarity {
		return entries[best], nil
	}
	return Entry{}, fmt.Errorf("%q: %w", name, apperrors.ErrDiseaseNotFound)
}
