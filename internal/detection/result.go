// Package detection turns matcher outcomes into persisted, cached and
// reported detection results, and serves them over HTTP.
package detection

import (
	"math"
	"time"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/matcher"
)

// Method says how a detection was requested.
type Method string

const (
	MethodSymptoms Method = "symptoms"
	MethodImage    Method = "image"
)

// Result is one detection as returned to clients and stored in history.
// Confidence is a percentage with one decimal.
type Result struct {
	ID           string         `json:"id"`
	Method       Method         `json:"method"`
	DiseaseName  string         `json:"disease_name,omitempty"`
	Confidence   float64        `json:"confidence"`
	Severity     string         `json:"severity,omitempty"`
	Treatment    string         `json:"treatment,omitempty"`
	Alternatives []string       `json:"alternatives"`
	Status       matcher.Status `json:"status"`
	Reason       matcher.Reason `json:"reason,omitempty"`
	Suggestion   string         `json:"suggestion,omitempty"`
	Keywords     []string       `json:"keywords,omitempty"`
	Description  string         `json:"description,omitempty"`
	ImageRef     string         `json:"image_ref,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Confident reports whether the result names a disease with enough
// confidence to act on.
func (r *Result) Confident() bool {
	return r.Status == matcher.StatusConfident
}

// ImagePrediction is what an external image classifier returned for a
// photo: its top disease name and a probability in [0,1].
type ImagePrediction struct {
	DiseaseName string  `json:"disease_name"`
	Probability float64 `json:"probability"`
	ImageRef    string  `json:"image_ref,omitempty"`
}

// fromOutcome maps a matcher outcome onto a result. The best candidate is
// named for both confident and inconclusive outcomes so clients can show
// the lead; only confident results carry a treatment.
func fromOutcome(method Method, out matcher.Outcome) *Result {
	r := &Result{
		Method:       method,
		Confidence:   confidencePercent(out.BestScore),
		Alternatives: out.Alternatives,
		Status:       out.Status,
		Reason:       out.Reason,
		Suggestion:   out.Suggestion,
		Keywords:     []string(out.Keywords),
	}
	if r.Alternatives == nil {
		r.Alternatives = []string{}
	}
	if out.Best != nil {
		r.DiseaseName = out.Best.Disease.Name
		r.Severity = out.Best.Disease.Severity
	}
	return r
}

func confidencePercent(score float64) float64 {
	if math.IsNaN(score) || score <= 0 {
		return 0
	}
	return math.Round(min(score, 1)*1000) / 10
}
