// Package classifier implements the follow-up/escalation decision model: an
// additive logistic model over standardized per-feature basis columns, trained
// on a seeded synthetic corpus, with exact per-feature attributions.
package classifier

import (
	"fmt"
	"math"
	"time"

	"civic_followup_engine/internal/domain/decision"
)

const modelVersion = 1

// Model is the persisted decision model. The scaler (Mean, Scale) travels in the
// same document as the weights so the two can never be loaded out of sync.
//
// Every input feature j expands into 1+len(Knots[j]) basis columns: the raw
// value followed by one step indicator (x >= knot) per knot. Columns are laid
// out feature by feature in decision.FeatureOrder.
type Model struct {
	Version   int         `json:"version"`
	Seed      uint64      `json:"seed"`
	Knots     [][]float64 `json:"knots"`
	Mean      []float64   `json:"mean"`
	Scale     []float64   `json:"scale"`
	Weights   []float64   `json:"weights"`
	Intercept float64     `json:"intercept"`
	Accuracy  float64     `json:"training_accuracy"`
	TrainedAt time.Time   `json:"trained_at"`
}

func numColumns(knots [][]float64) int {
	n := 0
	for _, k := range knots {
		n += 1 + len(k)
	}
	return n
}

// Validate checks that the document is internally consistent.
func (m *Model) Validate() error {
	if m == nil {
		return fmt.Errorf("nil model")
	}
	if m.Version != modelVersion {
		return fmt.Errorf("unsupported model version %d", m.Version)
	}
	if len(m.Knots) != decision.NumFeatures {
		return fmt.Errorf("model has knots for %d features, want %d", len(m.Knots), decision.NumFeatures)
	}
	cols := numColumns(m.Knots)
	if len(m.Mean) != cols || len(m.Scale) != cols || len(m.Weights) != cols {
		return fmt.Errorf("model column mismatch: knots imply %d columns, got mean=%d scale=%d weights=%d",
			cols, len(m.Mean), len(m.Scale), len(m.Weights))
	}
	for i, s := range m.Scale {
		if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("invalid scale %v for column %d", s, i)
		}
	}
	for i, w := range m.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("invalid weight %v for column %d", w, i)
		}
	}
	if math.IsNaN(m.Intercept) || math.IsInf(m.Intercept, 0) {
		return fmt.Errorf("invalid intercept %v", m.Intercept)
	}
	return nil
}

// expand writes the basis columns of x into dst, which must hold numColumns(knots) values.
func expand(knots [][]float64, x [decision.NumFeatures]float64, dst []float64) {
	col := 0
	for j, v := range x {
		dst[col] = v
		col++
		for _, k := range knots[j] {
			if v >= k {
				dst[col] = 1
			} else {
				dst[col] = 0
			}
			col++
		}
	}
}

// attribute returns the signed contribution of every input feature and the
// resulting logit. The logit is exactly Intercept plus the sum of contributions.
func (m *Model) attribute(f decision.Features) ([decision.NumFeatures]float64, float64) {
	var contrib [decision.NumFeatures]float64
	basis := make([]float64, len(m.Weights))
	expand(m.Knots, f.Vector(), basis)

	col := 0
	for j := range contrib {
		for n := 0; n < 1+len(m.Knots[j]); n++ {
			z := (basis[col] - m.Mean[col]) / m.Scale[col]
			contrib[j] += m.Weights[col] * z
			col++
		}
	}

	logit := m.Intercept
	for _, c := range contrib {
		logit += c
	}
	return contrib, logit
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// decide maps a logit to an action and the probability of that action.
func decide(logit float64) (decision.Action, float64) {
	p := sigmoid(logit)
	if logit > 0 {
		return decision.ActionEscalate, p
	}
	return decision.ActionFollowUp, 1 - p
}
