package classifier

import (
	"fmt"
	"sync/atomic"

	"civic_followup_engine/internal/domain/decision"
)

// Classifier serves predictions from the current model. The model pointer is
// swapped atomically on reload; readers never take a lock.
type Classifier struct {
	model atomic.Pointer[Model]
}

// New wraps a validated model.
func New(m *Model) (*Classifier, error) {
	c := &Classifier{}
	if err := c.Swap(m); err != nil {
		return nil, err
	}
	return c, nil
}

// Swap replaces the active model after validating it.
func (c *Classifier) Swap(m *Model) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("refusing to activate model: %w", err)
	}
	c.model.Store(m)
	return nil
}

// Model returns the active model.
func (c *Classifier) Model() *Model {
	return c.model.Load()
}

// Predict returns the recommended action and the model probability of that action.
func (c *Classifier) Predict(f decision.Features) (decision.Action, float64) {
	_, logit := c.model.Load().attribute(f)
	return decide(logit)
}

// Explain returns the prediction together with per-feature attributions.
func (c *Classifier) Explain(f decision.Features) decision.Explanation {
	contrib, logit := c.model.Load().attribute(f)
	action, confidence := decide(logit)

	attributions := make(map[decision.Feature]float64, decision.NumFeatures)
	for j, name := range decision.FeatureOrder {
		attributions[name] = contrib[j]
	}
	importance := rankImportance(contrib)

	return decision.Explanation{
		Action:       action,
		Confidence:   confidence,
		Attributions: attributions,
		Importance:   importance,
		TopFeature:   importance[0].Feature,
		Text:         explanationText(action, f, importance[0].Feature),
	}
}
