package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// LoadOrTrain returns a classifier backed by the stored model. When the store
// has no usable model it retrains from the synthetic corpus and persists the
// result. Only a training failure is fatal to the caller.
func LoadOrTrain(ctx context.Context, store ModelStore, cfg TrainingConfig, logger *logrus.Entry) (*Classifier, error) {
	logCtx := logger.WithField("model_location", store.Location())

	m, err := store.Load(ctx)
	switch {
	case err == nil:
		c, err := New(m)
		if err == nil {
			logCtx.WithFields(logrus.Fields{
				"trained_at": m.TrainedAt,
				"accuracy":   m.Accuracy,
			}).Info("Decision model loaded")
			return c, nil
		}
		logCtx.WithError(err).Error("Stored decision model is unusable, retraining")
	case errors.Is(err, ErrModelNotFound):
		logCtx.Warn("No stored decision model, training a new one")
	default:
		logCtx.WithError(err).Error("Failed to load decision model, retraining")
	}

	m, err = Train(cfg)
	if err != nil {
		return nil, fmt.Errorf("train decision model: %w", err)
	}
	logCtx.WithFields(logrus.Fields{
		"seed":     m.Seed,
		"accuracy": fmt.Sprintf("%.3f", m.Accuracy),
	}).Info("Decision model trained")

	if err := store.Save(ctx, m); err != nil {
		logCtx.WithError(err).Error("Failed to persist decision model, continuing with in-memory model")
	}
	return New(m)
}
