package main

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civic_followup_engine/internal/classifier"
	"civic_followup_engine/internal/infra/config"
)

func TestHeldOutScores(t *testing.T) {
	m, err := classifier.Train(classifier.DefaultTrainingConfig())
	require.NoError(t, err)
	c, err := classifier.New(m)
	require.NoError(t, err)

	accuracy, recall := heldOutScores(c, 43)
	assert.GreaterOrEqual(t, accuracy, 0.9)
	assert.GreaterOrEqual(t, recall, 0.9)
}

func TestOpenModelStore_FallsBackToFile(t *testing.T) {
	cfg := &config.AppConfig{Model: config.ModelConfig{Path: "models/m.json"}}

	store, err := openModelStore(t.Context(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "models/m.json", store.Location())
}

func TestOpenModelStoreOrFile_S3SetupFailureUsesFile(t *testing.T) {
	cfg := &config.AppConfig{Model: config.ModelConfig{Path: "models/m.json", S3Bucket: "civic-models"}}
	l, hook := test.NewNullLogger()

	_, err := openModelStore(t.Context(), cfg)
	require.Error(t, err)

	store := openModelStoreOrFile(t.Context(), cfg, logrus.NewEntry(l))
	assert.IsType(t, &classifier.FileStore{}, store)
	assert.Equal(t, "models/m.json", store.Location())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestTrainingConfigUsesConfiguredSeed(t *testing.T) {
	cfg := &config.AppConfig{Model: config.ModelConfig{Seed: 7}}
	tc := trainingConfig(cfg)
	assert.Equal(t, uint64(7), tc.Seed)
	assert.Equal(t, classifier.DefaultTrainingConfig().Iterations, tc.Iterations)
}
