package classifier

import (
	"fmt"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat"

	"civic_followup_engine/internal/domain/decision"
)

// TrainingConfig controls synthetic corpus generation and gradient descent.
type TrainingConfig struct {
	Seed         uint64
	Samples      int
	Iterations   int
	LearningRate float64
	C            float64 // inverse L2 strength, as in liblinear
	Knots        [][]float64
}

// DefaultKnots places step indicators on the thresholds of the escalation policy
// plus a few intermediate points. Status has no knots.
func DefaultKnots() [][]float64 {
	return [][]float64{
		{0, 24, 48, 72}, // time_since_sla_breach (hours)
		{4, 8},          // category_priority
		{1, 2, 3},       // number_of_followups
		{7, 14, 21},     // days_since_submission
		nil,             // status_score
	}
}

func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		Seed:         42,
		Samples:      500,
		Iterations:   4000,
		LearningRate: 0.5,
		C:            10,
		Knots:        DefaultKnots(),
	}
}

// Sample is one labelled synthetic observation.
type Sample struct {
	Features decision.Features
	Escalate bool
}

// SyntheticCorpus draws n samples from a PCG generator seeded with seed, so every
// process produces the same corpus for the same seed.
func SyntheticCorpus(seed uint64, n int) []Sample {
	rng := rand.New(rand.NewPCG(seed, seed))
	samples := make([]Sample, n)
	for i := range samples {
		f := decision.Features{
			TimeSinceSLABreach:  -24 + 144*rng.Float64(),
			CategoryPriority:    1 + rng.IntN(10),
			NumberOfFollowups:   rng.IntN(5),
			DaysSinceSubmission: 30 * rng.Float64(),
			StatusScore:         1 + rng.IntN(4),
		}
		samples[i] = Sample{Features: f, Escalate: f.EscalationRuleMet()}
	}
	return samples
}

// Train fits a model on the synthetic corpus described by cfg. The procedure
// is fully deterministic: same config, same weights.
func Train(cfg TrainingConfig) (*Model, error) {
	if cfg.Samples <= 0 || cfg.Iterations <= 0 || cfg.LearningRate <= 0 || cfg.C <= 0 {
		return nil, fmt.Errorf("invalid training config: %+v", cfg)
	}
	if len(cfg.Knots) != decision.NumFeatures {
		return nil, fmt.Errorf("training config has knots for %d features, want %d", len(cfg.Knots), decision.NumFeatures)
	}

	corpus := SyntheticCorpus(cfg.Seed, cfg.Samples)
	n := len(corpus)
	cols := numColumns(cfg.Knots)

	X := make([][]float64, n)
	y := make([]float64, n)
	for i, s := range corpus {
		X[i] = make([]float64, cols)
		expand(cfg.Knots, s.Features.Vector(), X[i])
		if s.Escalate {
			y[i] = 1
		}
	}

	mean := make([]float64, cols)
	scale := make([]float64, cols)
	column := make([]float64, n)
	for c := 0; c < cols; c++ {
		for i := range X {
			column[i] = X[i][c]
		}
		mean[c], scale[c] = stat.PopMeanStdDev(column, nil)
		if scale[c] < 1e-12 {
			scale[c] = 1
		}
		for i := range X {
			X[i][c] = (X[i][c] - mean[c]) / scale[c]
		}
	}

	w := make([]float64, cols)
	var b float64
	grad := make([]float64, cols)
	l2 := 1 / (cfg.C * float64(n))
	for it := 0; it < cfg.Iterations; it++ {
		for c := range grad {
			grad[c] = 0
		}
		var gb float64
		for i, row := range X {
			z := b
			for c, v := range row {
				z += w[c] * v
			}
			e := sigmoid(z) - y[i]
			for c, v := range row {
				grad[c] += e * v
			}
			gb += e
		}
		for c := range w {
			w[c] -= cfg.LearningRate * (grad[c]/float64(n) + l2*w[c])
		}
		b -= cfg.LearningRate * gb / float64(n)
	}

	knots := make([][]float64, len(cfg.Knots))
	for j, k := range cfg.Knots {
		knots[j] = append([]float64{}, k...)
	}
	m := &Model{
		Version:   modelVersion,
		Seed:      cfg.Seed,
		Knots:     knots,
		Mean:      mean,
		Scale:     scale,
		Weights:   w,
		Intercept: b,
		TrainedAt: time.Now().UTC(),
	}

	correct := 0
	for _, s := range corpus {
		_, logit := m.attribute(s.Features)
		if (logit > 0) == s.Escalate {
			correct++
		}
	}
	m.Accuracy = float64(correct) / float64(n)
	return m, nil
}
