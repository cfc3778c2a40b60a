package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"civic_followup_engine/internal/classifier"
	"civic_followup_engine/internal/domain/decision"
	"civic_followup_engine/internal/infra/config"
)

const heldOutSamples = 2000

func trainCmd() *cobra.Command {
	var (
		seed       uint64
		samples    int
		iterations int
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Retrain the decision model and persist it to the model store",
		Long: `Train fits the decision model on the seeded synthetic corpus, reports its
accuracy and recall on a held-out corpus, and saves it to MODEL_PATH or to
MODEL_S3_BUCKET when set. A running engine with MODEL_WATCH=true picks the
new file up without a restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("could not load application configuration: %w", err)
			}

			tc := trainingConfig(cfg)
			if cmd.Flags().Changed("seed") {
				tc.Seed = seed
			}
			if samples > 0 {
				tc.Samples = samples
			}
			if iterations > 0 {
				tc.Iterations = iterations
			}

			m, err := classifier.Train(tc)
			if err != nil {
				return err
			}
			c, err := classifier.New(m)
			if err != nil {
				return err
			}

			accuracy, recall := heldOutScores(c, tc.Seed+1)
			fmt.Printf("Trained decision model (seed %d, %d samples, %d iterations)\n", tc.Seed, tc.Samples, tc.Iterations)
			fmt.Printf("  training accuracy: %s\n", score(m.Accuracy))
			fmt.Printf("  held-out accuracy: %s\n", score(accuracy))
			fmt.Printf("  held-out escalation recall: %s\n", score(recall))

			if dryRun {
				fmt.Println(color.New(color.FgYellow).Sprint("Dry run, model not saved."))
				return nil
			}
			store, err := openModelStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if err := store.Save(cmd.Context(), m); err != nil {
				return fmt.Errorf("save model: %w", err)
			}
			fmt.Printf("%s %s\n", color.New(color.FgGreen).Sprint("Saved to"), store.Location())
			return nil
		},
	}

	cmd.Flags().Uint64Var(&seed, "seed", 0, "corpus seed (default MODEL_SEED)")
	cmd.Flags().IntVar(&samples, "samples", 0, "training corpus size")
	cmd.Flags().IntVar(&iterations, "iterations", 0, "gradient descent iterations")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "train and report without saving")
	return cmd
}

// heldOutScores measures the model against the escalation rule on a corpus it
// was not trained on.
func heldOutScores(c *classifier.Classifier, seed uint64) (accuracy, recall float64) {
	var correct, positives, found int
	for _, s := range classifier.SyntheticCorpus(seed, heldOutSamples) {
		action, _ := c.Predict(s.Features)
		escalate := action == decision.ActionEscalate
		if escalate == s.Escalate {
			correct++
		}
		if s.Escalate {
			positives++
			if escalate {
				found++
			}
		}
	}
	accuracy = float64(correct) / heldOutSamples
	if positives > 0 {
		recall = float64(found) / float64(positives)
	}
	return accuracy, recall
}

func score(v float64) string {
	text := fmt.Sprintf("%.3f", v)
	if v < 0.9 {
		return color.New(color.FgRed).Sprint(text)
	}
	return color.New(color.FgGreen).Sprint(text)
}
