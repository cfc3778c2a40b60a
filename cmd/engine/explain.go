package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"civic_followup_engine/internal/classifier"
	"civic_followup_engine/internal/domain/complaint"
	"civic_followup_engine/internal/domain/decision"
	"civic_followup_engine/internal/infra/config"
	"civic_followup_engine/internal/infra/logger"
)

func explainCmd() *cobra.Command {
	var (
		f      decision.Features
		status string
	)

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Explain the decision for an ad-hoc feature vector",
		Example: `  engine explain --breach 28 --priority 5 --days 1.6
  engine explain --breach -5 --priority 9 --followups 2 --status in_progress`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.NumberOfFollowups < 0 || f.DaysSinceSubmission < 0 {
				return errors.New("--followups and --days must not be negative")
			}
			s := complaint.Status(status)
			if !s.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			f.StatusScore = s.Score()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("could not load application configuration: %w", err)
			}
			store := openModelStoreOrFile(cmd.Context(), cfg, logger.For("explain"))
			m, err := store.Load(cmd.Context())
			if errors.Is(err, classifier.ErrModelNotFound) {
				fmt.Println(color.New(color.FgYellow).Sprintf("No model at %s, using a freshly trained one.", store.Location()))
				m, err = classifier.Train(trainingConfig(cfg))
			}
			if err != nil {
				return err
			}
			c, err := classifier.New(m)
			if err != nil {
				return err
			}

			printExplanation(f, c.Explain(f))
			return nil
		},
	}

	cmd.Flags().Float64Var(&f.TimeSinceSLABreach, "breach", 0, "hours past the SLA deadline, negative before it")
	cmd.Flags().IntVar(&f.CategoryPriority, "priority", 5, "department priority 1-10")
	cmd.Flags().IntVar(&f.NumberOfFollowups, "followups", 0, "follow-ups already sent")
	cmd.Flags().Float64Var(&f.DaysSinceSubmission, "days", 0, "days since submission")
	cmd.Flags().StringVar(&status, "status", string(complaint.StatusSubmitted), "complaint status")
	return cmd
}

func printExplanation(f decision.Features, exp decision.Explanation) {
	actionColor := color.New(color.FgGreen, color.Bold)
	if exp.Action == decision.ActionEscalate {
		actionColor = color.New(color.FgRed, color.Bold)
	}
	fmt.Printf("Decision: %s (confidence %.1f%%)\n", actionColor.Sprint(exp.Action), exp.Confidence*100)
	fmt.Println(exp.Text)
	fmt.Println()

	vector := f.Vector()
	fmt.Println("Features:")
	for i, name := range decision.FeatureOrder {
		fmt.Printf("  %-24s %8.2f\n", name, vector[i])
	}

	fmt.Println()
	fmt.Println("Attribution (positive pushes toward escalation):")
	maxImportance := 0.0
	if len(exp.Importance) > 0 {
		maxImportance = exp.Importance[0].Importance
	}
	for _, fi := range exp.Importance {
		v := exp.Attributions[fi.Feature]
		bar := ""
		if maxImportance > 0 {
			bar = strings.Repeat("█", int(20*fi.Importance/maxImportance+0.5))
		}
		barColor := color.New(color.FgGreen)
		if v > 0 {
			barColor = color.New(color.FgRed)
		}
		marker := ""
		if fi.Feature == exp.TopFeature {
			marker = color.New(color.FgHiMagenta).Sprint(" ←")
		}
		fmt.Printf("  %-24s %+7.3f %s%s\n", fi.Feature, v, barColor.Sprint(bar), marker)
	}
}
