package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"civic_followup_engine/internal/classifier"
	"civic_followup_engine/internal/infra/config"
	"civic_followup_engine/internal/infra/objectstore"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "engine",
		Short: "Complaint follow-up and escalation engine",
		Long: `The engine watches open civic complaints, sends follow-up emails to the
assigned departments and escalates to supervisors when a complaint stalls.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(trainCmd())
	rootCmd.AddCommand(explainCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openModelStore picks S3 when a bucket is configured, the local file otherwise.
func openModelStore(ctx context.Context, cfg *config.AppConfig) (classifier.ModelStore, error) {
	if cfg.Model.S3Bucket != "" {
		store, err := objectstore.NewS3ModelStore(ctx, cfg.Model.S3Bucket, cfg.Model.S3Key)
		if err != nil {
			return nil, fmt.Errorf("open S3 model store: %w", err)
		}
		return store, nil
	}
	return classifier.NewFileStore(cfg.Model.Path), nil
}

// openModelStoreOrFile is openModelStore for readers: when S3 cannot be set up
// it logs a warning and serves the local model file instead.
func openModelStoreOrFile(ctx context.Context, cfg *config.AppConfig, log *logrus.Entry) classifier.ModelStore {
	store, err := openModelStore(ctx, cfg)
	if err != nil {
		log.WithError(err).WithField("path", cfg.Model.Path).Warn("S3 model store unavailable, using the local model file")
		return classifier.NewFileStore(cfg.Model.Path)
	}
	return store
}

func trainingConfig(cfg *config.AppConfig) classifier.TrainingConfig {
	tc := classifier.DefaultTrainingConfig()
	tc.Seed = cfg.Model.Seed
	return tc
}
