package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/telebot.v3"

	"civic_followup_engine/internal/app"
	"civic_followup_engine/internal/classifier"
	"civic_followup_engine/internal/domain/notification"
	"civic_followup_engine/internal/infra/config"
	idb "civic_followup_engine/internal/infra/database"
	"civic_followup_engine/internal/infra/email"
	"civic_followup_engine/internal/infra/httpserver"
	"civic_followup_engine/internal/infra/kafka"
	"civic_followup_engine/internal/infra/logger"
	"civic_followup_engine/internal/infra/modelwatch"
	"civic_followup_engine/internal/infra/scheduler"
	"civic_followup_engine/internal/infra/telegram"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, the HTTP API and the ops bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("could not load application configuration: %w", err)
			}
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}
			logger.Init(cfg)
			return serve(cfg)
		},
	}
}

func serve(cfg *config.AppConfig) error {
	mainLogger := logger.For("engine")
	mainLogger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"http_addr":   cfg.HTTPAddr,
		"timezone":    cfg.Scheduler.Timezone,
	}).Info("Complaint follow-up engine starting...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("could not connect to database: %w", err)
	}
	defer db.Close()
	mainLogger.Info("Database connection established successfully.")

	complaintRepo := idb.NewPostgresComplaintRepository(db)
	deptRepo := idb.NewPostgresDepartmentRepository(db)

	// Notifications: Brevo email, mirrored to the ops chat when a bot is configured
	var sender notification.Sender = email.NewBrevoSender(email.Config{
		APIKey:           cfg.Brevo.APIKey,
		SenderEmail:      cfg.Brevo.SenderEmail,
		SenderName:       cfg.Brevo.SenderName,
		BaseURL:          cfg.Brevo.BaseURL,
		DashboardBaseURL: cfg.DashboardBaseURL,
	}, mainLogger)
	if cfg.Brevo.APIKey == "" {
		mainLogger.Warn("BREVO_API_KEY is not set, every notification will fail and be retried by the sweep")
	}

	var bot *telebot.Bot
	if cfg.Telegram.Token != "" {
		bot, err = telebot.NewBot(telebot.Settings{
			Token:  cfg.Telegram.Token,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) {
				entry := mainLogger.WithError(err).WithField("component", "telebot")
				if c != nil && c.Sender() != nil {
					entry = entry.WithField("sender_id", c.Sender().ID)
				}
				entry.Error("Telegram handler failed")
			},
		})
		if err != nil {
			return fmt.Errorf("could not create Telegram bot: %w", err)
		}
		if cfg.Telegram.OpsChatID != 0 {
			sender = telegram.NewEscalationAlerts(sender, telegram.NewTelebotAdapter(bot), cfg.Telegram.OpsChatID, mainLogger)
			mainLogger.WithField("ops_chat_id", cfg.Telegram.OpsChatID).Info("Escalation alerts mirrored to Telegram.")
		}
	}

	// Decision model
	store := openModelStoreOrFile(ctx, cfg, mainLogger)
	model, err := classifier.LoadOrTrain(ctx, store, trainingConfig(cfg), mainLogger.WithField("component", "classifier"))
	if err != nil {
		logger.Log.Fatalf("FATAL: Decision model unavailable: %v", err)
	}
	if cfg.Model.Watch {
		if _, isFile := store.(*classifier.FileStore); !isFile {
			mainLogger.Warn("MODEL_WATCH only applies to the file model store, ignoring")
		} else {
			watcher, err := modelwatch.New(cfg.Model.Path, store, model, mainLogger)
			if err != nil {
				return fmt.Errorf("could not watch model file: %w", err)
			}
			go watcher.Run(ctx)
		}
	}

	var publisher app.DecisionPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewDecisionProducer(kafka.ProducerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.DecisionsTopic,
		}, mainLogger)
		if err != nil {
			return fmt.Errorf("could not create decision producer: %w", err)
		}
		defer producer.Close()
		publisher = producer
		mainLogger.WithField("topic", cfg.Kafka.DecisionsTopic).Info("Decision events published to Kafka.")
	}

	// Services
	extractor := app.NewFeatureExtractor(cfg.Scheduler.DefaultSLAHours)
	workflow := app.NewWorkflowServiceImpl(complaintRepo, deptRepo, sender, extractor, model, publisher, mainLogger)
	followUpScheduler := scheduler.NewFollowUpScheduler(workflow, complaintRepo, scheduler.Config{
		SweepInterval:      cfg.SweepInterval(),
		ReevaluationWindow: cfg.ReevaluationWindow(),
		EvaluationTimeout:  cfg.EvaluationTimeout(),
		Concurrency:        cfg.Scheduler.Concurrency,
		DefaultSLAHours:    cfg.Scheduler.DefaultSLAHours,
		Location:           cfg.Location(),
	}, mainLogger)
	intakeService := app.NewIntakeService(complaintRepo, deptRepo, sender, followUpScheduler, extractor, mainLogger)
	adminService := app.NewAdminService(complaintRepo, deptRepo, extractor, model, cfg.Telegram.AdminTelegramID)

	apiServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpserver.New(intakeService, adminService, workflow, followUpScheduler, mainLogger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	followUpScheduler.Start()

	if bot != nil {
		telegram.RegisterBotCommands(bot, adminService, mainLogger)
		ops := telegram.NewOpsCommands(adminService, followUpScheduler, cfg.Location(), mainLogger)
		telegram.RegisterAdminHandlers(ctx, bot, ops, mainLogger)
		go bot.Start()
		mainLogger.Info("Telegram ops bot started.")
	}

	serveErr := make(chan error, 1)
	go func() {
		mainLogger.WithField("addr", cfg.HTTPAddr).Info("HTTP API listening")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		if runErr != nil {
			mainLogger.WithError(runErr).Error("HTTP API failed")
		}
	}

	mainLogger.Info("Shutting down application...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Warn("HTTP API did not shut down cleanly")
	}
	if bot != nil {
		bot.Stop()
	}
	followUpScheduler.Stop()
	mainLogger.Info("Application shut down gracefully.")
	return runErr
}
