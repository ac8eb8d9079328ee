// Worker delivers password reset messages from Kafka through the HTTP mail provider and periodically
// sweeps expired refresh and reset tokens. Set KAFKA_BROKERS, NOTIFY_KAFKA_TOPIC, KAFKA_GROUP_ID,
// and MAIL_API_URL for delivery; DATABASE_URL enables the sweeper.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"blog-cms/backend/internal/config"
	"blog-cms/backend/internal/db"
	identityservice "blog-cms/backend/internal/identity/service"
	"blog-cms/backend/internal/notification"
	"blog-cms/backend/internal/notification/mail"
	passwordresetrepo "blog-cms/backend/internal/passwordreset/repository"
	"blog-cms/backend/internal/platform/clock"
	refreshtokenrepo "blog-cms/backend/internal/refreshtoken/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	if cfg.DatabaseURL == "" {
		logger.Info("worker: DATABASE_URL not set; token sweeper disabled")
	} else {
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer conn.Close()

		sweeper := identityservice.NewSweeper(
			refreshtokenrepo.NewPostgresRepository(conn),
			passwordresetrepo.NewPostgresRepository(conn),
			clock.System{},
			logger,
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweeper.Run(ctx, cfg.SweepEvery())
		}()
	}

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		logger.Info("worker: KAFKA_BROKERS not set; reset delivery disabled")
	} else {
		if cfg.MailAPIURL == "" {
			log.Fatal("worker: MAIL_API_URL is required when KAFKA_BROKERS is set")
		}
		client := mail.NewClient(cfg.MailAPIKey, cfg.MailAPIURL, cfg.MailSender, cfg.PasswordResetURL)
		consumer := notification.NewConsumer(brokers, cfg.NotifyKafkaTopic, cfg.KafkaGroupID, client, logger)
		defer consumer.Close()

		logger.Info("worker: consuming reset messages", "topic", cfg.NotifyKafkaTopic, "group", cfg.KafkaGroupID)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil {
				logger.Error("worker: consumer stopped", "error", err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("worker: shutting down")
	wg.Wait()
	logger.Info("worker: stopped")
}
