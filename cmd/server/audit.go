package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"contactlink/internal/platform/config"
	audit "contactlink/pkg/platform/audit"
	"contactlink/pkg/platform/audit/publisher"
	kafkastore "contactlink/pkg/platform/audit/store/kafka"
	"contactlink/pkg/platform/audit/store/logsink"
	auditpg "contactlink/pkg/platform/audit/store/postgres"
)

// auditSink is the identity event publisher plus whatever it must release.
type auditSink struct {
	publisher *publisher.Publisher
	kafka     *kafkastore.Store
}

// Close drains buffered events before closing the producer.
func (s *auditSink) Close() {
	s.publisher.Close()
	if s.kafka != nil {
		s.kafka.Close()
	}
}

// openAuditSink publishes identity events to Kafka when brokers are
// configured, to the contact_events table of db when persisting, and to the
// log otherwise. Publishing is buffered either way.
func openAuditSink(ctx context.Context, cfg config.KafkaConfig, db *sql.DB, logger *slog.Logger) (*auditSink, error) {
	var (
		store audit.Store
		kafka *kafkastore.Store
	)
	switch {
	case cfg.Enabled():
		k, err := kafkastore.New(cfg.Brokers, cfg.Topic)
		if err != nil {
			return nil, err
		}
		if err := k.EnsureTopic(ctx, cfg.Partitions, cfg.ReplicationFactor); err != nil {
			k.Close()
			return nil, fmt.Errorf("ensure audit topic: %w", err)
		}
		logger.InfoContext(ctx, "identity events published to kafka", "topic", cfg.Topic)
		store, kafka = k, k
	case cfg.Persist && db != nil:
		pg := auditpg.New(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		logger.InfoContext(ctx, "identity events stored in postgres", "table", "contact_events")
		store = pg
	default:
		logger.InfoContext(ctx, "identity events written to the log")
		store = logsink.New(logger)
	}

	pub := publisher.NewPublisher(store,
		publisher.WithAsyncBuffer(cfg.BufferSize),
		publisher.WithLogger(logger),
	)
	return &auditSink{publisher: pub, kafka: kafka}, nil
}
