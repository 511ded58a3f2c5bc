// Package kafka appends audit events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "contactlink/pkg/platform/audit"
)

// Store implements audit.Store by producing one record per event. The record
// key is the event id so consumers can deduplicate redeliveries.
type Store struct {
	client *kgo.Client
	topic  string
}

// New connects a producer to brokers. Close releases the client.
func New(brokers []string, topic string) (*Store, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka audit store requires at least one broker")
	}
	if topic == "" {
		return nil, errors.New("kafka audit store requires a topic")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Store{client: client, topic: topic}, nil
}

// EnsureTopic creates the audit topic if it does not exist yet.
func (s *Store) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(s.client)
	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, s.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", s.topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Ping checks that at least one broker answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// payload is the JSON value of a produced record.
type payload struct {
	ID               string `json:"id"`
	Category         string `json:"category"`
	Timestamp        string `json:"timestamp"`
	Action           string `json:"action"`
	ContactID        int64  `json:"contact_id,omitempty"`
	PrimaryContactID int64  `json:"primary_contact_id,omitempty"`
	Reason           string `json:"reason,omitempty"`
	RequestID        string `json:"request_id,omitempty"`
}

// Append produces the event and waits for the broker acknowledgement.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}
	value, err := json.Marshal(payload{
		ID:               event.ID,
		Category:         string(category),
		Timestamp:        event.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:           event.Action,
		ContactID:        event.ContactID,
		PrimaryContactID: event.PrimaryContactID,
		Reason:           event.Reason,
		RequestID:        event.RequestID,
	})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Key:   []byte(event.ID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "category", Value: []byte(category)},
		},
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.client.Close()
}
