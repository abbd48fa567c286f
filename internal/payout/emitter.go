// Package payout hands settled payout records to the payment collaborator.
package payout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"idlemine/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"
)

type Emitter interface {
	Emit(ctx context.Context, round models.Round, records []models.PayoutRecord) error
	Close() error
}

// Message is the wire shape of one payout record.
type Message struct {
	RoundID     string    `json:"round_id"`
	RoundDate   string    `json:"round_date"`
	ClaimID     string    `json:"claim_id"`
	PlayerID    string    `json:"player_id"`
	Claimed     string    `json:"claimed_diamonds"`
	PayoutMinor int64     `json:"payout_minor"`
	CreatedAt   time.Time `json:"created_at"`
}

func newMessage(round models.Round, record models.PayoutRecord) Message {
	return Message{
		RoundID:     record.RoundID,
		RoundDate:   round.RoundDate.Format("2006-01-02"),
		ClaimID:     record.ClaimID,
		PlayerID:    record.PlayerID,
		Claimed:     record.Claimed.StringFixed(4),
		PayoutMinor: record.PayoutMinor,
		CreatedAt:   record.CreatedAt,
	}
}

// producer is the subset of *kgo.Client used here.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

type KafkaEmitter struct {
	client producer
	topic  string
	logger logrus.FieldLogger
}

func NewKafkaEmitter(brokers []string, topic string, logger logrus.FieldLogger) (*KafkaEmitter, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID("idlemine"),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaEmitter{client: client, topic: topic, logger: logger}, nil
}

// Emit produces one record per payout, keyed by claim id so retries of the
// same round land on the same partition.
func (e *KafkaEmitter) Emit(ctx context.Context, round models.Round, records []models.PayoutRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := make([]*kgo.Record, 0, len(records))
	for _, record := range records {
		value, err := json.Marshal(newMessage(round, record))
		if err != nil {
			return fmt.Errorf("marshal payout %s: %w", record.ID, err)
		}
		batch = append(batch, &kgo.Record{
			Topic: e.topic,
			Key:   []byte(record.ClaimID),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "round_id", Value: []byte(round.ID)},
				{Key: "event_type", Value: []byte("payout_record")},
			},
		})
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.client.ProduceSync(ctx, batch...).FirstErr(); err != nil {
		return fmt.Errorf("produce payouts for round %s: %w", round.ID, err)
	}
	e.logger.WithFields(logrus.Fields{"round_id": round.ID, "records": len(batch)}).Info("payout records produced")
	return nil
}

func (e *KafkaEmitter) Close() error {
	e.client.Close()
	return nil
}

// LogEmitter writes payout records to the log. Used when no broker is set.
type LogEmitter struct {
	logger logrus.FieldLogger
}

func NewLogEmitter(logger logrus.FieldLogger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

func (e *LogEmitter) Emit(_ context.Context, round models.Round, records []models.PayoutRecord) error {
	for _, record := range records {
		msg := newMessage(round, record)
		e.logger.WithFields(logrus.Fields{
			"round_id":     msg.RoundID,
			"claim_id":     msg.ClaimID,
			"player_id":    msg.PlayerID,
			"claimed":      msg.Claimed,
			"payout_minor": msg.PayoutMinor,
		}).Info("payout record")
	}
	return nil
}

func (e *LogEmitter) Close() error {
	return nil
}
