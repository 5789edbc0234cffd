package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"github.com/sandeepkv93/paygw-mollie/internal/domain"
	"github.com/sandeepkv93/paygw-mollie/internal/observability"
)

// DeliveredEvent is the message published when an item is handed over to a payer.
type DeliveredEvent struct {
	domain.Delivery
	Gateway     string    `json:"gateway"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// KafkaDeliverer hands items over by publishing a DeliveredEvent that the host platform
// consumes. SendMessage is synchronous, so a nil error means the broker acknowledged it.
type KafkaDeliverer struct {
	producer sarama.SyncProducer
	topic    string
	now      func() time.Time
}

func NewKafkaDeliverer(producer sarama.SyncProducer, topic string) *KafkaDeliverer {
	return &KafkaDeliverer{producer: producer, topic: topic, now: time.Now}
}

// NewSyncProducer builds a producer that waits for all in-sync replicas.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

func (d *KafkaDeliverer) DeliverOrder(ctx context.Context, in domain.Delivery) error {
	data, err := json.Marshal(DeliveredEvent{Delivery: in, Gateway: domain.GatewayName, DeliveredAt: d.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal delivery event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(in.Component + ":" + in.PaymentArea + ":" + strconv.FormatUint(uint64(in.ItemID), 10)),
		Value: sarama.ByteEncoder(data),
	}
	partition, offset, err := d.producer.SendMessage(msg)
	if err != nil {
		observability.RecordDelivery(ctx, in.Component, "error")
		return fmt.Errorf("publish delivery event: %w", err)
	}
	observability.RecordDelivery(ctx, in.Component, "success")
	slog.InfoContext(ctx, "delivery event published",
		"component", in.Component,
		"item_id", in.ItemID,
		"payment_id", in.PaymentID,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

func (d *KafkaDeliverer) Close() error {
	return d.producer.Close()
}

// LogDeliverer only logs deliveries. It is used when no broker is configured.
type LogDeliverer struct {
	logger *slog.Logger
}

func NewLogDeliverer(logger *slog.Logger) *LogDeliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDeliverer{logger: logger}
}

func (d *LogDeliverer) DeliverOrder(ctx context.Context, in domain.Delivery) error {
	observability.RecordDelivery(ctx, in.Component, "logged")
	d.logger.InfoContext(ctx, "order delivered",
		"component", in.Component,
		"payment_area", in.PaymentArea,
		"item_id", in.ItemID,
		"payment_id", in.PaymentID,
		"user_id", in.UserID,
	)
	return nil
}
