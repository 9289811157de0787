package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/IBM/sarama"
	"github.com/yeremiapane/restaurant-orders/utils"
)

// KafkaPublisher writes each event type to its own topic, keyed by order id so
// events of one order stay on one partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	prefix   string
}

func NewKafkaPublisher(brokers []string, prefix string) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	utils.InfoLogger.Printf("Connected to Kafka brokers: %v", brokers)
	return NewKafkaPublisherWithProducer(producer, prefix), nil
}

func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, prefix string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, prefix: prefix}
}

func (p *KafkaPublisher) Topic(eventType string) string {
	name := strings.ReplaceAll(eventType, ".", "-")
	if p.prefix == "" {
		return name
	}
	return p.prefix + "." + name
}

func (p *KafkaPublisher) Publish(_ context.Context, evt OrderEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := p.Topic(evt.Type)
	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(uint64(evt.OrderID), 10)),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("failed to send message to %s: %w", topic, err)
	}

	utils.InfoLogger.Debugf("Event %s sent to %s partition %d offset %d", evt.Type, topic, partition, offset)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
