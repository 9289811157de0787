package events

import (
	"github.com/yeremiapane/restaurant-orders/config"
	"github.com/yeremiapane/restaurant-orders/utils"
)

// NewPublisher picks the broker from configuration. An unreachable broker
// falls back to logging so the API keeps serving.
func NewPublisher(cfg config.BrokerConfig) Publisher {
	switch cfg.Kind {
	case "rabbitmq":
		p, err := NewRabbitPublisher(cfg.RabbitMQURL, cfg.Exchange)
		if err == nil {
			return p
		}
		utils.ErrorLogger.Printf("RabbitMQ unavailable, events will only be logged: %v", err)
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			utils.ErrorLogger.Print("EVENT_BROKER=kafka but KAFKA_BROKERS is empty, events will only be logged")
			break
		}
		p, err := NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaPrefix)
		if err == nil {
			return p
		}
		utils.ErrorLogger.Printf("Kafka unavailable, events will only be logged: %v", err)
	}
	return LogPublisher{}
}
