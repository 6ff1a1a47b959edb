package queue

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/unclebandit/campaign-autoresponder/internal/config"
)

// New builds the queue selected by queue.driver.
func New(cfg config.QueueConfig, logger *zap.Logger) (Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewInMemoryQueue(cfg.MaxRetries, cfg.RetryBackoff, logger), nil
	case "amqp":
		return NewAMQPQueue(cfg.AMQPURL, cfg.Name, cfg.MaxRetries, cfg.RetryBackoff, logger)
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}
