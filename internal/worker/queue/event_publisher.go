// Package queue adapts the RabbitMQ transport to the engine's event
// contracts.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/danubeai/flexquiz-service/internal/config"
	"github.com/danubeai/flexquiz-service/internal/models"
	"github.com/danubeai/flexquiz-service/internal/repository"
)

// EventPublisher emits the engine's domain events on the broker exchange.
type EventPublisher struct {
	mq               repository.RabbitMQRepository
	exchange         string
	quizCreatedKey   string
	studentGradedKey string
	logger           zerolog.Logger
}

func NewEventPublisher(mq repository.RabbitMQRepository, cfg config.RabbitMQConfig, logger zerolog.Logger) *EventPublisher {
	return &EventPublisher{
		mq:               mq,
		exchange:         cfg.Exchange,
		quizCreatedKey:   cfg.QuizCreatedKey,
		studentGradedKey: cfg.StudentGradedKey,
		logger:           logger,
	}
}

func (p *EventPublisher) PublishQuizCreated(ctx context.Context, event *models.QuizCreatedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal quiz created event: %w", err)
	}

	if err := p.mq.Publish(ctx, p.exchange, p.quizCreatedKey, body); err != nil {
		return fmt.Errorf("failed to publish quiz created event: %w", err)
	}

	p.logger.Debug().
		Str("quiz_id", event.QuizID).
		Str("student_id", event.StudentID).
		Msg("Quiz created event published")

	return nil
}

func (p *EventPublisher) PublishStudentGraded(ctx context.Context, event *models.StudentGradedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal student graded event: %w", err)
	}

	if err := p.mq.Publish(ctx, p.exchange, p.studentGradedKey, body); err != nil {
		return fmt.Errorf("failed to publish student graded event: %w", err)
	}

	p.logger.Debug().
		Str("template_id", event.TemplateID).
		Str("student_id", event.StudentID).
		Msg("Student graded event published")

	return nil
}
