// Package worker consumes attempt events from the broker and drives the
// periodic sweep.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/danubeai/flexquiz-service/internal/config"
	"github.com/danubeai/flexquiz-service/internal/engine"
	"github.com/danubeai/flexquiz-service/internal/models"
	"github.com/danubeai/flexquiz-service/internal/repository"
)

type AttemptWorker interface {
	Start(ctx context.Context) error
	Stop() error
	Stats() AttemptStats
}

type AttemptStats struct {
	ActiveWorkers int `json:"active_workers"`
	QueueLength   int `json:"queue_length"`
	Processed     int `json:"processed"`
	Failed        int `json:"failed"`
}

type attemptWorker struct {
	pool        *WorkerPool
	mq          repository.RabbitMQRepository
	engine      *engine.Engine
	queue       string
	consumerTag string
	prefetch    int
	logger      zerolog.Logger

	processed atomic.Int64
	failed    atomic.Int64
}

func NewAttemptWorker(
	pool *WorkerPool,
	mq repository.RabbitMQRepository,
	eng *engine.Engine,
	cfg config.RabbitMQConfig,
	logger zerolog.Logger,
) AttemptWorker {
	return &attemptWorker{
		pool:        pool,
		mq:          mq,
		engine:      eng,
		queue:       cfg.AttemptQueue,
		consumerTag: cfg.ConsumerTag,
		prefetch:    cfg.PrefetchCount,
		logger:      logger,
	}
}

func (w *attemptWorker) Start(ctx context.Context) error {
	w.pool.Start()

	msgs, err := w.mq.Consume(ctx, w.queue, w.consumerTag, w.prefetch)
	if err != nil {
		return fmt.Errorf("failed to start consuming attempts: %w", err)
	}

	go w.processMessages(ctx, msgs)

	w.logger.Info().Str("queue", w.queue).Msg("Attempt worker started")
	return nil
}

func (w *attemptWorker) Stop() error {
	w.pool.Stop()

	w.logger.Info().
		Int64("processed", w.processed.Load()).
		Int64("failed", w.failed.Load()).
		Msg("Attempt worker stopped")

	return nil
}

func (w *attemptWorker) processMessages(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Stopping attempt message processing")
			return
		case msg, ok := <-msgs:
			if !ok {
				w.logger.Warn().Msg("Attempt message channel closed")
				return
			}

			w.pool.Submit(func() {
				if err := w.processMessage(ctx, msg.Body); err != nil {
					w.logger.Error().Err(err).Msg("Failed to process attempt message")
					w.failed.Add(1)

					// Malformed messages would fail forever; drop them
					// instead of requeueing.
					if isPermanentError(err) {
						if ackErr := msg.Ack(false); ackErr != nil {
							w.logger.Error().Err(ackErr).Msg("Failed to ack message")
						}
						return
					}

					if nackErr := msg.Nack(false, true); nackErr != nil {
						w.logger.Error().Err(nackErr).Msg("Failed to nack message")
					}
					return
				}

				if err := msg.Ack(false); err != nil {
					w.logger.Error().Err(err).Msg("Failed to ack message")
				}
				w.processed.Add(1)
			})
		}
	}
}

func (w *attemptWorker) processMessage(ctx context.Context, body []byte) error {
	var event models.AttemptSubmittedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return permanent(fmt.Errorf("failed to unmarshal attempt event: %w", err))
	}

	if strings.TrimSpace(event.QuizID) == "" {
		return permanent(errors.New("empty quiz_id"))
	}
	if strings.TrimSpace(event.StudentID) == "" {
		return permanent(errors.New("empty student_id"))
	}

	w.logger.Info().
		Str("quiz_id", event.QuizID).
		Str("student_id", event.StudentID).
		Int("questions", len(event.Questions)).
		Msg("Processing submitted attempt")

	return w.engine.HandleAttemptCompleted(ctx, &event)
}

func (w *attemptWorker) Stats() AttemptStats {
	return AttemptStats{
		ActiveWorkers: w.pool.ActiveWorkers(),
		QueueLength:   w.pool.QueueLength(),
		Processed:     int(w.processed.Load()),
		Failed:        int(w.failed.Load()),
	}
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return permanentError{err: err}
}

func isPermanentError(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
