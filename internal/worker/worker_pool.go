package worker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type Task func()

// WorkerPool runs submitted tasks on a fixed set of goroutines. A panicking
// task is recovered so one bad message never takes a worker down.
type WorkerPool struct {
	tasks      chan Task
	wg         sync.WaitGroup
	busy       atomic.Int64
	maxWorkers int
	logger     zerolog.Logger
}

func NewWorkerPool(maxWorkers int, logger zerolog.Logger) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &WorkerPool{
		tasks:      make(chan Task, maxWorkers*10),
		maxWorkers: maxWorkers,
		logger:     logger,
	}
}

func (wp *WorkerPool) Start() {
	for i := 0; i < wp.maxWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	wp.logger.Info().Int("workers", wp.maxWorkers).Msg("Worker pool started")
}

// Stop drains the queue and waits for in-flight tasks to finish.
func (wp *WorkerPool) Stop() {
	close(wp.tasks)
	wp.wg.Wait()
	wp.logger.Info().Msg("Worker pool stopped")
}

// Submit enqueues a task, waiting briefly when the queue is full. A task
// dropped on timeout is logged; the broker redelivers unacked messages.
func (wp *WorkerPool) Submit(task Task) {
	select {
	case wp.tasks <- task:
	default:
		wp.logger.Warn().Msg("Worker pool queue is full")
		select {
		case wp.tasks <- task:
		case <-time.After(1 * time.Second):
			wp.logger.Error().Msg("Failed to submit task to worker pool (timeout)")
		}
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	wp.logger.Debug().Int("worker_id", id).Msg("Worker started")

	for task := range wp.tasks {
		wp.busy.Add(1)

		func() {
			defer func() {
				if r := recover(); r != nil {
					wp.logger.Error().
						Int("worker_id", id).
						Interface("panic", r).
						Msg("Worker recovered from panic")
				}
				wp.busy.Add(-1)
			}()

			task()
		}()
	}

	wp.logger.Debug().Int("worker_id", id).Msg("Worker stopped")
}

func (wp *WorkerPool) ActiveWorkers() int {
	return int(wp.busy.Load())
}

func (wp *WorkerPool) QueueLength() int {
	return len(wp.tasks)
}
