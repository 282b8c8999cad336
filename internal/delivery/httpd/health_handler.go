package httpd

import (
	"net/http"
	"time"

	"github.com/danubeai/flexquiz-service/internal/models"
	"github.com/danubeai/flexquiz-service/pkg/utils"
)

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("Health check failed to ping database")
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	utils.WriteJSON(w, code, map[string]interface{}{
		"status":    status,
		"service":   "flexquiz-service",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	})
}

func (h *Handler) GetEngineStats(w http.ResponseWriter, r *http.Request) {
	runs, students, failures, lastSweep := h.engine.SweepCounters()
	workerStats := h.attemptWorker.Stats()

	utils.SuccessResponse(w, models.EngineStats{
		ActiveWorkers:  workerStats.ActiveWorkers,
		QueueLength:    workerStats.QueueLength,
		SweepsRun:      int(runs),
		StudentsSwept:  int(students),
		SweepFailures:  int(failures),
		AttemptsByMQ:   workerStats.Processed,
		AttemptsFailed: workerStats.Failed,
		LastSweepUnix:  lastSweep,
	})
}
