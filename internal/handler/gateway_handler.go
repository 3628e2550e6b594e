package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"einvoice-gateway/internal/metrics"
	"einvoice-gateway/internal/models"
	"einvoice-gateway/internal/service"
)

const defaultProcessLimit = 50
const defaultLogLimit = 50

// GatewayHandler handles HTTP requests for the submission gateway.
type GatewayHandler struct {
	queue     *service.QueueService
	processor *service.Processor
	submitter *service.Submitter
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger
}

// NewGatewayHandler creates a new gateway handler.
func NewGatewayHandler(queue *service.QueueService, processor *service.Processor, submitter *service.Submitter, m *metrics.Metrics, logger *zap.SugaredLogger) *GatewayHandler {
	return &GatewayHandler{
		queue:     queue,
		processor: processor,
		submitter: submitter,
		metrics:   m,
		logger:    logger,
	}
}

func (h *GatewayHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Errorw("failed to encode response", "error", err)
	}
}

// Enqueue handles POST /queue
func (h *GatewayHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req models.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.DocumentType == "" {
		http.Error(w, "document_type is required", http.StatusBadRequest)
		return
	}
	if req.DocumentID == "" {
		http.Error(w, "document_id is required", http.StatusBadRequest)
		return
	}

	jobID, err := h.queue.Enqueue(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrQueueFull):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		case errors.Is(err, service.ErrRateLimited):
			http.Error(w, err.Error(), http.StatusTooManyRequests)
		default:
			h.logger.Errorw("enqueue failed", "error", err)
			http.Error(w, "failed to enqueue: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{"queue_id": jobID})
}

// Process handles POST /queue/process?limit=
func (h *GatewayHandler) Process(w http.ResponseWriter, r *http.Request) {
	limit := defaultProcessLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	result, err := h.processor.RunCycle(r.Context(), limit)
	if err != nil {
		h.logger.Errorw("processing cycle failed", "error", err)
		http.Error(w, "processing cycle failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// Status handles GET /queue/status
func (h *GatewayHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.queue.Status(r.Context())
	if err != nil {
		h.logger.Errorw("status query failed", "error", err)
		http.Error(w, "failed to get queue status: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, status)
}

// RetryFailed handles POST /queue/retry-failed
func (h *GatewayHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.RetryFailed(r.Context())
	if err != nil {
		h.logger.Errorw("retry-failed failed", "error", err)
		http.Error(w, "failed to retry failed jobs: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int{"retry_count": n})
}

// Submit handles POST /submissions, the synchronous single-document path.
func (h *GatewayHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.DocumentType == "" || req.DocumentID == "" {
		http.Error(w, "document_type and document_id are required", http.StatusBadRequest)
		return
	}

	outcome, err := h.submitter.SubmitOne(r.Context(), req.DocumentType, req.DocumentID, req.IsRetry)
	if err != nil {
		if errors.Is(err, service.ErrSubmissionFailed) {
			// The attempt ran; surface the classified failure with the raw
			// response so the operator can diagnose without re-running.
			h.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error":    err.Error(),
				"response": outcome.ResponseBody,
			})
			return
		}
		h.logger.Errorw("submission failed", "error", err)
		http.Error(w, "submission failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"invoice_number": outcome.InvoiceRef,
		"dated":          outcome.IssuedAt,
		"response":       outcome.ResponseBody,
	})
}

// BulkSubmit handles POST /submissions/bulk
func (h *GatewayHandler) BulkSubmit(w http.ResponseWriter, r *http.Request) {
	var req models.BulkSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.DocumentType == "" {
		http.Error(w, "document_type is required", http.StatusBadRequest)
		return
	}
	if len(req.DocumentIDs) == 0 {
		http.Error(w, "document_ids is required", http.StatusBadRequest)
		return
	}

	queued, err := h.submitter.BulkSubmit(r.Context(), req.DocumentType, req.DocumentIDs)
	if err != nil {
		h.logger.Errorw("bulk submit failed", "error", err)
		http.Error(w, "bulk submit failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int{"queued_count": queued})
}

// Logs handles GET /logs?limit=
func (h *GatewayHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.queue.RecentLogs(r.Context(), limit)
	if err != nil {
		h.logger.Errorw("log query failed", "error", err)
		http.Error(w, "failed to list submission logs: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, entries)
}

// Stats handles GET /stats
func (h *GatewayHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		h.logger.Errorw("stats query failed", "error", err)
		http.Error(w, "failed to get submission stats: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// Metrics handles GET /metrics
func (h *GatewayHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.metrics.GetSnapshot())
}

// BearerAuth gates mutating routes behind a static token. An empty token
// disables the check (local development).
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
