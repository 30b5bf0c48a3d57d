package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zapdeskhq/zapbot-platform/internal/conversation"
	"github.com/zapdeskhq/zapbot-platform/internal/messaging"
	"github.com/zapdeskhq/zapbot-platform/pkg/logging"
)

const maxWebhookBodyBytes = 1 << 20 // 1 MiB

// EvolutionWebhookHandler receives Evolution API events, records a job
// and enqueues inbound messages for the bot worker.
type EvolutionWebhookHandler struct {
	publisher    *conversation.Publisher
	jobs         conversation.JobRecorder
	webhookToken string
	logger       *logging.Logger
}

// NewEvolutionWebhookHandler builds the webhook handler. jobs may be
// nil, in which case job status tracking is disabled.
func NewEvolutionWebhookHandler(publisher *conversation.Publisher, jobs conversation.JobRecorder, webhookToken string, logger *logging.Logger) *EvolutionWebhookHandler {
	if publisher == nil {
		panic("handlers: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EvolutionWebhookHandler{
		publisher:    publisher,
		jobs:         jobs,
		webhookToken: webhookToken,
		logger:       logger,
	}
}

// HealthCheck reports liveness.
func (h *EvolutionWebhookHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleEvent accepts one Evolution webhook delivery. Inbound customer
// messages are acknowledged with 202 and a job id; everything else is
// acknowledged and dropped so Evolution stops retrying.
func (h *EvolutionWebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	event, err := messaging.ParseEvent(body)
	if err != nil {
		h.logger.Warn("malformed webhook event", "error", err)
		http.Error(w, "malformed event", http.StatusBadRequest)
		return
	}

	switch event.Event {
	case messaging.EventMessagesUpsert:
		h.handleInbound(w, r, event)
	case messaging.EventConnectionUpdate:
		if update, ok, err := messaging.ParseConnectionUpdate(event); err == nil && ok {
			h.logger.Info("instance connection update",
				"instance", update.InstanceName, "state", update.State)
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
	default:
		h.logger.Debug("webhook event ignored", "event", event.Event, "instance", event.Instance)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	}
}

func (h *EvolutionWebhookHandler) handleInbound(w http.ResponseWriter, r *http.Request, event messaging.WebhookEvent) {
	msg, ok, err := messaging.ParseInbound(event)
	if err != nil {
		h.logger.Warn("malformed messages.upsert payload", "error", err, "instance", event.Instance)
		http.Error(w, "malformed event", http.StatusBadRequest)
		return
	}
	if !ok || msg.FromMe {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	ctx := r.Context()
	jobID := uuid.NewString()

	opts := []conversation.PublishOption{}
	if h.jobs != nil {
		now := time.Now().UTC().Format(time.RFC3339)
		record := &conversation.JobRecord{
			JobID:        jobID,
			Status:       conversation.JobStatusPending,
			InstanceName: msg.InstanceName,
			Inbound:      &msg,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := h.jobs.PutPending(ctx, record); err != nil {
			// Tracking is best effort; the message still gets processed.
			h.logger.Error("failed to record webhook job", "error", err, "job_id", jobID)
			opts = append(opts, conversation.WithoutJobTracking())
		}
	} else {
		opts = append(opts, conversation.WithoutJobTracking())
	}

	if _, err := h.publisher.EnqueueInbound(ctx, jobID, msg, opts...); err != nil {
		h.logger.Error("failed to enqueue inbound message", "error", err,
			"instance", msg.InstanceName, "job_id", jobID)
		http.Error(w, "failed to enqueue", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "queued",
		"job_id": jobID,
	})
}

// GetJobStatus returns the processing state of a previously accepted
// webhook delivery.
func (h *EvolutionWebhookHandler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "job tracking disabled", http.StatusNotFound)
		return
	}
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		http.Error(w, "job id required", http.StatusBadRequest)
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, conversation.ErrJobNotFound) {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load job", "error", err, "job_id", jobID)
		http.Error(w, "failed to load job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *EvolutionWebhookHandler) authorized(r *http.Request) bool {
	if h.webhookToken == "" {
		return true
	}
	got := r.Header.Get("apikey")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
