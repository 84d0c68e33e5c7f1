package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dealscout/pipeline/internal/api/dto"
	"github.com/dealscout/pipeline/internal/domain"
	"github.com/dealscout/pipeline/internal/metrics"
	"github.com/dealscout/pipeline/internal/webhook"
)

// CreateSubscription handles POST /api/v1/webhooks/subscriptions
func (h *WebhookHandler) CreateSubscription(c *gin.Context) {
	var req dto.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	for _, eventType := range req.EventTypes {
		if !knownEventType(eventType) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "unknown event type: " + eventType,
			})
			return
		}
	}

	now := time.Now().UTC()
	sub := &domain.WebhookSubscription{
		ID:            uuid.New().String(),
		TargetURL:     req.TargetURL,
		EventTypes:    req.EventTypes,
		SigningSecret: req.SigningSecret,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.store.CreateSubscription(c.Request.Context(), sub); err != nil {
		h.logger.Error("Failed to create subscription", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create subscription",
		})
		return
	}

	h.registry.Inc(metrics.DomainWebhooks, "subscriptions_created", "")
	c.JSON(http.StatusCreated, dto.FromSubscription(sub))
}

// GetSubscription handles GET /api/v1/webhooks/subscriptions/:id
func (h *WebhookHandler) GetSubscription(c *gin.Context) {
	id := c.Param("id")

	sub, err := h.store.GetSubscription(c.Request.Context(), id)
	if err != nil {
		h.respondSubscriptionError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromSubscription(sub))
}

// UpdateSubscription handles PUT /api/v1/webhooks/subscriptions/:id
func (h *WebhookHandler) UpdateSubscription(c *gin.Context) {
	id := c.Param("id")

	var req dto.UpdateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	sub, err := h.store.GetSubscription(c.Request.Context(), id)
	if err != nil {
		h.respondSubscriptionError(c, err)
		return
	}

	if req.TargetURL != "" {
		sub.TargetURL = req.TargetURL
	}
	if len(req.EventTypes) > 0 {
		for _, eventType := range req.EventTypes {
			if !knownEventType(eventType) {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "unknown event type: " + eventType,
				})
				return
			}
		}
		sub.EventTypes = req.EventTypes
	}
	if req.IsActive != nil {
		sub.IsActive = *req.IsActive
	}

	if err := h.store.UpdateSubscription(c.Request.Context(), sub); err != nil {
		h.respondSubscriptionError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromSubscription(sub))
}

// DeactivateSubscription handles DELETE /api/v1/webhooks/subscriptions/:id
// Deliveries stop; history and dead letters remain queryable.
func (h *WebhookHandler) DeactivateSubscription(c *gin.Context) {
	id := c.Param("id")

	if err := h.store.DeactivateSubscription(c.Request.Context(), id); err != nil {
		h.respondSubscriptionError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListFailures handles GET /api/v1/webhooks/failures
// Lists unresolved dead letters, optionally filtered.
func (h *WebhookHandler) ListFailures(c *gin.Context) {
	var req dto.ListFailuresRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}

	failures, err := h.store.UnresolvedFailures(c.Request.Context(), webhook.FailureFilter{
		EventType:      req.EventType,
		SubscriptionID: req.SubscriptionID,
		Limit:          req.Limit,
	})
	if err != nil {
		h.logger.Error("Failed to list failures", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list failures",
		})
		return
	}

	out := make([]dto.FailureDTO, len(failures))
	for i := range failures {
		out[i] = dto.FromFailure(&failures[i])
	}

	c.JSON(http.StatusOK, gin.H{"failures": out})
}

// ReplayFailure handles POST /api/v1/webhooks/failures/:id/replay
func (h *WebhookHandler) ReplayFailure(c *gin.Context) {
	id := c.Param("id")

	err := h.replayer.Replay(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrFailureNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Delivery failure not found",
			})
			return
		}
		if domain.IsValidation(err) {
			c.JSON(http.StatusConflict, gin.H{
				"error": err.Error(),
			})
			return
		}
		h.logger.Error("Failed to replay delivery", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to replay delivery",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "enqueued"})
}

// ReplayAllFailures handles POST /api/v1/webhooks/failures/replay
// Replays every unresolved failure matching the filter; the response
// carries only the enqueued count, outcomes land in the delivery log.
func (h *WebhookHandler) ReplayAllFailures(c *gin.Context) {
	var req dto.ListFailuresRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	enqueued, err := h.replayer.ReplayAll(c.Request.Context(), webhook.FailureFilter{
		EventType:      req.EventType,
		SubscriptionID: req.SubscriptionID,
	})
	if err != nil {
		h.logger.Error("Failed to replay deliveries", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to replay deliveries",
		})
		return
	}

	c.JSON(http.StatusAccepted, dto.ReplayAllResponse{Enqueued: enqueued})
}

func (h *WebhookHandler) respondSubscriptionError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Subscription not found",
		})
		return
	}
	h.logger.Error("Subscription operation failed", slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "Subscription operation failed",
	})
}

func knownEventType(eventType string) bool {
	switch eventType {
	case domain.EventJobCompleted,
		domain.EventJobFailed,
		domain.EventEnrichmentCompleted,
		domain.EventMatchmakingComplete:
		return true
	}
	return false
}
