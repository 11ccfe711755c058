package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"www.github.com/Wanderer0074348/AdaptiveLM/src/cache"
	"www.github.com/Wanderer0074348/AdaptiveLM/src/models"
	"www.github.com/Wanderer0074348/AdaptiveLM/src/routing"
)

type CompletionHandler struct {
	coordinator *routing.Coordinator
	cache       *cache.TieredCache
	manager     *routing.Manager
}

func NewCompletionHandler(coordinator *routing.Coordinator, tc *cache.TieredCache, manager *routing.Manager) *CompletionHandler {
	return &CompletionHandler{
		coordinator: coordinator,
		cache:       tc,
		manager:     manager,
	}
}

func (h *CompletionHandler) HandleCompletion(c *gin.Context) {
	var req models.CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response, err := h.coordinator.Handle(c.Request.Context(), &req)
	if err != nil {
		status := http.StatusBadGateway
		if c.Request.Context().Err() == context.Canceled {
			status = 499 // client closed request
		}
		c.JSON(status, gin.H{
			"error":     err.Error(),
			"task_type": req.TaskType,
		})
		return
	}

	c.JSON(http.StatusOK, response)
}

func (h *CompletionHandler) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.Stats())
}

func (h *CompletionHandler) ClearCache(c *gin.Context) {
	h.cache.Clear()
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func (h *CompletionHandler) RoutingStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.Stats())
}

func (h *CompletionHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}
