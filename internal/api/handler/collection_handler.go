package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dnguyen/collections-be/internal/api/dto"
	"github.com/dnguyen/collections-be/internal/collections"
)

// GetCollectionCount handles GET /api/v1/collections/:collection_id/count
// Preflight count used by the dashboard before submitting an
// all_matching bulk add; the returned count is only ever advisory.
func (h *JobHandler) GetCollectionCount(c *gin.Context) {
	collectionID := c.Param("collection_id")

	if _, err := uuid.Parse(collectionID); err != nil {
		h.logger.Error("Invalid collection_id format", slog.String("collection_id", collectionID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "collection_id must be a valid UUID",
		})
		return
	}

	name, err := h.collections.Name(c.Request.Context(), collectionID)
	if err != nil {
		if errors.Is(err, collections.ErrCollectionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Collection not found",
			})
			return
		}
		h.logger.Error("Failed to get collection", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get collection",
		})
		return
	}

	count, err := h.collections.Count(c.Request.Context(), collectionID)
	if err != nil {
		h.logger.Error("Failed to count collection members", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to count collection members",
		})
		return
	}

	c.JSON(http.StatusOK, dto.CollectionCountResponse{
		Count:          count,
		CollectionID:   collectionID,
		CollectionName: name,
	})
}
