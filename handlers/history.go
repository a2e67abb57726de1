package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/karthikraju391/matchchat/logger"
	"github.com/karthikraju391/matchchat/metrics"
	"github.com/karthikraju391/matchchat/models"
)

// HeaderUserID carries the caller's user id. Authentication happens upstream.
const HeaderUserID = "X-User-Id"

const maxHistoryLimit = 500

// HandleHistory returns the durable history between the caller and
// :targetUserId, oldest first.
func (s *Server) HandleHistory(c *fiber.Ctx) error {
	userID := c.Get(HeaderUserID)
	targetUserID := c.Params("targetUserId")
	if userID == "" || targetUserID == "" {
		metrics.HistoryRequests.WithLabelValues("4xx").Inc()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing user ids"})
	}
	if userID == targetUserID {
		metrics.HistoryRequests.WithLabelValues("4xx").Inc()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot chat with self"})
	}

	limit := c.QueryInt("limit", s.cfg.HistoryLimit)
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	room := models.RoomID(userID, targetUserID)
	msgs, err := s.store.List(room, limit)
	if err != nil {
		logger.Error("history_list_failed", "room", room, "error", err)
		metrics.HistoryRequests.WithLabelValues("5xx").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "history unavailable"})
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}

	metrics.HistoryRequests.WithLabelValues("2xx").Inc()
	return c.JSON(models.HistoryResponse{Messages: msgs})
}
