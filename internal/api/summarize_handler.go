package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"pansoNote/internal/api/middleware"
	"pansoNote/internal/store"
	"pansoNote/internal/tasks"
)

// SummarizeHandler 处理笔记摘要的触发。
type SummarizeHandler struct {
	notes    *store.NoteStore
	enqueuer TaskEnqueuer
	logger   *slog.Logger
}

// NewSummarizeHandler 构造摘要处理器。
func NewSummarizeHandler(notes *store.NoteStore, enqueuer TaskEnqueuer, logger *slog.Logger) *SummarizeHandler {
	return &SummarizeHandler{notes: notes, enqueuer: enqueuer, logger: logger}
}

// StartSummarize 为某周笔记入队摘要任务。
// 入队前确认笔记存在，避免排队后才发现无内容可总结。
func (h *SummarizeHandler) StartSummarize(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	courseName := c.Param("course")
	weekLabel := c.Param("week")
	correlationID := middleware.GetCorrelationID(c)
	logger := middleware.LoggerFromContext(c).With(
		slog.Uint64("user_id", uint64(userID)),
		slog.String("course", courseName),
		slog.String("week", weekLabel),
	)

	if _, err := h.notes.Load(c.Request.Context(), userID, courseName, weekLabel); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(c, "note not found")
			return
		}
		logger.Error("load note failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	task, err := tasks.NewNoteSummarizeTask(userID, courseName, weekLabel, correlationID)
	if err != nil {
		logger.Error("build summarize task failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if _, err := h.enqueuer.EnqueueContext(c.Request.Context(), task); err != nil {
		logger.Error("enqueue summarize task failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("summarize task enqueued")
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
