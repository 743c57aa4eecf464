package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"pansoNote/internal/api/middleware"
	"pansoNote/internal/store"
)

// NoteHandler 处理周次笔记的读写。
type NoteHandler struct {
	notes  *store.NoteStore
	logger *slog.Logger
}

// NewNoteHandler 构造笔记处理器。
func NewNoteHandler(notes *store.NoteStore, logger *slog.Logger) *NoteHandler {
	return &NoteHandler{notes: notes, logger: logger}
}

type saveNoteRequest struct {
	// 空字符串是合法正文，与"没有笔记"不同，因此用指针区分缺失字段。
	Body *string `json:"body" binding:"required"`
}

// SaveNote 覆盖写入某周的笔记正文。
func (h *NoteHandler) SaveNote(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req saveNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	courseName := c.Param("course")
	weekLabel := c.Param("week")
	logger := middleware.LoggerFromContext(c).With(
		slog.Uint64("user_id", uint64(userID)),
		slog.String("course", courseName),
		slog.String("week", weekLabel),
	)

	if err := h.notes.Save(c.Request.Context(), userID, courseName, weekLabel, *req.Body); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(c, "course or week not found")
			return
		}
		logger.Error("save note failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("note saved", slog.Int("body_bytes", len(*req.Body)))
	c.Status(http.StatusOK)
}

// GetNote 读取某周的笔记正文，没有笔记时返回 404。
func (h *NoteHandler) GetNote(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	body, err := h.notes.Load(c.Request.Context(), userID, c.Param("course"), c.Param("week"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(c, "note not found")
			return
		}
		middleware.LoggerFromContext(c).Error("load note failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"course": c.Param("course"),
		"week":   c.Param("week"),
		"body":   body,
	})
}

// ListNotes 返回当前用户全部笔记，按课程再按周次分组。
func (h *NoteHandler) ListNotes(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	notes, err := h.notes.LoadAll(c.Request.Context(), userID)
	if err != nil {
		middleware.LoggerFromContext(c).Error("list notes failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"notes": notes})
}
