package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"pansoNote/internal/api/middleware"
	"pansoNote/internal/database"
	"pansoNote/internal/ocr"
	"pansoNote/internal/store"
	"pansoNote/internal/tasks"
)

// TaskEnqueuer 抽象任务入队，便于测试替换 asynq.Client。
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// OCRHandler 处理板书识别的触发与查询。
type OCRHandler struct {
	db       *gorm.DB
	courses  *store.CourseStore
	enqueuer TaskEnqueuer
	logger   *slog.Logger
}

// NewOCRHandler 构造识别处理器。
func NewOCRHandler(db *gorm.DB, courses *store.CourseStore, enqueuer TaskEnqueuer, logger *slog.Logger) *OCRHandler {
	return &OCRHandler{db: db, courses: courses, enqueuer: enqueuer, logger: logger}
}

// StartRecognition 为某课程周次创建识别记录并入队后台任务。
// 识别是慢操作，接口立即返回 202，结果经 WebSocket 通知或轮询获取。
func (h *OCRHandler) StartRecognition(c *gin.Context) {
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

	course, err := h.courses.Get(c.Request.Context(), userID, courseName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(c, "course not found")
			return
		}
		logger.Error("resolve course failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if !courseHasWeek(course, weekLabel) {
		NotFound(c, "week not found")
		return
	}

	run := database.OCRRun{
		UserID:        userID,
		CourseID:      course.ID,
		WeekLabel:     weekLabel,
		Status:        database.OCRRunPending,
		CorrelationID: correlationID,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&run).Error; err != nil {
		logger.Error("create ocr run failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	task, err := tasks.NewOCRRecognizeTask(run.ID, correlationID)
	if err != nil {
		logger.Error("build ocr task failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if _, err := h.enqueuer.EnqueueContext(c.Request.Context(), task); err != nil {
		logger.Error("enqueue ocr task failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("ocr run enqueued", slog.Uint64("run_id", uint64(run.ID)))
	c.JSON(http.StatusAccepted, gin.H{
		"run_id": run.ID,
		"status": run.Status,
	})
}

// GetRun 查询一次识别的状态与结果。
func (h *OCRHandler) GetRun(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	runID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid run id")
		return
	}

	var run database.OCRRun
	if err := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", runID, userID).
		First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "ocr run not found")
			return
		}
		middleware.LoggerFromContext(c).Error("query ocr run failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	var lines []ocr.Line
	if len(run.Lines) > 0 {
		if err := json.Unmarshal(run.Lines, &lines); err != nil {
			middleware.LoggerFromContext(c).Error("decode ocr lines failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":        run.ID,
		"status":        run.Status,
		"week":          run.WeekLabel,
		"text":          run.Text,
		"lines":         lines,
		"error_message": run.ErrorMessage,
	})
}

func courseHasWeek(course *database.Course, weekLabel string) bool {
	for _, week := range course.Weeks {
		if week.Label == weekLabel {
			return true
		}
	}
	return false
}
