package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"pansoNote/internal/database"
	"pansoNote/internal/errcode"
	"pansoNote/internal/ocr"
	"pansoNote/internal/storage"
	"pansoNote/internal/tasks"
)

// ObjectFetcher 读取对象存储中一张图片的完整字节。
type ObjectFetcher interface {
	FetchObject(ctx context.Context, objectKey string) ([]byte, error)
}

// MinioFetcher 是 ObjectFetcher 的生产实现。
type MinioFetcher struct {
	Client *storage.Client
}

func (f MinioFetcher) FetchObject(ctx context.Context, objectKey string) ([]byte, error) {
	object, err := f.Client.GetObject(ctx, objectKey)
	if err != nil {
		return nil, err
	}
	defer object.Close()
	return io.ReadAll(object)
}

// OCRTaskHandler 负责消费板书识别任务。
type OCRTaskHandler struct {
	db         *gorm.DB
	fetcher    ObjectFetcher
	recognizer ocr.Recognizer
	notifier   NotifyPublisher
	logger     *slog.Logger
}

// NewOCRTaskHandler 创建任务处理器。
func NewOCRTaskHandler(
	db *gorm.DB,
	fetcher ObjectFetcher,
	recognizer ocr.Recognizer,
	notifier NotifyPublisher,
	logger *slog.Logger,
) *OCRTaskHandler {
	return &OCRTaskHandler{
		db:         db,
		fetcher:    fetcher,
		recognizer: recognizer,
		notifier:   notifier,
		logger:     logger,
	}
}

// ProcessTask 实现 asynq.Handler。
// 按对象键升序（键内嵌时间戳，即上传时间正序）拉取该周的全部图片，整批提交识别，
// 结果写回 OCRRun 后通知前端。没识别出任何文本不算失败。
func (h *OCRTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.OCRRecognizePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("run_id", uint64(payload.RunID)),
	)
	log.Info("Starting OCR recognition task...")

	var run database.OCRRun
	if err := h.db.WithContext(ctx).First(&run, payload.RunID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("ocr run not found, skipping task")
			return nil
		}
		log.Error("query ocr run failed", slog.Any("error", err))
		return err
	}

	log = log.With(slog.Uint64("user_id", uint64(run.UserID)))

	var course database.Course
	if err := h.db.WithContext(ctx).First(&course, run.CourseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("course deleted before recognition, skipping task")
			return nil
		}
		log.Error("query course failed", slog.Any("error", err))
		return err
	}

	defer func() {
		if retErr == nil {
			return
		}
		if !isFinalAsynqAttempt(ctx) {
			return
		}

		message := strings.TrimSpace(retErr.Error())
		update := map[string]any{
			"status":        database.OCRRunError,
			"error_message": message,
		}
		if err := h.db.WithContext(ctx).Model(&run).Updates(update).Error; err != nil {
			log.Error("mark ocr run failed", slog.Any("error", err))
		}
		notify := OCRNotifyMessage{
			Status:        "error",
			RunID:         run.ID,
			CourseName:    course.Name,
			WeekLabel:     run.WeekLabel,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.ExternalServiceError,
			ErrorMessage:  message,
		}
		if err := h.notifier.Publish(ctx, run.UserID, notify); err != nil {
			log.Error("publish ocr error notification failed", slog.Any("error", err))
		}
	}()

	var images []database.Image
	if err := h.db.WithContext(ctx).
		Where("course_id = ? AND week_label = ?", run.CourseID, run.WeekLabel).
		Order("object_key ASC").
		Find(&images).Error; err != nil {
		log.Error("query week images failed", slog.Any("error", err))
		return err
	}

	inputs := make([]ocr.ImageInput, 0, len(images))
	for _, image := range images {
		data, err := h.fetcher.FetchObject(ctx, image.ObjectKey)
		if err != nil {
			log.Error("fetch image from storage failed",
				slog.String("object_key", image.ObjectKey), slog.Any("error", err))
			return fmt.Errorf("fetch object %q: %w", image.ObjectKey, err)
		}
		inputs = append(inputs, ocr.ImageInput{Name: image.OriginalName, Data: data})
	}

	result, err := h.recognizer.Recognize(ctx, inputs)
	if err != nil {
		log.Error("ocr recognition failed", slog.Any("error", err))
		return err
	}

	lines, err := json.Marshal(result.Lines)
	if err != nil {
		return fmt.Errorf("marshal ocr lines: %w", err)
	}
	update := map[string]any{
		"status":        database.OCRRunCompleted,
		"text":          result.Text,
		"lines":         datatypes.JSON(lines),
		"error_message": "",
	}
	if err := h.db.WithContext(ctx).Model(&run).Updates(update).Error; err != nil {
		log.Error("update ocr run failed", slog.Any("error", err))
		return err
	}

	notify := OCRNotifyMessage{
		Status:        "completed",
		RunID:         run.ID,
		CourseName:    course.Name,
		WeekLabel:     run.WeekLabel,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}
	if result.Text == "" {
		notify.ErrorCode = errcode.NoTextRecognized
		notify.ErrorMessage = "인식된 텍스트가 없습니다"
		log.Warn("ocr produced no text", slog.Int("image_count", len(images)))
	}
	if err := h.notifier.Publish(ctx, run.UserID, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
		return err
	}

	log.Info("OCR recognition task completed successfully.",
		slog.Int("image_count", len(images)),
		slog.Int("line_count", len(result.Lines)),
	)
	return nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
