package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"pansoNote/internal/errcode"
	"pansoNote/internal/store"
	"pansoNote/internal/summarize"
	"pansoNote/internal/tasks"
)

const summarySectionHeader = "[요약]"

// SummarizeTaskHandler 负责消费笔记摘要任务。
type SummarizeTaskHandler struct {
	notes      *store.NoteStore
	summarizer summarize.Service
	notifier   NotifyPublisher
	logger     *slog.Logger
}

// NewSummarizeTaskHandler 创建任务处理器。
func NewSummarizeTaskHandler(
	notes *store.NoteStore,
	summarizer summarize.Service,
	notifier NotifyPublisher,
	logger *slog.Logger,
) *SummarizeTaskHandler {
	return &SummarizeTaskHandler{
		notes:      notes,
		summarizer: summarizer,
		notifier:   notifier,
		logger:     logger,
	}
}

// ProcessTask 实现 asynq.Handler。
// 读取该周笔记正文交给摘要后端，把摘要作为独立小节追加回笔记。
// 后端在重试耗尽后仍失败时，以占位文本代替摘要写回，保留原文。
func (h *SummarizeTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	log := h.logger

	var payload tasks.NoteSummarizePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("user_id", uint64(payload.UserID)),
		slog.String("course", payload.CourseName),
		slog.String("week", payload.WeekLabel),
	)
	log.Info("Starting note summarization task...")

	body, err := h.notes.Load(ctx, payload.UserID, payload.CourseName, payload.WeekLabel)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("note not found, skipping task")
			notify := SummarizeNotifyMessage{
				Status:        "error",
				CourseName:    payload.CourseName,
				WeekLabel:     payload.WeekLabel,
				CorrelationID: payload.CorrelationID,
				ErrorCode:     errcode.ResourceMissing,
				ErrorMessage:  "요약할 노트가 없습니다",
			}
			if err := h.notifier.Publish(ctx, payload.UserID, notify); err != nil {
				log.Error("publish summarize error notification failed", slog.Any("error", err))
			}
			return nil
		}
		log.Error("load note failed", slog.Any("error", err))
		return err
	}
	if strings.TrimSpace(body) == "" {
		log.Warn("note body empty, skipping task")
		notify := SummarizeNotifyMessage{
			Status:        "error",
			CourseName:    payload.CourseName,
			WeekLabel:     payload.WeekLabel,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.ResourceMissing,
			ErrorMessage:  "요약할 내용이 없습니다",
		}
		if err := h.notifier.Publish(ctx, payload.UserID, notify); err != nil {
			log.Error("publish summarize error notification failed", slog.Any("error", err))
		}
		return nil
	}

	notify := SummarizeNotifyMessage{
		Status:        "completed",
		CourseName:    payload.CourseName,
		WeekLabel:     payload.WeekLabel,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}

	summary, err := h.summarizer.Summarize(ctx, body, payload.CourseName)
	if err != nil {
		if !isFinalAsynqAttempt(ctx) {
			log.Warn("summarize backend failed, will retry", slog.Any("error", err))
			return err
		}
		log.Error("summarize backend failed on final attempt", slog.Any("error", err))
		summary = summarize.FailureNote(err)
		notify.ErrorCode = errcode.ExternalServiceError
		notify.ErrorMessage = strings.TrimSpace(err.Error())
	}

	updated := appendSummary(body, summary)
	if err := h.notes.Save(ctx, payload.UserID, payload.CourseName, payload.WeekLabel, updated); err != nil {
		log.Error("save summarized note failed", slog.Any("error", err))
		return err
	}

	if err := h.notifier.Publish(ctx, payload.UserID, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
		return err
	}

	log.Info("Note summarization task completed successfully.")
	return nil
}

// appendSummary 把摘要小节追加到正文末尾；已有摘要小节时整体替换，
// 避免反复请求摘要导致正文无限增长。
func appendSummary(body, summary string) string {
	if idx := strings.LastIndex(body, "\n\n"+summarySectionHeader+"\n"); idx >= 0 {
		body = body[:idx]
	}
	return body + "\n\n" + summarySectionHeader + "\n" + summary
}
