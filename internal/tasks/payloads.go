package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeOCRRecognize  = "ocr:recognize"
	TypeNoteSummarize = "note:summarize"
)

// OCRRecognizePayload 描述一次板书识别任务所需的最小信息。
type OCRRecognizePayload struct {
	RunID         uint   `json:"run_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewOCRRecognizeTask 构造一个新的板书识别任务。
func NewOCRRecognizeTask(runID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(OCRRecognizePayload{
		RunID:         runID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeOCRRecognize, payload), nil
}

// NoteSummarizePayload 描述一次笔记摘要任务所需的最小信息。
type NoteSummarizePayload struct {
	UserID        uint   `json:"user_id"`
	CourseName    string `json:"course_name"`
	WeekLabel     string `json:"week_label"`
	CorrelationID string `json:"correlation_id"`
}

// NewNoteSummarizeTask 构造一个新的笔记摘要任务。
func NewNoteSummarizeTask(userID uint, courseName, weekLabel, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(NoteSummarizePayload{
		UserID:        userID,
		CourseName:    courseName,
		WeekLabel:     weekLabel,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeNoteSummarize, payload), nil
}
