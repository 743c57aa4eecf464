package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// 统一的 WebSocket 消息协议（通过 Redis Pub/Sub 转发给前端）。
// 注意：这里的字段名与前端解析保持一致。
type OCRNotifyMessage struct {
	Status        string `json:"status"`
	RunID         uint   `json:"run_id"`
	CourseName    string `json:"course_name"`
	WeekLabel     string `json:"week_label"`
	CorrelationID string `json:"correlation_id"`
	ErrorCode     int    `json:"error_code"`
	ErrorMessage  string `json:"error_message"`
}

type SummarizeNotifyMessage struct {
	Status        string `json:"status"`
	CourseName    string `json:"course_name"`
	WeekLabel     string `json:"week_label"`
	CorrelationID string `json:"correlation_id"`
	ErrorCode     int    `json:"error_code"`
	ErrorMessage  string `json:"error_message"`
}

// NotifyPublisher 把任务结果推送到用户的通知通道。
type NotifyPublisher interface {
	Publish(ctx context.Context, userID uint, message any) error
}

// RedisPublisher 通过 Redis Pub/Sub 投递通知，API 进程的 WebSocket
// 处理器订阅同名通道并转发给浏览器。
type RedisPublisher struct {
	Client *redis.Client
}

func (p RedisPublisher) Publish(ctx context.Context, userID uint, message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := fmt.Sprintf("user_notify:%d", userID)
	if err := p.Client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}
