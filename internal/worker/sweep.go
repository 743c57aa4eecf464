package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"pansoNote/internal/database"
	"pansoNote/internal/store"
)

const lecturePrefix = "lectures/"

// OrphanSweeper 定期清理对象存储中没有对应数据库记录的图片。
// 上传补偿删除失败、或进程在写库前崩溃都会留下这类孤儿对象。
type OrphanSweeper struct {
	db      *gorm.DB
	objects store.ObjectStorage
	logger  *slog.Logger

	// 只清理超过该年龄的对象，避免误删正在进行中的上传。
	minAge time.Duration
}

// NewOrphanSweeper 构造清理器。
func NewOrphanSweeper(db *gorm.DB, objects store.ObjectStorage, logger *slog.Logger) *OrphanSweeper {
	return &OrphanSweeper{
		db:      db,
		objects: objects,
		logger:  logger,
		minAge:  24 * time.Hour,
	}
}

// Start 注册每日清理任务并启动调度器，返回值用于优雅停机。
func (s *OrphanSweeper) Start() (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc("@daily", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := s.Sweep(ctx); err != nil {
			s.logger.Error("orphan sweep failed", slog.Any("error", err))
		}
	}); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

// Sweep 扫描讲义前缀下的全部对象，删除数据库中无记录的陈旧对象。
func (s *OrphanSweeper) Sweep(ctx context.Context) error {
	objects, err := s.objects.ListObjects(ctx, lecturePrefix, 0)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-s.minAge)
	removed := 0
	for _, object := range objects {
		if !object.LastModified.IsZero() && object.LastModified.After(cutoff) {
			continue
		}

		var count int64
		if err := s.db.WithContext(ctx).
			Model(&database.Image{}).
			Where("object_key = ?", object.Key).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}

		if err := s.objects.DeleteObject(ctx, object.Key); err != nil {
			s.logger.Error("delete orphan object failed",
				slog.String("object_key", object.Key), slog.Any("error", err))
			continue
		}
		removed++
		s.logger.Info("removed orphan object", slog.String("object_key", object.Key))
	}

	s.logger.Info("orphan sweep finished",
		slog.Int("scanned", len(objects)),
		slog.Int("removed", removed),
	)
	return nil
}
