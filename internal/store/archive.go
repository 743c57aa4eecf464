package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"gorm.io/gorm"

	"pansoNote/internal/database"
	"pansoNote/internal/storage"
)

// ObjectStorage 是图片归档依赖的对象存储能力子集。
// 生产实现为 storage.Client，测试中可替换为内存假实现。
type ObjectStorage interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
	ListObjects(ctx context.Context, prefix string, limit int) ([]storage.ObjectMeta, error)
	DeleteObject(ctx context.Context, objectKey string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// UploadFile 表示一次上传批次中的单个文件。
type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// StoreResult 汇总一次批量上传的结果。
type StoreResult struct {
	Stored            []database.Image
	SkippedDuplicates int
}

// ImageArchive 以 (课程, 周次) 为命名空间归档讲义照片。
// 去重以内容哈希为准：同一命名空间内字节相同的文件只存一份，与文件名无关。
type ImageArchive struct {
	db      *gorm.DB
	objects ObjectStorage
}

// NewImageArchive 构造图片归档。
func NewImageArchive(db *gorm.DB, objects ObjectStorage) *ImageArchive {
	return &ImageArchive{db: db, objects: objects}
}

// Store 归档一批文件。
// 与磁盘已有内容或同批次内先出现的文件哈希重复的，计入 SkippedDuplicates 并跳过；
// 其余文件以时间戳前缀命名写入对象存储并记录元数据。
// 反复提交同一批文件因此是计数的 no-op，不会放大存储。
func (a *ImageArchive) Store(ctx context.Context, userID uint, courseName, weekLabel string, files []UploadFile) (*StoreResult, error) {
	db := a.db.WithContext(ctx)
	course, err := findCourse(db, userID, courseName)
	if err != nil {
		return nil, err
	}
	if err := weekExists(db, course.ID, weekLabel); err != nil {
		return nil, err
	}

	var existing []database.Image
	if err := db.Select("content_hash").
		Where("course_id = ? AND week_label = ?", course.ID, weekLabel).
		Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("list existing image hashes: %w", err)
	}
	seen := make(map[string]struct{}, len(existing)+len(files))
	for _, img := range existing {
		seen[img.ContentHash] = struct{}{}
	}

	result := &StoreResult{}
	for _, file := range files {
		sum := sha256.Sum256(file.Data)
		hash := hex.EncodeToString(sum[:])
		if _, dup := seen[hash]; dup {
			result.SkippedDuplicates++
			continue
		}
		seen[hash] = struct{}{}

		objectKey := a.objectKey(userID, courseName, weekLabel, file.Name)
		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		if _, err := a.objects.UploadFile(ctx, objectKey, bytes.NewReader(file.Data), int64(len(file.Data)), contentType); err != nil {
			return result, fmt.Errorf("%w: upload %q: %v", ErrStorage, objectKey, err)
		}

		record := database.Image{
			CourseID:     course.ID,
			WeekLabel:    weekLabel,
			ContentHash:  hash,
			ObjectKey:    objectKey,
			OriginalName: file.Name,
			Size:         int64(len(file.Data)),
			ContentType:  contentType,
		}
		if err := db.Create(&record).Error; err != nil {
			// 记录失败时回收已写入的对象，保持 DB 与对象存储一致。
			_ = a.objects.DeleteObject(ctx, objectKey)
			return result, fmt.Errorf("record image %q: %w", objectKey, err)
		}
		result.Stored = append(result.Stored, record)
	}
	return result, nil
}

// List 返回命名空间内的全部图片记录，新的在前。
// 对象键以时间戳开头，按键倒序即按时间倒序。
func (a *ImageArchive) List(ctx context.Context, userID uint, courseName, weekLabel string) ([]database.Image, error) {
	db := a.db.WithContext(ctx)
	course, err := findCourse(db, userID, courseName)
	if err != nil {
		return nil, err
	}

	var images []database.Image
	if err := db.Where("course_id = ? AND week_label = ?", course.ID, weekLabel).
		Order("object_key DESC").
		Find(&images).Error; err != nil {
		return nil, fmt.Errorf("list images %s/%s: %w", courseName, weekLabel, err)
	}
	return images, nil
}

// Get 返回单条图片记录，确保其属于该用户。
func (a *ImageArchive) Get(ctx context.Context, userID uint, imageID uint) (*database.Image, error) {
	db := a.db.WithContext(ctx)

	var image database.Image
	if err := db.Joins("JOIN courses ON courses.id = images.course_id").
		Where("images.id = ? AND courses.user_id = ?", imageID, userID).
		First(&image).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup image %d: %w", imageID, err)
	}
	return &image, nil
}

// PresignURL 生成图片的限时下载链接。
func (a *ImageArchive) PresignURL(ctx context.Context, image *database.Image, duration time.Duration) (string, error) {
	url, err := a.objects.GeneratePresignedURL(ctx, image.ObjectKey, duration)
	if err != nil {
		return "", fmt.Errorf("%w: presign %q: %v", ErrStorage, image.ObjectKey, err)
	}
	return url, nil
}

// PurgeCourse 清理课程名下的全部图片对象（课程删除后的收尾动作）。
func (a *ImageArchive) PurgeCourse(ctx context.Context, userID uint, courseName string) error {
	prefix := fmt.Sprintf("lectures/%d/%s/", userID, keySegment(courseName))
	if err := a.objects.DeletePrefix(ctx, prefix); err != nil {
		return fmt.Errorf("%w: purge %q: %v", ErrStorage, prefix, err)
	}
	return nil
}

// objectKey 生成带时间戳前缀的对象键，字典序即时间序。
func (a *ImageArchive) objectKey(userID uint, courseName, weekLabel, fileName string) string {
	now := time.Now().UTC()
	stamp := fmt.Sprintf("%s_%09d", now.Format("20060102_150405"), now.Nanosecond())
	return fmt.Sprintf("lectures/%d/%s/%s/%s_%s",
		userID, keySegment(courseName), weekLabel, stamp, keySegment(fileName))
}

// keySegment 转义对象键中来自用户输入的路径段。
// 课程名或文件名里的 "/" 会越过前缀边界，使 PurgeCourse 误删相邻课程的对象。
func keySegment(raw string) string {
	return url.PathEscape(raw)
}

func weekExists(tx *gorm.DB, courseID uint, weekLabel string) error {
	var week database.Week
	if err := tx.Where("course_id = ? AND label = ?", courseID, weekLabel).First(&week).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("lookup week %q: %w", weekLabel, err)
	}
	return nil
}
