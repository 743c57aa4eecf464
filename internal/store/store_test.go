package store

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"pansoNote/internal/database"
	"pansoNote/internal/storage"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestUser(t *testing.T, db *gorm.DB, username string) uint {
	t.Helper()
	user := database.User{Username: username, PasswordHash: "x"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user.ID
}

type fakeObjects struct {
	uploaded map[string][]byte
	deleted  []string
	failNext bool
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{uploaded: map[string][]byte{}}
}

func (f *fakeObjects) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) (*minio.UploadInfo, error) {
	if f.failNext {
		f.failNext = false
		return nil, fmt.Errorf("injected upload failure")
	}
	b, _ := io.ReadAll(reader)
	f.uploaded[objectName] = b
	return &minio.UploadInfo{Key: objectName}, nil
}

func (f *fakeObjects) GeneratePresignedURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://example.invalid/" + objectKey, nil
}

func (f *fakeObjects) ListObjects(_ context.Context, prefix string, limit int) ([]storage.ObjectMeta, error) {
	var out []storage.ObjectMeta
	for key, data := range f.uploaded {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectMeta{Key: key, Size: int64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, objectKey string) error {
	f.deleted = append(f.deleted, objectKey)
	delete(f.uploaded, objectKey)
	return nil
}

func (f *fakeObjects) DeletePrefix(ctx context.Context, prefix string) error {
	for key := range f.uploaded {
		if strings.HasPrefix(key, prefix) {
			if err := f.DeleteObject(ctx, key); err != nil {
				return err
			}
		}
	}
	return nil
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("parse date %q: %v", value, err)
	}
	return d
}
