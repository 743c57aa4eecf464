package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pansoNote/internal/config"
	"pansoNote/internal/database"
	"pansoNote/internal/storage"
	"pansoNote/internal/store"
	"pansoNote/internal/tasks"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeObjects struct {
	uploaded map[string][]byte
	deleted  []string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{uploaded: map[string][]byte{}}
}

func (s *fakeObjects) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) (*minio.UploadInfo, error) {
	b, _ := io.ReadAll(reader)
	s.uploaded[objectName] = b
	return &minio.UploadInfo{}, nil
}

func (s *fakeObjects) GeneratePresignedURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://example.invalid/" + objectKey, nil
}

func (s *fakeObjects) ListObjects(_ context.Context, prefix string, _ int) ([]storage.ObjectMeta, error) {
	var result []storage.ObjectMeta
	for key := range s.uploaded {
		if strings.HasPrefix(key, prefix) {
			result = append(result, storage.ObjectMeta{Key: key})
		}
	}
	return result, nil
}

func (s *fakeObjects) DeleteObject(_ context.Context, objectKey string) error {
	s.deleted = append(s.deleted, objectKey)
	delete(s.uploaded, objectKey)
	return nil
}

func (s *fakeObjects) DeletePrefix(ctx context.Context, prefix string) error {
	for key := range s.uploaded {
		if strings.HasPrefix(key, prefix) {
			_ = s.DeleteObject(ctx, key)
		}
	}
	return nil
}

type fakeEnqueuer struct {
	enqueued []*asynq.Task
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.enqueued = append(f.enqueued, task)
	return &asynq.TaskInfo{}, nil
}

func seedUserAndCourse(t *testing.T, db *gorm.DB, courseName string) *database.User {
	t.Helper()
	user := &database.User{Username: "tester-" + strings.ToLower(t.Name()), PasswordHash: "x"}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	if courseName != "" {
		courses := store.NewCourseStore(db)
		if _, err := courses.Create(context.Background(), user.ID, courseName, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)); err != nil {
			t.Fatalf("create course: %v", err)
		}
	}
	return user
}

func newJSONContext(t *testing.T, w *httptest.ResponseRecorder, userID uint, method, target string, payload any, params gin.Params) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")

	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = params
	c.Set("userID", userID)
	return c
}

func TestCreateCourseGeneratesSchedule(t *testing.T) {
	db := newTestDB(t)
	user := seedUserAndCourse(t, db, "")
	h := NewCourseHandler(store.NewCourseStore(db), store.NewImageArchive(db, newFakeObjects()), testLogger())

	w := httptest.NewRecorder()
	c := newJSONContext(t, w, user.ID, http.MethodPost, "/v1/courses", gin.H{
		"name":       "미적분학",
		"start_date": "2026-03-02",
	}, nil)
	h.CreateCourse(c)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", w.Code, w.Body.String())
	}
	var resp courseResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Weeks) != store.WeekCount {
		t.Fatalf("expected %d weeks, got %d", store.WeekCount, len(resp.Weeks))
	}
	if resp.Weeks[0].DisplayName != "1주차(03월 02일)" {
		t.Fatalf("first week display name = %q", resp.Weeks[0].DisplayName)
	}

	// 同名课程重复创建应返回 409
	w2 := httptest.NewRecorder()
	c2 := newJSONContext(t, w2, user.ID, http.MethodPost, "/v1/courses", gin.H{
		"name":       "미적분학",
		"start_date": "2026-09-01",
	}, nil)
	h.CreateCourse(c2)
	if w2.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", w2.Code)
	}
}

func TestUpdateWeekRecomputesDisplayName(t *testing.T) {
	db := newTestDB(t)
	user := seedUserAndCourse(t, db, "자료구조")
	h := NewCourseHandler(store.NewCourseStore(db), store.NewImageArchive(db, newFakeObjects()), testLogger())

	w := httptest.NewRecorder()
	c := newJSONContext(t, w, user.ID, http.MethodPatch, "/v1/courses/자료구조/weeks/8주차", gin.H{
		"type": "midterm",
	}, gin.Params{{Key: "course", Value: "자료구조"}, {Key: "week", Value: "8주차"}})
	h.UpdateWeek(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	var resp weekResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.DisplayName != "8주차(04월 20일) - 중간고사" {
		t.Fatalf("display name = %q", resp.DisplayName)
	}
}

func TestNoteRoundTrip(t *testing.T) {
	db := newTestDB(t)
	user := seedUserAndCourse(t, db, "선형대수")
	h := NewNoteHandler(store.NewNoteStore(db), testLogger())
	params := gin.Params{{Key: "course", Value: "선형대수"}, {Key: "week", Value: "2주차"}}

	// 尚无笔记时读取应 404
	w := httptest.NewRecorder()
	h.GetNote(newJSONContext(t, w, user.ID, http.MethodGet, "/note", nil, params))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.SaveNote(newJSONContext(t, w, user.ID, http.MethodPut, "/note", gin.H{"body": "행렬 곱셈"}, params))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	h.GetNote(newJSONContext(t, w, user.ID, http.MethodGet, "/note", nil, params))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	var resp struct {
		Body string `json:"body"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Body != "행렬 곱셈" {
		t.Fatalf("body = %q", resp.Body)
	}
}

func newMultipartUpload(t *testing.T, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, content := range files {
		part, err := writer.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func newUploadContext(t *testing.T, w *httptest.ResponseRecorder, userID uint, files map[string][]byte, params gin.Params) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	body, contentType := newMultipartUpload(t, files)
	req := httptest.NewRequest(http.MethodPost, "/images", body)
	req.Header.Set("Content-Type", contentType)

	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = params
	c.Set("userID", userID)
	return c
}

func TestUploadImagesSkipsDuplicates(t *testing.T) {
	db := newTestDB(t)
	user := seedUserAndCourse(t, db, "화학")
	objects := newFakeObjects()
	archive := store.NewImageArchive(db, objects)
	h := NewImageHandler(archive, testLogger(), config.UploadConfig{MaxFileBytes: 1 << 20, MaxFiles: 10})
	params := gin.Params{{Key: "course", Value: "화학"}, {Key: "week", Value: "1주차"}}

	w := httptest.NewRecorder()
	h.UploadImages(newUploadContext(t, w, user.ID, map[string][]byte{"a.jpg": []byte("photo-a")}, params))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", w.Code, w.Body.String())
	}

	// 同样的字节换个文件名再传，应被跳过
	w = httptest.NewRecorder()
	h.UploadImages(newUploadContext(t, w, user.ID, map[string][]byte{"b.jpg": []byte("photo-a")}, params))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Stored            []storedImageResponse `json:"stored"`
		SkippedDuplicates int                   `json:"skipped_duplicates"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Stored) != 0 || resp.SkippedDuplicates != 1 {
		t.Fatalf("expected duplicate skip, got %+v", resp)
	}
	if len(objects.uploaded) != 1 {
		t.Fatalf("expected 1 stored object, got %d", len(objects.uploaded))
	}
}

func TestUploadImagesLimitsFileCount(t *testing.T) {
	db := newTestDB(t)
	user := seedUserAndCourse(t, db, "물리학")
	h := NewImageHandler(store.NewImageArchive(db, newFakeObjects()), testLogger(), config.UploadConfig{MaxFileBytes: 1 << 20, MaxFiles: 1})
	params := gin.Params{{Key: "course", Value: "물리학"}, {Key: "week", Value: "1주차"}}

	w := httptest.NewRecorder()
	h.UploadImages(newUploadContext(t, w, user.ID, map[string][]byte{
		"a.jpg": []byte("a"),
		"b.jpg": []byte("b"),
	}, params))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", w.Code)
	}
}

func TestStartRecognitionEnqueuesTask(t *testing.T) {
	db := newTestDB(t)
	user := seedUserAndCourse(t, db, "미적분학")
	enqueuer := &fakeEnqueuer{}
	h := NewOCRHandler(db, store.NewCourseStore(db), enqueuer, testLogger())
	params := gin.Params{{Key: "course", Value: "미적분학"}, {Key: "week", Value: "3주차"}}

	w := httptest.NewRecorder()
	h.StartRecognition(newJSONContext(t, w, user.ID, http.MethodPost, "/ocr", nil, params))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d body=%s", w.Code, w.Body.String())
	}
	if len(enqueuer.enqueued) != 1 || enqueuer.enqueued[0].Type() != tasks.TypeOCRRecognize {
		t.Fatalf("expected one ocr task, got %+v", enqueuer.enqueued)
	}

	var run database.OCRRun
	if err := db.First(&run).Error; err != nil {
		t.Fatalf("load run: %v", err)
	}
	if run.Status != database.OCRRunPending || run.WeekLabel != "3주차" {
		t.Fatalf("unexpected run %+v", run)
	}

	// 不存在的周次应 404 且不入队
	w2 := httptest.NewRecorder()
	h.StartRecognition(newJSONContext(t, w2, user.ID, http.MethodPost, "/ocr", nil,
		gin.Params{{Key: "course", Value: "미적분학"}, {Key: "week", Value: "16주차"}}))
	if w2.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w2.Code)
	}
	if len(enqueuer.enqueued) != 1 {
		t.Fatalf("unexpected extra task")
	}
}

func TestGetRunScopedToOwner(t *testing.T) {
	db := newTestDB(t)
	user := seedUserAndCourse(t, db, "운영체제")
	var course database.Course
	if err := db.Where("user_id = ?", user.ID).First(&course).Error; err != nil {
		t.Fatalf("load course: %v", err)
	}
	run := &database.OCRRun{UserID: user.ID, CourseID: course.ID, WeekLabel: "1주차", Status: database.OCRRunCompleted, Text: "인식 결과"}
	if err := db.Create(run).Error; err != nil {
		t.Fatalf("create run: %v", err)
	}

	h := NewOCRHandler(db, store.NewCourseStore(db), &fakeEnqueuer{}, testLogger())
	params := gin.Params{{Key: "id", Value: strconv.FormatUint(uint64(run.ID), 10)}}

	w := httptest.NewRecorder()
	h.GetRun(newJSONContext(t, w, user.ID, http.MethodGet, "/ocr", nil, params))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	// 其他用户不可见
	w2 := httptest.NewRecorder()
	h.GetRun(newJSONContext(t, w2, user.ID+1, http.MethodGet, "/ocr", nil, params))
	if w2.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w2.Code)
	}
}

func TestStartSummarizeRequiresNote(t *testing.T) {
	db := newTestDB(t)
	user := seedUserAndCourse(t, db, "통계학")
	notes := store.NewNoteStore(db)
	enqueuer := &fakeEnqueuer{}
	h := NewSummarizeHandler(notes, enqueuer, testLogger())
	params := gin.Params{{Key: "course", Value: "통계학"}, {Key: "week", Value: "4주차"}}

	w := httptest.NewRecorder()
	h.StartSummarize(newJSONContext(t, w, user.ID, http.MethodPost, "/summarize", nil, params))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without note, got %d", w.Code)
	}

	if err := notes.Save(context.Background(), user.ID, "통계학", "4주차", "표본 분산"); err != nil {
		t.Fatalf("seed note: %v", err)
	}
	w2 := httptest.NewRecorder()
	h.StartSummarize(newJSONContext(t, w2, user.ID, http.MethodPost, "/summarize", nil, params))
	if w2.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d body=%s", w2.Code, w2.Body.String())
	}
	if len(enqueuer.enqueued) != 1 || enqueuer.enqueued[0].Type() != tasks.TypeNoteSummarize {
		t.Fatalf("expected one summarize task, got %+v", enqueuer.enqueued)
	}
}

func TestExportCalendar(t *testing.T) {
	db := newTestDB(t)
	user := seedUserAndCourse(t, db, "미적분학")
	h := NewCourseHandler(store.NewCourseStore(db), store.NewImageArchive(db, newFakeObjects()), testLogger())
	params := gin.Params{{Key: "course", Value: "미적분학"}}

	w := httptest.NewRecorder()
	h.ExportCalendar(newJSONContext(t, w, user.ID, http.MethodGet, "/calendar.ics", nil, params))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, "BEGIN:VCALENDAR") {
		t.Fatalf("response is not an icalendar document: %q", body[:min(len(body), 80)])
	}
	if !strings.Contains(body, "미적분학") {
		t.Fatalf("calendar missing course name")
	}
}

func TestDeleteCoursePurgesObjects(t *testing.T) {
	db := newTestDB(t)
	user := seedUserAndCourse(t, db, "화학")
	objects := newFakeObjects()
	archive := store.NewImageArchive(db, objects)
	if _, err := archive.Store(context.Background(), user.ID, "화학", "1주차", []store.UploadFile{
		{Name: "a.jpg", ContentType: "image/jpeg", Data: []byte("photo")},
	}); err != nil {
		t.Fatalf("seed image: %v", err)
	}

	h := NewCourseHandler(store.NewCourseStore(db), archive, testLogger())
	w := httptest.NewRecorder()
	h.DeleteCourse(newJSONContext(t, w, user.ID, http.MethodDelete, "/v1/courses/화학", nil,
		gin.Params{{Key: "course", Value: "화학"}}))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	if len(objects.uploaded) != 0 {
		t.Fatalf("expected objects purged, still have %d", len(objects.uploaded))
	}

	var count int64
	if err := db.Model(&database.Course{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
		t.Fatalf("count courses: %v", err)
	}
	if count != 0 {
		t.Fatalf("course should be gone, count=%d", count)
	}
}
