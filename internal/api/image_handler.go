package api

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"

	"pansoNote/internal/api/middleware"
	"pansoNote/internal/config"
	"pansoNote/internal/metrics"
	"pansoNote/internal/store"
)

const presignedImageURLTTL = time.Hour

// ImageHandler 处理讲义照片的批量上传与浏览。
type ImageHandler struct {
	archive      *store.ImageArchive
	logger       *slog.Logger
	maxFileBytes int64
	maxFiles     int
	clamdAddr    string
}

// NewImageHandler 构造图片处理器。
func NewImageHandler(archive *store.ImageArchive, logger *slog.Logger, uploadCfg config.UploadConfig) *ImageHandler {
	return &ImageHandler{
		archive:      archive,
		logger:       logger,
		maxFileBytes: uploadCfg.MaxFileBytes,
		maxFiles:     uploadCfg.MaxFiles,
		clamdAddr:    uploadCfg.ClamdAddr,
	}
}

type storedImageResponse struct {
	ID           uint   `json:"id"`
	OriginalName string `json:"original_name"`
	ObjectKey    string `json:"object_key"`
	Size         int64  `json:"size"`
}

// UploadImages 接收 multipart 批量上传并归档。
// 重复内容不报错，响应中以 skipped_duplicates 告知跳过数量。
func (h *ImageHandler) UploadImages(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		BadRequest(c, "invalid multipart form")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		BadRequest(c, "no files provided")
		return
	}
	if h.maxFiles > 0 && len(files) > h.maxFiles {
		BadRequest(c, fmt.Sprintf("too many files, at most %d per request", h.maxFiles))
		return
	}

	courseName := c.Param("course")
	weekLabel := c.Param("week")
	logger := middleware.LoggerFromContext(c).With(
		slog.Uint64("user_id", uint64(userID)),
		slog.String("course", courseName),
		slog.String("week", weekLabel),
	)

	uploads := make([]store.UploadFile, 0, len(files))
	for _, file := range files {
		if h.maxFileBytes > 0 && file.Size > h.maxFileBytes {
			BadRequest(c, fmt.Sprintf("file %q exceeds size limit", file.Filename))
			return
		}

		data, err := readMultipartFile(file)
		if err != nil {
			logger.Error("read uploaded file failed",
				slog.String("file", file.Filename), slog.Any("error", err))
			Internal(c, "failed to read uploaded file")
			return
		}

		if h.clamdAddr != "" {
			infected, err := h.scanForVirus(data)
			if err != nil {
				logger.Error("virus scan failed",
					slog.String("file", file.Filename), slog.Any("error", err))
				Internal(c, "failed to scan file")
				return
			}
			if infected {
				logger.Warn("malicious file rejected", slog.String("file", file.Filename))
				BadRequest(c, "malicious file detected")
				return
			}
		}

		contentType := file.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		uploads = append(uploads, store.UploadFile{
			Name:        file.Filename,
			ContentType: contentType,
			Data:        data,
		})
	}

	result, err := h.archive.Store(c.Request.Context(), userID, courseName, weekLabel, uploads)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(c, "course or week not found")
			return
		}
		logger.Error("archive images failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	metrics.CountArchivedImages(len(result.Stored), result.SkippedDuplicates)
	logger.Info("images archived",
		slog.Int("stored", len(result.Stored)),
		slog.Int("skipped_duplicates", result.SkippedDuplicates),
	)

	stored := make([]storedImageResponse, 0, len(result.Stored))
	for _, image := range result.Stored {
		stored = append(stored, storedImageResponse{
			ID:           image.ID,
			OriginalName: image.OriginalName,
			ObjectKey:    image.ObjectKey,
			Size:         image.Size,
		})
	}
	c.JSON(http.StatusCreated, gin.H{
		"stored":             stored,
		"skipped_duplicates": result.SkippedDuplicates,
	})
}

// ListImages 按最新在前返回某周的图片及预签名访问链接。
func (h *ImageHandler) ListImages(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	images, err := h.archive.List(c.Request.Context(), userID, c.Param("course"), c.Param("week"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(c, "course or week not found")
			return
		}
		middleware.LoggerFromContext(c).Error("list images failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	type imageEntry struct {
		storedImageResponse
		URL        string `json:"url"`
		UploadedAt string `json:"uploaded_at"`
	}
	entries := make([]imageEntry, 0, len(images))
	for i := range images {
		url, err := h.archive.PresignURL(c.Request.Context(), &images[i], presignedImageURLTTL)
		if err != nil {
			middleware.LoggerFromContext(c).Error("presign image url failed",
				slog.String("object_key", images[i].ObjectKey), slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
		entries = append(entries, imageEntry{
			storedImageResponse: storedImageResponse{
				ID:           images[i].ID,
				OriginalName: images[i].OriginalName,
				ObjectKey:    images[i].ObjectKey,
				Size:         images[i].Size,
			},
			URL:        url,
			UploadedAt: images[i].CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"images": entries})
}

func (h *ImageHandler) scanForVirus(data []byte) (bool, error) {
	clamdClient := clamd.NewClamd(h.clamdAddr)
	abortChan := make(chan bool)
	defer close(abortChan)

	scanChan, err := clamdClient.ScanStream(bytes.NewReader(data), abortChan)
	if err != nil {
		return false, err
	}
	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			return true, nil
		}
	}
	return false, nil
}

func readMultipartFile(file *multipart.FileHeader) ([]byte, error) {
	reader, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	buf := bytes.NewBuffer(make([]byte, 0, file.Size))
	if _, err := buf.ReadFrom(reader); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
