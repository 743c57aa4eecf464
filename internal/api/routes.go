package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"pansoNote/internal/api/middleware"
	"pansoNote/internal/auth"
	"pansoNote/internal/config"
	"pansoNote/internal/store"
)

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(
	router *gin.Engine,
	cfg *config.Config,
	db *gorm.DB,
	enqueuer TaskEnqueuer,
	authService *auth.AuthService,
	redisClient *redis.Client,
	logger *slog.Logger,
	objects store.ObjectStorage,
) {
	accounts := store.NewAccountStore(db)
	courses := store.NewCourseStore(db)
	notes := store.NewNoteStore(db)
	archive := store.NewImageArchive(db, objects)

	authHandler := NewAuthHandler(
		accounts, authService, redisClient, logger,
		cfg.Auth.LoginRateLimitPerHour,
		cfg.Auth.LoginLockThreshold,
		cfg.Auth.LoginLockTTL,
	)
	courseHandler := NewCourseHandler(courses, archive, logger)
	noteHandler := NewNoteHandler(notes, logger)
	imageHandler := NewImageHandler(archive, logger, cfg.Upload)
	ocrHandler := NewOCRHandler(db, courses, enqueuer, logger)
	summarizeHandler := NewSummarizeHandler(notes, enqueuer, logger)
	wsHandler := NewWsHandler(RedisNotifySubscriber{Client: redisClient}, authService, logger, cfg.API.Origins())
	authMiddleware := middleware.AuthMiddleware(authService)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
		}

		courseGroup := v1.Group("/courses")
		courseGroup.Use(authMiddleware)
		{
			courseGroup.POST("", courseHandler.CreateCourse)
			courseGroup.GET("", courseHandler.ListCourses)
			courseGroup.GET("/:course", courseHandler.GetCourse)
			courseGroup.DELETE("/:course", courseHandler.DeleteCourse)
			courseGroup.GET("/:course/calendar.ics", courseHandler.ExportCalendar)
			courseGroup.PATCH("/:course/weeks/:week", courseHandler.UpdateWeek)

			courseGroup.GET("/:course/weeks/:week/note", noteHandler.GetNote)
			courseGroup.PUT("/:course/weeks/:week/note", noteHandler.SaveNote)

			courseGroup.POST("/:course/weeks/:week/images", imageHandler.UploadImages)
			courseGroup.GET("/:course/weeks/:week/images", imageHandler.ListImages)

			courseGroup.POST("/:course/weeks/:week/ocr", ocrHandler.StartRecognition)
			courseGroup.POST("/:course/weeks/:week/summarize", summarizeHandler.StartSummarize)
		}

		v1.GET("/notes", authMiddleware, noteHandler.ListNotes)
		v1.GET("/ocr/:id", authMiddleware, ocrHandler.GetRun)
	}
}
