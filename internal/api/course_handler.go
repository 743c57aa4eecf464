package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/gin-gonic/gin"

	"pansoNote/internal/api/middleware"
	"pansoNote/internal/database"
	"pansoNote/internal/store"
)

// CourseHandler 处理课程与周次日程相关接口。
type CourseHandler struct {
	courses *store.CourseStore
	archive *store.ImageArchive
	logger  *slog.Logger
}

// NewCourseHandler 构造课程处理器。
func NewCourseHandler(courses *store.CourseStore, archive *store.ImageArchive, logger *slog.Logger) *CourseHandler {
	return &CourseHandler{courses: courses, archive: archive, logger: logger}
}

type createCourseRequest struct {
	Name      string `json:"name" binding:"required,max=128"`
	StartDate string `json:"start_date" binding:"required"`
}

type weekResponse struct {
	Number      int    `json:"number"`
	Label       string `json:"label"`
	Date        string `json:"date"`
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
}

type courseResponse struct {
	Name      string         `json:"name"`
	StartDate string         `json:"start_date"`
	Weeks     []weekResponse `json:"weeks,omitempty"`
}

func toCourseResponse(course *database.Course) courseResponse {
	resp := courseResponse{
		Name:      course.Name,
		StartDate: course.StartDate.Format("2006-01-02"),
	}
	for _, week := range course.Weeks {
		resp.Weeks = append(resp.Weeks, weekResponse{
			Number:      week.Number,
			Label:       week.Label,
			Date:        week.Date.Format("2006-01-02"),
			Type:        string(week.Type),
			DisplayName: week.DisplayName,
		})
	}
	return resp
}

// CreateCourse 创建课程并生成整学期的周次表。
func (h *CourseHandler) CreateCourse(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req createCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		BadRequest(c, "start_date must be formatted as YYYY-MM-DD")
		return
	}

	logger := middleware.LoggerFromContext(c).With(
		slog.Uint64("user_id", uint64(userID)),
		slog.String("course", req.Name),
	)

	course, err := h.courses.Create(c.Request.Context(), userID, req.Name, startDate)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			logger.Info("course already exists")
			Conflict(c, "course already exists")
			return
		}
		logger.Error("create course failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("course created", slog.Int("week_count", len(course.Weeks)))
	c.JSON(http.StatusCreated, toCourseResponse(course))
}

// ListCourses 返回当前用户的全部课程及周次表。
func (h *CourseHandler) ListCourses(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	courses, err := h.courses.List(c.Request.Context(), userID)
	if err != nil {
		middleware.LoggerFromContext(c).Error("list courses failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	resp := make([]courseResponse, 0, len(courses))
	for i := range courses {
		resp = append(resp, toCourseResponse(&courses[i]))
	}
	c.JSON(http.StatusOK, gin.H{"courses": resp})
}

// GetCourse 返回单个课程及周次表。
func (h *CourseHandler) GetCourse(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	course, err := h.courses.Get(c.Request.Context(), userID, c.Param("course"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(c, "course not found")
			return
		}
		middleware.LoggerFromContext(c).Error("get course failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, toCourseResponse(course))
}

// DeleteCourse 删除课程及其周次、笔记与图片。
// 先删数据库记录再清理对象存储；清理失败留给孤儿清扫兜底。
func (h *CourseHandler) DeleteCourse(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	courseName := c.Param("course")

	logger := middleware.LoggerFromContext(c).With(
		slog.Uint64("user_id", uint64(userID)),
		slog.String("course", courseName),
	)

	if err := h.courses.Remove(c.Request.Context(), userID, courseName); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(c, "course not found")
			return
		}
		logger.Error("delete course failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if err := h.archive.PurgeCourse(c.Request.Context(), userID, courseName); err != nil {
		logger.Warn("purge course objects failed", slog.Any("error", err))
	}

	logger.Info("course deleted")
	c.Status(http.StatusOK)
}

type updateWeekRequest struct {
	Date *string `json:"date"`
	Type *string `json:"type"`
}

// UpdateWeek 调整某一周的日期或类型，展示名随之重算。
func (h *CourseHandler) UpdateWeek(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req updateWeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if req.Date == nil && req.Type == nil {
		BadRequest(c, "nothing to update")
		return
	}

	var newDate *time.Time
	if req.Date != nil {
		parsed, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			BadRequest(c, "date must be formatted as YYYY-MM-DD")
			return
		}
		newDate = &parsed
	}
	var newType *database.WeekType
	if req.Type != nil {
		weekType := database.WeekType(*req.Type)
		if !weekType.Valid() {
			BadRequest(c, "unknown week type")
			return
		}
		newType = &weekType
	}

	week, err := h.courses.UpdateWeek(c.Request.Context(), userID, c.Param("course"), c.Param("week"), newDate, newType)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(c, "course or week not found")
			return
		}
		middleware.LoggerFromContext(c).Error("update week failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, weekResponse{
		Number:      week.Number,
		Label:       week.Label,
		Date:        week.Date.Format("2006-01-02"),
		Type:        string(week.Type),
		DisplayName: week.DisplayName,
	})
}

// ExportCalendar 把课程周次表导出为 iCalendar 全天事件。
func (h *CourseHandler) ExportCalendar(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	course, err := h.courses.Get(c.Request.Context(), userID, c.Param("course"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(c, "course not found")
			return
		}
		middleware.LoggerFromContext(c).Error("export calendar failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//pansoNote//course-calendar//KO")
	for _, week := range course.Weeks {
		event := cal.AddEvent(fmt.Sprintf("course-%d-week-%d@pansonote", course.ID, week.Number))
		event.SetAllDayStartAt(week.Date)
		event.SetAllDayEndAt(week.Date.AddDate(0, 0, 1))
		event.SetSummary(fmt.Sprintf("%s %s", course.Name, week.DisplayName))
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", course.Name+".ics"))
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(cal.Serialize()))
}
