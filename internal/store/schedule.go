package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"pansoNote/internal/database"
)

// WeekCount 每门课程固定的教学周数量。
// 周次只能整体随课程创建/删除，不支持单独增删。
const WeekCount = 15

// WeekLabelFor 返回第 n 周的标准周次标签（"N주차"）。
func WeekLabelFor(n int) string {
	return fmt.Sprintf("%d주차", n)
}

// weekTypeSuffix 各周类型在显示名中的本地化后缀。
var weekTypeSuffix = map[database.WeekType]string{
	database.WeekMidterm: "중간고사",
	database.WeekFinal:   "기말고사",
	database.WeekHoliday: "휴강",
}

// WeekDisplayName 从 {周序号, 日期, 类型} 完整重建显示名。
// 显示名是纯派生字段：每次变更都整体重算，不保留历史后缀。
// 因此把类型改回 regular 会剥离后缀，仅改日期则保留当前类型的后缀。
func WeekDisplayName(number int, date time.Time, weekType database.WeekType) string {
	name := fmt.Sprintf("%d주차(%02d월 %02d일)", number, int(date.Month()), date.Day())
	if suffix, ok := weekTypeSuffix[weekType]; ok {
		name += " - " + suffix
	}
	return name
}

// CourseStore 维护每个用户的课程及其 15 周课表。
type CourseStore struct {
	db *gorm.DB
}

// NewCourseStore 构造课程存储。
func NewCourseStore(db *gorm.DB) *CourseStore {
	return &CourseStore{db: db}
}

// Create 创建课程并一次性物化 15 个教学周，整体在一个事务内提交。
// 同名课程已存在时返回 ErrAlreadyExists，且不会留下半成品课表。
func (s *CourseStore) Create(ctx context.Context, userID uint, name string, startDate time.Time) (*database.Course, error) {
	startDate = truncateToDay(startDate)

	course := database.Course{
		UserID:    userID,
		Name:      name,
		StartDate: startDate,
		Weeks:     make([]database.Week, 0, WeekCount),
	}
	for n := 1; n <= WeekCount; n++ {
		date := startDate.AddDate(0, 0, 7*(n-1))
		course.Weeks = append(course.Weeks, database.Week{
			Number:      n,
			Label:       WeekLabelFor(n),
			Date:        date,
			DisplayName: WeekDisplayName(n, date, database.WeekRegular),
			Type:        database.WeekRegular,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing database.Course
		switch err := tx.Where("user_id = ? AND name = ?", userID, name).First(&existing).Error; {
		case err == nil:
			return ErrAlreadyExists
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return fmt.Errorf("lookup course %q: %w", name, err)
		}

		if err := tx.Create(&course).Error; err != nil {
			return fmt.Errorf("create course %q: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &course, nil
}

// UpdateWeek 修改某周的日期和/或类型，并重算显示名。
// 课程或周次不存在时返回 ErrNotFound。
func (s *CourseStore) UpdateWeek(ctx context.Context, userID uint, courseName, weekLabel string, newDate *time.Time, newType *database.WeekType) (*database.Week, error) {
	if newType != nil && !newType.Valid() {
		return nil, fmt.Errorf("unknown week type %q", *newType)
	}

	var week database.Week
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		course, err := findCourse(tx, userID, courseName)
		if err != nil {
			return err
		}

		if err := tx.Where("course_id = ? AND label = ?", course.ID, weekLabel).First(&week).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("lookup week %q: %w", weekLabel, err)
		}

		if newDate != nil {
			week.Date = truncateToDay(*newDate)
		}
		if newType != nil {
			week.Type = *newType
		}
		week.DisplayName = WeekDisplayName(week.Number, week.Date, week.Type)

		if err := tx.Model(&database.Week{}).Where("id = ?", week.ID).Updates(map[string]any{
			"date":         week.Date,
			"type":         week.Type,
			"display_name": week.DisplayName,
		}).Error; err != nil {
			return fmt.Errorf("update week %q: %w", weekLabel, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &week, nil
}

// Remove 删除课程及其课表、笔记与图片记录（级联，单事务）。
// 必须物理删除：软删除行仍占用 (user_id, name) 唯一索引，
// 会导致同名课程无法重建。
// 对象存储中的图片字节由调用方在事务提交后清理前缀。
func (s *CourseStore) Remove(ctx context.Context, userID uint, name string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		course, err := findCourse(tx, userID, name)
		if err != nil {
			return err
		}

		if err := tx.Unscoped().Where("course_id = ?", course.ID).Delete(&database.Week{}).Error; err != nil {
			return fmt.Errorf("delete weeks of %q: %w", name, err)
		}
		if err := tx.Unscoped().Where("course_id = ?", course.ID).Delete(&database.Note{}).Error; err != nil {
			return fmt.Errorf("delete notes of %q: %w", name, err)
		}
		if err := tx.Unscoped().Where("course_id = ?", course.ID).Delete(&database.Image{}).Error; err != nil {
			return fmt.Errorf("delete image records of %q: %w", name, err)
		}
		if err := tx.Unscoped().Delete(&database.Course{}, course.ID).Error; err != nil {
			return fmt.Errorf("delete course %q: %w", name, err)
		}
		return nil
	})
}

// List 返回用户的全部课程，周次按序号排列。
func (s *CourseStore) List(ctx context.Context, userID uint) ([]database.Course, error) {
	var courses []database.Course
	if err := s.db.WithContext(ctx).
		Preload("Weeks", func(db *gorm.DB) *gorm.DB { return db.Order("number ASC") }).
		Where("user_id = ?", userID).
		Order("name ASC").
		Find(&courses).Error; err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// Get 返回单门课程及其完整课表。
func (s *CourseStore) Get(ctx context.Context, userID uint, name string) (*database.Course, error) {
	var course database.Course
	if err := s.db.WithContext(ctx).
		Preload("Weeks", func(db *gorm.DB) *gorm.DB { return db.Order("number ASC") }).
		Where("user_id = ? AND name = ?", userID, name).
		First(&course).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup course %q: %w", name, err)
	}
	return &course, nil
}

func findCourse(tx *gorm.DB, userID uint, name string) (*database.Course, error) {
	var course database.Course
	if err := tx.Where("user_id = ? AND name = ?", userID, name).First(&course).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup course %q: %w", name, err)
	}
	return &course, nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
