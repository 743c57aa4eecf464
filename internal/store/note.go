package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"pansoNote/internal/database"
)

// NoteStore 维护 (课程, 周次) 维度的笔记，每个键至多一份，重复保存即覆盖。
type NoteStore struct {
	db *gorm.DB
}

// NewNoteStore 构造笔记存储。
func NewNoteStore(db *gorm.DB) *NoteStore {
	return &NoteStore{db: db}
}

// Save 保存笔记（upsert）。空字符串是合法取值，与"没有笔记"不同。
// 课程不存在时返回 ErrNotFound。
func (s *NoteStore) Save(ctx context.Context, userID uint, courseName, weekLabel, body string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		course, err := findCourse(tx, userID, courseName)
		if err != nil {
			return err
		}

		var note database.Note
		switch err := tx.Where("course_id = ? AND week_label = ?", course.ID, weekLabel).First(&note).Error; {
		case err == nil:
			if err := tx.Model(&note).Update("body", body).Error; err != nil {
				return fmt.Errorf("update note %s/%s: %w", courseName, weekLabel, err)
			}
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			note = database.Note{CourseID: course.ID, WeekLabel: weekLabel, Body: body}
			if err := tx.Create(&note).Error; err != nil {
				return fmt.Errorf("create note %s/%s: %w", courseName, weekLabel, err)
			}
			return nil
		default:
			return fmt.Errorf("lookup note %s/%s: %w", courseName, weekLabel, err)
		}
	})
}

// Load 读取笔记。没有笔记时返回 ErrNotFound，调用方应把它当作正常空状态。
func (s *NoteStore) Load(ctx context.Context, userID uint, courseName, weekLabel string) (string, error) {
	db := s.db.WithContext(ctx)
	course, err := findCourse(db, userID, courseName)
	if err != nil {
		return "", err
	}

	var note database.Note
	if err := db.Where("course_id = ? AND week_label = ?", course.ID, weekLabel).First(&note).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("lookup note %s/%s: %w", courseName, weekLabel, err)
	}
	return note.Body, nil
}

// LoadAll 返回用户全部笔记：课程名 → 周次标签 → 正文。
func (s *NoteStore) LoadAll(ctx context.Context, userID uint) (map[string]map[string]string, error) {
	var courses []database.Course
	if err := s.db.WithContext(ctx).
		Preload("Notes").
		Where("user_id = ?", userID).
		Find(&courses).Error; err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}

	result := make(map[string]map[string]string, len(courses))
	for _, course := range courses {
		if len(course.Notes) == 0 {
			continue
		}
		weeks := make(map[string]string, len(course.Notes))
		for _, note := range course.Notes {
			weeks[note.WeekLabel] = note.Body
		}
		result[course.Name] = weeks
	}
	return result, nil
}
