package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WeekType 表示一个教学周的分类。
type WeekType string

const (
	WeekRegular WeekType = "regular"
	WeekMidterm WeekType = "midterm"
	WeekFinal   WeekType = "final"
	WeekHoliday WeekType = "holiday"
)

// Valid 判断周类型是否为已知取值。
func (t WeekType) Valid() bool {
	switch t {
	case WeekRegular, WeekMidterm, WeekFinal, WeekHoliday:
		return true
	}
	return false
}

// User 表示系统中的账号信息。
type User struct {
	gorm.Model
	Username     string   `gorm:"uniqueIndex;size:64"`
	PasswordHash string   `gorm:"size:255"`
	Courses      []Course `gorm:"constraint:OnDelete:CASCADE"`
}

// Course 表示用户创建的一门课程，固定携带 15 个教学周。
type Course struct {
	gorm.Model
	UserID    uint      `gorm:"index;uniqueIndex:idx_user_course_name,priority:1"`
	Name      string    `gorm:"size:255;uniqueIndex:idx_user_course_name,priority:2"`
	StartDate time.Time
	Weeks     []Week  `gorm:"constraint:OnDelete:CASCADE"`
	Notes     []Note  `gorm:"constraint:OnDelete:CASCADE"`
	Images    []Image `gorm:"constraint:OnDelete:CASCADE"`
	User      User    `gorm:"constraint:OnDelete:CASCADE"`
}

// Week 表示课程中的一个教学周。
// DisplayName 为派生字段，任何日期/类型变更都必须同步重新计算。
type Week struct {
	gorm.Model
	CourseID    uint   `gorm:"index;uniqueIndex:idx_course_week_number,priority:1"`
	Number      int    `gorm:"uniqueIndex:idx_course_week_number,priority:2"`
	Label       string `gorm:"size:16"`
	Date        time.Time
	DisplayName string   `gorm:"size:64"`
	Type        WeekType `gorm:"size:16;default:regular"`
}

// Note 表示 (课程, 周次) 维度下的一份笔记，至多一份，重复保存即覆盖。
type Note struct {
	gorm.Model
	CourseID  uint   `gorm:"index;uniqueIndex:idx_course_week_note,priority:1"`
	WeekLabel string `gorm:"size:16;uniqueIndex:idx_course_week_note,priority:2"`
	Body      string `gorm:"type:text"`
}

// Image 表示已归档的一张讲义照片。
// (CourseID, WeekLabel, ContentHash) 唯一，实现按内容哈希去重。
type Image struct {
	gorm.Model
	CourseID     uint   `gorm:"index;uniqueIndex:idx_image_dedupe,priority:1"`
	WeekLabel    string `gorm:"size:16;uniqueIndex:idx_image_dedupe,priority:2"`
	ContentHash  string `gorm:"size:64;uniqueIndex:idx_image_dedupe,priority:3"`
	ObjectKey    string `gorm:"size:512"`
	OriginalName string `gorm:"size:255"`
	Size         int64
	ContentType  string `gorm:"size:64"`
}

// OCRRun 记录一次 OCR 识别任务及其结果。
// Lines 保存识别引擎返回的逐行文本与位置信息（JSONB）。
type OCRRun struct {
	gorm.Model
	UserID        uint           `gorm:"index"`
	CourseID      uint           `gorm:"index"`
	WeekLabel     string         `gorm:"size:16"`
	Status        string         `gorm:"size:32"`
	Text          string         `gorm:"type:text"`
	Lines         datatypes.JSON `gorm:"type:jsonb"`
	ErrorMessage  string         `gorm:"size:512"`
	CorrelationID string         `gorm:"size:64"`
}

// OCRRun 状态常量。
const (
	OCRRunPending   = "pending"
	OCRRunCompleted = "completed"
	OCRRunError     = "error"
)
