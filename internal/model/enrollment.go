package model

import "time"

type EnrollmentStatus string

const (
	Enrolled EnrollmentStatus = "enrolled"
	Dropped  EnrollmentStatus = "dropped"
)

// Enrollment 选课记录。同一 (user, course) 最多一条，退课后可重新激活。
// 只有处于 enrolled 状态的记录才允许开始该课程下的测验作答。
// swagger:model Enrollment
type Enrollment struct {
	BaseModel
	UserID   uint             `gorm:"uniqueIndex:idx_enrollments_user_course;type:bigint unsigned;not null" json:"userId"`
	CourseID uint             `gorm:"uniqueIndex:idx_enrollments_user_course;type:bigint unsigned;not null" json:"courseId"`
	Status   EnrollmentStatus `gorm:"size:20;default:'enrolled'" json:"status"`

	DroppedAt *time.Time `json:"droppedAt,omitempty"`

	Course *Course `gorm:"foreignKey:CourseID" json:"course,omitempty"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

func (e *Enrollment) Active() bool {
	return e.Status == Enrolled
}
