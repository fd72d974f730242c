package model

type CourseStatus string

const (
	CourseDraft     CourseStatus = "draft"
	CoursePublished CourseStatus = "published"
	CourseArchived  CourseStatus = "archived"
)

// swagger:model Course
type Course struct {
	BaseModel
	Title        string       `gorm:"size:255;not null" json:"title"`
	Description  string       `gorm:"type:text" json:"description"`
	InstructorID uint         `gorm:"index;type:bigint unsigned;not null" json:"instructorId"`
	Level        string       `gorm:"size:20;default:'beginner'" json:"level"`
	Status       CourseStatus `gorm:"size:20;default:'draft'" json:"status"`
	// 选课人数上限，nil 表示不限
	EnrollmentLimit *int `json:"enrollmentLimit,omitempty"`

	Lessons []Lesson `gorm:"foreignKey:CourseID" json:"lessons,omitempty"`
}

func (Course) TableName() string {
	return "courses"
}

// swagger:model Lesson
type Lesson struct {
	BaseModel
	CourseID    uint   `gorm:"index;type:bigint unsigned;not null" json:"courseId"`
	Title       string `gorm:"size:255;not null" json:"title"`
	Content     string `gorm:"type:text" json:"content"`
	Order       int    `gorm:"default:0" json:"order"`
	IsPublished bool   `gorm:"default:true" json:"isPublished"`
}

func (Lesson) TableName() string {
	return "lessons"
}
