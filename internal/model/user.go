package model

import (
	"time"
)

type UserRole string

const (
	Student    UserRole = "student"
	Instructor UserRole = "instructor"
	Admin      UserRole = "admin"
)

// Capability 显式能力点，角色判定统一走 Role.Can，不做隐式属性推断
type Capability string

const (
	CapTakeQuiz      Capability = "take_quiz"
	CapManageCourses Capability = "manage_courses"
	CapManageQuizzes Capability = "manage_quizzes"
	CapManageUsers   Capability = "manage_users"
)

var roleCapabilities = map[UserRole]map[Capability]bool{
	Student: {
		CapTakeQuiz: true,
	},
	Instructor: {
		CapTakeQuiz:      true,
		CapManageCourses: true,
		CapManageQuizzes: true,
	},
	Admin: {
		CapTakeQuiz:      true,
		CapManageCourses: true,
		CapManageQuizzes: true,
		CapManageUsers:   true,
	},
}

func (r UserRole) Can(cap Capability) bool {
	caps, ok := roleCapabilities[r]
	if !ok {
		return false
	}
	return caps[cap]
}

func (r UserRole) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// swagger:model User
type User struct {
	BaseModel
	Name     string   `gorm:"size:100;not null" json:"name"`
	Email    string   `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Password string   `gorm:"size:100;not null" json:"-"`
	Role     UserRole `gorm:"size:20;default:'student'" json:"role"`
	Avatar   string   `gorm:"size:255" json:"avatar"`
	Language string   `gorm:"size:10;default:'en'" json:"language"`

	IsVerified bool `gorm:"default:false" json:"isVerified"`
	IsActive   bool `gorm:"default:true" json:"isActive"`

	// 密码最后修改时间，早于它签发的 password_reset 令牌一律拒绝
	PasswordChangedAt *time.Time `json:"-"`
	LastLogin         time.Time  `json:"lastLogin"`
	LastSeen          time.Time  `json:"lastSeen"`
}

func (User) TableName() string {
	return "users"
}
