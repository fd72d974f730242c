package model

import (
	"fmt"
	"time"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptExpired    AttemptStatus = "expired"
	AttemptGraded     AttemptStatus = "graded"
)

// QuizAttempt 一次测验作答。同一 (user, quiz) 同时最多一条 in_progress。
// Score 一经写入不再变更。
// swagger:model QuizAttempt
type QuizAttempt struct {
	UUIDBase

	QuizID uint `gorm:"index:idx_attempt_user_quiz;type:bigint unsigned;not null" json:"quizId"`
	UserID uint `gorm:"index:idx_attempt_user_quiz;type:bigint unsigned;not null" json:"userId"`

	Status AttemptStatus `gorm:"size:20;default:'in_progress';index" json:"status"`

	// in_progress 期间取 "<userID>-<quizID>"，完结后置空。
	// 唯一索引保证同一 (user, quiz) 同时只有一条进行中的作答。
	ActiveKey *string `gorm:"uniqueIndex;size:64" json:"-"`

	StartedAt   time.Time  `json:"startedAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
	GradedAt    *time.Time `json:"gradedAt,omitempty"`

	// 0-100，提交或过期结算后写入
	Score  *float64 `gorm:"type:decimal(5,2)" json:"score,omitempty"`
	Passed bool     `gorm:"default:false" json:"passed"`

	AttemptNumber int `gorm:"default:1" json:"attemptNumber"`

	Answers []QuizAttemptAnswer `gorm:"foreignKey:AttemptID" json:"answers,omitempty"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

// TimedOut 配置了限时且已过期
func (a *QuizAttempt) TimedOut(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// ActiveKeyFor 进行中作答的互斥键
func ActiveKeyFor(userID, quizID uint) string {
	return fmt.Sprintf("%d-%d", userID, quizID)
}

// QuizAttemptAnswer 单题作答记录，同题重复作答走 upsert 覆盖
// swagger:model QuizAttemptAnswer
type QuizAttemptAnswer struct {
	BaseModel
	AttemptID   string `gorm:"uniqueIndex:idx_answer_attempt_question;type:varchar(36);not null" json:"attemptId"`
	QuestionID  uint   `gorm:"uniqueIndex:idx_answer_attempt_question;type:bigint unsigned;not null" json:"questionId"`
	ChoiceIndex int    `json:"choiceIndex"`
}

func (QuizAttemptAnswer) TableName() string {
	return "quiz_attempt_answers"
}
