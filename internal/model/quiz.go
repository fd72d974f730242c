package model

import "encoding/json"

// swagger:model Quiz
type Quiz struct {
	BaseModel
	LessonID     uint   `gorm:"index;type:bigint unsigned;not null" json:"lessonId"`
	Title        string `gorm:"size:255;not null" json:"title"`
	Instructions string `gorm:"type:text" json:"instructions"`

	PassingScore int  `gorm:"default:60" json:"passingScore"`
	IsPublished  bool `gorm:"default:false" json:"isPublished"`

	// 为空表示不限时 / 不限次数
	TimeLimitSeconds *int `json:"timeLimitSeconds,omitempty"`
	MaxAttempts      *int `json:"maxAttempts,omitempty"`

	Questions []QuizQuestion `gorm:"foreignKey:QuizID" json:"questions,omitempty"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// TotalPoints 试卷总分值
func (q *Quiz) TotalPoints() int {
	total := 0
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}

// swagger:model QuizQuestion
type QuizQuestion struct {
	BaseModel
	QuizID uint   `gorm:"index;type:bigint unsigned;not null" json:"quizId"`
	Prompt string `gorm:"type:text;not null" json:"prompt"`
	// 选项列表，JSON 数组，顺序即选项下标
	Choices       json.RawMessage `gorm:"type:json" json:"choices"`
	CorrectChoice int             `json:"-"`
	Points        int             `gorm:"default:1" json:"points"`
	Order         int             `gorm:"default:0" json:"order"`
}

func (QuizQuestion) TableName() string {
	return "quiz_questions"
}

// DecodeChoices 解析选项列表，JSON 损坏时返回空列表
func (q *QuizQuestion) DecodeChoices() []string {
	var choices []string
	if err := json.Unmarshal(q.Choices, &choices); err != nil {
		return nil
	}
	return choices
}
