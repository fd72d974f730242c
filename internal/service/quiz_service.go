package service

import (
	"context"
	"encoding/json"

	"elearning_backend/internal/model"
	"elearning_backend/internal/repository"
	"elearning_backend/internal/util"
)

// QuizService 试卷与题目的管理侧逻辑，作答侧见 QuizAttemptService
type QuizService struct {
	QuizRepo   *repository.QuizRepository
	CourseRepo *repository.CourseRepository
}

func NewQuizService(quizRepo *repository.QuizRepository, courseRepo *repository.CourseRepository) *QuizService {
	return &QuizService{
		QuizRepo:   quizRepo,
		CourseRepo: courseRepo,
	}
}

type QuestionInput struct {
	Prompt        string   `json:"prompt" binding:"required"`
	Choices       []string `json:"choices" binding:"required,min=2"`
	CorrectChoice int      `json:"correctChoice"`
	Points        int      `json:"points"`
	Order         int      `json:"order"`
}

type QuizInput struct {
	Title            string          `json:"title" binding:"required"`
	Instructions     string          `json:"instructions"`
	PassingScore     int             `json:"passingScore"`
	TimeLimitSeconds *int            `json:"timeLimitSeconds"`
	MaxAttempts      *int            `json:"maxAttempts"`
	Questions        []QuestionInput `json:"questions" binding:"required,min=1"`
}

// Create 创建试卷及其题目，题目与试卷同事务写入
func (s *QuizService) Create(ctx context.Context, actor *model.User, lessonID uint, in QuizInput) (*model.Quiz, error) {
	lesson, err := s.CourseRepo.FindLessonByID(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeLesson(ctx, actor, lesson); err != nil {
		return nil, err
	}

	quiz := &model.Quiz{
		LessonID:         lessonID,
		Title:            in.Title,
		Instructions:     in.Instructions,
		PassingScore:     in.PassingScore,
		TimeLimitSeconds: in.TimeLimitSeconds,
		MaxAttempts:      in.MaxAttempts,
	}
	if quiz.PassingScore <= 0 {
		quiz.PassingScore = 60
	}

	for i, q := range in.Questions {
		if q.CorrectChoice < 0 || q.CorrectChoice >= len(q.Choices) {
			return nil, util.ErrInvalidChoice
		}
		choices, err := json.Marshal(q.Choices)
		if err != nil {
			return nil, err
		}
		points := q.Points
		if points <= 0 {
			points = 1
		}
		order := q.Order
		if order == 0 {
			order = i + 1
		}
		quiz.Questions = append(quiz.Questions, model.QuizQuestion{
			Prompt:        q.Prompt,
			Choices:       choices,
			CorrectChoice: q.CorrectChoice,
			Points:        points,
			Order:         order,
		})
	}

	if err := s.QuizRepo.Create(ctx, quiz); err != nil {
		return nil, err
	}
	return quiz, nil
}

// Publish 发布后学生才能开始作答
func (s *QuizService) Publish(ctx context.Context, actor *model.User, quizID uint) (*model.Quiz, error) {
	quiz, err := s.QuizRepo.FindByID(ctx, quizID)
	if err != nil {
		return nil, err
	}

	lesson, err := s.CourseRepo.FindLessonByID(ctx, quiz.LessonID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeLesson(ctx, actor, lesson); err != nil {
		return nil, err
	}

	quiz.IsPublished = true
	if err := s.QuizRepo.Update(ctx, quiz); err != nil {
		return nil, err
	}
	return quiz, nil
}

// Get 返回试卷。学生视角不含正确答案（CorrectChoice 不参与序列化），
// 未发布的试卷只有出题人和管理员可见。
func (s *QuizService) Get(ctx context.Context, actor *model.User, quizID uint) (*model.Quiz, error) {
	quiz, err := s.QuizRepo.FindByID(ctx, quizID)
	if err != nil {
		return nil, err
	}

	if !quiz.IsPublished {
		lesson, err := s.CourseRepo.FindLessonByID(ctx, quiz.LessonID)
		if err != nil {
			return nil, err
		}
		if err := s.authorizeLesson(ctx, actor, lesson); err != nil {
			return nil, util.ErrQuizNotFound
		}
	}
	return quiz, nil
}

func (s *QuizService) ListByLesson(ctx context.Context, lessonID uint) ([]model.Quiz, error) {
	return s.QuizRepo.ListByLesson(ctx, lessonID)
}

func (s *QuizService) authorizeLesson(ctx context.Context, actor *model.User, lesson *model.Lesson) error {
	if !actor.Role.Can(model.CapManageQuizzes) {
		return util.ErrPermissionDenied
	}
	if actor.Role == model.Admin {
		return nil
	}

	course, err := s.CourseRepo.FindByID(ctx, lesson.CourseID)
	if err != nil {
		return err
	}
	if course.InstructorID != actor.ID {
		return util.ErrPermissionDenied
	}
	return nil
}
