package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"testing"
	"time"

	"elearning_backend/internal/model"
	"elearning_backend/internal/repository"
	"elearning_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type attemptTestEnv struct {
	svc      *QuizAttemptService
	db       *gorm.DB
	quizRepo *repository.QuizRepository
	lesson   *model.Lesson
}

func newAttemptTestEnv(t *testing.T) *attemptTestEnv {
	t.Helper()

	// 共享缓存的具名内存库：惰性结算会在事务之外再取一条连接，
	// 普通 :memory: 每条连接各自独立建库，会看不到已迁移的表
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", url.PathEscape(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Course{},
		&model.Lesson{},
		&model.Enrollment{},
		&model.Quiz{},
		&model.QuizQuestion{},
		&model.QuizAttempt{},
		&model.QuizAttemptAnswer{},
	))

	course := &model.Course{Title: "Go 101", InstructorID: 99, Status: model.CoursePublished}
	require.NoError(t, db.Create(course).Error)
	lesson := &model.Lesson{CourseID: course.ID, Title: "Intro", Order: 1}
	require.NoError(t, db.Create(lesson).Error)

	quizRepo := repository.NewQuizRepository(db)
	env := &attemptTestEnv{
		svc: NewQuizAttemptService(quizRepo, repository.NewQuizAttemptRepository(db),
			repository.NewCourseRepository(db), repository.NewEnrollmentRepository(db), db),
		db:       db,
		quizRepo: quizRepo,
		lesson:   lesson,
	}

	// 作答前置条件：默认把用户 1、2 选入课程
	env.enroll(t, 1)
	env.enroll(t, 2)
	return env
}

func (env *attemptTestEnv) enroll(t *testing.T, userID uint) {
	t.Helper()
	require.NoError(t, env.db.Create(&model.Enrollment{
		UserID:   userID,
		CourseID: env.lesson.CourseID,
		Status:   model.Enrolled,
	}).Error)
}

func mustChoices(t *testing.T, choices ...string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(choices)
	require.NoError(t, err)
	return raw
}

// seedQuiz 两道单选题各 1 分，及格线 60
func (env *attemptTestEnv) seedQuiz(t *testing.T, mutate func(*model.Quiz)) *model.Quiz {
	t.Helper()

	quiz := &model.Quiz{
		LessonID:     env.lesson.ID,
		Title:        "Basics",
		PassingScore: 60,
		IsPublished:  true,
		Questions: []model.QuizQuestion{
			{Prompt: "Q1", Choices: mustChoices(t, "a", "b", "c"), CorrectChoice: 0, Points: 1, Order: 1},
			{Prompt: "Q2", Choices: mustChoices(t, "x", "y"), CorrectChoice: 1, Points: 1, Order: 2},
		},
	}
	if mutate != nil {
		mutate(quiz)
	}
	require.NoError(t, env.quizRepo.Create(context.Background(), quiz))
	return quiz
}

func TestStartAttempt(t *testing.T) {
	env := newAttemptTestEnv(t)
	quiz := env.seedQuiz(t, nil)
	ctx := context.Background()

	attempt, err := env.svc.Start(ctx, 1, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptInProgress, attempt.Status)
	assert.Equal(t, 1, attempt.AttemptNumber)
	assert.Nil(t, attempt.ExpiresAt)
	require.NotNil(t, attempt.ActiveKey)
	assert.Equal(t, model.ActiveKeyFor(1, quiz.ID), *attempt.ActiveKey)
}

func TestStartAttemptUnpublished(t *testing.T) {
	env := newAttemptTestEnv(t)
	quiz := env.seedQuiz(t, func(q *model.Quiz) { q.IsPublished = false })

	_, err := env.svc.Start(context.Background(), 1, quiz.ID)
	assert.ErrorIs(t, err, util.ErrQuizNotPublished)
}

func TestStartAttemptUnknownQuiz(t *testing.T) {
	env := newAttemptTestEnv(t)

	_, err := env.svc.Start(context.Background(), 1, 999)
	assert.ErrorIs(t, err, util.ErrQuizNotFound)
}

func TestStartAttemptRequiresEnrollment(t *testing.T) {
	env := newAttemptTestEnv(t)
	quiz := env.seedQuiz(t, nil)
	ctx := context.Background()

	// 未选课不能作答
	_, err := env.svc.Start(ctx, 3, quiz.ID)
	assert.ErrorIs(t, err, util.ErrNotEnrolled)

	// 退课后也不能
	_, err = repository.NewEnrollmentRepository(env.db).Drop(ctx, 1, env.lesson.CourseID)
	require.NoError(t, err)
	_, err = env.svc.Start(ctx, 1, quiz.ID)
	assert.ErrorIs(t, err, util.ErrNotEnrolled)

	env.enroll(t, 3)
	_, err = env.svc.Start(ctx, 3, quiz.ID)
	assert.NoError(t, err)
}

func TestStartAttemptSingleActive(t *testing.T) {
	env := newAttemptTestEnv(t)
	quiz := env.seedQuiz(t, nil)
	ctx := context.Background()

	_, err := env.svc.Start(ctx, 1, quiz.ID)
	require.NoError(t, err)

	// 同一 (user, quiz) 不能同时有两条进行中作答
	_, err = env.svc.Start(ctx, 1, quiz.ID)
	assert.ErrorIs(t, err, util.ErrAttemptAlreadyActive)

	// 其他用户不受影响
	_, err = env.svc.Start(ctx, 2, quiz.ID)
	assert.NoError(t, err)
}

func TestStartAttemptMaxAttempts(t *testing.T) {
	env := newAttemptTestEnv(t)
	max := 2
	quiz := env.seedQuiz(t, func(q *model.Quiz) { q.MaxAttempts = &max })
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		attempt, err := env.svc.Start(ctx, 1, quiz.ID)
		require.NoError(t, err)
		assert.Equal(t, i, attempt.AttemptNumber)
		_, err = env.svc.Submit(ctx, 1, attempt.ID)
		require.NoError(t, err)
	}

	_, err := env.svc.Start(ctx, 1, quiz.ID)
	assert.ErrorIs(t, err, util.ErrAttemptLimitReached)
}

func TestAnswerAndSubmitScoring(t *testing.T) {
	env := newAttemptTestEnv(t)
	quiz := env.seedQuiz(t, nil)
	ctx := context.Background()

	attempt, err := env.svc.Start(ctx, 1, quiz.ID)
	require.NoError(t, err)

	q1, q2 := quiz.Questions[0], quiz.Questions[1]

	// 一对一错：得分 50，不及格
	require.NoError(t, env.svc.Answer(ctx, 1, attempt.ID, q1.ID, 0))
	require.NoError(t, env.svc.Answer(ctx, 1, attempt.ID, q2.ID, 0))

	graded, err := env.svc.Submit(ctx, 1, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptGraded, graded.Status)
	require.NotNil(t, graded.Score)
	assert.Equal(t, 50.0, *graded.Score)
	assert.False(t, graded.Passed)
	assert.NotNil(t, graded.SubmittedAt)
	assert.NotNil(t, graded.GradedAt)
	assert.Nil(t, graded.ActiveKey)
}

func TestAnswerOverwrite(t *testing.T) {
	env := newAttemptTestEnv(t)
	quiz := env.seedQuiz(t, nil)
	ctx := context.Background()

	attempt, err := env.svc.Start(ctx, 1, quiz.ID)
	require.NoError(t, err)

	q1, q2 := quiz.Questions[0], quiz.Questions[1]

	// 先答错再改对：last write wins
	require.NoError(t, env.svc.Answer(ctx, 1, attempt.ID, q1.ID, 2))
	require.NoError(t, env.svc.Answer(ctx, 1, attempt.ID, q1.ID, 0))
	require.NoError(t, env.svc.Answer(ctx, 1, attempt.ID, q2.ID, 1))

	graded, err := env.svc.Submit(ctx, 1, attempt.ID)
	require.NoError(t, err)
	require.NotNil(t, graded.Score)
	assert.Equal(t, 100.0, *graded.Score)
	assert.True(t, graded.Passed)
}

func TestAnswerValidation(t *testing.T) {
	env := newAttemptTestEnv(t)
	quiz := env.seedQuiz(t, nil)
	other := env.seedQuiz(t, nil)
	ctx := context.Background()

	attempt, err := env.svc.Start(ctx, 1, quiz.ID)
	require.NoError(t, err)

	// 别的测验的题目
	err = env.svc.Answer(ctx, 1, attempt.ID, other.Questions[0].ID, 0)
	assert.ErrorIs(t, err, util.ErrQuestionNotInQuiz)

	// 选项越界
	err = env.svc.Answer(ctx, 1, attempt.ID, quiz.Questions[0].ID, 3)
	assert.ErrorIs(t, err, util.ErrInvalidChoice)
	err = env.svc.Answer(ctx, 1, attempt.ID, quiz.Questions[0].ID, -1)
	assert.ErrorIs(t, err, util.ErrInvalidChoice)

	// 他人的作答按不存在处理
	err = env.svc.Answer(ctx, 2, attempt.ID, quiz.Questions[0].ID, 0)
	assert.ErrorIs(t, err, util.ErrAttemptNotFound)
}

func TestSubmitTwice(t *testing.T) {
	env := newAttemptTestEnv(t)
	quiz := env.seedQuiz(t, nil)
	ctx := context.Background()

	attempt, err := env.svc.Start(ctx, 1, quiz.ID)
	require.NoError(t, err)

	_, err = env.svc.Submit(ctx, 1, attempt.ID)
	require.NoError(t, err)

	// 二次提交冲突，分数不变
	_, err = env.svc.Submit(ctx, 1, attempt.ID)
	assert.ErrorIs(t, err, util.ErrAttemptNotActive)

	// 提交后不能再作答
	err = env.svc.Answer(ctx, 1, attempt.ID, quiz.Questions[0].ID, 0)
	assert.ErrorIs(t, err, util.ErrAttemptNotActive)
}

func TestSubmitAllowsNewAttempt(t *testing.T) {
	env := newAttemptTestEnv(t)
	quiz := env.seedQuiz(t, nil)
	ctx := context.Background()

	first, err := env.svc.Start(ctx, 1, quiz.ID)
	require.NoError(t, err)
	_, err = env.svc.Submit(ctx, 1, first.ID)
	require.NoError(t, err)

	// 完结后互斥键释放，可开新作答
	second, err := env.svc.Start(ctx, 1, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, second.AttemptNumber)
}

// expireAttempt 把进行中作答的到期时间拨到过去
func (env *attemptTestEnv) expireAttempt(t *testing.T, attemptID string) {
	t.Helper()
	past := time.Now().Add(-time.Minute)
	require.NoError(t, env.db.Model(&model.QuizAttempt{}).
		Where("id = ?", attemptID).
		Update("expires_at", past).Error)
}

func TestExpiredAttemptGradedFromRecordedAnswers(t *testing.T) {
	env := newAttemptTestEnv(t)
	limit := 600
	quiz := env.seedQuiz(t, func(q *model.Quiz) { q.TimeLimitSeconds = &limit })
	ctx := context.Background()

	attempt, err := env.svc.Start(ctx, 1, quiz.ID)
	require.NoError(t, err)
	require.NotNil(t, attempt.ExpiresAt)

	// 到期前答对一题
	require.NoError(t, env.svc.Answer(ctx, 1, attempt.ID, quiz.Questions[0].ID, 0))

	env.expireAttempt(t, attempt.ID)

	// 读取触发懒结算：状态 expired，按已录答案结算
	got, err := env.svc.Get(ctx, 1, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptExpired, got.Status)
	require.NotNil(t, got.Score)
	assert.Equal(t, 50.0, *got.Score)
	assert.False(t, got.Passed)
	assert.Nil(t, got.ActiveKey)
}

func TestExpiredAttemptRejectsWrites(t *testing.T) {
	env := newAttemptTestEnv(t)
	limit := 600
	quiz := env.seedQuiz(t, func(q *model.Quiz) { q.TimeLimitSeconds = &limit })
	ctx := context.Background()

	attempt, err := env.svc.Start(ctx, 1, quiz.ID)
	require.NoError(t, err)
	env.expireAttempt(t, attempt.ID)

	err = env.svc.Answer(ctx, 1, attempt.ID, quiz.Questions[0].ID, 0)
	assert.ErrorIs(t, err, util.ErrAttemptExpired)

	_, err = env.svc.Submit(ctx, 1, attempt.ID)
	assert.ErrorIs(t, err, util.ErrAttemptNotActive)

	// 过期后可立即开新作答
	_, err = env.svc.Start(ctx, 1, quiz.ID)
	assert.NoError(t, err)
}

func TestSweepExpired(t *testing.T) {
	env := newAttemptTestEnv(t)
	limit := 600
	quiz := env.seedQuiz(t, func(q *model.Quiz) { q.TimeLimitSeconds = &limit })
	ctx := context.Background()

	a1, err := env.svc.Start(ctx, 1, quiz.ID)
	require.NoError(t, err)
	a2, err := env.svc.Start(ctx, 2, quiz.ID)
	require.NoError(t, err)

	require.NoError(t, env.svc.Answer(ctx, 1, a1.ID, quiz.Questions[0].ID, 0))
	env.expireAttempt(t, a1.ID)

	require.NoError(t, env.svc.SweepExpired(ctx))

	swept, err := env.svc.Get(ctx, 1, a1.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptExpired, swept.Status)
	require.NotNil(t, swept.Score)
	assert.Equal(t, 50.0, *swept.Score)

	// 未到期的作答不受影响
	alive, err := env.svc.Get(ctx, 2, a2.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptInProgress, alive.Status)
}

func TestGetAttemptOwnership(t *testing.T) {
	env := newAttemptTestEnv(t)
	quiz := env.seedQuiz(t, nil)
	ctx := context.Background()

	attempt, err := env.svc.Start(ctx, 1, quiz.ID)
	require.NoError(t, err)

	_, err = env.svc.Get(ctx, 2, attempt.ID)
	assert.ErrorIs(t, err, util.ErrAttemptNotFound)
}

func TestScoreAttempt(t *testing.T) {
	quiz := &model.Quiz{
		PassingScore: 60,
		Questions: []model.QuizQuestion{
			{BaseModel: model.BaseModel{ID: 1}, CorrectChoice: 0, Points: 1},
			{BaseModel: model.BaseModel{ID: 2}, CorrectChoice: 1, Points: 2},
		},
	}

	tests := []struct {
		name       string
		answers    []model.QuizAttemptAnswer
		wantScore  float64
		wantPassed bool
	}{
		{"all correct", []model.QuizAttemptAnswer{
			{QuestionID: 1, ChoiceIndex: 0},
			{QuestionID: 2, ChoiceIndex: 1},
		}, 100, true},
		{"partial", []model.QuizAttemptAnswer{
			{QuestionID: 1, ChoiceIndex: 0},
		}, 33.33, false},
		{"heavy question carries", []model.QuizAttemptAnswer{
			{QuestionID: 2, ChoiceIndex: 1},
		}, 66.67, true},
		{"no answers", nil, 0, false},
		{"all wrong", []model.QuizAttemptAnswer{
			{QuestionID: 1, ChoiceIndex: 2},
			{QuestionID: 2, ChoiceIndex: 0},
		}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, passed := scoreAttempt(quiz, tt.answers)
			assert.InDelta(t, tt.wantScore, score, 0.001)
			assert.Equal(t, tt.wantPassed, passed)
		})
	}
}

func TestScoreAttemptZeroPoints(t *testing.T) {
	quiz := &model.Quiz{PassingScore: 60}
	score, passed := scoreAttempt(quiz, nil)
	assert.Zero(t, score)
	assert.False(t, passed)
}

func TestScoreAttemptBoundary(t *testing.T) {
	// 恰好等于及格线视为通过
	quiz := &model.Quiz{
		PassingScore: 50,
		Questions: []model.QuizQuestion{
			{BaseModel: model.BaseModel{ID: 1}, CorrectChoice: 0, Points: 1},
			{BaseModel: model.BaseModel{ID: 2}, CorrectChoice: 0, Points: 1},
		},
	}
	score, passed := scoreAttempt(quiz, []model.QuizAttemptAnswer{{QuestionID: 1, ChoiceIndex: 0}})
	assert.Equal(t, 50.0, score)
	assert.True(t, passed)
}
