package service

import (
	"context"
	"errors"

	"elearning_backend/internal/model"
	"elearning_backend/internal/repository"
	"elearning_backend/internal/util"

	"gorm.io/gorm"
)

// CourseService 课程、课时与选课管理
type CourseService struct {
	CourseRepo *repository.CourseRepository
	EnrollRepo *repository.EnrollmentRepository
}

func NewCourseService(courseRepo *repository.CourseRepository, enrollRepo *repository.EnrollmentRepository) *CourseService {
	return &CourseService{
		CourseRepo: courseRepo,
		EnrollRepo: enrollRepo,
	}
}

type CourseInput struct {
	Title           string
	Description     string
	Level           string
	EnrollmentLimit *int
}

func (s *CourseService) Create(ctx context.Context, instructorID uint, in CourseInput) (*model.Course, error) {
	course := &model.Course{
		Title:           in.Title,
		Description:     in.Description,
		InstructorID:    instructorID,
		Level:           in.Level,
		Status:          model.CourseDraft,
		EnrollmentLimit: in.EnrollmentLimit,
	}
	if course.Level == "" {
		course.Level = "beginner"
	}

	if err := s.CourseRepo.Create(ctx, course); err != nil {
		return nil, err
	}
	return course, nil
}

func (s *CourseService) Update(ctx context.Context, actor *model.User, courseID uint, in CourseInput) (*model.Course, error) {
	course, err := s.authorize(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}

	if in.Title != "" {
		course.Title = in.Title
	}
	if in.Description != "" {
		course.Description = in.Description
	}
	if in.Level != "" {
		course.Level = in.Level
	}
	if in.EnrollmentLimit != nil {
		course.EnrollmentLimit = in.EnrollmentLimit
	}

	if err := s.CourseRepo.Update(ctx, course); err != nil {
		return nil, err
	}
	return course, nil
}

// SetStatus 课程状态流转：draft → published → archived
func (s *CourseService) SetStatus(ctx context.Context, actor *model.User, courseID uint, status model.CourseStatus) (*model.Course, error) {
	course, err := s.authorize(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}

	course.Status = status
	if err := s.CourseRepo.Update(ctx, course); err != nil {
		return nil, err
	}
	return course, nil
}

func (s *CourseService) Get(ctx context.Context, id uint) (*model.Course, error) {
	return s.CourseRepo.FindByID(ctx, id)
}

func (s *CourseService) ListPublished(ctx context.Context, page, limit int) ([]model.Course, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.CourseRepo.ListPublished(ctx, page, limit)
}

func (s *CourseService) GetLesson(ctx context.Context, id uint) (*model.Lesson, error) {
	return s.CourseRepo.FindLessonByID(ctx, id)
}

type LessonInput struct {
	Title   string
	Content string
	Order   int
}

func (s *CourseService) AddLesson(ctx context.Context, actor *model.User, courseID uint, in LessonInput) (*model.Lesson, error) {
	if _, err := s.authorize(ctx, actor, courseID); err != nil {
		return nil, err
	}

	lesson := &model.Lesson{
		CourseID: courseID,
		Title:    in.Title,
		Content:  in.Content,
		Order:    in.Order,
	}
	if err := s.CourseRepo.CreateLesson(ctx, lesson); err != nil {
		return nil, err
	}
	return lesson, nil
}

// Enroll 加入课程。仅已发布课程可选，重复选课拒绝，退课记录重新激活。
// 课程设有人数上限时按当前 enrolled 人数校验。
func (s *CourseService) Enroll(ctx context.Context, userID, courseID uint) (*model.Enrollment, error) {
	course, err := s.CourseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.Status != model.CoursePublished {
		return nil, util.ErrCourseNotFound
	}

	existing, err := s.EnrollRepo.Find(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Active() {
		return nil, util.ErrAlreadyEnrolled
	}

	if course.EnrollmentLimit != nil {
		count, err := s.EnrollRepo.CountActive(ctx, courseID)
		if err != nil {
			return nil, err
		}
		if count >= int64(*course.EnrollmentLimit) {
			return nil, util.ErrEnrollmentLimitReached
		}
	}

	if existing != nil {
		if _, err := s.EnrollRepo.Reactivate(ctx, existing.ID); err != nil {
			return nil, err
		}
		return s.EnrollRepo.Find(ctx, userID, courseID)
	}

	enrollment := &model.Enrollment{
		UserID:   userID,
		CourseID: courseID,
		Status:   model.Enrolled,
	}
	if err := s.EnrollRepo.Create(ctx, enrollment); err != nil {
		// 唯一索引兜底并发重复选课
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, util.ErrAlreadyEnrolled
		}
		return nil, err
	}
	return enrollment, nil
}

// Unenroll 退课。条件更新保证幂等，已退或未选返回 ErrNotEnrolled。
func (s *CourseService) Unenroll(ctx context.Context, userID, courseID uint) error {
	rows, err := s.EnrollRepo.Drop(ctx, userID, courseID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return util.ErrNotEnrolled
	}
	return nil
}

// MyCourses 当前用户的选课列表，含课程信息，status 为空时返回全部
func (s *CourseService) MyCourses(ctx context.Context, userID uint, status model.EnrollmentStatus) ([]model.Enrollment, error) {
	return s.EnrollRepo.ListByUser(ctx, userID, status)
}

// authorize 非管理员只能操作自己名下的课程
func (s *CourseService) authorize(ctx context.Context, actor *model.User, courseID uint) (*model.Course, error) {
	course, err := s.CourseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.Admin && course.InstructorID != actor.ID {
		return nil, util.ErrPermissionDenied
	}
	return course, nil
}
