package util

import "errors"

var (
	// 认证相关。邮箱不存在与密码错误统一返回 ErrInvalidCredentials，避免用户枚举
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountNotVerified   = errors.New("account not verified")
	ErrAccountDisabled      = errors.New("account disabled")
	ErrInvalidToken         = errors.New("invalid token")
	ErrTooManyAttempts      = errors.New("too many attempts")
	ErrEmailRegistered      = errors.New("该邮箱已被注册")
	ErrUserNotFound         = errors.New("用户不存在")
	ErrEmailAlreadyVerified = errors.New("email already verified")

	// 刷新会话
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionRevoked       = errors.New("session revoked")
	ErrSessionReuseDetected = errors.New("session reuse detected")

	// 测验与作答
	ErrQuizNotFound         = errors.New("quiz not found")
	ErrQuizNotPublished     = errors.New("quiz not published or not accessible")
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrAttemptNotActive     = errors.New("attempt not active")
	ErrAttemptExpired       = errors.New("attempt expired")
	ErrAttemptAlreadyActive = errors.New("attempt already active")
	ErrAttemptLimitReached  = errors.New("attempt limit reached")
	ErrQuestionNotInQuiz    = errors.New("question not in quiz")
	ErrInvalidChoice        = errors.New("choice index out of range")

	// 课程与选课
	ErrCourseNotFound         = errors.New("course not found")
	ErrLessonNotFound         = errors.New("lesson not found")
	ErrAlreadyEnrolled        = errors.New("already enrolled")
	ErrNotEnrolled            = errors.New("not enrolled")
	ErrEnrollmentLimitReached = errors.New("enrollment limit reached")

	// 文件上传
	ErrInvalidFileType = errors.New("invalid file type")

	ErrPermissionDenied = errors.New("permission denied")
)
