package controller

import (
	"errors"

	"elearning_backend/internal/service"
	"elearning_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type QuizController struct {
	QuizService    *service.QuizService
	AttemptService *service.QuizAttemptService
	AuthService    *service.AuthService
}

func NewQuizController(quizService *service.QuizService, attemptService *service.QuizAttemptService, authService *service.AuthService) *QuizController {
	return &QuizController{
		QuizService:    quizService,
		AttemptService: attemptService,
		AuthService:    authService,
	}
}

// CreateQuiz godoc
// @Summary 创建测验
// @Description 在指定课时下创建测验及题目，仅讲师和管理员可用
// @Tags 测验
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   lessonId path int true "课时ID"
// @Param   body body service.QuizInput true "测验内容"
// @Success 201 {object} util.Response{data=model.Quiz} "创建成功"
// @Failure 403 {object} util.Response "无权限"
// @Failure 404 {object} util.Response "课时不存在"
// @Router /api/lessons/{lessonId}/quizzes [post]
func (c *QuizController) CreateQuiz(ctx *gin.Context) {
	actor := c.AuthService.GetCurrentUser(ctx)
	if actor == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.QuizInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	lessonID := util.MustParseUint(ctx.Param("lessonId"))
	quiz, err := c.QuizService.Create(ctx.Request.Context(), actor, lessonID, req)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrLessonNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrPermissionDenied):
			util.Forbidden(ctx)
		case errors.Is(err, util.ErrInvalidChoice):
			util.BadRequest(ctx, "正确答案下标超出选项范围")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Created(ctx, quiz)
}

// PublishQuiz godoc
// @Summary 发布测验
// @Description 发布后学生才能开始作答
// @Tags 测验
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "测验ID"
// @Success 200 {object} util.Response{data=model.Quiz} "发布成功"
// @Failure 403 {object} util.Response "无权限"
// @Failure 404 {object} util.Response "测验不存在"
// @Router /api/quizzes/{id}/publish [post]
func (c *QuizController) PublishQuiz(ctx *gin.Context) {
	actor := c.AuthService.GetCurrentUser(ctx)
	if actor == nil {
		util.Unauthorized(ctx)
		return
	}

	quiz, err := c.QuizService.Publish(ctx.Request.Context(), actor, util.MustParseUint(ctx.Param("id")))
	if err != nil {
		switch {
		case errors.Is(err, util.ErrQuizNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrPermissionDenied):
			util.Forbidden(ctx)
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, quiz)
}

// GetQuiz godoc
// @Summary 查看测验
// @Description 返回测验及题目，题目不含正确答案
// @Tags 测验
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "测验ID"
// @Success 200 {object} util.Response{data=model.Quiz} "成功"
// @Failure 404 {object} util.Response "测验不存在"
// @Router /api/quizzes/{id} [get]
func (c *QuizController) GetQuiz(ctx *gin.Context) {
	actor := c.AuthService.GetCurrentUser(ctx)
	if actor == nil {
		util.Unauthorized(ctx)
		return
	}

	quiz, err := c.QuizService.Get(ctx.Request.Context(), actor, util.MustParseUint(ctx.Param("id")))
	if err != nil {
		if errors.Is(err, util.ErrQuizNotFound) || errors.Is(err, util.ErrLessonNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, quiz)
}

// ListLessonQuizzes godoc
// @Summary 课时下的测验列表
// @Tags 测验
// @Produce  json
// @Security ApiKeyAuth
// @Param   lessonId path int true "课时ID"
// @Success 200 {object} util.Response{data=[]model.Quiz} "成功"
// @Router /api/lessons/{lessonId}/quizzes [get]
func (c *QuizController) ListLessonQuizzes(ctx *gin.Context) {
	quizzes, err := c.QuizService.ListByLesson(ctx.Request.Context(), util.MustParseUint(ctx.Param("lessonId")))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, quizzes)
}

// StartAttempt godoc
// @Summary 开始作答
// @Description 为当前用户开启一次新作答。同一测验同时只能有一次进行中作答。
// @Tags 作答
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "测验ID"
// @Success 201 {object} util.Response{data=model.QuizAttempt} "已开始"
// @Failure 403 {object} util.Response "未选修所属课程"
// @Failure 404 {object} util.Response "测验不存在或未发布"
// @Failure 409 {object} util.Response "已有进行中的作答或次数用尽"
// @Router /api/quizzes/{id}/attempts [post]
func (c *QuizController) StartAttempt(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	attempt, err := c.AttemptService.Start(ctx.Request.Context(), claims.UserID, util.MustParseUint(ctx.Param("id")))
	if err != nil {
		switch {
		case errors.Is(err, util.ErrQuizNotFound), errors.Is(err, util.ErrQuizNotPublished),
			errors.Is(err, util.ErrLessonNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrNotEnrolled):
			util.Forbidden(ctx)
		case errors.Is(err, util.ErrAttemptAlreadyActive):
			util.Conflict(ctx, "已有进行中的作答")
		case errors.Is(err, util.ErrAttemptLimitReached):
			util.Conflict(ctx, "作答次数已用尽")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Created(ctx, attempt)
}

type AnswerRequest struct {
	QuestionID  uint `json:"questionId" binding:"required"`
	ChoiceIndex *int `json:"choiceIndex" binding:"required"`
}

// SubmitAnswer godoc
// @Summary 记录单题作答
// @Description 记录或覆盖某题的选项，仅进行中且未超时的作答可写
// @Tags 作答
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   attemptId path string true "作答ID"
// @Param   body body AnswerRequest true "题目与选项"
// @Success 200 {object} util.Response "已记录"
// @Failure 400 {object} util.Response "题目不属于该测验或选项越界"
// @Failure 404 {object} util.Response "作答不存在"
// @Failure 409 {object} util.Response "作答已结束"
// @Router /api/attempts/{attemptId}/answers [put]
func (c *QuizController) SubmitAnswer(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req AnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	err := c.AttemptService.Answer(ctx.Request.Context(), claims.UserID, ctx.Param("attemptId"), req.QuestionID, *req.ChoiceIndex)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrAttemptNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrQuestionNotInQuiz):
			util.BadRequest(ctx, "题目不属于该测验")
		case errors.Is(err, util.ErrInvalidChoice):
			util.BadRequest(ctx, "选项下标越界")
		case errors.Is(err, util.ErrAttemptExpired):
			util.Conflict(ctx, "作答已超时")
		case errors.Is(err, util.ErrAttemptNotActive):
			util.Conflict(ctx, "作答已结束")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, gin.H{"message": "已记录"})
}

// SubmitAttempt godoc
// @Summary 提交作答
// @Description 提交并立即评分，重复提交返回冲突
// @Tags 作答
// @Produce  json
// @Security ApiKeyAuth
// @Param   attemptId path string true "作答ID"
// @Success 200 {object} util.Response{data=model.QuizAttempt} "评分结果"
// @Failure 404 {object} util.Response "作答不存在"
// @Failure 409 {object} util.Response "作答已结束"
// @Router /api/attempts/{attemptId}/submit [post]
func (c *QuizController) SubmitAttempt(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	attempt, err := c.AttemptService.Submit(ctx.Request.Context(), claims.UserID, ctx.Param("attemptId"))
	if err != nil {
		switch {
		case errors.Is(err, util.ErrAttemptNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrAttemptNotActive):
			util.Conflict(ctx, "作答已结束")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, attempt)
}

// GetAttempt godoc
// @Summary 查看作答
// @Description 返回作答状态、已答题目与评分结果，仅本人可见
// @Tags 作答
// @Produce  json
// @Security ApiKeyAuth
// @Param   attemptId path string true "作答ID"
// @Success 200 {object} util.Response{data=model.QuizAttempt} "成功"
// @Failure 404 {object} util.Response "作答不存在"
// @Router /api/attempts/{attemptId} [get]
func (c *QuizController) GetAttempt(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	attempt, err := c.AttemptService.Get(ctx.Request.Context(), claims.UserID, ctx.Param("attemptId"))
	if err != nil {
		if errors.Is(err, util.ErrAttemptNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, attempt)
}
