package controller

import (
	"errors"

	"elearning_backend/internal/model"
	"elearning_backend/internal/service"
	"elearning_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type CourseController struct {
	CourseService *service.CourseService
	AuthService   *service.AuthService
}

func NewCourseController(courseService *service.CourseService, authService *service.AuthService) *CourseController {
	return &CourseController{
		CourseService: courseService,
		AuthService:   authService,
	}
}

type CourseRequest struct {
	Title           string `json:"title" binding:"required"`
	Description     string `json:"description"`
	Level           string `json:"level" binding:"omitempty,oneof=beginner intermediate advanced"`
	EnrollmentLimit *int   `json:"enrollmentLimit" binding:"omitempty,min=1"`
}

// CreateCourse godoc
// @Summary 创建课程
// @Description 以草稿状态创建课程，仅讲师和管理员可用
// @Tags 课程
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body CourseRequest true "课程信息"
// @Success 201 {object} util.Response{data=model.Course} "创建成功"
// @Router /api/courses [post]
func (c *CourseController) CreateCourse(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req CourseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	course, err := c.CourseService.Create(ctx.Request.Context(), claims.UserID, service.CourseInput{
		Title:           req.Title,
		Description:     req.Description,
		Level:           req.Level,
		EnrollmentLimit: req.EnrollmentLimit,
	})
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Created(ctx, course)
}

// UpdateCourse godoc
// @Summary 更新课程
// @Tags 课程
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "课程ID"
// @Param   body body CourseRequest true "课程信息"
// @Success 200 {object} util.Response{data=model.Course} "更新成功"
// @Failure 403 {object} util.Response "无权限"
// @Failure 404 {object} util.Response "课程不存在"
// @Router /api/courses/{id} [put]
func (c *CourseController) UpdateCourse(ctx *gin.Context) {
	actor := c.AuthService.GetCurrentUser(ctx)
	if actor == nil {
		util.Unauthorized(ctx)
		return
	}

	var req CourseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	course, err := c.CourseService.Update(ctx.Request.Context(), actor, util.MustParseUint(ctx.Param("id")), service.CourseInput{
		Title:           req.Title,
		Description:     req.Description,
		Level:           req.Level,
		EnrollmentLimit: req.EnrollmentLimit,
	})
	if err != nil {
		c.writeCourseError(ctx, err)
		return
	}

	util.Success(ctx, course)
}

type CourseStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=draft published archived"`
}

// SetCourseStatus godoc
// @Summary 变更课程状态
// @Description 草稿、发布、归档之间流转
// @Tags 课程
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "课程ID"
// @Param   body body CourseStatusRequest true "目标状态"
// @Success 200 {object} util.Response{data=model.Course} "成功"
// @Router /api/courses/{id}/status [put]
func (c *CourseController) SetCourseStatus(ctx *gin.Context) {
	actor := c.AuthService.GetCurrentUser(ctx)
	if actor == nil {
		util.Unauthorized(ctx)
		return
	}

	var req CourseStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	course, err := c.CourseService.SetStatus(ctx.Request.Context(), actor, util.MustParseUint(ctx.Param("id")), model.CourseStatus(req.Status))
	if err != nil {
		c.writeCourseError(ctx, err)
		return
	}

	util.Success(ctx, course)
}

// GetCourse godoc
// @Summary 课程详情
// @Tags 课程
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "课程ID"
// @Success 200 {object} util.Response{data=model.Course} "成功"
// @Failure 404 {object} util.Response "课程不存在"
// @Router /api/courses/{id} [get]
func (c *CourseController) GetCourse(ctx *gin.Context) {
	course, err := c.CourseService.Get(ctx.Request.Context(), util.MustParseUint(ctx.Param("id")))
	if err != nil {
		c.writeCourseError(ctx, err)
		return
	}

	util.Success(ctx, course)
}

// ListCourses godoc
// @Summary 已发布课程列表
// @Tags 课程
// @Produce  json
// @Security ApiKeyAuth
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/courses [get]
func (c *CourseController) ListCourses(ctx *gin.Context) {
	page := int(util.MustParseUint(ctx.DefaultQuery("page", "1")))
	limit := int(util.MustParseUint(ctx.DefaultQuery("limit", "20")))

	courses, total, err := c.CourseService.ListPublished(ctx.Request.Context(), page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{
		List:  courses,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetLesson godoc
// @Summary 课时详情
// @Tags 课程
// @Produce  json
// @Security ApiKeyAuth
// @Param   lessonId path int true "课时ID"
// @Success 200 {object} util.Response{data=model.Lesson} "成功"
// @Failure 404 {object} util.Response "课时不存在"
// @Router /api/lessons/{lessonId} [get]
func (c *CourseController) GetLesson(ctx *gin.Context) {
	lesson, err := c.CourseService.GetLesson(ctx.Request.Context(), util.MustParseUint(ctx.Param("lessonId")))
	if err != nil {
		c.writeCourseError(ctx, err)
		return
	}

	util.Success(ctx, lesson)
}

// Enroll godoc
// @Summary 加入课程
// @Description 选修已发布课程，重复选课返回冲突
// @Tags 选课
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "课程ID"
// @Success 201 {object} util.Response{data=model.Enrollment} "已加入"
// @Failure 404 {object} util.Response "课程不存在或未发布"
// @Failure 409 {object} util.Response "已选过该课程或人数已满"
// @Router /api/courses/{id}/enroll [post]
func (c *CourseController) Enroll(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	enrollment, err := c.CourseService.Enroll(ctx.Request.Context(), claims.UserID, util.MustParseUint(ctx.Param("id")))
	if err != nil {
		switch {
		case errors.Is(err, util.ErrAlreadyEnrolled):
			util.Conflict(ctx, "已选过该课程")
		case errors.Is(err, util.ErrEnrollmentLimitReached):
			util.Conflict(ctx, "课程人数已满")
		default:
			c.writeCourseError(ctx, err)
		}
		return
	}

	util.Created(ctx, enrollment)
}

// Unenroll godoc
// @Summary 退出课程
// @Tags 选课
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "课程ID"
// @Success 200 {object} util.Response "已退课"
// @Failure 409 {object} util.Response "未选该课程"
// @Router /api/courses/{id}/enroll [delete]
func (c *CourseController) Unenroll(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	err := c.CourseService.Unenroll(ctx.Request.Context(), claims.UserID, util.MustParseUint(ctx.Param("id")))
	if err != nil {
		if errors.Is(err, util.ErrNotEnrolled) {
			util.Conflict(ctx, "未选该课程")
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, gin.H{"message": "已退课"})
}

// MyCourses godoc
// @Summary 我的课程
// @Description 当前用户的选课列表，可按状态筛选
// @Tags 选课
// @Produce  json
// @Security ApiKeyAuth
// @Param   status query string false "选课状态 enrolled/dropped"
// @Success 200 {object} util.Response{data=[]model.Enrollment} "成功"
// @Router /api/enrollments/my-courses [get]
func (c *CourseController) MyCourses(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	enrollments, err := c.CourseService.MyCourses(ctx.Request.Context(), claims.UserID,
		model.EnrollmentStatus(ctx.Query("status")))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, enrollments)
}

type LessonRequest struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content"`
	Order   int    `json:"order"`
}

// AddLesson godoc
// @Summary 添加课时
// @Tags 课程
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "课程ID"
// @Param   body body LessonRequest true "课时内容"
// @Success 201 {object} util.Response{data=model.Lesson} "创建成功"
// @Router /api/courses/{id}/lessons [post]
func (c *CourseController) AddLesson(ctx *gin.Context) {
	actor := c.AuthService.GetCurrentUser(ctx)
	if actor == nil {
		util.Unauthorized(ctx)
		return
	}

	var req LessonRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	lesson, err := c.CourseService.AddLesson(ctx.Request.Context(), actor, util.MustParseUint(ctx.Param("id")), service.LessonInput{
		Title:   req.Title,
		Content: req.Content,
		Order:   req.Order,
	})
	if err != nil {
		c.writeCourseError(ctx, err)
		return
	}

	util.Created(ctx, lesson)
}

func (c *CourseController) writeCourseError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrCourseNotFound), errors.Is(err, util.ErrLessonNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx)
	default:
		util.LogInternalError(ctx, err)
	}
}
