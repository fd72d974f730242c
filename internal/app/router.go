package app

import (
	"time"

	"elearning_backend/docs"
	"elearning_backend/internal/config"
	"elearning_backend/internal/middleware"
	"elearning_backend/internal/model"
	"elearning_backend/pkg/monitoring"
	"elearning_backend/pkg/security"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		a.registerStudentRoutes(authGroup, c)
		a.registerInstructorRoutes(authGroup, c)
		a.registerAdminRoutes(authGroup, c)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	// 认证入口单独限流，慢哈希路径不能裸奔
	auth := router.Group("/api/auth")
	auth.Use(security.RateLimiter(60, time.Minute))
	{
		auth.POST("/register", c.auth.Register)
		auth.POST("/login", c.auth.Login)
		auth.POST("/refresh", c.auth.Refresh)
		auth.POST("/logout", c.auth.Logout)
		auth.POST("/forgot-password", c.auth.ForgotPassword)
		auth.POST("/reset-password", c.auth.ResetPassword)
		auth.POST("/verify-email", c.auth.VerifyEmail)
		auth.POST("/resend-verification", c.auth.ResendVerification)
	}
}

func (a *App) registerStudentRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/profile", c.auth.GetProfile)
	rg.PUT("/profile", c.user.UpdateProfile)
	rg.POST("/profile/avatar", c.user.UploadAvatar)
	rg.POST("/auth/change-password", c.auth.ChangePassword)

	rg.GET("/courses", c.course.ListCourses)
	rg.GET("/courses/:id", c.course.GetCourse)
	rg.POST("/courses/:id/enroll", c.course.Enroll)
	rg.DELETE("/courses/:id/enroll", c.course.Unenroll)
	rg.GET("/enrollments/my-courses", c.course.MyCourses)
	rg.GET("/lessons/:lessonId", c.course.GetLesson)
	rg.GET("/lessons/:lessonId/quizzes", c.quiz.ListLessonQuizzes)
	rg.GET("/quizzes/:id", c.quiz.GetQuiz)

	// 作答接口
	attempts := rg.Group("/")
	attempts.Use(middleware.RequireCapability(model.CapTakeQuiz))
	{
		attempts.POST("/quizzes/:id/attempts", c.quiz.StartAttempt)
		attempts.GET("/attempts/:attemptId", c.quiz.GetAttempt)
		attempts.PUT("/attempts/:attemptId/answers", c.quiz.SubmitAnswer)
		attempts.POST("/attempts/:attemptId/submit", c.quiz.SubmitAttempt)
	}
}

func (a *App) registerInstructorRoutes(rg *gin.RouterGroup, c *controllers) {
	courses := rg.Group("/")
	courses.Use(middleware.RequireCapability(model.CapManageCourses))
	{
		courses.POST("/courses", c.course.CreateCourse)
		courses.PUT("/courses/:id", c.course.UpdateCourse)
		courses.PUT("/courses/:id/status", c.course.SetCourseStatus)
		courses.POST("/courses/:id/lessons", c.course.AddLesson)
	}

	quizzes := rg.Group("/")
	quizzes.Use(middleware.RequireCapability(model.CapManageQuizzes))
	{
		quizzes.POST("/lessons/:lessonId/quizzes", c.quiz.CreateQuiz)
		quizzes.POST("/quizzes/:id/publish", c.quiz.PublishQuiz)
	}
}

func (a *App) registerAdminRoutes(rg *gin.RouterGroup, c *controllers) {
	admin := rg.Group("/admin")
	admin.Use(middleware.RequireCapability(model.CapManageUsers))
	{
		admin.GET("/users", c.user.ListUsers)
		admin.PUT("/users/:id/active", c.user.SetUserActive)
		admin.PUT("/users/:id/role", c.user.SetUserRole)
	}
}
