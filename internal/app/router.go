package app

import (
	"smart_edu_backend/docs"
	"smart_edu_backend/internal/config"
	"smart_edu_backend/internal/middleware"
	"smart_edu_backend/internal/model"
	"smart_edu_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	// 提问对未登录用户开放，带合法 token 时才记入个人历史
	ask := router.Group("/api/qa")
	ask.Use(middleware.TryAuthMiddleware(cfg))
	{
		ask.POST("/ask", c.qa.Ask)
	}

	// 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		// 自适应学习
		adaptive := authGroup.Group("/adaptive")
		{
			adaptive.POST("/attempts", c.adaptive.RecordAttempt)
			adaptive.GET("/recommendation", c.adaptive.GetRecommendedDifficulty)
			adaptive.POST("/questions", c.adaptive.GenerateAdaptiveQuestions)
			adaptive.GET("/analysis", c.adaptive.GetStrengthAnalysis)
			adaptive.GET("/weak-topics", c.adaptive.GetWeakTopics)
			adaptive.GET("/history", c.adaptive.GetStudentHistory)
		}

		// 课程问答历史
		qa := authGroup.Group("/qa")
		{
			qa.GET("/history", c.qa.History)
		}

		// 课件管理：检索对学生开放，增删仅教师/管理员
		content := authGroup.Group("/content")
		{
			content.GET("/search", c.content.Search)
			content.GET("/search-subjects", c.content.SearchAcrossSubjects)
			content.GET("/stats", c.content.Stats)

			teacherOnly := content.Group("/")
			teacherOnly.Use(middleware.RoleMiddleware(model.Teacher))
			{
				teacherOnly.POST("/upload", c.content.Upload)
				teacherOnly.DELETE("/:filename", c.content.Delete)
			}
		}
	}
}
