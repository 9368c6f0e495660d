package app

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"cypher_quest_backend/docs"
	"cypher_quest_backend/internal/config"
	"cypher_quest_backend/internal/middleware"
	"cypher_quest_backend/internal/model"
	"cypher_quest_backend/pkg/monitoring"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由（无需登录）
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.GET("/relay/health", c.relay.Health)
		public.POST("/auth/register", c.auth.Register)
		public.POST("/auth/login", c.auth.Login)
		public.POST("/auth/guest", c.auth.Guest)
	}

	// 学习者路由（需要登录）
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		authGroup.GET("/auth/profile", c.auth.Profile)

		authGroup.GET("/questions", c.question.List)
		authGroup.GET("/questions/:id", c.question.Get)
		authGroup.GET("/lessons", c.question.Lessons)

		authGroup.POST("/run", c.relay.Run)
		authGroup.POST("/submit", c.relay.Submit)

		authGroup.GET("/progress", c.progress.Snapshot)
		authGroup.PUT("/progress/theme", c.progress.SetTheme)
		authGroup.PUT("/progress/position", c.progress.SetPosition)
		authGroup.GET("/progress/weak", c.progress.Weak)
		authGroup.GET("/progress/stats", c.progress.Stats)

		authGroup.GET("/session", c.session.Current)
		authGroup.POST("/session/start", c.session.Start)
		authGroup.POST("/session/submit", c.session.Submit)
		authGroup.POST("/session/next", c.session.Next)
		authGroup.POST("/session/restart", c.session.Restart)
	}

	// 管理员路由
	adminGroup := router.Group("/api/admin")
	adminGroup.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Admin))
	{
		adminGroup.POST("/seed", c.imports.Seed)
		adminGroup.POST("/reset", c.imports.Reset)
		adminGroup.POST("/import", c.imports.ImportJSON)
		adminGroup.POST("/import/csv", c.imports.ImportCSV)
		adminGroup.GET("/imports", c.imports.Archives)
		adminGroup.GET("/relay/traces", c.relay.Traces)
	}
}
