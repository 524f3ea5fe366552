package router

import (
	"html/template"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/looplog/internal/config"
	"github.com/looplog/internal/db"
	"github.com/looplog/internal/handler"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(cfg *config.AppConfig) *gin.Engine {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	r := gin.Default()

	// 配置会话中间件
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	r.Use(sessions.Sessions("looplog_session", store))

	// 加载模板并添加自定义函数
	r.SetFuncMap(template.FuncMap{
		"add": func(a, b int) int {
			return a + b
		},
		"mul": func(a, b float64) float64 {
			return a * b
		},
		"pct": func(v float64) int {
			return int(v * 100)
		},
	})
	r.LoadHTMLGlob("web/template/*.html")

	// 静态文件服务
	r.Static("/static", "./web/static")

	api := handler.NewAPI(db.DB, cfg.Location)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	r.GET("/login", handler.ShowLoginPage)
	r.POST("/login", handler.Login)
	r.GET("/logout", handler.Logout)

	// 个人日记：除登录外全部路由都需要认证
	auth := r.Group("")
	auth.Use(handler.AuthRequired())
	{
		auth.GET("/", api.ShowDashboard)
		auth.GET("/settings", api.ShowSettings)

		apiGroup := auth.Group("/api")
		{
			apiGroup.GET("/behaviors", api.ListBehaviors)
			apiGroup.PUT("/behaviors/:id", api.UpdateBehavior)
			apiGroup.GET("/behaviors/:id/status", api.GetBehaviorStatus)
			apiGroup.GET("/behaviors/:id/history", api.GetBehaviorHistory)

			apiGroup.POST("/events", api.StartEvent)
			apiGroup.POST("/events/:id/close", api.CloseEvent)

			apiGroup.GET("/reflections", api.ListReflections)
			apiGroup.POST("/reflections", api.CreateReflection)
			apiGroup.GET("/reflections/export", api.ExportReflectionsCSV)
			apiGroup.POST("/reflections/classify-pending", api.ClassifyPendingReflections)
			apiGroup.POST("/reflections/:id/classify", api.ClassifyReflection)
			apiGroup.PUT("/reflections/:id/category", api.UpdateReflectionCategory)

			apiGroup.GET("/emotions", api.GetEmotionOptions)
			apiGroup.GET("/taxonomy", api.GetTaxonomy)

			apiGroup.GET("/settings", api.GetSystemSettings)
			apiGroup.POST("/settings", api.UpdateSystemSettings)
			apiGroup.POST("/settings/ai-test", api.TestAIConnection)
		}
	}

	return r
}
