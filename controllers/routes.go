package controllers

import (
	"net/http"

	"databoard/metrics"
	"databoard/middleware"
	"databoard/models"

	"github.com/gin-gonic/gin"
)

// Routes mounts the API. authLimit guards the public auth endpoints.
func (h *Handler) Routes(router *gin.Engine, authLimit gin.HandlerFunc) {
	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", metrics.Handler())

	api := router.Group("/api")

	auth := api.Group("/auth", authLimit)
	{
		auth.POST("/signup", h.Signup)
		auth.POST("/login", h.Login)
	}

	authed := api.Group("", middleware.Authenticate(h.db, h.tokens))
	{
		authed.GET("/profile", h.GetProfile)
		authed.PUT("/profile", h.UpdateProfile)

		authed.GET("/settings", h.GetSettings)
		authed.PUT("/settings", h.UpdateSettings)

		authed.GET("/dashboard", h.GetDashboard)
	}

	user := authed.Group("", middleware.Authorize(models.RoleUser, models.RoleAdmin))

	ai := user.Group("/ai")
	{
		ai.POST("/conversation", h.SaveConversation)
		ai.GET("/conversations", h.ListConversations)
		ai.GET("/conversation", h.GetConversation)
		ai.DELETE("/conversation/:chatId", h.DeleteConversation)
		ai.POST("/query", h.Query)
	}

	files := user.Group("/fileUpload")
	{
		files.POST("", h.UploadFile)
		files.GET("", h.ListFiles)
		files.POST("/new", h.CreateBlankFile)
		files.GET("/content/:id", h.GetFileContent)
		files.GET("/download/:id", h.DownloadFile)
		files.PUT("/:id", h.UpdateFile)
		files.DELETE("/:id", h.DeleteFile)
	}

	charts := user.Group("/charts")
	{
		charts.POST("", h.CreateChart)
		charts.GET("", h.ListCharts)
		charts.GET("/:id", h.GetChart)
		charts.PUT("/:id", h.UpdateChart)
		charts.DELETE("/:id", h.DeleteChart)
		charts.GET("/:id/data", h.GetChartData)
		charts.GET("/:id/image", h.GetChartImage)
	}

	reports := user.Group("/reports")
	{
		reports.POST("", h.CreateReport)
		reports.GET("", h.ListReports)
		reports.GET("/:id", h.GetReport)
		reports.DELETE("/:id", h.DeleteReport)
		reports.GET("/:id/download", h.DownloadReport)
	}

	admin := authed.Group("/admin", middleware.Authorize(models.RoleAdmin))
	{
		admin.GET("/files", h.AdminListFiles)
		admin.GET("/files/content/:id", h.AdminFileContent)
		admin.DELETE("/files/:id", h.AdminDeleteFile)

		admin.GET("/charts", h.AdminListCharts)
		admin.GET("/charts/details/:id", h.AdminChartDetails)
		admin.DELETE("/charts/:id", h.AdminDeleteChart)

		admin.GET("/reports", h.AdminListReports)
		admin.GET("/reports/details/:id", h.AdminReportDetails)
		admin.DELETE("/reports/:id", h.AdminDeleteReport)

		admin.GET("/users", h.AdminListUsers)
		admin.POST("/users", h.AdminCreateUser)
		admin.GET("/users/:id", h.AdminGetUser)
		admin.PUT("/users/:id", h.AdminUpdateUser)
		admin.DELETE("/users/:id", h.AdminDeleteUser)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Route not found"})
	})
}
