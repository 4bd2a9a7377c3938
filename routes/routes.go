package routes

import (
	"zh.xyz/dv/console/handlers"
	"zh.xyz/dv/console/middleware"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine) {
	// CORS中间件
	r.Use(middleware.CORSMiddleware())

	webhookHandler := &handlers.WebhookHandler{}

	// 健康检查端点（无需认证，供远程实例确认控制台可达）
	r.GET("/api/v1/health", webhookHandler.Health)

	// 远程实例回调（签名认证，不走操作员认证）
	webhooks := r.Group("/api/v1/webhooks")
	{
		webhooks.POST("/command-callback", webhookHandler.CommandCallback)
		webhooks.POST("/events", webhookHandler.AuditEvent)
	}

	// 公共路由
	public := r.Group("/api/v1")
	{
		userHandler := &handlers.UserHandler{}
		public.POST("/login", userHandler.Login)
	}

	// 需要认证的路由
	auth := r.Group("/api/v1")
	auth.Use(middleware.AuthMiddleware())
	{
		userHandler := &handlers.UserHandler{}
		auth.GET("/profile", userHandler.GetProfile)

		// 远程实例注册表
		instanceHandler := &handlers.InstanceHandler{}
		auth.POST("/instances", instanceHandler.CreateInstance)
		auth.GET("/instances", instanceHandler.ListInstances)
		auth.POST("/instances/test", instanceHandler.TestConnection)
		auth.POST("/instances/health/refresh-all", instanceHandler.RefreshAllHealth)

		// 实例子资源路由（必须在/:id路由之前，避免路由冲突）
		instances := auth.Group("/instances")
		{
			tenantHandler := &handlers.TenantHandler{}
			instances.POST("/:id/promote-master", instanceHandler.PromoteMaster)
			instances.POST("/:id/health", instanceHandler.RefreshHealth)
			instances.POST("/:id/sync", tenantHandler.SyncInstance)

			// 基础CRUD路由（必须在子资源路由之后）
			instances.GET("/:id", instanceHandler.GetInstance)
			instances.PUT("/:id", instanceHandler.UpdateInstance)
			instances.DELETE("/:id", instanceHandler.DeleteInstance)
		}

		// 命令执行记录
		executionHandler := &handlers.ExecutionHandler{}
		auth.POST("/executions", executionHandler.CreateExecution)
		auth.GET("/executions", executionHandler.ListExecutions)
		auth.GET("/executions/:id", executionHandler.GetExecution)

		// 租户身份缓存
		tenantHandler := &handlers.TenantHandler{}
		auth.GET("/tenants", tenantHandler.ListTenantIdentities)
		auth.POST("/tenants/sync", tenantHandler.SyncAll)
	}
}
