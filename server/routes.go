package server

import (
	"time"

	custommiddleware "SmartInventory/middleware"

	"github.com/labstack/echo/v4"
)

func (s *Server) SetupRoutes(authMiddleware echo.MiddlewareFunc) {
	e := s.Echo
	api := e.Group("/api/v1")

	// Auth routes (unprotected)
	auth := api.Group("/auth")
	if s.AuthLimiter != nil {
		// 登录注册接口限速，防撞库
		auth.Use(custommiddleware.NewRateLimitMiddleware(s.AuthLimiter, custommiddleware.RateLimitConfig{
			Limit:  20,
			Window: time.Minute,
		}))
	}
	{
		auth.POST("/signup", s.AuthHandler.Signup)
		auth.POST("/login", s.AuthHandler.Login)
		auth.POST("/logout", s.AuthHandler.Logout)
		// OAuth routes
		auth.GET("/oauth/:provider", s.AuthHandler.OAuthLogin)
		auth.GET("/oauth/:provider/callback", s.AuthHandler.OAuthCallback)
	}

	// 需要认证
	protected := api.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", s.AuthHandler.Me)

		// 分类
		categories := protected.Group("/categories")
		{
			categories.GET("", s.CategoryHandler.GetCategories)
			categories.POST("", s.CategoryHandler.CreateCategory, custommiddleware.IsManager())
			categories.PUT("/:id", s.CategoryHandler.UpdateCategory, custommiddleware.IsManager())
			categories.DELETE("/:id", s.CategoryHandler.DeleteCategory, custommiddleware.IsManager())
		}

		// 商品
		products := protected.Group("/products")
		{
			products.GET("", s.ProductHandler.GetProducts)
			products.GET("/:id", s.ProductHandler.GetProductByID)
			products.POST("", s.ProductHandler.CreateProduct, custommiddleware.IsManager())
			products.PUT("/:id", s.ProductHandler.UpdateProduct, custommiddleware.IsManager())
			products.DELETE("/:id", s.ProductHandler.DeleteProduct, custommiddleware.IsManager())
		}

		// 团队管理，仅店主
		team := protected.Group("/team")
		{
			team.GET("/members", s.TeamHandler.ListMembers)
			team.POST("/members", s.TeamHandler.InviteMember, custommiddleware.IsOwner())
			team.DELETE("/members/:id", s.TeamHandler.RemoveMember, custommiddleware.IsOwner())
			team.PUT("/members/:id/role", s.TeamHandler.UpdateRole, custommiddleware.IsOwner())
		}

		// 收银
		pos := protected.Group("/pos")
		{
			pos.POST("/bills", s.POSHandler.CreateBill)
			pos.GET("/bills", s.POSHandler.ListBills)
			pos.GET("/bills/:id", s.POSHandler.GetBill)
			pos.GET("/summary", s.POSHandler.GetSalesSummary)
		}

		// Chat routes
		chat := protected.Group("/chat")
		{
			chat.GET("/conversations", s.ChatHandler.ListConversations)
			chat.POST("/conversations", s.ChatHandler.CreateConversation)
			chat.GET("/online-users", s.ChatHandler.GetOnlineUsers)
		}
	}

	// WebSocket 自己做握手认证，不走 authMiddleware
	api.GET("/chat/ws", s.ChatHandler.HandleWebSocket)
}
