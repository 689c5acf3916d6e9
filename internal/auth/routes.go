package auth

import "github.com/gin-gonic/gin"

// RegisterRoutes registers session routes
func RegisterRoutes(router *gin.RouterGroup, h *Handler, tokens *TokenManager) {
	sessions := router.Group("/auth")
	{
		sessions.POST("/session", h.CreateSession)
		sessions.GET("/me", Middleware(tokens), h.Me)
	}
}
