package auth

import "github.com/gin-gonic/gin"

// RegisterRoutes registers auth routes. The group is expected to run Middleware.
func RegisterRoutes(public, protected *gin.RouterGroup, handler *Handler) {
	public.GET("/auth/ping", handler.Ping)
	protected.GET("/auth/me", handler.Me)
}
