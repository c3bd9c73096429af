package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/voxline/voxline-agents/internal/config"
	"github.com/voxline/voxline-agents/internal/http/handler"
	httpmiddleware "github.com/voxline/voxline-agents/internal/http/middleware"
	"github.com/voxline/voxline-agents/internal/middleware"
)

// RouterParams bundles the handler set so the route table stays in one place.
type RouterParams struct {
	Config      config.Config
	Logger      *zap.Logger
	Auth        *httpmiddleware.Auth
	RateLimiter *middleware.RateLimiter
	AuthHandler *handler.AuthHandler
	Agents      *handler.AgentHandler
	Numbers     *handler.PhoneNumberHandler
	Folders     *handler.FolderHandler
}

// NewRouter wires Gin routes and middleware.
func NewRouter(p RouterParams) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(p.Logger))
	if p.RateLimiter != nil {
		r.Use(p.RateLimiter.Handler())
	}
	r.Use(middleware.CORS(p.Config))
	r.Use(otelgin.Middleware(p.Config.ServiceName))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := r.Group("/auth")
	{
		auth.POST("/register", p.AuthHandler.Register)
		auth.POST("/login", p.AuthHandler.Login)
		auth.GET("/me", p.Auth.RequireToken, p.AuthHandler.Me)
		auth.POST("/logout", p.Auth.RequireToken, p.AuthHandler.Logout)
	}

	users := r.Group("/users", p.Auth.RequireToken)
	{
		users.GET("", p.AuthHandler.ListUsers)
		users.DELETE("/:id", p.AuthHandler.DeleteUser)
	}

	agents := r.Group("/agents", p.Auth.RequireToken)
	{
		agents.POST("", p.Agents.Create)
		agents.GET("", p.Agents.List)
		agents.GET("/:id", p.Agents.Get)
		agents.PUT("/:id", p.Agents.Update)
		agents.PATCH("/:id", p.Agents.Update)
		agents.DELETE("/:id", p.Agents.Delete)
		agents.POST("/:id/start", p.Agents.Start)
		agents.POST("/:id/stop", p.Agents.Stop)
	}

	numbers := r.Group("/phone-numbers", p.Auth.RequireToken)
	{
		numbers.POST("", p.Numbers.Create)
		numbers.GET("", p.Numbers.List)
		numbers.GET("/:id", p.Numbers.Get)
		numbers.DELETE("/:id", p.Numbers.Delete)
		numbers.POST("/:id/release", p.Numbers.Release)
	}

	folders := r.Group("/folders", p.Auth.RequireToken)
	{
		folders.POST("", p.Folders.Create)
		folders.GET("", p.Folders.List)
		folders.DELETE("/:id", p.Folders.Delete)
	}

	return r
}
