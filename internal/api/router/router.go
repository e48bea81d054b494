package router

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/postboard/config"
	_ "github.com/d60-Lab/postboard/docs"
	"github.com/d60-Lab/postboard/internal/api/handler"
	"github.com/d60-Lab/postboard/pkg/auth"
	"github.com/d60-Lab/postboard/pkg/middleware"
)

// Setup 注册中间件与路由
func Setup(cfg *config.Config, h *handler.Handler, tokens *auth.Manager) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		gzip.Gzip(gzip.DefaultCompression),
		otelgin.Middleware(cfg.Tracing.ServiceName),
		middleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
	)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	optional := middleware.Auth(tokens, false)
	required := middleware.Auth(tokens, true)

	v1 := r.Group("/api/v1")
	{
		users := v1.Group("/users")
		users.POST("", h.Register)
		users.POST("/login", h.Login)

		posts := v1.Group("/posts")
		posts.GET("", optional, h.ListPosts)
		posts.GET("/hot", optional, h.ListHot)
		posts.GET("/:id", optional, h.GetPost)
		posts.POST("", required, h.CreatePost)
		posts.DELETE("/:id", required, h.DeletePost)
		posts.POST("/:id/like", required, h.ToggleLike)
		posts.POST("/:id/comments", required, h.AddComment)
		posts.POST("/:id/bookmark", required, h.ToggleBookmark)

		v1.GET("/me/bookmarks", required, h.ListBookmarks)
	}
	return r
}
