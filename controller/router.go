package controller

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/itish2003/ragagent/logger"
)

// maxUploadBytes bounds multipart request bodies.
const maxUploadBytes = 50 << 20

func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:3000",
			"http://localhost:5173",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:5173",
		},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Requested-With"},
	})
}

// RequestLogger logs one line per request, at a level chosen by status.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []interface{}{
			"method", strings.ToUpper(c.Request.Method),
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}

// NewRouter wires every route of the API.
func NewRouter(rc *RAGController, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(CORS())
	r.MaxMultipartMemory = 8 << 20

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "ragagent",
			"model":   rc.agent.ModelName(),
			"models":  rc.agent.ModelNames(),
		})
	})

	api := r.Group("/api/v1")
	{
		api.POST("/documents", rc.AddDocument)
		api.DELETE("/documents", rc.ResetDocuments)
		api.POST("/search", rc.Search)

		api.POST("/chat", rc.Chat)
		api.GET("/threads", rc.ListThreads)
		api.GET("/threads/:id", rc.GetThread)
		api.GET("/threads/:id/checkpoints", rc.GetCheckpoints)
		api.POST("/threads/:id/resume", rc.ResumeThread)

		api.POST("/tables/query", rc.QueryTable)
		api.GET("/tools", rc.ListTools)
	}
	return r
}
