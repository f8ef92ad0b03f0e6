package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/madprep/internal/api/handlers"
	"github.com/yoockh/madprep/internal/api/middleware"
)

type Deps struct {
	Auth     middleware.AuthConfig
	Analysis *handlers.AnalysisHandler
	Question *handlers.QuestionHandler
	WS       *handlers.WSHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth(d.Auth))

	auth.GET("/questions", d.Question.List)
	auth.POST("/questions", middleware.RequireAdmin(), d.Question.Create)

	auth.POST("/analysis", d.Analysis.Submit)
	auth.GET("/analysis/:session_id", d.Analysis.Get)
	auth.DELETE("/analysis/:session_id", d.Analysis.Discard)

	// WebSocket
	auth.GET("/ws/analysis/:session_id", d.WS.AnalysisWS)
}
