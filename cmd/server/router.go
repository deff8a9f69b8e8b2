package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/deskline/chatgate/internal/database"
	"github.com/deskline/chatgate/internal/handlers"
	"github.com/deskline/chatgate/internal/middleware"
	"github.com/deskline/chatgate/pkg/auth"
)

func APIEndpoints(r *gin.Engine, wsH *handlers.WebSocketHandler, jwtMgr *auth.JWTManager, rdb *redis.Client, db *database.Database) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ws", middleware.WSAuthMiddleware(jwtMgr, rdb, db), wsH.HandleWebSocket)
}
