package server

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/deskline/chatgate/internal/chat"
	"github.com/deskline/chatgate/internal/database"
	"github.com/deskline/chatgate/internal/handlers"
	"github.com/deskline/chatgate/internal/notify"
	"github.com/deskline/chatgate/internal/relay"
	ws "github.com/deskline/chatgate/internal/websocket"
	"github.com/deskline/chatgate/pkg/auth"
)

type Server struct {
	Router     *gin.Engine
	DB         *database.Database
	Redis      *redis.Client
	JWTManager *auth.JWTManager
	Hub        *ws.Hub
	Relay      *relay.NATSRelay
}

func NewServer() *Server {
	if err := godotenv.Load(".env.local"); err != nil {
		if err := godotenv.Load(); err != nil {
			log.Println(".env not found, using environment variables")
		}
	}

	dbConn, err := database.Connect()
	if err != nil {
		log.Fatalf("Postgres connect failed: %v", err)
	}

	redisOpts, err := redis.ParseURL(os.Getenv("REDIS_URL"))
	if err != nil {
		log.Fatalf("invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Redis connect failed: %v", err)
	}

	jwtMgr := auth.NewJWTManager(
		os.Getenv("JWT_SECRET"),
		24*time.Hour,
	)

	hub := ws.NewHub()
	go hub.Run()

	// NATS включается только при горизонтальном масштабировании
	var natsRelay *relay.NATSRelay
	if url := os.Getenv("NATS_URL"); url != "" {
		natsRelay, err = relay.Connect(url, hub.DeliverLocal)
		if err != nil {
			log.Fatalf("NATS connect failed: %v", err)
		}
		hub.SetRelay(natsRelay)
	}

	engine := chat.NewEngine(dbConn)
	dispatcher := handlers.NewEventDispatcher(dbConn, engine, hub, notify.LogNotifier{})
	wsHandler := handlers.NewWebSocketHandler(hub, dispatcher)

	router := gin.Default()
	APIEndpoints(router, wsHandler, jwtMgr, rdb, dbConn)

	return &Server{
		Router:     router,
		DB:         dbConn,
		Redis:      rdb,
		JWTManager: jwtMgr,
		Hub:        hub,
		Relay:      natsRelay,
	}
}

func (s *Server) Run() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Server starting on port %s", port)
	if err := s.Router.Run(":" + port); err != nil {
		log.Fatalf("Server run error: %v", err)
	}
}

func (s *Server) Shutdown() {
	if s.Relay != nil {
		s.Relay.Close()
	}
	s.Hub.Stop()
}
