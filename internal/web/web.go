package web

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Session exposes the transport connectivity for the status endpoint
type Session interface {
	IsConnected() bool
}

// Server is the thin operational HTTP surface of the engine. The product API
// lives in a separate service; this only answers health and status probes.
type Server struct {
	router  *gin.Engine
	session Session
	started time.Time
}

// NewServer creates the ops server
func NewServer(session Session) *Server {
	router := gin.Default()
	s := &Server{router: router, session: session, started: time.Now()}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"mqttConnected": s.session.IsConnected(),
			"uptimeSeconds": int(time.Since(s.started).Seconds()),
		})
	})
	return s
}

// Start runs the HTTP server (blocking)
func (s *Server) Start(addr string) {
	log.Printf("WEB: Ops server listening on %s", addr)
	if err := s.router.Run(addr); err != nil {
		log.Printf("WEB: Server stopped: %v", err)
	}
}
