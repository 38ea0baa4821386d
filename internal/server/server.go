package server

import (
	"log/slog"
	"net/http"

	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/Tyrowin/relaychat/internal/chat"
	"github.com/gorilla/websocket"
)

// Server holds the HTTP surface's dependencies.
type Server struct {
	cfg      Config
	hub      *chat.Hub
	messages chat.MessageStore
	accounts *auth.Service
	origins  *originPolicy
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// New creates a server. cfg is expected to have been through LoadConfig or
// to come from DefaultConfig.
func New(cfg Config, hub *chat.Hub, messages chat.MessageStore, accounts *auth.Service, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	cfg = sanitizeConfig(cfg)
	s := &Server{
		cfg:      cfg,
		hub:      hub,
		messages: messages,
		accounts: accounts,
		origins:  newOriginPolicy(cfg.AllowedOrigins, log),
		log:      log,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	return s
}

// Handler returns the routed handler wrapped in CORS.
func (s *Server) Handler() http.Handler {
	return s.cors(s.Routes())
}
