// Package dashboard provides the web dashboard: a JSON control API and live
// guild snapshots over WebSocket.
package dashboard

import (
	"net/http"

	"github.com/osa030/groovebox/internal/app/notification"
	"github.com/osa030/groovebox/internal/infra/config"
)

// Server serves the dashboard routes.
type Server struct {
	cfg    *config.Config
	player Player
	notify *notification.Manager
	mux    *http.ServeMux
}

// New creates a dashboard server.
func New(cfg *config.Config, player Player, notify *notification.Manager) *Server {
	s := &Server{
		cfg:    cfg,
		player: player,
		notify: notify,
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.index)
	s.mux.HandleFunc("GET /api/guilds", s.listGuilds)
	s.mux.HandleFunc("GET /api/guilds/{guild}/state", s.guildState)
	s.mux.HandleFunc("GET /api/guilds/{guild}/ws", s.guildStream)

	s.mux.HandleFunc("POST /api/guilds/{guild}/pause", s.requireAdmin(s.pause))
	s.mux.HandleFunc("POST /api/guilds/{guild}/resume", s.requireAdmin(s.resume))
	s.mux.HandleFunc("POST /api/guilds/{guild}/skip", s.requireAdmin(s.skip))
	s.mux.HandleFunc("POST /api/guilds/{guild}/stop", s.requireAdmin(s.stop))
	s.mux.HandleFunc("POST /api/guilds/{guild}/shuffle", s.requireAdmin(s.shuffle))
	s.mux.HandleFunc("POST /api/guilds/{guild}/loop", s.requireAdmin(s.loop))
	s.mux.HandleFunc("POST /api/guilds/{guild}/volume", s.requireAdmin(s.volume))
	s.mux.HandleFunc("DELETE /api/guilds/{guild}/queue/{id}", s.requireAdmin(s.remove))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
