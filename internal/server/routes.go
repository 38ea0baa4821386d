package server

import (
	"net/http"
	"path/filepath"
)

// Routes configures the ServeMux with every application route.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.HealthHandler)
	mux.HandleFunc("GET /test", s.TestPageHandler)
	mux.HandleFunc("GET /ws/{username}", s.WebSocketHandler)

	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /users", s.handleUsers)
	mux.HandleFunc("GET /public", s.handlePublic)

	mux.HandleFunc("GET /api/dms", s.requireAuth(s.handleOnline))
	mux.HandleFunc("GET /api/dm/{target}", s.requireAuth(s.handleDirectHistory))
	mux.HandleFunc("GET /api/me", s.requireAuth(s.handleMe))
	mux.HandleFunc("POST /api/upload", s.requireAuth(s.handleUpload))
	mux.HandleFunc("POST /api/avatar-upload", s.requireAuth(s.handleAvatarUpload))

	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/",
		http.FileServer(http.Dir(filepath.Join(s.cfg.UploadDir, uploadsDir)))))
	mux.Handle("GET /avatars/", http.StripPrefix("/avatars/",
		http.FileServer(http.Dir(filepath.Join(s.cfg.UploadDir, avatarsDir)))))

	return mux
}
