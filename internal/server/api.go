package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/Tyrowin/relaychat/internal/chat"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	uploadsDir = "uploads"
	avatarsDir = "avatars"
)

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Status: "error", Message: message})
}

func decodeCredentials(r *http.Request) (auth.Credentials, error) {
	var c auth.Credentials
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	if err := dec.Decode(&c); err != nil {
		return auth.Credentials{}, fmt.Errorf("decoding credentials: %w", err)
	}
	c.Username = strings.TrimSpace(c.Username)
	return c, nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	creds, err := decodeCredentials(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.accounts.Register(r.Context(), creds)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, user)
	case errors.Is(err, auth.ErrUserExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrInvalidPassword):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("registering user", "username", creds.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
	}
}

type loginResponse struct {
	Status   string    `json:"status"`
	Token    string    `json:"token"`
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	creds, err := decodeCredentials(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.accounts.Login(r.Context(), creds)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		s.log.Error("logging in", "username", creds.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Status:   "success",
		Token:    res.Token,
		UserID:   res.User.ID,
		Username: res.User.Username,
	})
}

type userEntry struct {
	Username string `json:"username"`
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	names, err := s.accounts.Users(r.Context())
	if err != nil {
		s.log.Error("listing users", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(names, func(name string, _ int) userEntry {
		return userEntry{Username: name}
	}))
}

func (s *Server) handlePublic(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.messages.QueryPublic(r.Context(), s.cfg.PublicHistoryLimit)
	if err != nil {
		s.log.Error("querying public history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(msgs))
}

func (s *Server) handleOnline(w http.ResponseWriter, _ *http.Request, _ auth.User) {
	writeJSON(w, http.StatusOK, map[string][]string{"dms": s.hub.Online()})
}

func (s *Server) handleDirectHistory(w http.ResponseWriter, r *http.Request, user auth.User) {
	target := strings.TrimSpace(r.PathValue("target"))
	if target == "" {
		writeError(w, http.StatusBadRequest, "missing target")
		return
	}
	if chat.SameName(target, user.Username) {
		writeError(w, http.StatusBadRequest, chat.ErrSelfTarget.Error())
		return
	}

	msgs, err := s.messages.QueryDirect(r.Context(), user.Username, target)
	if err != nil {
		s.log.Error("querying direct history", "user", user.Username, "target", target, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(msgs))
}

type meResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url"`
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, user auth.User) {
	writeJSON(w, http.StatusOK, meResponse{ID: user.ID, Username: user.Username, AvatarURL: user.AvatarURL})
}

type uploadResponse struct {
	Status      string `json:"status"`
	Filename    string `json:"filename"`
	UploadURL   string `json:"upload_url"`
	ContentType string `json:"content_type"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, user auth.User) {
	saved, err := s.receiveFile(w, r, "file", uploadsDir, nil)
	if err != nil {
		s.writeUploadError(w, user, err)
		return
	}
	s.log.Info("file uploaded", "user", user.Username, "file", saved.name, "type", saved.mime.String())
	writeJSON(w, http.StatusOK, uploadResponse{
		Status:      "success",
		Filename:    saved.name,
		UploadURL:   "/" + uploadsDir + "/" + saved.name,
		ContentType: saved.mime.String(),
	})
}

type avatarResponse struct {
	Status    string `json:"status"`
	Filename  string `json:"filename"`
	AvatarURL string `json:"avatarUrl"`
}

func (s *Server) handleAvatarUpload(w http.ResponseWriter, r *http.Request, user auth.User) {
	saved, err := s.receiveFile(w, r, "avatar", avatarsDir, func(m *mimetype.MIME) error {
		if !strings.HasPrefix(m.String(), "image/") {
			return errNotImage
		}
		return nil
	})
	if err != nil {
		s.writeUploadError(w, user, err)
		return
	}

	url := "/" + avatarsDir + "/" + saved.name
	if _, err := s.accounts.SetAvatar(r.Context(), user, url); err != nil {
		s.log.Error("updating avatar", "user", user.Username, "error", err)
		_ = os.Remove(saved.path)
		writeError(w, http.StatusInternalServerError, "failed to update avatar")
		return
	}
	writeJSON(w, http.StatusOK, avatarResponse{Status: "success", Filename: saved.name, AvatarURL: url})
}

var (
	errMissingFile = errors.New("no file in request")
	errNotImage    = errors.New("avatar must be an image")
	errTooLarge    = errors.New("file too large")
)

type savedFile struct {
	name string
	path string
	mime *mimetype.MIME
}

// receiveFile stores the multipart field under UploadDir/dir with a
// generated name. check, when set, can reject the detected type before
// anything is written.
func (s *Server) receiveFile(w http.ResponseWriter, r *http.Request, field, dir string, check func(*mimetype.MIME) error) (savedFile, error) {
	limit := int64(s.cfg.MaxUploadSize)
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return savedFile{}, errTooLarge
		}
		return savedFile{}, errMissingFile
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return savedFile{}, errMissingFile
	}
	defer file.Close()

	mime, err := mimetype.DetectReader(file)
	if err != nil {
		return savedFile{}, fmt.Errorf("detecting content type: %w", err)
	}
	if check != nil {
		if err := check(mime); err != nil {
			return savedFile{}, err
		}
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return savedFile{}, fmt.Errorf("rewinding upload: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = mime.Extension()
	}
	name := fmt.Sprintf("%s_%d%s", uuid.NewString(), time.Now().Unix(), ext)

	target := filepath.Join(s.cfg.UploadDir, dir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return savedFile{}, fmt.Errorf("creating %s: %w", target, err)
	}
	path := filepath.Join(target, name)

	out, err := os.Create(path)
	if err != nil {
		return savedFile{}, fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		_ = os.Remove(path)
		return savedFile{}, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return savedFile{}, fmt.Errorf("closing %s: %w", path, err)
	}
	return savedFile{name: name, path: path, mime: mime}, nil
}

func (s *Server) writeUploadError(w http.ResponseWriter, user auth.User, err error) {
	switch {
	case errors.Is(err, errMissingFile):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, errNotImage):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	default:
		s.log.Error("storing upload", "user", user.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "upload failed")
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
