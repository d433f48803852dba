package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/xaenox/graph-chat/internal/auth"
	"github.com/xaenox/graph-chat/internal/models"
	"go.uber.org/zap"
)

type credentialsRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=72"`
}

type messageRequest struct {
	Message string `json:"message" validate:"required"`
}

type chatsResponse struct {
	Chats []*models.Chat `json:"chats"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := s.decode(r, &req); err != nil || strings.TrimSpace(req.Username) == "" {
		writeError(w, http.StatusBadRequest, "Username and password required")
		return
	}
	username := strings.TrimSpace(req.Username)

	existing, err := s.storage.GetUserByUsername(r.Context(), username)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "User already exists. Please login.")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		writeError(w, http.StatusBadRequest, "Password is too long.")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.storage.CreateUser(r.Context(), username, hash)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if user == nil {
		writeError(w, http.StatusInternalServerError, "Could not create user.")
		return
	}

	if err := s.setSession(w, user.Username); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("User registered", zap.String("username", user.Username))
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Username and password required")
		return
	}

	user, err := s.storage.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found.")
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials.")
		return
	}

	if err := s.setSession(w, user.Username); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	clearSession(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.storage.ListUserChats(r.Context(), usernameFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatsResponse{Chats: chats})
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := s.decode(r, &req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Please enter a message to start.")
		return
	}

	chat, _, err := s.chats.Start(r.Context(), usernameFrom(r.Context()), req.Message)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if chat == nil {
		writeError(w, http.StatusUnauthorized, "Please log in first.")
		return
	}

	conv, err := s.storage.GetChat(r.Context(), chat.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// ownedConversation loads a chat and checks it belongs to the caller. It writes
// the error response itself and returns nil when the request should stop.
func (s *Server) ownedConversation(w http.ResponseWriter, r *http.Request) *models.Conversation {
	chatID := chi.URLParam(r, "chatID")
	conv, err := s.storage.GetChat(r.Context(), chatID)
	if err != nil {
		s.fail(w, r, err)
		return nil
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "Chat not found.")
		return nil
	}
	if conv.Chat.Owner != usernameFrom(r.Context()) {
		writeError(w, http.StatusForbidden, "Chat belongs to another user.")
		return nil
	}
	return conv
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	conv := s.ownedConversation(w, r)
	if conv == nil {
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// handlePostMessage runs a turn. Blank messages are ignored and the current
// conversation is returned unchanged.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	conv := s.ownedConversation(w, r)
	if conv == nil {
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid message.")
		return
	}

	turn, err := s.chats.Send(r.Context(), conv.Chat.ID, req.Message)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if turn == nil {
		writeJSON(w, http.StatusOK, conv)
		return
	}

	conv, err = s.storage.GetChat(r.Context(), conv.Chat.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}
