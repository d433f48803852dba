package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/xaenox/graph-chat/internal/auth"
	"github.com/xaenox/graph-chat/internal/conversation"
	"github.com/xaenox/graph-chat/internal/query"
	"github.com/xaenox/graph-chat/internal/storage"
	"go.uber.org/zap"
)

const sessionCookie = "session"

// Server is the JSON HTTP front end.
type Server struct {
	storage      storage.Storage
	chats        *conversation.Service
	sessions     *auth.Sessions
	validate     *validator.Validate
	logger       *zap.Logger
	secureCookie bool
}

type Option func(*Server)

// WithSecureCookie marks the session cookie Secure.
func WithSecureCookie(secure bool) Option {
	return func(s *Server) { s.secureCookie = secure }
}

func NewServer(store storage.Storage, chats *conversation.Service, sessions *auth.Sessions, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	validate := validator.New()
	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Server{
		storage:  store,
		chats:    chats,
		sessions: sessions,
		validate: validate,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/register", s.handleRegister)
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)
		r.Get("/chats", s.handleListChats)
		r.Post("/chats", s.handleCreateChat)
		r.Get("/chats/{chatID}", s.handleGetChat)
		r.Post("/chats/{chatID}/messages", s.handlePostMessage)
	})
	return r
}

func (s *Server) setSession(w http.ResponseWriter, username string) error {
	token, expires, err := s.sessions.Issue(username)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return s.validate.Struct(v)
}

// fail maps storage and orchestrator errors to responses. Malformed statements
// are reported to the client with the statement echoed.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var syntaxErr *query.SyntaxError
	if errors.As(err, &syntaxErr) {
		s.logger.Error("Query syntax error",
			zap.String("path", r.URL.Path),
			zap.String("code", syntaxErr.Code),
			zap.Error(err))
		writeError(w, http.StatusBadRequest, syntaxErr.Error())
		return
	}

	s.logger.Error("Request handling failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
