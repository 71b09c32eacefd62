package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"scriptboard/pkg/annotation"
	"scriptboard/pkg/auth"
	"scriptboard/pkg/config"
	"scriptboard/pkg/db"
	"scriptboard/pkg/handlers"
	"scriptboard/pkg/room"
	"scriptboard/pkg/storage"
)

// Server represents the application server
type Server struct {
	router      *mux.Router
	roomManager *room.RoomManager
	handlers    *handlers.Handlers
	comments    *annotation.Service
	store       db.Store
	likes       *storage.LikeStore
	config      *config.Config
	http        *http.Server
	log         *logrus.Entry
}

// NewServer builds the stores, services and routes described by cfg
func NewServer(cfg *config.Config) (*Server, error) {
	log := logrus.WithField("component", "server")

	var store db.Store
	switch cfg.Store {
	case "memory":
		log.Warn("using in-memory store, data is lost on exit")
		store = db.NewMemoryStore()
	default:
		pg, err := db.NewPostgresStore(cfg.GetDatabaseConnectionString())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		store = pg
	}

	s := &Server{store: store, config: cfg, log: log}

	var likes annotation.LikeStore = store
	if cfg.Redis.URL != "" {
		ls, err := storage.NewLikeStore(cfg.Redis.URL)
		if err != nil {
			store.Close()
			return nil, err
		}
		s.likes = ls
		likes = ls
		log.Info("keeping likes in redis")
	}

	s.comments = annotation.NewService(store, likes, store)
	s.roomManager = room.NewRoomManager(s.comments)
	s.comments.SetNotifier(s.roomManager)

	s.handlers = handlers.NewHandlers(s.roomManager, store, s.comments, cfg.Server.MaxUploadBytes)
	s.router = s.routes(auth.New(cfg.Auth.JWTSecret))
	return s, nil
}

func (s *Server) routes(authn *auth.Authenticator) *mux.Router {
	h := s.handlers
	r := mux.NewRouter()
	r.Use(requestLogger(s.log), authn.Optional)

	r.HandleFunc("/health", h.Health).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/scripts", h.ListScripts).Methods("GET")
	api.HandleFunc("/scripts", auth.Required(h.CreateScript)).Methods("POST")
	api.HandleFunc("/scripts/{id}", h.GetScript).Methods("GET")
	api.HandleFunc("/scripts/{id}", auth.Required(h.UpdateScript)).Methods("PATCH")
	api.HandleFunc("/scripts/{id}", auth.Required(h.DeleteScript)).Methods("DELETE")
	api.HandleFunc("/scripts/{id}/versions", auth.Required(h.ListVersions)).Methods("GET")
	api.HandleFunc("/scripts/{id}/vote", auth.Required(h.VoteScript)).Methods("POST")
	api.HandleFunc("/scripts/{id}/view", h.RecordView).Methods("POST")
	api.HandleFunc("/scripts/{id}/lines", h.GetLines).Methods("GET")
	api.HandleFunc("/scripts/{id}/readers", h.GetReaders).Methods("GET")
	api.HandleFunc("/scripts/{id}/comments", h.ListComments).Methods("GET")
	api.HandleFunc("/scripts/{id}/comments", auth.Required(h.CreateComment)).Methods("POST")
	api.HandleFunc("/comments/{id}", auth.Required(h.UpdateComment)).Methods("PATCH")
	api.HandleFunc("/comments/{id}", auth.Required(h.DeleteComment)).Methods("DELETE")
	api.HandleFunc("/comments/{id}/like", auth.Required(h.LikeComment)).Methods("POST")

	r.HandleFunc("/scripts/{id}", h.ReaderPage).Methods("GET")
	r.HandleFunc("/ws/scripts/{id}", h.HandleWebSocket)

	return r
}

// Handler returns the root handler with CORS applied outside routing
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.router)
}

// Start starts the server
func (s *Server) Start(addr string) error {
	if addr == "" {
		addr = s.config.GetServerAddr()
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.WithField("addr", addr).Info("starting scriptboard server")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for running ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// statusRecorder remembers the status written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack hands the connection over for websocket upgrades
func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func requestLogger(log *logrus.Entry) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("request")
		})
	}
}

// corsMiddleware handles CORS headers and responds to preflight requests
// at the outer layer so they don't get rejected by method-restricted routes.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")

		if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
			w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
		} else {
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		w.Header().Set("Access-Control-Max-Age", "600")
		w.Header().Add("Vary", "Origin")
		w.Header().Add("Vary", "Access-Control-Request-Headers")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Close closes the database and redis connections
func (s *Server) Close() error {
	var errs []error
	if s.likes != nil {
		errs = append(errs, s.likes.Close())
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}
