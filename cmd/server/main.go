package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"

	"github.com/counselops/playbook/compliance"
	"github.com/counselops/playbook/internal/logger"
)

// Server wires the compliance engine, the playbook store, and the HTTP
// router together.
type Server struct {
	db     *sql.DB
	store  compliance.PlaybookStore
	cache  compliance.PlaybookCache
	engine *compliance.Engine
	router *chi.Mux
}

// NewServer builds a server. With an empty databaseURL the server runs on
// the in-memory store, which is useful for local development and tests.
func NewServer(databaseURL string) (*Server, error) {
	engine, err := compliance.NewEngine()
	if err != nil {
		return nil, err
	}

	s := &Server{
		engine: engine,
		cache:  compliance.NewInMemoryPlaybookCache(compliance.DefaultCacheConfig()),
	}

	if databaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		s.store = compliance.NewInMemoryPlaybookStore()
	} else {
		db, err := sql.Open("postgres", databaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(); err != nil {
			return nil, err
		}
		s.db = db
		s.store = compliance.NewPostgresPlaybookStore(db)
	}

	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)

	r.Route("/api/v1/playbooks", func(r chi.Router) {
		r.Post("/", s.handleCreatePlaybook)
		r.Get("/", s.handleListPlaybooks)

		r.Route("/{playbookId}", func(r chi.Router) {
			r.Get("/", s.handleGetPlaybook)
			r.Delete("/", s.handleDeletePlaybook)

			r.Post("/rules", s.handleCreateRule)
			r.Get("/rules", s.handleListRules)
			r.Get("/rules/{ruleId}", s.handleGetRule)
			r.Put("/rules/{ruleId}", s.handleUpdateRule)
			r.Delete("/rules/{ruleId}", s.handleDeleteRule)
		})
	})

	r.Route("/api/v1/exceptions", func(r chi.Router) {
		r.Post("/", s.handleCreateException)
		r.Delete("/{exceptionId}", s.handleRevokeException)
	})

	r.Route("/api/v1/checks", func(r chi.Router) {
		r.Post("/", s.handleRunCheck)
		r.Get("/{checkId}", s.handleGetCheck)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// requestLogger logs one line per request through the structured logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.CountStatus(ww.Status())
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func main() {
	server, err := NewServer(os.Getenv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	if server.db != nil {
		defer server.db.Close()
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	_ = logger.Shutdown(ctx)
	logger.Info("server stopped")
}
