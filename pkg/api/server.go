package api

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/docstack/docstack/pkg/docs"
	"github.com/docstack/docstack/pkg/httputil"
	"github.com/docstack/docstack/pkg/middleware"
	"github.com/docstack/docstack/pkg/observability"
	"github.com/docstack/docstack/pkg/projects"
	"github.com/docstack/docstack/pkg/users"
)

// maxRequestBody bounds incoming request bodies. It leaves headroom
// above the per-file upload limit for multipart framing and metadata.
const maxRequestBody = docs.MaxFileSize + 1<<20

// Server exposes the document, project and user services over HTTP
type Server struct {
	router   *mux.Router
	db       *sql.DB
	docs     *docs.Service
	projects *projects.Service
	users    *users.Service
	logger   *observability.Logger
	metrics  *observability.Metrics

	// rateLimit is optional; nil disables rate limiting
	rateLimit func(http.Handler) http.Handler
}

// Deps carries the server's dependencies. DB, Docs, Projects, Users and
// Logger are required; Metrics and RateLimit may be nil.
type Deps struct {
	DB        *sql.DB
	Docs      *docs.Service
	Projects  *projects.Service
	Users     *users.Service
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	RateLimit func(http.Handler) http.Handler
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		db:        deps.DB,
		docs:      deps.Docs,
		projects:  deps.Projects,
		users:     deps.Users,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		rateLimit: deps.RateLimit,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Project routes
	v1.HandleFunc("/projects", s.createProject).Methods("POST")
	v1.HandleFunc("/projects", s.listProjects).Methods("GET")
	v1.HandleFunc("/projects/{id}", s.getProject).Methods("GET")
	v1.HandleFunc("/projects/{id}", s.updateProject).Methods("PUT")
	v1.HandleFunc("/projects/{id}", s.deleteProject).Methods("DELETE")

	// Membership routes
	v1.HandleFunc("/projects/{id}/members", s.addMember).Methods("POST")
	v1.HandleFunc("/projects/{id}/members", s.listMembers).Methods("GET")
	v1.HandleFunc("/projects/{id}/members/{userId}", s.removeMember).Methods("DELETE")

	// Document routes
	v1.HandleFunc("/projects/{id}/documents", s.createDocument).Methods("POST")
	v1.HandleFunc("/projects/{id}/documents", s.listDocuments).Methods("GET")
	v1.HandleFunc("/documents/{id}", s.getDocument).Methods("GET")
	v1.HandleFunc("/documents/{id}", s.deleteDocument).Methods("DELETE")

	// Version routes
	v1.HandleFunc("/documents/{id}/versions", s.addVersion).Methods("POST")
	v1.HandleFunc("/documents/{id}/versions", s.listVersions).Methods("GET")
	v1.HandleFunc("/documents/{id}/versions/{version}/download", s.downloadVersion).Methods("GET")

	// User routes
	v1.HandleFunc("/users", s.createUser).Methods("POST")
	v1.HandleFunc("/users", s.listUsers).Methods("GET")
	v1.HandleFunc("/users/{id}", s.getUser).Methods("GET")
	v1.HandleFunc("/users/{id}/role", s.updateRole).Methods("PUT")
	v1.HandleFunc("/users/{id}", s.deleteUser).Methods("DELETE")
}

// Handler returns the router wrapped in the full middleware chain:
// request ID, logging, recovery, metrics, body limit, identity and
// rate limiting.
func (s *Server) Handler() http.Handler {
	chain := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
	}
	if s.metrics != nil {
		chain = append(chain, observability.HTTPMetricsMiddleware(s.metrics))
	}
	chain = append(chain,
		httputil.MaxBytesMiddleware(maxRequestBody),
		middleware.NewIdentityMiddleware(s.db, s.logger).Handler,
	)
	if s.rateLimit != nil {
		chain = append(chain, s.rateLimit)
	}
	return httputil.Chain(chain...)(s.router)
}

// ServeHTTP serves the bare router without middleware, useful in tests
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
