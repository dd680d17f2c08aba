// Package api exposes the call-flow engines over HTTP/JSON. Every request
// under /v1 must carry the tenant in the X-Org-ID header.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/callflow/internal/followup"
	"github.com/sells-group/callflow/internal/objection"
	"github.com/sells-group/callflow/internal/outcome"
	"github.com/sells-group/callflow/internal/qualification"
	"github.com/sells-group/callflow/internal/registry"
	"github.com/sells-group/callflow/internal/store"
)

// OrgHeader carries the tenant ID.
const OrgHeader = "X-Org-ID"

// Config holds HTTP-layer settings.
type Config struct {
	AllowedOrigins   []string
	RateLimitRPS     float64
	RateLimitBurst   int
	StrictCompletion bool
	CreateRetries    int
}

// Deps are the services the handlers call.
type Deps struct {
	Store         store.Store
	Catalog       *registry.Catalog
	Flows         *objection.Service
	Outcomes      *outcome.Engine
	Qualification *qualification.Service
	FollowUp      *followup.Builder
}

// NewDeps builds the engines over st and catalog.
func NewDeps(st store.Store, catalog *registry.Catalog, stateTTL time.Duration) Deps {
	return Deps{
		Store:         st,
		Catalog:       catalog,
		Flows:         objection.NewService(objection.NewEngine(catalog), st, stateTTL),
		Outcomes:      outcome.NewEngine(st),
		Qualification: qualification.NewService(st),
		FollowUp:      followup.NewBuilder(st),
	}
}

// Server routes HTTP requests to the engines.
type Server struct {
	cfg     Config
	deps    Deps
	limiter *orgLimiter
}

// NewServer creates a Server.
func NewServer(cfg Config, deps Deps) *Server {
	return &Server{
		cfg:     cfg,
		deps:    deps,
		limiter: newOrgLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", OrgHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Use(requireOrg)
		r.Use(s.limiter.middleware)

		r.Get("/objection-types", s.listObjectionTypes)

		r.Route("/calls/{callID}", func(r chi.Router) {
			r.Post("/start", s.startCall)
			r.Post("/flows", s.startFlow)
			r.Get("/qualification", s.callQualification)
			r.Get("/milestones", s.callMilestones)
			r.Post("/milestones", s.recordMilestone)
			r.Post("/outcome", s.createOutcome)
			r.Get("/outcome", s.getOutcome)
			r.Get("/completion-check", s.completionCheck)
			r.Get("/follow-up", s.followUp)
		})

		r.Route("/flows/{flowID}", func(r chi.Router) {
			r.Get("/", s.getFlow)
			r.Delete("/", s.abandonFlow)
			r.Post("/advance", s.advanceFlow)
			r.Post("/back", s.backFlow)
			r.Post("/complete", s.completeFlow)
			r.Get("/validation", s.validateFlow)
		})

		r.Get("/prospects/{prospectID}/qualification", s.prospectQualification)
		r.Get("/outcomes/stats", s.outcomeStats)
	})

	return r
}

func orgID(r *http.Request) string {
	return r.Header.Get(OrgHeader)
}
