package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/m365-assessment/assessment-server/internal/config"
	"github.com/m365-assessment/assessment-server/internal/consent"
	"github.com/m365-assessment/assessment-server/internal/events"
	"github.com/m365-assessment/assessment-server/internal/graph"
	"github.com/m365-assessment/assessment-server/internal/storage"
)

// GraphAPI is the set of Microsoft Graph operations the handlers need.
// *graph.Client satisfies it; tests substitute fakes.
type GraphAPI interface {
	GetOrganization(ctx context.Context) (*graph.Organization, error)
	ListSubscribedSKUs(ctx context.Context) ([]graph.SubscribedSKU, error)
	GetSecureScore(ctx context.Context) (*graph.SecureScore, error)
	CreateAppRegistration(ctx context.Context, displayName, redirectURI string, permissions []string) (*graph.AppRegistrationResult, error)
	CreateEnterpriseApplication(ctx context.Context, targetTenantID, displayName, redirectURI string, permissions []string) (*graph.AppRegistrationResult, error)
}

// GraphFactory builds a Graph client for one tenant. The factory is invoked
// per request; credential caching lives inside the implementation.
type GraphFactory func(tenantID string) (GraphAPI, error)

// RESTServer represents the REST API server
type RESTServer struct {
	config    *config.Config
	store     storage.Store
	graph     GraphFactory
	signer    *consent.StateSigner
	publisher events.Publisher
	validate  *validator.Validate
	router    chi.Router
	server    *http.Server
}

// NewRESTServer creates a new REST API server
func NewRESTServer(cfg *config.Config, store storage.Store, graphFactory GraphFactory, publisher events.Publisher) *RESTServer {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}

	s := &RESTServer{
		config:    cfg,
		store:     store,
		graph:     graphFactory,
		signer:    consent.NewStateSigner(cfg.Consent.StateSecret, cfg.Consent.StateTTL),
		publisher: publisher,
		validate:  validator.New(),
		router:    chi.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all routes
func (s *RESTServer) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS: the SPA is served from a different origin
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.router.Route("/api", func(r chi.Router) {
		s.setupAPIRoutes(r)
	})
}

// ListenAndServe starts the server
func (s *RESTServer) ListenAndServe(addr string) error {
	s.server.Addr = addr
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *RESTServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the router (used by tests)
func (s *RESTServer) Handler() http.Handler {
	return s.router
}

// validateStruct runs validator tags over a request struct and returns a
// client-presentable message for the first failure
func (s *RESTServer) validateStruct(req interface{}) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if ok := isValidationErrors(err, &errs); ok && len(errs) > 0 {
		fe := errs[0]
		field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
		switch fe.Tag() {
		case "required":
			return fmt.Errorf("%s is required", field)
		case "email":
			return fmt.Errorf("%s must be a valid email address", field)
		case "uuid":
			return fmt.Errorf("%s must be a valid UUID", field)
		case "oneof":
			return fmt.Errorf("%s must be one of: %s", field, fe.Param())
		default:
			return fmt.Errorf("%s is invalid", field)
		}
	}
	return err
}

func isValidationErrors(err error, target *validator.ValidationErrors) bool {
	if errs, ok := err.(validator.ValidationErrors); ok {
		*target = errs
		return true
	}
	return false
}
