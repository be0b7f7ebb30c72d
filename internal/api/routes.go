package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up the /api routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	r.Get("/health", s.HandleHealth)
	r.Get("/best-practices", s.HandleBestPractices)

	// Customers
	r.Route("/customers", func(r chi.Router) {
		r.Get("/", s.HandleListCustomers)
		r.Post("/", s.HandleCreateCustomer)
		r.Post("/create", s.HandleCreateCustomer) // alias used by the SPA
		r.Post("/repair-registrations", s.HandleRepairRegistrations)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.HandleGetCustomer)
			r.Put("/", s.HandleUpdateCustomer)
			r.Delete("/", s.HandleDeleteCustomer)
			r.Post("/app-registration", s.HandleRetriggerRegistration)
			r.Get("/assessments", s.HandleListAssessments)
		})
	})

	// Assessments
	r.Post("/assessment-perform", s.HandlePerformAssessment)
	r.Post("/assessments/{id}/archive", s.HandleArchiveAssessment)

	// Assessment history
	r.Route("/assessment-history", func(r chi.Router) {
		r.Get("/", s.HandleListHistory)
		r.Post("/", s.HandleAppendHistory)
		r.Delete("/", s.HandlePruneHistory)
		r.Get("/{tenantId}", s.HandleListHistory)
	})

	// OAuth consent redirect target
	r.Get("/consent-callback", s.HandleConsentCallback)
	r.Post("/consent-callback", s.HandleConsentCallbackJSON)

	// Multi-tenant enterprise application
	r.Post("/enterprise-app/multi-tenant", s.HandleCreateEnterpriseApp)
}
