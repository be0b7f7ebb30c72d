package api

import (
	"net/http"
	"time"

	"github.com/m365-assessment/assessment-server/internal/bestpractices"
)

// HandleHealth health check
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondData(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": s.config.Server.Name,
		"version": s.config.Server.Version,
		"time":    time.Now(),
	})
}

// HandleBestPractices returns the static catalog of recommendation templates
func (s *RESTServer) HandleBestPractices(w http.ResponseWriter, r *http.Request) {
	s.respondData(w, http.StatusOK, map[string]interface{}{
		"practices": bestpractices.Catalog(),
	})
}
