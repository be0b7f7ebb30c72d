package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/m365-assessment/assessment-server/internal/storage"
)

// envelope is the JSON shape of every API response
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// respondJSON responds with JSON
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload envelope) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondData responds with a successful data payload
func (s *RESTServer) respondData(w http.ResponseWriter, status int, data interface{}) {
	s.respondJSON(w, status, envelope{Success: true, Data: data})
}

// respondMessage responds with data and a human-readable message
func (s *RESTServer) respondMessage(w http.ResponseWriter, status int, data interface{}, message string) {
	s.respondJSON(w, status, envelope{Success: true, Data: data, Message: message})
}

// respondError responds with an error message
func (s *RESTServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, envelope{Success: false, Error: message})
}

// respondInternal logs an unexpected error and responds 500. Error detail is
// withheld in production.
func (s *RESTServer) respondInternal(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("Internal server error")
	if s.config.IsProduction() {
		s.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

// respondStoreError maps storage sentinel errors to the status-code table
func (s *RESTServer) respondStoreError(w http.ResponseWriter, err error, notFoundMessage string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, notFoundMessage)
	case errors.Is(err, storage.ErrDuplicateKey):
		s.respondError(w, http.StatusConflict, "a record with the same unique key already exists")
	case errors.Is(err, storage.ErrInvalidData):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.respondInternal(w, err)
	}
}
