// Package events publishes assessment lifecycle events to NATS so external
// integrations (dashboards, the SPA's live refresh) can react without
// polling. Publishing is fire-and-forget; the server runs standalone when
// NATS is not configured.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/m365-assessment/assessment-server/internal/models"
)

// Publisher emits lifecycle events
type Publisher interface {
	AssessmentCompleted(assessment *models.Assessment)
	CustomerRegistered(customer *models.Customer)
}

// NATSPublisher publishes events to NATS subjects
type NATSPublisher struct {
	nc *nats.Conn
}

// NewNATSPublisher creates a publisher over an existing connection
func NewNATSPublisher(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

// AssessmentCompleted publishes to assessment.<tenantId>.completed
func (p *NATSPublisher) AssessmentCompleted(assessment *models.Assessment) {
	subject := fmt.Sprintf("assessment.%s.completed", assessment.TenantID)
	p.publish(subject, map[string]interface{}{
		"assessmentId": assessment.ID,
		"customerId":   assessment.CustomerID,
		"tenantId":     assessment.TenantID,
		"status":       assessment.Status,
		"score":        assessment.Score,
		"completedAt":  assessment.CompletedAt,
	})
}

// CustomerRegistered publishes to customer.<id>.registered
func (p *NATSPublisher) CustomerRegistered(customer *models.Customer) {
	subject := fmt.Sprintf("customer.%s.registered", customer.ID)
	p.publish(subject, map[string]interface{}{
		"customerId":   customer.ID,
		"tenantId":     customer.TenantID,
		"tenantDomain": customer.TenantDomain,
		"status":       customer.Status,
	})
}

func (p *NATSPublisher) publish(subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Failed to marshal event")
		return
	}

	if err := p.nc.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("Failed to publish event")
		return
	}

	log.Debug().Str("subject", subject).Msg("Published event")
}

// NoopPublisher drops all events (NATS not configured)
type NoopPublisher struct{}

// AssessmentCompleted is a no-op
func (NoopPublisher) AssessmentCompleted(*models.Assessment) {}

// CustomerRegistered is a no-op
func (NoopPublisher) CustomerRegistered(*models.Customer) {}
