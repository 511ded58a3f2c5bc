package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose so sinks can
// apply different retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers changes to stored personal contact data.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for debugging and operational
	// visibility, such as data found in an unexpected shape.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string
	Category  EventCategory
	Timestamp time.Time
	Action    string
	// ContactID is the record the action applied to.
	ContactID int64
	// PrimaryContactID is the primary of the identity the record belongs to
	// after the action, zero when unknown.
	PrimaryContactID int64
	Reason           string
	RequestID        string
}

type AuditEvent string

const (
	EventContactCreated       AuditEvent = "contact_created"
	EventContactDemoted       AuditEvent = "contact_demoted"
	EventContactRelinked      AuditEvent = "contact_relinked"
	EventIdentityInconsistent AuditEvent = "identity_inconsistent"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventContactCreated:       CategoryCompliance,
	EventContactDemoted:       CategoryCompliance,
	EventContactRelinked:      CategoryCompliance,
	EventIdentityInconsistent: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events. Implementations must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, event Event) error
}
