package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authorization events
	EventTypeAccessDenied EventType = "authz.access_denied"

	// Project events
	EventTypeProjectCreate EventType = "project.create"
	EventTypeProjectUpdate EventType = "project.update"
	EventTypeProjectDelete EventType = "project.delete"

	// Membership events
	EventTypeMemberAdd    EventType = "membership.add"
	EventTypeMemberRemove EventType = "membership.remove"

	// Document events
	EventTypeDocumentCreate EventType = "document.create"
	EventTypeDocumentDelete EventType = "document.delete"
	EventTypeVersionAdd     EventType = "version.add"
	EventTypeDownload       EventType = "version.download"

	// Account events
	EventTypeUserCreate     EventType = "user.create"
	EventTypeUserRoleChange EventType = "user.role_change"
	EventTypeUserDelete     EventType = "user.delete"

	// Blob store events
	EventTypeBlobRemoveFailed  EventType = "blob.remove_failed"
	EventTypeBlobOrphanRemoved EventType = "blob.orphan_removed"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event represents a single audit log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	ActorID   string `json:"actor_id,omitempty"`
	ActorRole string `json:"actor_role,omitempty"`

	// Resource context
	ProjectID    string `json:"project_id,omitempty"`
	DocumentID   string `json:"document_id,omitempty"`
	TargetUserID string `json:"target_user_id,omitempty"`
	Version      int    `json:"version,omitempty"`
	StoragePath  string `json:"storage_path,omitempty"`

	// Request context
	RequestID string `json:"request_id,omitempty"`

	// Additional details
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent creates an event stamped with the current UTC time.
func NewEvent(eventType EventType, status EventStatus) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
	}
}

// WithActor sets the acting user.
func (e *Event) WithActor(id, role string) *Event {
	e.ActorID = id
	e.ActorRole = role
	return e
}

// WithProject sets the project context.
func (e *Event) WithProject(projectID string) *Event {
	e.ProjectID = projectID
	return e
}

// WithDocument sets the document context.
func (e *Event) WithDocument(projectID, documentID string) *Event {
	e.ProjectID = projectID
	e.DocumentID = documentID
	return e
}

// WithError records the failure cause.
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.ErrorMessage = err.Error()
	}
	return e
}

// WithMessage sets the human-readable summary.
func (e *Event) WithMessage(message string) *Event {
	e.Message = message
	return e
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}
