package event

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrEventNotFound occurs when the event id resolves to nothing.
	ErrEventNotFound = errors.New("event not found")

	// ErrParticipantNotFound occurs when a user or participant id is not
	// registered in the event.
	ErrParticipantNotFound = errors.New("participant not found")
)

// Status is the event lifecycle state. Sprays are accepted only while LIVE.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusLive      Status = "LIVE"
	StatusEnded     Status = "ENDED"
	StatusCancelled Status = "CANCELLED"
)

// Role classifies a participant within an event.
type Role string

const (
	RoleCelebrant Role = "CELEBRANT"
	RolePerformer Role = "PERFORMER"
	RoleAttendee  Role = "ATTENDEE"
)

// Event is the read-only slice of event state the spray pipeline needs.
type Event struct {
	ID             string
	Status         Status
	MinSprayAmount *decimal.Decimal
	CreatedAt      time.Time
}

// Participant links a user to an event. WalletID is empty when the user
// sprays from their customer default wallet instead of an event wallet.
type Participant struct {
	ID       string
	EventID  string
	UserID   string
	Role     Role
	WalletID string
}

// Repository provides read-only access to events and participants. Event
// creation and lifecycle transitions live in the event management service.
type Repository interface {
	GetEvent(ctx context.Context, id string) (Event, error)
	GetParticipant(ctx context.Context, eventID, userID string) (Participant, error)
	GetParticipantByID(ctx context.Context, id string) (Participant, error)
}
