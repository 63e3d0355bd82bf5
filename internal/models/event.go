package models

import "time"

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventCancelled EventStatus = "cancelled"
	EventCompleted EventStatus = "completed"
)

// Event is a club event open for registration once published.
type Event struct {
	ID          string      `db:"id" json:"id"`
	Title       string      `db:"title" json:"title"`
	Description string      `db:"description" json:"description"`
	Location    string      `db:"location" json:"location"`
	StartsAt    time.Time   `db:"starts_at" json:"starts_at"`
	EndsAt      time.Time   `db:"ends_at" json:"ends_at"`
	Capacity    int         `db:"capacity" json:"capacity"`
	Status      EventStatus `db:"status" json:"status"`
	OrganizerID string      `db:"organizer_id" json:"organizer_id"`
	Registered  int         `db:"registered" json:"registered"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// EventFilter narrows event listings.
type EventFilter struct {
	Statuses []EventStatus
	Upcoming bool
	Page     int
	PageSize int
}

// RegistrationStatus is the state of an event registration.
type RegistrationStatus string

const (
	RegistrationRegistered RegistrationStatus = "registered"
	RegistrationCancelled  RegistrationStatus = "cancelled"
)

// EventRegistration is a seat held by a member or a guest.
type EventRegistration struct {
	ID           string             `db:"id" json:"id"`
	EventID      string             `db:"event_id" json:"event_id"`
	UserID       *string            `db:"user_id" json:"user_id,omitempty"`
	FullName     string             `db:"full_name" json:"full_name"`
	Email        string             `db:"email" json:"email"`
	IsGuest      bool               `db:"is_guest" json:"is_guest"`
	Status       RegistrationStatus `db:"status" json:"status"`
	RegisteredAt time.Time          `db:"registered_at" json:"registered_at"`
}

// GuestRegistrationResult is returned to anonymous registrants.
type GuestRegistrationResult struct {
	Registration *EventRegistration
	HasAccount   bool
}
