package models

import "time"

// Status: нормализованный статус посылки.
type Status string

const (
	// StatusPending is local only: the package has not been checked yet.
	StatusPending     Status = "PENDING"
	StatusNotFound    Status = "NOT_FOUND"
	StatusInTransit   Status = "IN_TRANSIT"
	StatusPickUp      Status = "PICK_UP"
	StatusDelivered   Status = "DELIVERED"
	StatusUndelivered Status = "UNDELIVERED"
	StatusExpired     Status = "EXPIRED"
	StatusAlert       Status = "ALERT"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusNotFound, StatusInTransit, StatusPickUp,
		StatusDelivered, StatusUndelivered, StatusExpired, StatusAlert:
		return true
	}
	return false
}

type Package struct {
	ID             uint64
	TrackingNumber string
	Carrier        string // carriers.Carrier key, "" when unknown
	CarrierCode    int    // provider code, 0 = auto-detect
	Description    string
	Status         Status
	Active         bool
	LastEvent      string
	LastEventAt    string
	LastCheckedAt  *time.Time
	DeliveredAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TrackingEvent is identified by (Timestamp, Location, Description).
// Timestamp is kept exactly as the provider sent it.
type TrackingEvent struct {
	ID          uint64
	PackageID   uint64
	Timestamp   string
	Location    string
	Description string
	StatusCode  int
	CreatedAt   time.Time
}

type EventKey struct {
	Timestamp   string
	Location    string
	Description string
}

func (e *TrackingEvent) Key() EventKey {
	return EventKey{Timestamp: e.Timestamp, Location: e.Location, Description: e.Description}
}

type PackageCreateInput struct {
	TrackingNumber string
	Carrier        string
	CarrierCode    int
	Description    string
}

// PackageUpdate is everything one reconciliation pass writes for a package.
// Events must be ordered newest-first, as the provider returns them.
type PackageUpdate struct {
	PackageID  uint64
	CheckedAt  time.Time
	Status     Status
	StatusCode int
	Events     []*TrackingEvent
	LastEvent  *TrackingEvent
	Deactivate bool
}

type PackageDetails struct {
	Package     *Package
	Events      []*TrackingEvent
	TrackingURL string
}
