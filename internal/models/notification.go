package models

// Notification is produced by reconciliation for one package whose status
// changed or that received new events during a pass.
type Notification struct {
	TrackingNumber string
	Carrier        string
	Description    string
	OldStatus      Status
	NewStatus      Status
	NewEvents      int
	LatestEvent    *TrackingEvent
	TrackingURL    string
}

func (n Notification) StatusChanged() bool {
	return n.OldStatus != n.NewStatus
}
