// Package queue carries check-in events over RabbitMQ: a publisher used by the
// validation path and a consumer that appends them to an audit log.
package queue

// ScanQueueName is the durable queue successful check-ins are published to.
const ScanQueueName = "checkin.scanned"

// CheckinScannedEvent is published after a scan passes every check.  It holds
// enough for downstream consumers to log or notify without reading the store.
type CheckinScannedEvent struct {
	CodeID         string   `json:"code_id"`
	EventID        string   `json:"event_id"`
	Kind           string   `json:"kind"`
	HolderID       string   `json:"holder_id,omitempty"`
	SecurityLevel  string   `json:"security_level"`
	ScannedCount   int64    `json:"scanned_count"`
	Rotation       int64    `json:"rotation"`
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
	ScannedAt      string   `json:"scanned_at"`
}
