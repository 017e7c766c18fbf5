package model

import "time"

// SecurityLevel names a bundle of enforced checks and a rotation cadence.
type SecurityLevel string

const (
	SecurityBasic    SecurityLevel = "basic"
	SecurityStandard SecurityLevel = "standard"
	SecurityHigh     SecurityLevel = "high"
	SecurityMaximum  SecurityLevel = "maximum"
)

// Valid reports whether l is one of the four known levels.
func (l SecurityLevel) Valid() bool {
	switch l {
	case SecurityBasic, SecurityStandard, SecurityHigh, SecurityMaximum:
		return true
	}
	return false
}

// CodeKind distinguishes organizer-issued event codes from codes bound to a
// single holder.
type CodeKind string

const (
	KindStatic  CodeKind = "static"
	KindDynamic CodeKind = "dynamic"
)

// QRCode is the persisted descriptor of an issued check-in code.  One record
// exists per code id.  ID, EventID, CheckInToken and ChallengeCode never
// change after issuance; IsActive and ScannedCount are the only mutable
// fields.
//
// Fields:
//
//	ID                      – unique code id generated at issuance.
//	EventID                 – event this code authorizes check-in for.
//	Kind                    – static (organizer) or dynamic (holder bound).
//	HolderID                – attendee the code is bound to (dynamic only).
//	Organizer               – optional organizer label.
//	CheckInToken            – opaque secret embedded in the payload.
//	ChallengeCode           – secret echoed back (transformed) by scanners.
//	SecurityLevel           – basic, standard, high or maximum.
//	RotationIntervalSeconds – 0 means the code never rotates.
//	ProximityRequired       – true when a geofence is attached.
//	ChallengeRequired       – derived from the security level.
//	DeviceFingerprintHash   – bcrypt hash of a fingerprint bound at issuance.
//	Payload                 – raw scannable string.
//	Geofence                – location gate, nil when not location gated.
//	ExpiresAt               – absolute expiry.
//	IsActive                – false after explicit deactivation.
//	ScannedCount            – successful validations so far.
//	CreatedAt               – issuance time.
type QRCode struct {
	ID                      string        `json:"id" cbor:"id"`
	EventID                 string        `json:"event_id" cbor:"event_id"`
	Kind                    CodeKind      `json:"kind" cbor:"kind"`
	HolderID                string        `json:"holder_id,omitempty" cbor:"holder_id,omitempty"`
	Organizer               string        `json:"organizer,omitempty" cbor:"organizer,omitempty"`
	CheckInToken            string        `json:"check_in_token" cbor:"check_in_token"`
	ChallengeCode           string        `json:"challenge_code" cbor:"challenge_code"`
	SecurityLevel           SecurityLevel `json:"security_level" cbor:"security_level"`
	RotationIntervalSeconds int           `json:"rotation_interval_seconds" cbor:"rotation_interval_seconds"`
	ProximityRequired       bool          `json:"proximity_required" cbor:"proximity_required"`
	ChallengeRequired       bool          `json:"challenge_required" cbor:"challenge_required"`
	DeviceFingerprintHash   string        `json:"-" cbor:"device_fingerprint_hash,omitempty"`
	Payload                 string        `json:"payload" cbor:"payload"`
	Geofence                *GeofenceSpec `json:"geofence,omitempty" cbor:"geofence,omitempty"`
	ExpiresAt               time.Time     `json:"expires_at" cbor:"expires_at"`
	IsActive                bool          `json:"is_active" cbor:"is_active"`
	ScannedCount            int64         `json:"scanned_count" cbor:"scanned_count"`
	CreatedAt               time.Time     `json:"created_at" cbor:"created_at"`
}

// IsExpired reports whether the code is past its expiry at now.  A code is
// still usable at exactly ExpiresAt.
func (q *QRCode) IsExpired(now time.Time) bool {
	return now.After(q.ExpiresAt)
}

// RotationInterval returns the rotation cadence as a duration.
func (q *QRCode) RotationInterval() time.Duration {
	return time.Duration(q.RotationIntervalSeconds) * time.Second
}

// RotationStatus is the externally visible view of a code's rotation state.
type RotationStatus struct {
	CodeID          string `json:"code_id"`
	CurrentRotation int64  `json:"current_rotation"`
	IsRotating      bool   `json:"is_rotating"`
}
