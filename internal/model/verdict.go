package model

// Reason is a machine readable rejection cause carried by a Verdict.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonNotFound         Reason = "NOT_FOUND"
	ReasonDeactivated      Reason = "DEACTIVATED"
	ReasonExpired          Reason = "EXPIRED"
	ReasonEventMismatch    Reason = "EVENT_MISMATCH"
	ReasonTokenMismatch    Reason = "TOKEN_MISMATCH"
	ReasonLocationRequired Reason = "LOCATION_REQUIRED"
	ReasonProximityFailed  Reason = "PROXIMITY_FAILED"
	ReasonChallengeFailed  Reason = "CHALLENGE_FAILED"
	ReasonRotationFailed   Reason = "ROTATION_FAILED"
	ReasonDeviceMismatch   Reason = "DEVICE_MISMATCH"
	ReasonStoreUnavailable Reason = "STORE_UNAVAILABLE"
)

// CheckResult is the outcome of one optional security layer.  Applied is
// false when the layer was skipped for the code's security level or was
// never reached because an earlier layer failed.
type CheckResult struct {
	Applied bool   `json:"applied"`
	Passed  bool   `json:"passed"`
	Detail  string `json:"detail,omitempty"`
}

// SecurityChecks breaks a verdict down per layer so a client can show which
// one rejected the scan.
type SecurityChecks struct {
	Proximity *ProximityCheck `json:"proximity,omitempty"`
	Challenge CheckResult     `json:"challenge"`
	Rotation  CheckResult     `json:"rotation"`
	Device    CheckResult     `json:"device"`
}

// Verdict is produced for every scan attempt, valid or not.
type Verdict struct {
	IsValid        bool           `json:"is_valid"`
	Message        string         `json:"message"`
	Reason         Reason         `json:"reason,omitempty"`
	SecurityChecks SecurityChecks `json:"security_checks"`
	Code           *QRCode        `json:"code,omitempty"` // attached on success only
}

// RadiusBreakdown exposes every term of the smart radius calculation.
type RadiusBreakdown struct {
	BaseRadius         float64   `json:"base_radius"`
	CapacityAdjustment float64   `json:"capacity_adjustment"`
	Density            *float64  `json:"density,omitempty"`
	VenueType          VenueType `json:"venue_type"`
	VenueMultiplier    float64   `json:"venue_multiplier"`
	SafetyBuffer       float64   `json:"safety_buffer"`
	FinalRadius        float64   `json:"final_radius"`
}

// ProximityCheck is the result of comparing a device location against a
// geofence.
type ProximityCheck struct {
	IsValid          bool            `json:"is_valid"`
	LocationRequired bool            `json:"location_required"`
	DistanceMeters   float64         `json:"distance_meters"`
	RadiusMeters     float64         `json:"radius_meters"`
	Radius           RadiusBreakdown `json:"radius"`
	Message          string          `json:"message"`
	Recommendations  []string        `json:"recommendations"`
}
