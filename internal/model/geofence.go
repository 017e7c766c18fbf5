package model

// VenueType influences how much GPS slack a venue gets.
type VenueType string

const (
	VenueIndoor  VenueType = "indoor"
	VenueOutdoor VenueType = "outdoor"
	VenueMixed   VenueType = "mixed"
)

// DefaultSafetyBufferMeters is added to every computed radius unless the
// organizer supplies a different buffer.
const DefaultSafetyBufferMeters = 10.0

// GeofenceSpec describes the allowed check-in area around an event.
//
// Fields:
//
//	Latitude, Longitude – event anchor point.
//	BaseRadiusMeters    – organizer-specified minimum radius.
//	Venue               – display name used in recommendations.
//	VenueType           – indoor, outdoor or mixed (default mixed).
//	Capacity            – expected attendees, optional.
//	DynamicRadius       – widen the radius for larger crowds.
//	FloorAreaSqMeters   – optional floor area for density refinement.
//	MultiLevel          – venue spans several floors.
//	SafetyBufferMeters  – additive slack, nil means the default of 10.
type GeofenceSpec struct {
	Latitude           float64   `json:"latitude" cbor:"latitude"`
	Longitude          float64   `json:"longitude" cbor:"longitude"`
	BaseRadiusMeters   float64   `json:"base_radius_meters" cbor:"base_radius_meters"`
	Venue              string    `json:"venue,omitempty" cbor:"venue,omitempty"`
	VenueType          VenueType `json:"venue_type,omitempty" cbor:"venue_type,omitempty"`
	Capacity           *int      `json:"capacity,omitempty" cbor:"capacity,omitempty"`
	DynamicRadius      bool      `json:"dynamic_radius" cbor:"dynamic_radius"`
	FloorAreaSqMeters  *float64  `json:"floor_area_sq_meters,omitempty" cbor:"floor_area_sq_meters,omitempty"`
	MultiLevel         bool      `json:"multi_level" cbor:"multi_level"`
	SafetyBufferMeters *float64  `json:"safety_buffer_meters,omitempty" cbor:"safety_buffer_meters,omitempty"`
}

// SafetyBuffer returns the configured buffer or the default.
func (g *GeofenceSpec) SafetyBuffer() float64 {
	if g.SafetyBufferMeters == nil {
		return DefaultSafetyBufferMeters
	}
	return *g.SafetyBufferMeters
}

// EffectiveVenueType returns the venue type, defaulting to mixed.
func (g *GeofenceSpec) EffectiveVenueType() VenueType {
	switch g.VenueType {
	case VenueIndoor, VenueOutdoor:
		return g.VenueType
	}
	return VenueMixed
}

// Location is a coordinate reported by a scanning device.
type Location struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"` // reported GPS accuracy in meters
}
