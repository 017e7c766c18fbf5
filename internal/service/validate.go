package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/qr-checkin/internal/model"
)

// Upper bounds on caller supplied durations.  Larger values overflow
// time.Duration arithmetic long before they are meaningful.
const (
	MaxExpirationHours  = 366 * 24
	MaxRotationInterval = 24 * time.Hour
)

// IntervalFromSeconds converts a rotation interval given in seconds,
// rejecting values outside [0, MaxRotationInterval].
func IntervalFromSeconds(secs int) (time.Duration, error) {
	if secs < 0 || int64(secs) > int64(MaxRotationInterval/time.Second) {
		return 0, fmt.Errorf("%w: rotation_interval_seconds must be within [0, %d]",
			ErrInvalidRequest, int64(MaxRotationInterval/time.Second))
	}
	return time.Duration(secs) * time.Second, nil
}

func validateIssue(eventID string, level model.SecurityLevel, hours int, fence *model.GeofenceSpec) error {
	if strings.TrimSpace(eventID) == "" {
		return fmt.Errorf("%w: event_id is required", ErrInvalidRequest)
	}
	if !level.Valid() {
		return fmt.Errorf("%w: unknown security level %q", ErrInvalidRequest, level)
	}
	if hours < 0 || hours > MaxExpirationHours {
		return fmt.Errorf("%w: expiration_hours must be within [0, %d]", ErrInvalidRequest, MaxExpirationHours)
	}
	if fence != nil {
		return validateGeofence(*fence)
	}
	return nil
}

func validateGeofence(g model.GeofenceSpec) error {
	switch {
	case g.Latitude < -90 || g.Latitude > 90:
		return fmt.Errorf("%w: latitude must be within [-90, 90]", ErrInvalidRequest)
	case g.Longitude < -180 || g.Longitude > 180:
		return fmt.Errorf("%w: longitude must be within [-180, 180]", ErrInvalidRequest)
	case g.BaseRadiusMeters <= 0:
		return fmt.Errorf("%w: base_radius_meters must be positive", ErrInvalidRequest)
	case g.Capacity != nil && *g.Capacity < 0:
		return fmt.Errorf("%w: capacity must not be negative", ErrInvalidRequest)
	case g.FloorAreaSqMeters != nil && *g.FloorAreaSqMeters < 0:
		return fmt.Errorf("%w: floor_area_sq_meters must not be negative", ErrInvalidRequest)
	case g.SafetyBufferMeters != nil && *g.SafetyBufferMeters < 0:
		return fmt.Errorf("%w: safety_buffer_meters must not be negative", ErrInvalidRequest)
	}
	switch g.VenueType {
	case "", model.VenueIndoor, model.VenueOutdoor, model.VenueMixed:
	default:
		return fmt.Errorf("%w: unknown venue_type %q", ErrInvalidRequest, g.VenueType)
	}
	return nil
}
