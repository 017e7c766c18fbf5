// Package geofence computes check-in radii and device distances.  Everything
// in this package is pure and safe for concurrent use.
package geofence

import (
	"math"

	"github.com/iliyamo/qr-checkin/internal/model"
)

// venue multipliers applied to base + capacity adjustment.
const (
	indoorMultiplier  = 0.8
	outdoorMultiplier = 1.2
	mixedMultiplier   = 1.1
)

// SmartRadius returns the effective check-in radius for spec together with
// every intermediate term.  Larger, denser, multi-floor and outdoor events
// get more slack; small indoor venues stay tight.
func SmartRadius(spec model.GeofenceSpec) model.RadiusBreakdown {
	base := spec.BaseRadiusMeters
	adj := 0.0

	if spec.DynamicRadius && spec.Capacity != nil {
		adj += capacityAdjustment(*spec.Capacity, base)
	}

	var density *float64
	if spec.Capacity != nil && spec.FloorAreaSqMeters != nil && *spec.FloorAreaSqMeters > 0 {
		d := float64(*spec.Capacity) / *spec.FloorAreaSqMeters
		density = &d
		switch {
		case d > 2:
			adj += 0.15 * base
		case d < 0.5:
			adj -= 0.10 * base
		}
	}

	if spec.MultiLevel {
		adj += 0.25 * base
	}

	vt := spec.EffectiveVenueType()
	mult := venueMultiplier(vt)
	buffer := spec.SafetyBuffer()

	return model.RadiusBreakdown{
		BaseRadius:         base,
		CapacityAdjustment: adj,
		Density:            density,
		VenueType:          vt,
		VenueMultiplier:    mult,
		SafetyBuffer:       buffer,
		FinalRadius:        math.Round((base+adj)*mult + buffer),
	}
}

func capacityAdjustment(capacity int, base float64) float64 {
	switch {
	case capacity <= 50:
		return 0
	case capacity <= 200:
		return 0.20 * base
	case capacity <= 500:
		return 0.40 * base
	default:
		return 0.60 * base
	}
}

func venueMultiplier(vt model.VenueType) float64 {
	switch vt {
	case model.VenueIndoor:
		return indoorMultiplier
	case model.VenueOutdoor:
		return outdoorMultiplier
	default:
		return mixedMultiplier
	}
}
