package geofence

import (
	"fmt"
	"math"

	"github.com/iliyamo/qr-checkin/internal/model"
)

// Check compares a device location against spec.  A nil location fails
// closed with LocationRequired set; it never passes silently.
func Check(spec model.GeofenceSpec, loc *model.Location) model.ProximityCheck {
	radius := SmartRadius(spec)
	venue := spec.Venue
	if venue == "" {
		venue = "the event venue"
	}

	if loc == nil {
		return model.ProximityCheck{
			IsValid:          false,
			LocationRequired: true,
			RadiusMeters:     radius.FinalRadius,
			Radius:           radius,
			Message:          "location permission required: enable location services to check in",
			Recommendations: []string{
				"Allow this app to access your location and scan again",
				fmt.Sprintf("You must be within %.0fm of %s", radius.FinalRadius, venue),
			},
		}
	}

	dist := Distance(spec.Latitude, spec.Longitude, loc.Latitude, loc.Longitude)
	res := model.ProximityCheck{
		IsValid:        dist <= radius.FinalRadius,
		DistanceMeters: math.Round(dist*10) / 10,
		RadiusMeters:   radius.FinalRadius,
		Radius:         radius,
	}
	res.Recommendations = []string{
		fmt.Sprintf("Distance to %s: %.0fm", venue, dist),
		fmt.Sprintf("Allowed radius: %.0fm", radius.FinalRadius),
	}

	if res.IsValid {
		res.Message = withinMessage(dist, radius.FinalRadius)
		res.Recommendations = append(res.Recommendations, res.Message)
		return res
	}

	over := math.Ceil(dist - radius.FinalRadius)
	res.Message = fmt.Sprintf("you are %.0fm outside the check-in area", over)
	res.Recommendations = append(res.Recommendations,
		fmt.Sprintf("Move about %.0fm closer to %s and scan again", over, venue))
	if loc.Accuracy != nil && *loc.Accuracy > radius.FinalRadius {
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("Your GPS accuracy is %.0fm; step outside or near a window to improve the fix", *loc.Accuracy))
	}
	return res
}

// withinMessage grades a passing distance: perfect in the inner quarter,
// good up to three quarters, edge beyond that.
func withinMessage(dist, radius float64) string {
	if radius <= 0 {
		return "perfect: you are at the event location"
	}
	ratio := dist / radius
	switch {
	case ratio <= 0.25:
		return "perfect: you are right at the event location"
	case ratio <= 0.75:
		return "good: you are well inside the check-in area"
	default:
		return "edge: you are near the boundary of the check-in area, stay put while scanning"
	}
}
