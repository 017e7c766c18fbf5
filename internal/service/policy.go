package service

import "github.com/iliyamo/qr-checkin/internal/model"

// levelPolicy lists the optional layers enforced for a security level.
// Proximity is not part of it: it applies whenever a geofence is attached.
type levelPolicy struct {
	rotation  bool
	challenge bool
	device    bool
}

var levelPolicies = map[model.SecurityLevel]levelPolicy{
	model.SecurityBasic:    {},
	model.SecurityStandard: {rotation: true},
	model.SecurityHigh:     {rotation: true, challenge: true},
	model.SecurityMaximum:  {rotation: true, challenge: true, device: true},
}

func policyFor(level model.SecurityLevel) levelPolicy {
	return levelPolicies[level]
}
