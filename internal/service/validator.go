package service

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/qr-checkin/internal/geofence"
	"github.com/iliyamo/qr-checkin/internal/model"
	"github.com/iliyamo/qr-checkin/internal/queue"
	"github.com/iliyamo/qr-checkin/internal/repository"
	"github.com/iliyamo/qr-checkin/internal/utils"
)

// ValidateRequest is one scan attempt.  Token and EventID are required;
// CodeID, when present, selects the code directly and the token must match
// it.  Everything else is optional and only consulted by the layers that
// apply to the code's security level.
type ValidateRequest struct {
	Token             string
	EventID           string
	CodeID            string
	Location          *model.Location
	DeviceFingerprint string
	ChallengeResponse string
	Rotation          *int64
}

// ChallengeResponseFor returns the response a scanner must present for a
// challenge code.
func ChallengeResponseFor(challenge string) string {
	return base64.StdEncoding.EncodeToString([]byte(challenge))
}

// Validate runs a scan through the pipeline: lookup, deactivation, expiry,
// event, token, then the optional proximity, challenge, rotation and device
// layers.  The first failing layer decides the verdict.  A store failure
// yields a STORE_UNAVAILABLE verdict together with a non-nil error so callers
// can fail closed; every other rejection returns a nil error.
func (s *CheckinService) Validate(ctx context.Context, req ValidateRequest) (model.Verdict, error) {
	if strings.TrimSpace(req.Token) == "" || strings.TrimSpace(req.EventID) == "" {
		return model.Verdict{}, fmt.Errorf("%w: token and event_id are required", ErrInvalidRequest)
	}

	v, err := s.validate(ctx, req)
	s.metrics.ObserveScan(v.IsValid, string(v.Reason))
	if v.IsValid {
		s.logger.Info("check-in accepted", zap.String("code_id", v.Code.ID), zap.String("event_id", req.EventID))
	} else {
		s.logger.Info("check-in rejected",
			zap.String("code_id", req.CodeID),
			zap.String("event_id", req.EventID),
			zap.String("reason", string(v.Reason)),
			zap.Error(err))
	}
	return v, err
}

func (s *CheckinService) validate(ctx context.Context, req ValidateRequest) (model.Verdict, error) {
	q, err := s.lookup(ctx, req)
	if errors.Is(err, repository.ErrCodeNotFound) {
		return reject(model.ReasonNotFound, "QR code not recognized: ask the organizer for a valid code", nil), nil
	}
	if err != nil {
		return storeUnavailable(nil), err
	}

	now := s.now()
	if !q.IsActive {
		return reject(model.ReasonDeactivated, "this QR code has been deactivated by the organizer", nil), nil
	}
	if q.IsExpired(now) {
		return reject(model.ReasonExpired,
			fmt.Sprintf("this QR code expired at %s: request a new code", q.ExpiresAt.UTC().Format(time.RFC3339)), nil), nil
	}
	if q.EventID != req.EventID {
		return reject(model.ReasonEventMismatch, "this QR code belongs to a different event", nil), nil
	}
	if subtle.ConstantTimeCompare([]byte(q.CheckInToken), []byte(req.Token)) != 1 {
		return reject(model.ReasonTokenMismatch, "check-in token does not match this QR code: rescan the code", nil), nil
	}

	var checks model.SecurityChecks
	policy := policyFor(q.SecurityLevel)

	if q.ProximityRequired && q.Geofence != nil {
		pc := geofence.Check(*q.Geofence, req.Location)
		checks.Proximity = &pc
		if pc.LocationRequired {
			return reject(model.ReasonLocationRequired, pc.Message, &checks), nil
		}
		if !pc.IsValid {
			return reject(model.ReasonProximityFailed, pc.Message, &checks), nil
		}
	}

	if q.ChallengeRequired && policy.challenge {
		checks.Challenge = checkChallenge(q.ChallengeCode, req.ChallengeResponse)
		if checks.Challenge.Applied && !checks.Challenge.Passed {
			return reject(model.ReasonChallengeFailed, "challenge response is incorrect: rescan the code", &checks), nil
		}
	}

	var current int64
	if policy.rotation && q.RotationIntervalSeconds > 0 {
		current = s.scheduler.Status(q.ID).CurrentRotation
		checks.Rotation = s.checkRotation(current, req.Rotation)
		if !checks.Rotation.Passed {
			return reject(model.ReasonRotationFailed, "this QR code has rotated: scan the code currently on display", &checks), nil
		}
	}

	if policy.device || q.DeviceFingerprintHash != "" {
		checks.Device = checkDevice(q.DeviceFingerprintHash, req.DeviceFingerprint)
		if checks.Device.Applied && !checks.Device.Passed {
			return reject(model.ReasonDeviceMismatch, "this QR code is bound to a different device", &checks), nil
		}
	}

	var count int64
	err = s.call(ctx, "increment_scan", func(ctx context.Context) error {
		var err error
		count, err = s.store.IncrementScan(ctx, q.ID)
		return err
	})
	if errors.Is(err, repository.ErrCodeNotFound) {
		return reject(model.ReasonNotFound, "QR code was removed while checking in", &checks), nil
	}
	if err != nil {
		return storeUnavailable(&checks), err
	}
	q.ScannedCount = count

	ev := queue.CheckinScannedEvent{
		CodeID:        q.ID,
		EventID:       q.EventID,
		Kind:          string(q.Kind),
		HolderID:      q.HolderID,
		SecurityLevel: string(q.SecurityLevel),
		ScannedCount:  count,
		Rotation:      current,
		ScannedAt:     now.UTC().Format(time.RFC3339Nano),
	}
	if checks.Proximity != nil {
		d := checks.Proximity.DistanceMeters
		ev.DistanceMeters = &d
	}
	s.publish(ev)

	return model.Verdict{
		IsValid:        true,
		Message:        "check-in accepted",
		SecurityChecks: checks,
		Code:           q,
	}, nil
}

func (s *CheckinService) lookup(ctx context.Context, req ValidateRequest) (*model.QRCode, error) {
	var q *model.QRCode
	err := s.call(ctx, "get", func(ctx context.Context) error {
		var err error
		if req.CodeID != "" {
			q, err = s.store.Get(ctx, req.CodeID)
		} else {
			q, err = s.store.GetByToken(ctx, req.Token)
		}
		return err
	})
	return q, err
}

func (s *CheckinService) checkRotation(current int64, presented *int64) model.CheckResult {
	if !s.opts.EnforceRotation {
		return model.CheckResult{Applied: true, Passed: true, Detail: fmt.Sprintf("rotation %d (advisory)", current)}
	}
	if presented == nil {
		return model.CheckResult{Applied: true, Passed: false, Detail: "rotation index missing"}
	}
	low := current - s.opts.RotationTolerance
	if *presented < low || *presented > current {
		return model.CheckResult{Applied: true, Passed: false,
			Detail: fmt.Sprintf("presented rotation %d, accepted %d..%d", *presented, low, current)}
	}
	return model.CheckResult{Applied: true, Passed: true, Detail: fmt.Sprintf("rotation %d", current)}
}

func checkChallenge(challenge, response string) model.CheckResult {
	if response == "" {
		return model.CheckResult{Detail: "no challenge response supplied"}
	}
	want := ChallengeResponseFor(challenge)
	ok := subtle.ConstantTimeCompare([]byte(want), []byte(response)) == 1
	return model.CheckResult{Applied: true, Passed: ok}
}

func checkDevice(hash, fingerprint string) model.CheckResult {
	switch {
	case hash == "":
		return model.CheckResult{Detail: "no device bound to this code"}
	case fingerprint == "":
		return model.CheckResult{Detail: "no device fingerprint supplied"}
	}
	return model.CheckResult{Applied: true, Passed: utils.VerifyFingerprint(hash, fingerprint)}
}

func reject(reason model.Reason, msg string, checks *model.SecurityChecks) model.Verdict {
	v := model.Verdict{IsValid: false, Message: msg, Reason: reason}
	if checks != nil {
		v.SecurityChecks = *checks
	}
	return v
}

func storeUnavailable(checks *model.SecurityChecks) model.Verdict {
	return reject(model.ReasonStoreUnavailable, "check-in is temporarily unavailable: try again shortly", checks)
}
