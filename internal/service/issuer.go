package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/qr-checkin/internal/model"
	"github.com/iliyamo/qr-checkin/internal/render"
	"github.com/iliyamo/qr-checkin/internal/rotation"
	"github.com/iliyamo/qr-checkin/internal/utils"
)

// IssueRequest describes an organizer-issued event code.
type IssueRequest struct {
	EventID           string
	Geofence          *model.GeofenceSpec // nil disables location gating
	Organizer         string
	SecurityLevel     model.SecurityLevel // empty means standard
	RotationInterval  *time.Duration      // overrides the level's cadence, 0 disables rotation
	ExpirationHours   int                 // 0 means the configured default
	DeviceFingerprint string              // optional, binds the code to one scanning device
}

// SessionData carries the optional inputs of a holder-bound code.
type SessionData struct {
	DeviceFingerprint string
	ExpirationHours   int
	Organizer         string
	Geofence          *model.GeofenceSpec
}

// Issued is a freshly created code with its rendered image.
type Issued struct {
	Code  *model.QRCode
	Image []byte
}

// Issue creates, renders and persists a static event code, then starts its
// rotation timer.  On any failure nothing is left active.
func (s *CheckinService) Issue(ctx context.Context, req IssueRequest) (*Issued, error) {
	level := req.SecurityLevel
	if level == "" {
		level = model.SecurityStandard
	}
	if err := validateIssue(req.EventID, level, req.ExpirationHours, req.Geofence); err != nil {
		return nil, err
	}

	interval := rotation.IntervalFor(level)
	if req.RotationInterval != nil {
		if *req.RotationInterval < 0 || *req.RotationInterval > MaxRotationInterval {
			return nil, fmt.Errorf("%w: rotation interval must be within [0, %s]", ErrInvalidRequest, MaxRotationInterval)
		}
		interval = req.RotationInterval.Truncate(time.Second)
	}
	ttl := s.opts.DefaultExpiration
	if req.ExpirationHours > 0 {
		ttl = time.Duration(req.ExpirationHours) * time.Hour
	}

	q, err := s.newCode(req.EventID, level, interval, ttl, req.Geofence)
	if err != nil {
		return nil, err
	}
	q.Kind = model.KindStatic
	q.Organizer = req.Organizer
	if err := s.bindDevice(q, req.DeviceFingerprint); err != nil {
		return nil, err
	}
	return s.finishIssue(ctx, q)
}

// IssueDynamic creates a code bound to one holder.  Dynamic codes are always
// high security and short lived; session data may bind a device fingerprint
// or attach a geofence.
func (s *CheckinService) IssueDynamic(ctx context.Context, eventID, holderID string, session *SessionData) (*Issued, error) {
	if session == nil {
		session = &SessionData{}
	}
	if strings.TrimSpace(holderID) == "" {
		return nil, fmt.Errorf("%w: holder_id is required", ErrInvalidRequest)
	}
	if err := validateIssue(eventID, model.SecurityHigh, session.ExpirationHours, session.Geofence); err != nil {
		return nil, err
	}

	ttl := s.opts.DynamicExpiration
	if session.ExpirationHours > 0 {
		ttl = time.Duration(session.ExpirationHours) * time.Hour
	}
	q, err := s.newCode(eventID, model.SecurityHigh, rotation.IntervalFor(model.SecurityHigh), ttl, session.Geofence)
	if err != nil {
		return nil, err
	}
	q.Kind = model.KindDynamic
	q.HolderID = holderID
	q.Organizer = session.Organizer
	if err := s.bindDevice(q, session.DeviceFingerprint); err != nil {
		return nil, err
	}
	return s.finishIssue(ctx, q)
}

func (s *CheckinService) bindDevice(q *model.QRCode, fingerprint string) error {
	if fingerprint == "" {
		return nil
	}
	hash, err := utils.HashFingerprint(fingerprint, s.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash device fingerprint: %w", err)
	}
	q.DeviceFingerprintHash = hash
	return nil
}

func (s *CheckinService) newCode(eventID string, level model.SecurityLevel, interval, ttl time.Duration, fence *model.GeofenceSpec) (*model.QRCode, error) {
	challenge, err := utils.RandomHex(16)
	if err != nil {
		return nil, fmt.Errorf("generate challenge: %w", err)
	}
	now := s.now().UTC()
	q := &model.QRCode{
		ID:                      uuid.NewString(),
		EventID:                 eventID,
		CheckInToken:            uuid.NewString(),
		ChallengeCode:           challenge,
		SecurityLevel:           level,
		RotationIntervalSeconds: int(interval / time.Second),
		ChallengeRequired:       policyFor(level).challenge,
		ExpiresAt:               now.Add(ttl),
		IsActive:                true,
		CreatedAt:               now,
	}
	if !q.ExpiresAt.After(q.CreatedAt) {
		return nil, fmt.Errorf("%w: expiry must be after issuance", ErrInvalidRequest)
	}
	if fence != nil {
		g := *fence
		q.Geofence = &g
		q.ProximityRequired = true
	}
	return q, nil
}

func (s *CheckinService) finishIssue(ctx context.Context, q *model.QRCode) (*Issued, error) {
	q.Payload = s.payloadFor(q, 0)
	img, err := s.renderer.Render(q.Payload, render.ColorFor(q.SecurityLevel))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}

	if err := s.call(ctx, "put", func(ctx context.Context) error { return s.store.Put(ctx, q) }); err != nil {
		s.logger.Error("persist qr code failed", zap.String("event_id", q.EventID), zap.Error(err))
		return nil, err
	}

	if q.RotationIntervalSeconds > 0 {
		s.scheduler.Start(q.ID, q.RotationInterval(), q.ExpiresAt, 0)
	}
	s.metrics.ObserveIssued(string(q.Kind), string(q.SecurityLevel))
	s.logger.Info("qr code issued",
		zap.String("code_id", q.ID),
		zap.String("event_id", q.EventID),
		zap.String("kind", string(q.Kind)),
		zap.String("level", string(q.SecurityLevel)),
		zap.Int("rotation_seconds", q.RotationIntervalSeconds),
		zap.Time("expires_at", q.ExpiresAt))
	return &Issued{Code: q, Image: img}, nil
}

// payloadFor builds the scannable URL for the given rotation index.  The
// stored payload carries index 0; Image renders the live one.
func (s *CheckinService) payloadFor(q *model.QRCode, rotationIndex int64) string {
	v := url.Values{}
	v.Set("token", q.CheckInToken)
	v.Set("event", q.EventID)
	v.Set("code", q.ID)
	v.Set("challenge", q.ChallengeCode)
	v.Set("rotation", strconv.FormatInt(rotationIndex, 10))
	v.Set("level", string(q.SecurityLevel))
	if q.HolderID != "" {
		v.Set("holder", q.HolderID)
	}
	sep := "?"
	if strings.Contains(s.opts.PayloadBaseURL, "?") {
		sep = "&"
	}
	return s.opts.PayloadBaseURL + sep + v.Encode()
}

// ParsePayload extracts the scan fields from a payload produced by Issue.
// The caller still supplies location, device and challenge response data.
func ParsePayload(raw string) (ValidateRequest, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ValidateRequest{}, fmt.Errorf("%w: payload is not a url", ErrInvalidRequest)
	}
	v := u.Query()
	req := ValidateRequest{
		Token:   v.Get("token"),
		EventID: v.Get("event"),
		CodeID:  v.Get("code"),
	}
	if req.Token == "" {
		return ValidateRequest{}, fmt.Errorf("%w: payload carries no token", ErrInvalidRequest)
	}
	if r := v.Get("rotation"); r != "" {
		n, err := strconv.ParseInt(r, 10, 64)
		if err != nil {
			return ValidateRequest{}, fmt.Errorf("%w: rotation must be an integer", ErrInvalidRequest)
		}
		req.Rotation = &n
	}
	return req, nil
}
