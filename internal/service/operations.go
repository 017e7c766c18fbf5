package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/qr-checkin/internal/geofence"
	"github.com/iliyamo/qr-checkin/internal/model"
	"github.com/iliyamo/qr-checkin/internal/render"
	"github.com/iliyamo/qr-checkin/internal/repository"
	"github.com/iliyamo/qr-checkin/internal/rotation"
)

// Get returns a stored descriptor.
func (s *CheckinService) Get(ctx context.Context, id string) (*model.QRCode, error) {
	var q *model.QRCode
	err := s.call(ctx, "get", func(ctx context.Context) error {
		var err error
		q, err = s.store.Get(ctx, id)
		return err
	})
	return q, err
}

// RotationStatus reports a code's live rotation index.  Codes that exist but
// do not rotate (basic level, deactivated, expired) report IsRotating false.
func (s *CheckinService) RotationStatus(ctx context.Context, id string) (model.RotationStatus, error) {
	if st := s.scheduler.Status(id); st.IsRotating {
		return st, nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return model.RotationStatus{}, err
	}
	return model.RotationStatus{CodeID: id}, nil
}

// ComputeProximity evaluates a location against a geofence without touching
// any stored code.
func (s *CheckinService) ComputeProximity(spec model.GeofenceSpec, loc *model.Location) (model.ProximityCheck, error) {
	if err := validateGeofence(spec); err != nil {
		return model.ProximityCheck{}, err
	}
	return geofence.Check(spec, loc), nil
}

// Deactivate marks a code inactive and stops its rotation timer.
// Deactivating twice is not an error.
func (s *CheckinService) Deactivate(ctx context.Context, id string) error {
	err := s.call(ctx, "deactivate", func(ctx context.Context) error { return s.store.Deactivate(ctx, id) })
	if err != nil {
		return err
	}
	s.scheduler.Stop(id)
	s.metrics.ObserveDeactivated()
	s.logger.Info("qr code deactivated", zap.String("code_id", id))
	return nil
}

// CleanupExpired stops timers for and deletes every code past its expiry.
// It returns how many codes were removed, even when a later delete fails.
func (s *CheckinService) CleanupExpired(ctx context.Context) (int, error) {
	now := s.now()
	var ids []string
	err := s.call(ctx, "list_expired", func(ctx context.Context) error {
		var err error
		ids, err = s.store.ListExpired(ctx, now)
		return err
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		s.scheduler.Stop(id)
		if err := s.call(ctx, "delete", func(ctx context.Context) error { return s.store.Delete(ctx, id) }); err != nil {
			s.metrics.ObserveCleaned(removed)
			return removed, fmt.Errorf("delete expired code %s: %w", id, err)
		}
		removed++
	}
	s.metrics.ObserveCleaned(removed)
	if removed > 0 {
		s.logger.Info("expired qr codes removed", zap.Int("count", removed))
	}
	return removed, nil
}

// Image renders an active code's payload at its live rotation index.
func (s *CheckinService) Image(ctx context.Context, id string) ([]byte, error) {
	q, rot, err := s.displayable(ctx, id)
	if err != nil {
		return nil, err
	}
	img, err := s.renderer.Render(s.payloadFor(q, rot), render.ColorFor(q.SecurityLevel))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	return img, nil
}

// ImageVersion returns the rotation index Image would embed right now.  It
// fails exactly when Image would, so callers can use it to key or bypass a
// response cache.
func (s *CheckinService) ImageVersion(ctx context.Context, id string) (int64, error) {
	_, rot, err := s.displayable(ctx, id)
	return rot, err
}

func (s *CheckinService) displayable(ctx context.Context, id string) (*model.QRCode, int64, error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if !q.IsActive || q.IsExpired(s.now()) {
		return nil, 0, ErrCodeInactive
	}
	return q, s.scheduler.Status(id).CurrentRotation, nil
}

// ResumeRotations restarts timers for every active rotating code, deriving
// each counter from the time elapsed since issuance.  It is called once at
// startup.
func (s *CheckinService) ResumeRotations(ctx context.Context) (int, error) {
	now := s.now()
	var codes []*model.QRCode
	err := s.call(ctx, "list_rotating", func(ctx context.Context) error {
		var err error
		codes, err = s.store.ListRotating(ctx, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	started := 0
	for _, q := range codes {
		initial := rotation.ElapsedRotations(q.CreatedAt, now, q.RotationInterval())
		if s.scheduler.Start(q.ID, q.RotationInterval(), q.ExpiresAt, initial) {
			started++
		}
	}
	s.logger.Info("rotation timers resumed", zap.Int("count", started))
	return started, nil
}

// IsNotFound reports whether err means the code does not exist.
func IsNotFound(err error) bool { return errors.Is(err, repository.ErrCodeNotFound) }

// IsUnavailable reports whether err is a store outage or timeout.
func IsUnavailable(err error) bool { return errors.Is(err, repository.ErrStoreUnavailable) }
