// Package service implements the check-in core: issuing codes, validating
// scans through the layered security pipeline, and the lifecycle operations
// around them.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/qr-checkin/internal/metrics"
	"github.com/iliyamo/qr-checkin/internal/model"
	"github.com/iliyamo/qr-checkin/internal/queue"
	"github.com/iliyamo/qr-checkin/internal/render"
	"github.com/iliyamo/qr-checkin/internal/rotation"
)

// CodeStore persists code descriptors.  Implementations return
// repository.ErrCodeNotFound for unknown ids and wrap every transport or
// timeout failure in repository.ErrStoreUnavailable.
type CodeStore interface {
	Put(ctx context.Context, q *model.QRCode) error
	Get(ctx context.Context, id string) (*model.QRCode, error)
	GetByToken(ctx context.Context, token string) (*model.QRCode, error)
	Delete(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) error
	IncrementScan(ctx context.Context, id string) (int64, error)
	ListExpired(ctx context.Context, now time.Time) ([]string, error)
	ListRotating(ctx context.Context, now time.Time) ([]*model.QRCode, error)
}

// EventPublisher receives accepted scans.
type EventPublisher interface {
	PublishScan(ctx context.Context, ev queue.CheckinScannedEvent) error
}

// Options tunes issuance and validation.
type Options struct {
	PayloadBaseURL    string        // scannable payloads are URLs under this base
	DefaultExpiration time.Duration // static codes
	DynamicExpiration time.Duration // holder-bound codes
	StoreTimeout      time.Duration // bound on every store call
	EnforceRotation   bool          // reject scans presenting a stale rotation index
	RotationTolerance int64         // indices behind current still accepted when enforcing
	BcryptCost        int           // device fingerprint hashing cost
}

func (o *Options) setDefaults() {
	if o.PayloadBaseURL == "" {
		o.PayloadBaseURL = "https://checkin.local/scan"
	}
	if o.DefaultExpiration <= 0 {
		o.DefaultExpiration = 24 * time.Hour
	}
	if o.DynamicExpiration <= 0 {
		o.DynamicExpiration = 2 * time.Hour
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 3 * time.Second
	}
	if o.RotationTolerance < 0 {
		o.RotationTolerance = 0
	}
}

// Option customizes a CheckinService.
type Option func(*CheckinService)

func WithPublisher(p EventPublisher) Option { return func(s *CheckinService) { s.publisher = p } }

func WithMetrics(r *metrics.Recorder) Option { return func(s *CheckinService) { s.metrics = r } }

func WithLogger(l *zap.Logger) Option {
	return func(s *CheckinService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *CheckinService) {
		if now != nil {
			s.now = now
		}
	}
}

// CheckinService is safe for concurrent use.
type CheckinService struct {
	store     CodeStore
	scheduler *rotation.Scheduler
	renderer  render.Renderer
	publisher EventPublisher
	metrics   *metrics.Recorder
	logger    *zap.Logger
	opts      Options
	now       func() time.Time
}

// New wires a service.  store, scheduler and renderer are required.
func New(store CodeStore, scheduler *rotation.Scheduler, renderer render.Renderer, opts Options, options ...Option) *CheckinService {
	opts.setDefaults()
	s := &CheckinService{
		store:     store,
		scheduler: scheduler,
		renderer:  renderer,
		logger:    zap.NewNop(),
		opts:      opts,
		now:       time.Now,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// call runs one store operation under the store timeout and records its
// latency.
func (s *CheckinService) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	start := time.Now()
	err := fn(ctx)
	s.metrics.ObserveStore(op, time.Since(start), err)
	return err
}

func (s *CheckinService) publish(ev queue.CheckinScannedEvent) {
	if s.publisher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.publisher.PublishScan(ctx, ev); err != nil {
			s.logger.Warn("publish scan event failed", zap.String("code_id", ev.CodeID), zap.Error(err))
		}
	}()
}
