package repository

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/qr-checkin/internal/model"
)

// MemoryQRCodeRepo is a process-local store for development and tests.
// Returned descriptors are copies; mutating them does not affect the store.
type MemoryQRCodeRepo struct {
	mu     sync.Mutex
	codes  map[string]*model.QRCode
	tokens map[string]string
}

// NewMemoryQRCodeRepo returns an empty store.
func NewMemoryQRCodeRepo() *MemoryQRCodeRepo {
	return &MemoryQRCodeRepo{
		codes:  make(map[string]*model.QRCode),
		tokens: make(map[string]string),
	}
}

func (r *MemoryQRCodeRepo) Put(ctx context.Context, q *model.QRCode) error {
	if err := ctx.Err(); err != nil {
		return unavailable("put", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[q.CheckInToken]; ok {
		return ErrDuplicateToken
	}
	r.codes[q.ID] = copyCode(q)
	r.tokens[q.CheckInToken] = q.ID
	return nil
}

func (r *MemoryQRCodeRepo) Get(ctx context.Context, id string) (*model.QRCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("get", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.codes[id]
	if !ok {
		return nil, ErrCodeNotFound
	}
	return copyCode(q), nil
}

func (r *MemoryQRCodeRepo) GetByToken(ctx context.Context, token string) (*model.QRCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("get by token", err)
	}
	r.mu.Lock()
	id, ok := r.tokens[token]
	r.mu.Unlock()
	if !ok {
		return nil, ErrCodeNotFound
	}
	return r.Get(ctx, id)
}

func (r *MemoryQRCodeRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.codes[id]; ok {
		delete(r.tokens, q.CheckInToken)
		delete(r.codes, id)
	}
	return nil
}

func (r *MemoryQRCodeRepo) Deactivate(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.codes[id]
	if !ok {
		return ErrCodeNotFound
	}
	q.IsActive = false
	return nil
}

func (r *MemoryQRCodeRepo) IncrementScan(ctx context.Context, id string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("increment", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.codes[id]
	if !ok {
		return 0, ErrCodeNotFound
	}
	q.ScannedCount++
	return q.ScannedCount, nil
}

func (r *MemoryQRCodeRepo) ListExpired(ctx context.Context, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, q := range r.codes {
		if q.ExpiresAt.Before(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *MemoryQRCodeRepo) ListRotating(ctx context.Context, now time.Time) ([]*model.QRCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.QRCode
	for _, q := range r.codes {
		if q.IsActive && q.RotationIntervalSeconds > 0 && !q.IsExpired(now) {
			out = append(out, copyCode(q))
		}
	}
	return out, nil
}

func copyCode(q *model.QRCode) *model.QRCode {
	c := *q
	if q.Geofence != nil {
		g := *q.Geofence
		if g.Capacity != nil {
			n := *g.Capacity
			g.Capacity = &n
		}
		if g.FloorAreaSqMeters != nil {
			f := *g.FloorAreaSqMeters
			g.FloorAreaSqMeters = &f
		}
		if g.SafetyBufferMeters != nil {
			b := *g.SafetyBufferMeters
			g.SafetyBufferMeters = &b
		}
		c.Geofence = &g
	}
	return &c
}
