package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/qr-checkin/internal/model"
)

type codeStore interface {
	Put(ctx context.Context, q *model.QRCode) error
	Get(ctx context.Context, id string) (*model.QRCode, error)
	GetByToken(ctx context.Context, token string) (*model.QRCode, error)
	Delete(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) error
	IncrementScan(ctx context.Context, id string) (int64, error)
	ListExpired(ctx context.Context, now time.Time) ([]string, error)
	ListRotating(ctx context.Context, now time.Time) ([]*model.QRCode, error)
}

func sampleCode(id, token string, expiresAt time.Time) *model.QRCode {
	capacity := 120
	return &model.QRCode{
		ID:                      id,
		EventID:                 "event-1",
		Kind:                    model.KindStatic,
		Organizer:               "org",
		CheckInToken:            token,
		ChallengeCode:           "challenge-" + id,
		SecurityLevel:           model.SecurityStandard,
		RotationIntervalSeconds: 300,
		ProximityRequired:       true,
		Payload:                 "https://checkin.test/scan?code=" + id,
		Geofence: &model.GeofenceSpec{
			Latitude: 35.7, Longitude: 51.4, BaseRadiusMeters: 50,
			Venue: "Hall", VenueType: model.VenueIndoor, Capacity: &capacity, DynamicRadius: true,
		},
		ExpiresAt: expiresAt,
		IsActive:  true,
		CreatedAt: expiresAt.Add(-24 * time.Hour),
	}
}

func stores(t *testing.T) map[string]codeStore {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return map[string]codeStore{
		"memory": NewMemoryQRCodeRepo(),
		"redis":  NewRedisQRCodeRepo(rdb, "test"),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	exp := time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			in := sampleCode("c1", "tok1", exp)
			if err := s.Put(ctx, in); err != nil {
				t.Fatalf("put: %v", err)
			}
			got, err := s.Get(ctx, "c1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.EventID != in.EventID || got.CheckInToken != in.CheckInToken || got.ChallengeCode != in.ChallengeCode {
				t.Fatalf("identity fields changed: %+v", got)
			}
			if !got.ExpiresAt.Equal(exp) {
				t.Fatalf("expires_at = %v, want %v", got.ExpiresAt, exp)
			}
			if got.Geofence == nil || got.Geofence.Capacity == nil || *got.Geofence.Capacity != 120 {
				t.Fatalf("geofence not preserved: %+v", got.Geofence)
			}
			byToken, err := s.GetByToken(ctx, "tok1")
			if err != nil || byToken.ID != "c1" {
				t.Fatalf("get by token = %v, %v", byToken, err)
			}
		})
	}
}

func TestStoreNotFoundAndDuplicates(t *testing.T) {
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrCodeNotFound) {
				t.Fatalf("get missing: %v", err)
			}
			if _, err := s.GetByToken(ctx, "missing"); !errors.Is(err, ErrCodeNotFound) {
				t.Fatalf("get by missing token: %v", err)
			}
			if err := s.Deactivate(ctx, "missing"); !errors.Is(err, ErrCodeNotFound) {
				t.Fatalf("deactivate missing: %v", err)
			}
			if _, err := s.IncrementScan(ctx, "missing"); !errors.Is(err, ErrCodeNotFound) {
				t.Fatalf("increment missing: %v", err)
			}
			if err := s.Put(ctx, sampleCode("a", "same", exp)); err != nil {
				t.Fatalf("put: %v", err)
			}
			if err := s.Put(ctx, sampleCode("b", "same", exp)); !errors.Is(err, ErrDuplicateToken) {
				t.Fatalf("duplicate token: %v", err)
			}
		})
	}
}

func TestStoreDeactivateAndDelete(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Put(ctx, sampleCode("c1", "tok1", now.Add(time.Hour))); err != nil {
				t.Fatalf("put: %v", err)
			}
			if err := s.Deactivate(ctx, "c1"); err != nil {
				t.Fatalf("deactivate: %v", err)
			}
			if err := s.Deactivate(ctx, "c1"); err != nil {
				t.Fatalf("second deactivate: %v", err)
			}
			got, _ := s.Get(ctx, "c1")
			if got.IsActive {
				t.Fatalf("code still active")
			}
			rotating, err := s.ListRotating(ctx, now)
			if err != nil || len(rotating) != 0 {
				t.Fatalf("deactivated code listed as rotating: %v %v", rotating, err)
			}
			if err := s.Delete(ctx, "c1"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if err := s.Delete(ctx, "c1"); err != nil {
				t.Fatalf("second delete: %v", err)
			}
			if _, err := s.GetByToken(ctx, "tok1"); !errors.Is(err, ErrCodeNotFound) {
				t.Fatalf("token index survived delete: %v", err)
			}
		})
	}
}

func TestStoreListExpiredAndRotating(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.Put(ctx, sampleCode("old", "t-old", now.Add(-time.Minute)))
			_ = s.Put(ctx, sampleCode("live", "t-live", now.Add(time.Hour)))
			basic := sampleCode("basic", "t-basic", now.Add(time.Hour))
			basic.RotationIntervalSeconds = 0
			_ = s.Put(ctx, basic)

			expired, err := s.ListExpired(ctx, now)
			if err != nil {
				t.Fatalf("list expired: %v", err)
			}
			if len(expired) != 1 || expired[0] != "old" {
				t.Fatalf("expired = %v, want [old]", expired)
			}
			rotating, err := s.ListRotating(ctx, now)
			if err != nil {
				t.Fatalf("list rotating: %v", err)
			}
			if len(rotating) != 1 || rotating[0].ID != "live" {
				t.Fatalf("rotating = %v, want [live]", rotating)
			}
		})
	}
}

func TestStoreConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Put(ctx, sampleCode("hot", "t-hot", time.Now().Add(time.Hour))); err != nil {
				t.Fatalf("put: %v", err)
			}
			var wg sync.WaitGroup
			for i := 0; i < 40; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := s.IncrementScan(ctx, "hot"); err != nil {
						t.Errorf("increment: %v", err)
					}
				}()
			}
			wg.Wait()
			got, _ := s.Get(ctx, "hot")
			if got.ScannedCount != 40 {
				t.Fatalf("scanned_count = %d, want 40", got.ScannedCount)
			}
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryQRCodeRepo()
	_ = s.Put(ctx, sampleCode("c1", "tok1", time.Now().Add(time.Hour)))
	got, _ := s.Get(ctx, "c1")
	got.IsActive = false
	got.Geofence.BaseRadiusMeters = 1
	again, _ := s.Get(ctx, "c1")
	if !again.IsActive || again.Geofence.BaseRadiusMeters != 50 {
		t.Fatalf("store mutated through returned copy")
	}
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewMemoryQRCodeRepo()
	if _, err := s.Get(ctx, "c1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

func TestRedisDeactivateNeverRecreatesDeletedCode(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	repo := NewRedisQRCodeRepo(rdb, "test")

	if err := repo.Put(ctx, sampleCode("c1", "tok1", time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := repo.Delete(ctx, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Deactivate(ctx, "c1"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("deactivate deleted code: %v", err)
	}
	if mr.Exists(repo.codeKey("c1")) {
		t.Fatal("deactivate recreated the code hash")
	}
	if _, err := repo.IncrementScan(ctx, "c1"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("increment deleted code: %v", err)
	}
}

func TestRedisGetWithoutRecordIsNotFound(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	repo := NewRedisQRCodeRepo(rdb, "test")

	mr.HSet(repo.codeKey("ghost"), "is_active", "0")
	if _, err := repo.Get(ctx, "ghost"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("get of hash without record: %v", err)
	}
	if err := repo.Deactivate(ctx, "ghost"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("deactivate of hash without record: %v", err)
	}

	mr.HSet(repo.codeKey("garbled"), "record", "not cbor", "is_active", "1")
	_, err := repo.Get(ctx, "garbled")
	if err == nil || errors.Is(err, ErrCodeNotFound) || errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("garbled record: %v", err)
	}
}
