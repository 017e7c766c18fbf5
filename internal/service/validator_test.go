package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/qr-checkin/internal/model"
	"github.com/iliyamo/qr-checkin/internal/repository"
)

func scanOf(q *model.QRCode) ValidateRequest {
	return ValidateRequest{Token: q.CheckInToken, EventID: q.EventID, CodeID: q.ID}
}

func TestValidateAcceptsAndCounts(t *testing.T) {
	h := newHarness(t, Options{})
	q := h.issue(t, IssueRequest{SecurityLevel: model.SecurityBasic})

	v := h.scan(t, scanOf(q))
	if !v.IsValid || v.Reason != model.ReasonNone || v.Code == nil || v.Code.ScannedCount != 1 {
		t.Fatalf("first scan = %+v", v)
	}
	// token alone is enough to find the code
	v = h.scan(t, ValidateRequest{Token: q.CheckInToken, EventID: q.EventID})
	if !v.IsValid || v.Code.ScannedCount != 2 {
		t.Fatalf("token scan = %+v", v)
	}

	select {
	case ev := <-h.events:
		if ev.CodeID != q.ID || ev.EventID != "event-1" || ev.ScannedCount < 1 {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no scan event published")
	}
}

func TestValidateRequiresTokenAndEvent(t *testing.T) {
	h := newHarness(t, Options{})
	if _, err := h.svc.Validate(context.Background(), ValidateRequest{EventID: "e"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("missing token: %v", err)
	}
	if _, err := h.svc.Validate(context.Background(), ValidateRequest{Token: "t"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("missing event: %v", err)
	}
}

func TestValidateLookupFailures(t *testing.T) {
	h := newHarness(t, Options{})
	q := h.issue(t, IssueRequest{SecurityLevel: model.SecurityBasic})

	expectReason(t, h.scan(t, ValidateRequest{Token: "nope", EventID: "event-1"}), model.ReasonNotFound)
	expectReason(t, h.scan(t, ValidateRequest{Token: q.CheckInToken, EventID: "event-1", CodeID: "nope"}), model.ReasonNotFound)

	req := scanOf(q)
	req.EventID = "event-2"
	expectReason(t, h.scan(t, req), model.ReasonEventMismatch)

	req = scanOf(q)
	req.Token = "forged"
	expectReason(t, h.scan(t, req), model.ReasonTokenMismatch)
}

func TestValidateExpiryBoundary(t *testing.T) {
	h := newHarness(t, Options{})
	q := h.issue(t, IssueRequest{SecurityLevel: model.SecurityBasic, ExpirationHours: 1})

	h.clock.set(q.ExpiresAt)
	if v := h.scan(t, scanOf(q)); !v.IsValid {
		t.Fatalf("code must still be valid at exactly its expiry: %+v", v)
	}
	h.clock.set(q.ExpiresAt.Add(time.Nanosecond))
	expectReason(t, h.scan(t, scanOf(q)), model.ReasonExpired)
}

func TestValidateDeactivatedBeforeExpired(t *testing.T) {
	h := newHarness(t, Options{})
	q := h.issue(t, IssueRequest{})
	if err := h.svc.Deactivate(context.Background(), q.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	expectReason(t, h.scan(t, scanOf(q)), model.ReasonDeactivated)

	h.clock.set(q.ExpiresAt.Add(time.Hour))
	expectReason(t, h.scan(t, scanOf(q)), model.ReasonDeactivated)
}

func TestValidateProximity(t *testing.T) {
	h := newHarness(t, Options{})
	fence := &model.GeofenceSpec{Latitude: 35.7, Longitude: 51.4, BaseRadiusMeters: 50, VenueType: model.VenueIndoor, Venue: "Main Hall"}
	q := h.issue(t, IssueRequest{SecurityLevel: model.SecurityBasic, Geofence: fence})

	v := h.scan(t, scanOf(q))
	expectReason(t, v, model.ReasonLocationRequired)
	if v.SecurityChecks.Proximity == nil || !v.SecurityChecks.Proximity.LocationRequired {
		t.Fatalf("proximity breakdown missing: %+v", v.SecurityChecks)
	}

	req := scanOf(q)
	req.Location = &model.Location{Latitude: 35.71, Longitude: 51.4}
	v = h.scan(t, req)
	expectReason(t, v, model.ReasonProximityFailed)
	if v.SecurityChecks.Proximity.DistanceMeters <= v.SecurityChecks.Proximity.RadiusMeters {
		t.Fatalf("distance %v should exceed radius %v", v.SecurityChecks.Proximity.DistanceMeters, v.SecurityChecks.Proximity.RadiusMeters)
	}

	req.Location = &model.Location{Latitude: 35.7, Longitude: 51.4}
	v = h.scan(t, req)
	if !v.IsValid || v.SecurityChecks.Proximity == nil || !v.SecurityChecks.Proximity.IsValid {
		t.Fatalf("scan at anchor rejected: %+v", v)
	}
}

func TestValidateChallenge(t *testing.T) {
	h := newHarness(t, Options{})
	q := h.issue(t, IssueRequest{SecurityLevel: model.SecurityHigh})

	req := scanOf(q)
	req.ChallengeResponse = "wrong"
	v := h.scan(t, req)
	expectReason(t, v, model.ReasonChallengeFailed)
	if !v.SecurityChecks.Challenge.Applied || v.SecurityChecks.Challenge.Passed {
		t.Fatalf("challenge breakdown = %+v", v.SecurityChecks.Challenge)
	}

	req.ChallengeResponse = ""
	v = h.scan(t, req)
	if !v.IsValid || v.SecurityChecks.Challenge.Applied {
		t.Fatalf("missing response should skip the challenge: %+v", v)
	}

	req.ChallengeResponse = ChallengeResponseFor(q.ChallengeCode)
	v = h.scan(t, req)
	if !v.IsValid || !v.SecurityChecks.Challenge.Passed {
		t.Fatalf("correct response rejected: %+v", v)
	}

	basic := h.issue(t, IssueRequest{SecurityLevel: model.SecurityBasic})
	req = scanOf(basic)
	req.ChallengeResponse = "wrong"
	if v := h.scan(t, req); !v.IsValid {
		t.Fatalf("basic codes ignore challenges: %+v", v)
	}
}

func TestValidateRotationAdvisory(t *testing.T) {
	h := newHarness(t, Options{})
	q := h.issue(t, IssueRequest{})
	stale := int64(99)
	req := scanOf(q)
	req.Rotation = &stale
	v := h.scan(t, req)
	if !v.IsValid || !v.SecurityChecks.Rotation.Applied || !v.SecurityChecks.Rotation.Passed {
		t.Fatalf("advisory rotation rejected scan: %+v", v)
	}
}

func TestValidateRotationEnforced(t *testing.T) {
	h := newHarness(t, Options{EnforceRotation: true, RotationTolerance: 1})
	q := h.issue(t, IssueRequest{})
	h.scheduler.Stop(q.ID)
	h.scheduler.Start(q.ID, q.RotationInterval(), q.ExpiresAt, 5)

	cases := []struct {
		presented *int64
		valid     bool
	}{
		{nil, false},
		{ptr(5), true},
		{ptr(4), true},
		{ptr(3), false},
		{ptr(6), false},
	}
	for _, tc := range cases {
		req := scanOf(q)
		req.Rotation = tc.presented
		v := h.scan(t, req)
		if tc.valid != v.IsValid {
			t.Fatalf("rotation %v: valid=%v reason=%s", tc.presented, v.IsValid, v.Reason)
		}
		if !tc.valid && v.Reason != model.ReasonRotationFailed {
			t.Fatalf("rotation %v: reason %s", tc.presented, v.Reason)
		}
	}
}

func ptr(n int64) *int64 { return &n }

func TestValidateDevice(t *testing.T) {
	h := newHarness(t, Options{})
	q := h.issue(t, IssueRequest{SecurityLevel: model.SecurityMaximum, DeviceFingerprint: "device-1"})

	req := scanOf(q)
	req.DeviceFingerprint = "device-2"
	expectReason(t, h.scan(t, req), model.ReasonDeviceMismatch)

	req.DeviceFingerprint = ""
	if v := h.scan(t, req); !v.IsValid || v.SecurityChecks.Device.Applied {
		t.Fatalf("missing fingerprint should skip the device layer: %+v", v)
	}
	req.DeviceFingerprint = "device-1"
	if v := h.scan(t, req); !v.IsValid || !v.SecurityChecks.Device.Passed {
		t.Fatalf("bound device rejected: %+v", v)
	}

	out, err := h.svc.IssueDynamic(context.Background(), "event-1", "holder-1", &SessionData{DeviceFingerprint: "phone-a"})
	if err != nil {
		t.Fatalf("issue dynamic: %v", err)
	}
	req = scanOf(out.Code)
	req.DeviceFingerprint = "phone-b"
	expectReason(t, h.scan(t, req), model.ReasonDeviceMismatch)
}

func TestValidateStoreUnavailable(t *testing.T) {
	h := newHarness(t, Options{})
	q := h.issue(t, IssueRequest{SecurityLevel: model.SecurityBasic})
	h.store.setDown(true)

	v, err := h.svc.Validate(context.Background(), scanOf(q))
	if !errors.Is(err, repository.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable error, got %v", err)
	}
	if v.IsValid || v.Reason != model.ReasonStoreUnavailable {
		t.Fatalf("verdict = %+v", v)
	}
	if errors.Is(err, repository.ErrCodeNotFound) {
		t.Fatal("outage must stay distinguishable from an unknown code")
	}
}

func TestValidateConcurrentScansCountExactly(t *testing.T) {
	h := newHarness(t, Options{})
	q := h.issue(t, IssueRequest{SecurityLevel: model.SecurityBasic})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, err := h.svc.Validate(context.Background(), scanOf(q)); err != nil || !v.IsValid {
				t.Errorf("scan: %v %+v", err, v)
			}
		}()
	}
	wg.Wait()
	got, _ := h.svc.Get(context.Background(), q.ID)
	if got.ScannedCount != 20 {
		t.Fatalf("scanned_count = %d, want 20", got.ScannedCount)
	}
}
