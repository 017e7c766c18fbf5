package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/qr-checkin/internal/model"
)

// QRCodeRepo stores descriptors in the qr_codes table.  The geofence is kept
// as a JSON column; all timestamps are written in UTC.
type QRCodeRepo struct {
	db *sql.DB
}

// NewQRCodeRepo returns a QRCodeRepo bound to db.
func NewQRCodeRepo(db *sql.DB) *QRCodeRepo { return &QRCodeRepo{db: db} }

const qrColumns = `id, event_id, kind, holder_id, organizer, check_in_token, challenge_code,
       security_level, rotation_interval_seconds, proximity_required, challenge_required,
       device_fingerprint_hash, payload, geofence, expires_at, is_active, scanned_count, created_at`

// Put inserts a new descriptor.  Codes are never overwritten.
func (r *QRCodeRepo) Put(ctx context.Context, q *model.QRCode) error {
	var geofence sql.NullString
	if q.Geofence != nil {
		b, err := json.Marshal(q.Geofence)
		if err != nil {
			return err
		}
		geofence = sql.NullString{String: string(b), Valid: true}
	}
	const stmt = `INSERT INTO qr_codes (` + qrColumns + `)
                  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, stmt,
		q.ID, q.EventID, string(q.Kind), q.HolderID, q.Organizer, q.CheckInToken, q.ChallengeCode,
		string(q.SecurityLevel), q.RotationIntervalSeconds, q.ProximityRequired, q.ChallengeRequired,
		q.DeviceFingerprintHash, q.Payload, geofence, q.ExpiresAt.UTC(), q.IsActive, q.ScannedCount, q.CreatedAt.UTC(),
	)
	if err != nil {
		// 1062 = duplicate entry
		if strings.Contains(err.Error(), "1062") {
			return ErrDuplicateToken
		}
		return unavailable("insert", err)
	}
	return nil
}

// Get loads a descriptor by code id.
func (r *QRCodeRepo) Get(ctx context.Context, id string) (*model.QRCode, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+qrColumns+` FROM qr_codes WHERE id = ? LIMIT 1`, id)
	return scanQRCode(row)
}

// GetByToken loads a descriptor by its check-in token.
func (r *QRCodeRepo) GetByToken(ctx context.Context, token string) (*model.QRCode, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+qrColumns+` FROM qr_codes WHERE check_in_token = ? LIMIT 1`, token)
	return scanQRCode(row)
}

// Delete removes a descriptor.  Deleting a missing code is not an error.
func (r *QRCodeRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM qr_codes WHERE id = ?`, id); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// Deactivate clears is_active.  It returns ErrCodeNotFound for unknown ids
// and succeeds for codes that are already inactive.
func (r *QRCodeRepo) Deactivate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE qr_codes SET is_active = FALSE WHERE id = ?`, id)
	if err != nil {
		return unavailable("deactivate", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	// MySQL reports zero affected rows when the value did not change.
	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM qr_codes WHERE id = ? LIMIT 1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrCodeNotFound
	}
	if err != nil {
		return unavailable("deactivate", err)
	}
	return nil
}

// IncrementScan atomically bumps scanned_count and returns the new value.
func (r *QRCodeRepo) IncrementScan(ctx context.Context, id string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE qr_codes SET scanned_count = scanned_count + 1 WHERE id = ?`, id)
	if err != nil {
		return 0, unavailable("increment", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, ErrCodeNotFound
	}
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT scanned_count FROM qr_codes WHERE id = ?`, id).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrCodeNotFound
		}
		return 0, unavailable("increment", err)
	}
	return count, nil
}

// ListExpired returns ids of codes whose expires_at is before now.
func (r *QRCodeRepo) ListExpired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM qr_codes WHERE expires_at < ?`, now.UTC())
	if err != nil {
		return nil, unavailable("list expired", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("list expired", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list expired", err)
	}
	return ids, nil
}

// ListRotating returns active, unexpired codes that have a rotation
// interval.  It is used to resume timers after a restart.
func (r *QRCodeRepo) ListRotating(ctx context.Context, now time.Time) ([]*model.QRCode, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+qrColumns+` FROM qr_codes WHERE is_active = TRUE AND rotation_interval_seconds > 0 AND expires_at >= ?`,
		now.UTC())
	if err != nil {
		return nil, unavailable("list rotating", err)
	}
	defer rows.Close()
	var out []*model.QRCode
	for rows.Next() {
		q, err := scanQRCode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list rotating", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQRCode(row rowScanner) (*model.QRCode, error) {
	var (
		q        model.QRCode
		kind     string
		level    string
		geofence sql.NullString
	)
	err := row.Scan(
		&q.ID, &q.EventID, &kind, &q.HolderID, &q.Organizer, &q.CheckInToken, &q.ChallengeCode,
		&level, &q.RotationIntervalSeconds, &q.ProximityRequired, &q.ChallengeRequired,
		&q.DeviceFingerprintHash, &q.Payload, &geofence, &q.ExpiresAt, &q.IsActive, &q.ScannedCount, &q.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, unavailable("scan", err)
	}
	q.Kind = model.CodeKind(kind)
	q.SecurityLevel = model.SecurityLevel(level)
	if geofence.Valid && geofence.String != "" {
		var g model.GeofenceSpec
		if err := json.Unmarshal([]byte(geofence.String), &g); err != nil {
			return nil, err
		}
		q.Geofence = &g
	}
	q.ExpiresAt = q.ExpiresAt.UTC()
	q.CreatedAt = q.CreatedAt.UTC()
	return &q, nil
}
