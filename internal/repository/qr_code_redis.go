package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/qr-checkin/internal/model"
)

// RedisQRCodeRepo keeps each descriptor in a hash: the immutable record is
// CBOR encoded under "record" while is_active and scanned_count live in
// their own fields so they can be updated atomically.  Secondary keys index
// tokens, expiry times and rotating codes.
type RedisQRCodeRepo struct {
	rdb    *redis.Client
	prefix string
	enc    cbor.EncMode
}

// NewRedisQRCodeRepo returns a store using keys under prefix (default "qr").
func NewRedisQRCodeRepo(rdb *redis.Client, prefix string) *RedisQRCodeRepo {
	if prefix == "" {
		prefix = "qr"
	}
	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		// static options; cannot fail
		panic(err)
	}
	return &RedisQRCodeRepo{rdb: rdb, prefix: prefix, enc: enc}
}

func (r *RedisQRCodeRepo) codeKey(id string) string { return r.prefix + ":code:" + id }
func (r *RedisQRCodeRepo) tokenKey(tok string) string { return r.prefix + ":token:" + tok }
func (r *RedisQRCodeRepo) expiryKey() string { return r.prefix + ":expiry" }
func (r *RedisQRCodeRepo) rotatingKey() string { return r.prefix + ":rotating" }

// A code exists only while its hash holds a record.  The scripts below never
// write to a hash without one.

// incrScript bumps scanned_count only for existing codes; -1 means missing.
var incrScript = redis.NewScript(`
    if redis.call('HEXISTS', KEYS[1], 'record') == 0 then
        return -1
    end
    return redis.call('HINCRBY', KEYS[1], 'scanned_count', 1)
`)

// deactivateScript clears is_active and drops the id (ARGV[1]) from the
// rotating set (KEYS[2]); 0 means missing.
var deactivateScript = redis.NewScript(`
    if redis.call('HEXISTS', KEYS[1], 'record') == 0 then
        return 0
    end
    redis.call('HSET', KEYS[1], 'is_active', '0')
    redis.call('SREM', KEYS[2], ARGV[1])
    return 1
`)

// Put stores a new descriptor.  A token already in use yields
// ErrDuplicateToken and nothing is written.
func (r *RedisQRCodeRepo) Put(ctx context.Context, q *model.QRCode) error {
	rec, err := r.enc.Marshal(q)
	if err != nil {
		return err
	}
	ok, err := r.rdb.SetNX(ctx, r.tokenKey(q.CheckInToken), q.ID, 0).Result()
	if err != nil {
		return unavailable("put", err)
	}
	if !ok {
		return ErrDuplicateToken
	}
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, r.codeKey(q.ID),
		"record", rec,
		"is_active", boolField(q.IsActive),
		"scanned_count", q.ScannedCount,
	)
	pipe.ZAdd(ctx, r.expiryKey(), redis.Z{Score: float64(q.ExpiresAt.Unix()), Member: q.ID})
	if q.RotationIntervalSeconds > 0 {
		pipe.SAdd(ctx, r.rotatingKey(), q.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		_ = r.rdb.Del(ctx, r.tokenKey(q.CheckInToken)).Err()
		return unavailable("put", err)
	}
	return nil
}

// Get loads a descriptor by id.
func (r *RedisQRCodeRepo) Get(ctx context.Context, id string) (*model.QRCode, error) {
	fields, err := r.rdb.HGetAll(ctx, r.codeKey(id)).Result()
	if err != nil {
		return nil, unavailable("get", err)
	}
	rec, ok := fields["record"]
	if !ok {
		return nil, ErrCodeNotFound
	}
	var q model.QRCode
	if err := cbor.Unmarshal([]byte(rec), &q); err != nil {
		return nil, fmt.Errorf("decode qr code %s: %w", id, err)
	}
	q.IsActive = fields["is_active"] == "1"
	if n, err := strconv.ParseInt(fields["scanned_count"], 10, 64); err == nil {
		q.ScannedCount = n
	}
	return &q, nil
}

// GetByToken resolves the token index and loads the descriptor.
func (r *RedisQRCodeRepo) GetByToken(ctx context.Context, token string) (*model.QRCode, error) {
	id, err := r.rdb.Get(ctx, r.tokenKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, unavailable("get by token", err)
	}
	return r.Get(ctx, id)
}

// Delete removes a descriptor and its index entries.
func (r *RedisQRCodeRepo) Delete(ctx context.Context, id string) error {
	q, err := r.Get(ctx, id)
	if errors.Is(err, ErrCodeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, r.codeKey(id), r.tokenKey(q.CheckInToken))
	pipe.ZRem(ctx, r.expiryKey(), id)
	pipe.SRem(ctx, r.rotatingKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// Deactivate clears is_active and drops the code from the rotating index.
func (r *RedisQRCodeRepo) Deactivate(ctx context.Context, id string) error {
	n, err := deactivateScript.Run(ctx, r.rdb, []string{r.codeKey(id), r.rotatingKey()}, id).Int64()
	if err != nil {
		return unavailable("deactivate", err)
	}
	if n == 0 {
		return ErrCodeNotFound
	}
	return nil
}

// IncrementScan atomically bumps scanned_count.
func (r *RedisQRCodeRepo) IncrementScan(ctx context.Context, id string) (int64, error) {
	n, err := incrScript.Run(ctx, r.rdb, []string{r.codeKey(id)}).Int64()
	if err != nil {
		return 0, unavailable("increment", err)
	}
	if n < 0 {
		return 0, ErrCodeNotFound
	}
	return n, nil
}

// ListExpired returns ids whose expiry is strictly before now.
func (r *RedisQRCodeRepo) ListExpired(ctx context.Context, now time.Time) ([]string, error) {
	ids, err := r.rdb.ZRangeByScore(ctx, r.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, unavailable("list expired", err)
	}
	return ids, nil
}

// ListRotating returns active, unexpired codes with a rotation interval.
func (r *RedisQRCodeRepo) ListRotating(ctx context.Context, now time.Time) ([]*model.QRCode, error) {
	ids, err := r.rdb.SMembers(ctx, r.rotatingKey()).Result()
	if err != nil {
		return nil, unavailable("list rotating", err)
	}
	out := make([]*model.QRCode, 0, len(ids))
	for _, id := range ids {
		q, err := r.Get(ctx, id)
		if errors.Is(err, ErrCodeNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if q.IsActive && !q.IsExpired(now) {
			out = append(out, q)
		}
	}
	return out, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
