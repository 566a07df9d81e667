package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/traderguard/authcore/internal/apperr"
	"github.com/traderguard/authcore/internal/breaker"
)

// RedisFastStore is the Redis-backed fast store, spec.md §4.7: session
// metadata under "session:{id}", and two TTL-matched index sets,
// "user_sessions:{user_id}" and "device_sessions:{fp}".
type RedisFastStore struct {
	client   *redis.Client
	breakers *breaker.Facade
}

func NewRedisFastStore(client *redis.Client, breakers *breaker.Facade) *RedisFastStore {
	return &RedisFastStore{client: client, breakers: breakers}
}

func sessionKey(id string) string       { return "session:" + id }
func userIndexKey(u uuid.UUID) string   { return "user_sessions:" + u.String() }
func deviceIndexKey(fp string) string    { return "device_sessions:" + fp }

// createIfUnderLimitScript atomically: counts the user's active session
// ids in a sorted set scored by last-activity; if at/above limit, evicts
// the lowest-scoring (oldest, with lexical tie-break) member; then stores
// the new session and re-indexes it. This is the single atomic
// "insert-if-count-below" operation spec.md §4.7/§5 requires.
var createIfUnderLimitScript = redis.NewScript(`
local zkey = KEYS[1]
local sesskey = KEYS[2]
local devkey = KEYS[3]
local limit = tonumber(ARGV[1])
local sessID = ARGV[2]
local score = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local payload = ARGV[5]

local evicted = {}
local count = redis.call('ZCARD', zkey)
if count >= limit then
  local oldest = redis.call('ZRANGE', zkey, 0, 0)
  if oldest[1] then
    redis.call('ZREM', zkey, oldest[1])
    redis.call('DEL', 'session:' .. oldest[1])
    table.insert(evicted, oldest[1])
  end
end

redis.call('ZADD', zkey, score, sessID)
redis.call('EXPIRE', zkey, ttl)
redis.call('SADD', devkey, sessID)
redis.call('EXPIRE', devkey, ttl)
redis.call('SET', sesskey, payload, 'EX', ttl)
return evicted
`)

func (r *RedisFastStore) CreateIfUnderLimit(ctx context.Context, userID uuid.UUID, limit int, sess Session, ttl time.Duration) ([]string, error) {
	payload, err := json.Marshal(sess)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to marshal session", err)
	}
	score := float64(sess.LastActivity.UnixMicro())

	result, err := breaker.Execute(ctx, r.breakers, breaker.Cache, func(ctx context.Context) ([]interface{}, error) {
		res, err := createIfUnderLimitScript.Run(ctx, r.client,
			[]string{userIndexKey(userID), sessionKey(sess.ID), deviceIndexKey(sess.DeviceFingerprint)},
			limit, sess.ID, score, int(ttl.Seconds()), string(payload),
		).Slice()
		return res, err
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, "session fast store unavailable", err)
	}

	evicted := make([]string, 0, len(result))
	for _, v := range result {
		if s, ok := v.(string); ok {
			evicted = append(evicted, s)
		}
	}
	return evicted, nil
}

func (r *RedisFastStore) Get(ctx context.Context, sessionID string) (*Session, bool, error) {
	raw, err := breaker.Execute(ctx, r.breakers, breaker.Cache, func(ctx context.Context) (string, error) {
		return r.client.Get(ctx, sessionKey(sessionID)).Result()
	})
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, false, apperr.Wrap(apperr.KindInternal, "failed to unmarshal cached session", err)
	}
	return &sess, true, nil
}

func (r *RedisFastStore) Touch(ctx context.Context, sess Session, ttl time.Duration) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to marshal session", err)
	}
	_, err = breaker.Execute(ctx, r.breakers, breaker.Cache, func(ctx context.Context) (struct{}, error) {
		pipe := r.client.TxPipeline()
		pipe.Set(ctx, sessionKey(sess.ID), payload, ttl)
		pipe.Expire(ctx, userIndexKey(sess.UserID), ttl)
		pipe.Expire(ctx, deviceIndexKey(sess.DeviceFingerprint), ttl)
		pipe.ZAdd(ctx, userIndexKey(sess.UserID), redis.Z{Score: float64(sess.LastActivity.UnixMicro()), Member: sess.ID})
		_, err := pipe.Exec(ctx)
		return struct{}{}, err
	})
	return err
}

func (r *RedisFastStore) Remove(ctx context.Context, sess Session) error {
	_, err := breaker.Execute(ctx, r.breakers, breaker.Cache, func(ctx context.Context) (struct{}, error) {
		pipe := r.client.TxPipeline()
		pipe.Del(ctx, sessionKey(sess.ID))
		pipe.ZRem(ctx, userIndexKey(sess.UserID), sess.ID)
		pipe.SRem(ctx, deviceIndexKey(sess.DeviceFingerprint), sess.ID)
		_, err := pipe.Exec(ctx)
		return struct{}{}, err
	})
	return err
}

func (r *RedisFastStore) RemoveAllForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	ids, err := breaker.Execute(ctx, r.breakers, breaker.Cache, func(ctx context.Context) ([]string, error) {
		return r.client.ZRange(ctx, userIndexKey(userID), 0, -1).Result()
	})
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	_, err = breaker.Execute(ctx, r.breakers, breaker.Cache, func(ctx context.Context) (struct{}, error) {
		pipe := r.client.TxPipeline()
		for _, id := range ids {
			pipe.Del(ctx, sessionKey(id))
		}
		pipe.Del(ctx, userIndexKey(userID))
		_, err := pipe.Exec(ctx)
		return struct{}{}, err
	})
	return ids, err
}
