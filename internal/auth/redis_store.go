package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport failures talking to redis.
var ErrRedisUnavailable = errors.New("redis unavailable")

// expiredRetention keeps an expired record around long enough for a late
// verify to report SessionExpired instead of SessionNotFound.
const expiredRetention = time.Hour

const (
	statusMissing int64 = 0
	statusExpired int64 = 1
	statusLive    int64 = 2
)

// KEYS[1]=session KEYS[2]=index; ARGV: username role permissions login_ms pexpire_ms token
var createLua = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "username", ARGV[1], "role", ARGV[2], "permissions", ARGV[3], "login_ms", ARGV[4], "last_ms", ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
redis.call("SADD", KEYS[2], ARGV[6])
return 1
`)

// KEYS[1]=session KEYS[2]=index; ARGV: now_ms ttl_ms token touch(0|1)
var refreshLua = redis.NewScript(`
local login = redis.call("HGET", KEYS[1], "login_ms")
if not login then
  redis.call("SREM", KEYS[2], ARGV[3])
  return {0}
end
if tonumber(ARGV[1]) - tonumber(login) > tonumber(ARGV[2]) then
  local fields = redis.call("HGETALL", KEYS[1])
  redis.call("DEL", KEYS[1])
  redis.call("SREM", KEYS[2], ARGV[3])
  return {1, fields}
end
if ARGV[4] == "1" then
  redis.call("HSET", KEYS[1], "last_ms", ARGV[1])
end
return {2, redis.call("HGETALL", KEYS[1])}
`)

// KEYS[1]=session KEYS[2]=index; ARGV: token
var deleteLua = redis.NewScript(`
local fields = redis.call("HGETALL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if #fields == 0 then
  return {0}
end
redis.call("DEL", KEYS[1])
return {1, fields}
`)

// RedisStore keeps sessions as redis hashes under "<prefix>:session:<token>",
// indexed by the set "<prefix>:sessions".
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a store that sets a housekeeping expiry of ttl+1h on each key.
func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "relayd"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

// NewRedisClient parses url, connects, and pings before returning.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

func (r *RedisStore) key(token string) string {
	return r.prefix + ":session:" + token
}

func (r *RedisStore) indexKey() string {
	return r.prefix + ":sessions"
}

func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	perms, err := json.Marshal(s.Permissions)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}
	expire := (r.ttl + expiredRetention).Milliseconds()

	res, err := createLua.Run(ctx, r.rdb, []string{r.key(s.Token), r.indexKey()},
		s.Username, s.Role, string(perms), s.LoginTime.UnixMilli(), expire, s.Token).Int64()
	if err != nil {
		return fmt.Errorf("%w: create session: %v", ErrRedisUnavailable, err)
	}
	if res == 0 {
		return ErrTokenExists
	}
	return nil
}

func (r *RedisStore) Refresh(ctx context.Context, token string, now time.Time, ttl time.Duration) (*Session, error) {
	return r.check(ctx, token, now, ttl, true)
}

func (r *RedisStore) check(ctx context.Context, token string, now time.Time, ttl time.Duration, touch bool) (*Session, error) {
	touchArg := "0"
	if touch {
		touchArg = "1"
	}
	res, err := refreshLua.Run(ctx, r.rdb, []string{r.key(token), r.indexKey()},
		now.UnixMilli(), ttl.Milliseconds(), token, touchArg).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: refresh session: %v", ErrRedisUnavailable, err)
	}

	status, fields, err := scriptResult(res)
	if err != nil {
		return nil, err
	}
	switch status {
	case statusMissing:
		return nil, ErrSessionNotFound
	case statusExpired:
		s, err := decodeSession(token, fields)
		if err != nil {
			return nil, err
		}
		return s, ErrSessionExpired
	default:
		return decodeSession(token, fields)
	}
}

func (r *RedisStore) Delete(ctx context.Context, token string) (*Session, bool, error) {
	res, err := deleteLua.Run(ctx, r.rdb, []string{r.key(token), r.indexKey()}, token).Slice()
	if err != nil {
		return nil, false, fmt.Errorf("%w: delete session: %v", ErrRedisUnavailable, err)
	}
	status, fields, err := scriptResult(res)
	if err != nil {
		return nil, false, err
	}
	if status == statusMissing {
		return nil, false, nil
	}
	s, err := decodeSession(token, fields)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

func (r *RedisStore) Sweep(ctx context.Context, now time.Time, ttl time.Duration) ([]*Session, error) {
	tokens, err := r.rdb.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", ErrRedisUnavailable, err)
	}

	var removed []*Session
	for _, token := range tokens {
		s, err := r.check(ctx, token, now, ttl, false)
		switch {
		case errors.Is(err, ErrSessionExpired):
			removed = append(removed, s)
		case errors.Is(err, ErrSessionNotFound), err == nil:
		default:
			return removed, err
		}
	}
	return removed, nil
}

func (r *RedisStore) Count(ctx context.Context) (int, error) {
	tokens, err := r.rdb.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: list sessions: %v", ErrRedisUnavailable, err)
	}
	if len(tokens) == 0 {
		return 0, nil
	}

	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(tokens))
	for i, token := range tokens {
		cmds[i] = pipe.Exists(ctx, r.key(token))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: count sessions: %v", ErrRedisUnavailable, err)
	}

	n := 0
	var stale []any
	for i, cmd := range cmds {
		if cmd.Val() == 1 {
			n++
		} else {
			stale = append(stale, tokens[i])
		}
	}
	if len(stale) > 0 {
		_ = r.rdb.SRem(ctx, r.indexKey(), stale...).Err()
	}
	return n, nil
}

func scriptResult(res []any) (int64, []any, error) {
	if len(res) == 0 {
		return 0, nil, fmt.Errorf("empty script result")
	}
	status, ok := res[0].(int64)
	if !ok {
		return 0, nil, fmt.Errorf("unexpected script status %T", res[0])
	}
	var fields []any
	if len(res) > 1 {
		fields, _ = res[1].([]any)
	}
	return status, fields, nil
}

func decodeSession(token string, raw any) (*Session, error) {
	fields := map[string]string{}
	switch v := raw.(type) {
	case map[string]string:
		fields = v
	case []any:
		for i := 0; i+1 < len(v); i += 2 {
			k, _ := v[i].(string)
			val, _ := v[i+1].(string)
			fields[k] = val
		}
	}

	loginMs, err := strconv.ParseInt(fields["login_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("stored session has invalid login_ms: %w", err)
	}
	lastMs, err := strconv.ParseInt(fields["last_ms"], 10, 64)
	if err != nil {
		lastMs = loginMs
	}

	var perms []string
	if p := fields["permissions"]; p != "" {
		if err := json.Unmarshal([]byte(p), &perms); err != nil {
			return nil, fmt.Errorf("stored session has invalid permissions: %w", err)
		}
	}

	return &Session{
		Token:        token,
		Username:     fields["username"],
		Role:         fields["role"],
		Permissions:  perms,
		LoginTime:    time.UnixMilli(loginMs),
		LastActivity: time.UnixMilli(lastMs),
	}, nil
}
