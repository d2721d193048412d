package presence

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/example/socketchat/domain/chat"
	"github.com/redis/go-redis/v9"
)

// Claim and release must be atomic, so both run as Lua. Every key a script
// touches is passed in KEYS: the caller reads the connection's current
// username first and the script fails with -1 if it changed in between.
var claimScript = redis.NewScript(`
	local user_key = KEYS[1]
	local conn_key = KEYS[2]
	local online_key = KEYS[3]
	local seq_key = KEYS[4]
	local prev_user_key = KEYS[5]
	local conn_id = ARGV[1]
	local username = ARGV[2]
	local expected_prev = ARGV[3]

	local prev = redis.call('GET', conn_key)
	if (prev or '') ~= expected_prev then
		return -1
	end

	local holder = redis.call('GET', user_key)
	if holder and holder ~= conn_id then
		return 0
	end

	if prev and prev ~= username then
		redis.call('DEL', prev_user_key)
		redis.call('ZREM', online_key, prev)
	end

	redis.call('SET', user_key, conn_id)
	redis.call('SET', conn_key, username)
	if not redis.call('ZSCORE', online_key, username) then
		local seq = redis.call('INCR', seq_key)
		redis.call('ZADD', online_key, seq, username)
	end
	return 1
`)

var releaseScript = redis.NewScript(`
	local conn_key = KEYS[1]
	local online_key = KEYS[2]
	local user_key = KEYS[3]
	local conn_id = ARGV[1]
	local expected = ARGV[2]

	local username = redis.call('GET', conn_key)
	if not username then
		return ''
	end
	if username ~= expected then
		return -1
	end
	redis.call('DEL', conn_key)

	if redis.call('GET', user_key) == conn_id then
		redis.call('DEL', user_key)
		redis.call('ZREM', online_key, username)
	end
	return username
`)

// scriptAttempts bounds the retries when a connection's username changes
// between the read and the script.
const scriptAttempts = 3

// RedisStore is a PresenceStore kept in Redis. All keys live under one
// prefix; on Redis Cluster give the prefix a hash tag such as
// "{socketchat}:presence:" so the scripts' keys share a slot.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ domain.PresenceStore = (*RedisStore)(nil)

// NewRedisStore creates a presence store under the given key prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) userKey(username string) string { return s.prefix + "user:" + username }
func (s *RedisStore) connKey(connID string) string     { return s.prefix + "conn:" + connID }
func (s *RedisStore) onlineKey() string                { return s.prefix + "online" }
func (s *RedisStore) seqKey() string                   { return s.prefix + "seq" }

// claimKeys lists the keys the claim script touches. prev is the username
// connID currently holds, or "".
func (s *RedisStore) claimKeys(connID, username, prev string) []string {
	prevKey := s.userKey(username)
	if prev != "" {
		prevKey = s.userKey(prev)
	}
	return []string{s.userKey(username), s.connKey(connID), s.onlineKey(), s.seqKey(), prevKey}
}

// releaseKeys lists the keys the release script touches.
func (s *RedisStore) releaseKeys(connID, username string) []string {
	return []string{s.connKey(connID), s.onlineKey(), s.userKey(username)}
}

// Claim associates username with connID.
func (s *RedisStore) Claim(ctx context.Context, connID, username string) error {
	for attempt := 0; attempt < scriptAttempts; attempt++ {
		prev, _, err := s.UsernameOf(ctx, connID)
		if err != nil {
			return err
		}
		res, err := claimScript.Run(ctx, s.client, s.claimKeys(connID, username, prev), connID, username, prev).Int()
		if err != nil {
			return fmt.Errorf("presence claim: %w", err)
		}
		switch res {
		case 1:
			return nil
		case 0:
			return domain.ErrNameTaken
		}
	}
	return fmt.Errorf("presence claim: username of %s changed concurrently", connID)
}

// Release drops the mapping for connID and returns the freed username.
func (s *RedisStore) Release(ctx context.Context, connID string) (string, error) {
	for attempt := 0; attempt < scriptAttempts; attempt++ {
		username, ok, err := s.UsernameOf(ctx, connID)
		if err != nil || !ok {
			return "", err
		}
		res, err := releaseScript.Run(ctx, s.client, s.releaseKeys(connID, username), connID, username).Result()
		if err != nil {
			return "", fmt.Errorf("presence release: %w", err)
		}
		if name, ok := res.(string); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("presence release: username of %s changed concurrently", connID)
}

// Resolve returns the connection holding username.
func (s *RedisStore) Resolve(ctx context.Context, username string) (string, bool, error) {
	return s.get(ctx, s.userKey(username))
}

// UsernameOf returns the username claimed by connID.
func (s *RedisStore) UsernameOf(ctx context.Context, connID string) (string, bool, error) {
	return s.get(ctx, s.connKey(connID))
}

func (s *RedisStore) get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("presence get: %w", err)
	}
	return val, true, nil
}

// Online returns the claimed usernames in claim order.
func (s *RedisStore) Online(ctx context.Context) ([]string, error) {
	names, err := s.client.ZRange(ctx, s.onlineKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("presence online: %w", err)
	}
	return names, nil
}

// Reset removes every key under the prefix. Connections do not survive a
// restart, so mappings left by a previous process are stale.
func (s *RedisStore) Reset(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("presence scan: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("presence delete: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
