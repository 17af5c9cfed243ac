package code

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"attendance/internal/metrics"
	"attendance/internal/store"
)

var (
	lecturePrefix = store.Key("code", "lec") + ":"
	valuePrefix   = store.Key("code", "val") + ":"
)

// rotateScript is the atomic rotate-or-fetch. It returns the stored entry
// when one is live, an empty string when the candidate value collides with
// another lecture's live code, and otherwise installs the candidate. Key
// expiry (PXAT at valid_until) retires both directions of the mapping.
var rotateScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then return cur end
if redis.call('EXISTS', KEYS[2]) == 1 then return '' end
redis.call('SET', KEYS[1], ARGV[1], 'PXAT', tonumber(ARGV[3]))
redis.call('SET', KEYS[2], ARGV[2], 'PXAT', tonumber(ARGV[3]))
return ARGV[1]
`)

// dropScript deletes the lecture entry and its reverse index together.
var dropScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then return 0 end
redis.call('DEL', KEYS[1])
local sep = string.find(cur, '|', 1, true)
if sep then
	redis.call('DEL', ARGV[1] .. string.sub(cur, 1, sep - 1))
end
return 1
`)

// RedisStore shares codes across instances. Entries live in two keys, one
// per lecture and one per value, both expiring exactly at valid_until.
type RedisStore struct {
	client *redis.Client
	gen    Generator
	ttl    time.Duration
}

// NewRedisStore creates a store issuing codes valid for ttl.
func NewRedisStore(client *redis.Client, gen Generator, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisStore{client: client, gen: gen, ttl: ttl}
}

// Active implements Store.
func (s *RedisStore) Active(ctx context.Context, lectureID int64, now time.Time) (Code, error) {
	lecKey := lecturePrefix + strconv.FormatInt(lectureID, 10)
	until := now.Add(s.ttl)

	for i := 0; i < maxAttempts; i++ {
		v, err := s.gen.Generate()
		if err != nil {
			return Code{}, err
		}
		entry := fmt.Sprintf("%s|%d|%d", v, now.UnixMilli(), until.UnixMilli())
		reverse := fmt.Sprintf("%d|%d", lectureID, until.UnixMilli())

		res, err := rotateScript.Run(ctx, s.client,
			[]string{lecKey, valuePrefix + v},
			entry, reverse, until.UnixMilli(),
		).Text()
		if err != nil {
			return Code{}, err
		}
		if res == "" {
			continue // live collision with another lecture, try a new value
		}
		if res == entry {
			metrics.CodesIssued.Inc()
		}

		c, err := parseEntry(res, lectureID)
		if err != nil {
			return Code{}, err
		}
		if !c.Live(now) {
			// Stored entry outlived its deadline (clock skew); force reissue.
			if err := s.Drop(ctx, lectureID); err != nil {
				return Code{}, err
			}
			continue
		}
		return c, nil
	}
	return Code{}, ErrExhausted
}

// Resolve implements Store.
func (s *RedisStore) Resolve(ctx context.Context, value string, now time.Time) (int64, error) {
	res, err := s.client.Get(ctx, valuePrefix+value).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	parts := strings.SplitN(res, "|", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("code: malformed reverse entry %q", res)
	}
	lectureID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("code: malformed reverse entry %q", res)
	}
	untilMs, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("code: malformed reverse entry %q", res)
	}
	if !now.Before(time.UnixMilli(untilMs)) {
		return 0, ErrNotFound
	}
	return lectureID, nil
}

// Drop implements Store.
func (s *RedisStore) Drop(ctx context.Context, lectureID int64) error {
	lecKey := lecturePrefix + strconv.FormatInt(lectureID, 10)
	return dropScript.Run(ctx, s.client, []string{lecKey}, valuePrefix).Err()
}

func parseEntry(entry string, lectureID int64) (Code, error) {
	parts := strings.SplitN(entry, "|", 3)
	if len(parts) != 3 {
		return Code{}, fmt.Errorf("code: malformed entry %q", entry)
	}
	issuedMs, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Code{}, fmt.Errorf("code: malformed entry %q", entry)
	}
	untilMs, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Code{}, fmt.Errorf("code: malformed entry %q", entry)
	}
	return Code{
		Value:      parts[0],
		LectureID:  lectureID,
		IssuedAt:   time.UnixMilli(issuedMs),
		ValidUntil: time.UnixMilli(untilMs),
	}, nil
}
