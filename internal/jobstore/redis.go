package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mail-summary-service/internal/model"
)

const (
	keyPrefix         = "summary:job:"
	maxUpdateAttempts = 10
)

// takeScript GET + 终态时 DEL，在 Redis 内部原子执行
var takeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
	return false
end
local job = cjson.decode(v)
if job.status == 'completed' or job.status == 'failed' then
	redis.call('DEL', KEYS[1])
end
return v
`)

// RedisStore 把任务记录以 JSON 存在 Redis 中，并设置 TTL，避免没人轮询的记录永久残留
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func jobKey(id string) string {
	return keyPrefix + id
}

func (s *RedisStore) Create(ctx context.Context, job model.Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, jobKey(job.ID), b, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	if !ok {
		return ErrJobExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (model.Job, error) {
	b, err := s.rdb.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Job{}, ErrJobNotFound
	}
	if err != nil {
		return model.Job{}, fmt.Errorf("get job: %w", err)
	}
	return decodeJob(b)
}

// Update 使用 WATCH/MULTI 乐观事务；与 Take 并发删除冲突时重试
func (s *RedisStore) Update(ctx context.Context, id string, fn func(*model.Job)) (bool, error) {
	key := jobKey(id)

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		found := false
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			b, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return nil
			}
			if err != nil {
				return err
			}
			found = true

			job, err := decodeJob(b)
			if err != nil {
				return err
			}
			fn(&job)
			job.ID = id

			out, err := json.Marshal(job)
			if err != nil {
				return fmt.Errorf("encode job: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, out, redis.KeepTTL)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("update job: %w", err)
		}
		return found, nil
	}
	return false, fmt.Errorf("update job %s: too many concurrent modifications", id)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, jobKey(id)).Err(); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

func (s *RedisStore) Take(ctx context.Context, id string) (model.Job, error) {
	b, err := takeScript.Run(ctx, s.rdb, []string{jobKey(id)}).Text()
	if errors.Is(err, redis.Nil) {
		return model.Job{}, ErrJobNotFound
	}
	if err != nil {
		return model.Job{}, fmt.Errorf("take job: %w", err)
	}
	return decodeJob([]byte(b))
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func decodeJob(b []byte) (model.Job, error) {
	var job model.Job
	if err := json.Unmarshal(b, &job); err != nil {
		return model.Job{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}
