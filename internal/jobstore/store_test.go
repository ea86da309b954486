package jobstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-summary-service/internal/model"
)

// ---------------------------------------------------------------------------
// Backends under test
// ---------------------------------------------------------------------------

func newRedisTestStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, ttl), mr
}

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"redis": func(t *testing.T) Store {
			s, _ := newRedisTestStore(t, time.Hour)
			return s
		},
	}
}

func newJob(id string) model.Job {
	return model.NewJob(id, time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
}

var sampleResults = []model.SummaryEntry{
	{Sender: "alice@example.com", Subject: "Invoice", Summary: []string{"Pay by Friday"}},
}

// ---------------------------------------------------------------------------
// Contract
// ---------------------------------------------------------------------------

func TestStore_Contract(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("create and get", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				require.NoError(t, s.Create(ctx, newJob("a")))

				job, err := s.Get(ctx, "a")
				require.NoError(t, err)
				assert.Equal(t, "a", job.ID)
				assert.Equal(t, model.JobStatusProcessing, job.Status)
				assert.Equal(t, 0, job.Progress)
				assert.Nil(t, job.Results)
				assert.Empty(t, job.Error)
			})

			t.Run("duplicate create", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				require.NoError(t, s.Create(ctx, newJob("a")))
				assert.ErrorIs(t, s.Create(ctx, newJob("a")), ErrJobExists)
			})

			t.Run("get unknown", func(t *testing.T) {
				_, err := newStore(t).Get(context.Background(), "nope")
				assert.ErrorIs(t, err, ErrJobNotFound)
			})

			t.Run("update merges fields", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				require.NoError(t, s.Create(ctx, newJob("a")))

				found, err := s.Update(ctx, "a", func(j *model.Job) { j.Progress = 30 })
				require.NoError(t, err)
				assert.True(t, found)

				job, err := s.Get(ctx, "a")
				require.NoError(t, err)
				assert.Equal(t, 30, job.Progress)
				assert.Equal(t, model.JobStatusProcessing, job.Status)
			})

			t.Run("update and delete unknown do not fail", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()

				called := false
				found, err := s.Update(ctx, "ghost", func(*model.Job) { called = true })
				require.NoError(t, err)
				assert.False(t, found)
				assert.False(t, called)

				assert.NoError(t, s.Delete(ctx, "ghost"))
			})

			t.Run("update cannot change id", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				require.NoError(t, s.Create(ctx, newJob("a")))

				_, err := s.Update(ctx, "a", func(j *model.Job) { j.ID = "b" })
				require.NoError(t, err)

				_, err = s.Get(ctx, "b")
				assert.ErrorIs(t, err, ErrJobNotFound)
				job, err := s.Get(ctx, "a")
				require.NoError(t, err)
				assert.Equal(t, "a", job.ID)
			})

			t.Run("take processing keeps record", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				require.NoError(t, s.Create(ctx, newJob("a")))

				job, err := s.Take(ctx, "a")
				require.NoError(t, err)
				assert.Equal(t, model.JobStatusProcessing, job.Status)

				_, err = s.Get(ctx, "a")
				assert.NoError(t, err)
			})

			t.Run("take terminal deletes record", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				require.NoError(t, s.Create(ctx, newJob("done")))
				require.NoError(t, s.Create(ctx, newJob("bad")))
				_, err := s.Update(ctx, "done", func(j *model.Job) { j.Complete(sampleResults, time.Now()) })
				require.NoError(t, err)
				_, err = s.Update(ctx, "bad", func(j *model.Job) { j.Fail("boom", time.Now()) })
				require.NoError(t, err)

				done, err := s.Take(ctx, "done")
				require.NoError(t, err)
				assert.Equal(t, model.JobStatusCompleted, done.Status)
				assert.Equal(t, 100, done.Progress)
				assert.Equal(t, sampleResults, done.Results)

				bad, err := s.Take(ctx, "bad")
				require.NoError(t, err)
				assert.Equal(t, model.JobStatusFailed, bad.Status)
				assert.Equal(t, "boom", bad.Error)
				assert.Nil(t, bad.Results)

				_, err = s.Take(ctx, "done")
				assert.ErrorIs(t, err, ErrJobNotFound)
				_, err = s.Take(ctx, "bad")
				assert.ErrorIs(t, err, ErrJobNotFound)
			})

			t.Run("concurrent take delivers terminal result once", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				require.NoError(t, s.Create(ctx, newJob("a")))
				_, err := s.Update(ctx, "a", func(j *model.Job) { j.Complete(sampleResults, time.Now()) })
				require.NoError(t, err)

				var (
					wg        sync.WaitGroup
					mu        sync.Mutex
					delivered int
				)
				for i := 0; i < 16; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						job, err := s.Take(ctx, "a")
						if err == nil && job.Status == model.JobStatusCompleted {
							mu.Lock()
							delivered++
							mu.Unlock()
						}
					}()
				}
				wg.Wait()
				assert.Equal(t, 1, delivered)
			})

			t.Run("concurrent ids do not cross talk", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				const n = 20

				var wg sync.WaitGroup
				for i := 0; i < n; i++ {
					id := fmt.Sprintf("job-%d", i)
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						assert.NoError(t, s.Create(ctx, newJob(id)))
						_, err := s.Update(ctx, id, func(j *model.Job) { j.Progress = i })
						assert.NoError(t, err)
						job, err := s.Take(ctx, id)
						assert.NoError(t, err)
						assert.Equal(t, id, job.ID)
						assert.Equal(t, i, job.Progress)
						assert.NoError(t, s.Delete(ctx, id))
						_, err = s.Update(ctx, id, func(j *model.Job) { j.Progress = 99 })
						assert.NoError(t, err)
					}(i)
				}
				wg.Wait()
			})

			t.Run("ping", func(t *testing.T) {
				assert.NoError(t, newStore(t).Ping(context.Background()))
			})
		})
	}
}

// ---------------------------------------------------------------------------
// Backend specifics
// ---------------------------------------------------------------------------

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newJob("a")))
	_, err := s.Update(ctx, "a", func(j *model.Job) {
		j.Complete([]model.SummaryEntry{{Sender: "s", Subject: "x", Summary: []string{"one"}}}, time.Now())
	})
	require.NoError(t, err)

	job, err := s.Get(ctx, "a")
	require.NoError(t, err)
	job.Results[0].Summary[0] = "mutated"

	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "one", again.Results[0].Summary[0])
	assert.Equal(t, 1, s.Len())
}

func TestRedisStore_AppliesTTL(t *testing.T) {
	s, mr := newRedisTestStore(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newJob("a")))

	_, err := s.Update(ctx, "a", func(j *model.Job) { j.Progress = 10 })
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL(jobKey("a")), "update must keep the ttl")

	mr.FastForward(2 * time.Minute)
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRedisStore_BackendDown(t *testing.T) {
	s, mr := newRedisTestStore(t, time.Minute)
	mr.Close()

	err := s.Create(context.Background(), newJob("a"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrJobExists)
	assert.Error(t, s.Ping(context.Background()))
}
