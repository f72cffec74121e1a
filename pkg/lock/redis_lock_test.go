package lock

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
)

func TestJobLock_SingleInstance(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	defer client.Close()

	l := NewRedisJobLock(client, "test-lock")
	ctx := context.Background()

	acquired, err := l.TryLock(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, l.IsHeld())

	err = l.Unlock(ctx)
	assert.NoError(t, err)
	assert.False(t, l.IsHeld())
}

func TestJobLock_MultipleInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	defer client.Close()

	lock1 := NewRedisJobLock(client, "test-lock-multi")
	lock2 := NewRedisJobLock(client, "test-lock-multi")
	ctx := context.Background()

	acquired1, err := lock1.TryLock(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired1)

	acquired2, err := lock2.TryLock(ctx)
	assert.NoError(t, err)
	assert.False(t, acquired2, "second lock should not be acquired")

	assert.NoError(t, lock1.Unlock(ctx))

	acquired2, err = lock2.TryLock(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired2, "lock should be acquirable after release")
	assert.NoError(t, lock2.Unlock(ctx))
}

func TestJobLock_NilClientDegradesToSingleInstance(t *testing.T) {
	l := NewRedisJobLock(nil, "test-lock-nil")
	ctx := context.Background()

	acquired, err := l.TryLock(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, l.IsHeld())
	assert.NoError(t, l.Unlock(ctx))
	assert.False(t, l.IsHeld())
}

func TestJobLock_ReacquireAfterUnlock(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	defer client.Close()

	l := NewRedisJobLock(client, "test-lock-cycle")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		acquired, err := l.TryLock(ctx)
		assert.NoError(t, err)
		assert.True(t, acquired, "cycle %d", i)
		assert.NoError(t, l.Unlock(ctx))
	}
}
