package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestNilCacheIsAlwaysMiss(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	var out payload
	hit, err := c.GetJSON(ctx, "key", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	assert.NoError(t, c.SetJSON(ctx, "key", payload{Name: "x"}))
	assert.NoError(t, c.Invalidate(ctx, "key"))
}

func TestNew_NilClient(t *testing.T) {
	assert.Nil(t, New(nil, time.Minute))
}

func TestGetJSON_HitAndMiss(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := New(rdb, time.Minute)
	ctx := context.Background()

	stored, err := json.Marshal(payload{Name: "ath1", Count: 3})
	require.NoError(t, err)
	mock.ExpectGet("views:load:ath1").SetVal(string(stored))

	var out payload
	hit, err := c.GetJSON(ctx, "views:load:ath1", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, payload{Name: "ath1", Count: 3}, out)

	mock.ExpectGet("views:load:ath2").RedisNil()
	hit, err = c.GetJSON(ctx, "views:load:ath2", &out)
	require.NoError(t, err)
	assert.False(t, hit, "redis.Nil is a miss, not an error")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJSON_CorruptEntry(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := New(rdb, time.Minute)

	mock.ExpectGet("key").SetVal("{not json")
	var out payload
	hit, err := c.GetJSON(context.Background(), "key", &out)
	assert.Error(t, err)
	assert.False(t, hit)
}

func TestSetJSON(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := New(rdb, 30*time.Second)

	want, err := json.Marshal(payload{Name: "ath1", Count: 1})
	require.NoError(t, err)
	mock.ExpectSet("key", want, 30*time.Second).SetVal("OK")

	require.NoError(t, c.SetJSON(context.Background(), "key", payload{Name: "ath1", Count: 1}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNew_DefaultTTL(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := New(rdb, 0)

	want, err := json.Marshal(payload{Name: "x"})
	require.NoError(t, err)
	mock.ExpectSet("key", want, 60*time.Second).SetVal("OK")

	require.NoError(t, c.SetJSON(context.Background(), "key", payload{Name: "x"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidate(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := New(rdb, time.Minute)

	mock.ExpectDel("a", "b").SetVal(2)
	require.NoError(t, c.Invalidate(context.Background(), "a", "b"))
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.NoError(t, c.Invalidate(context.Background()), "no keys is a no-op")
}
