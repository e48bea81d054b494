package correlation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStorePutGet(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisStore(client, WithKeyPrefix("pb:"), WithStoreLogger(zap.NewNop()))
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "comment_data_comment-1", []byte(`[]`), time.Minute))
	assert.True(t, mr.Exists("pb:comment_data_comment-1"))
	assert.Equal(t, time.Minute, mr.TTL("pb:comment_data_comment-1"))

	data, found, err := s.Get(ctx, "comment_data_comment-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "[]", string(data))

	_, found, err = s.Get(ctx, "comment_data_comment-2")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Delete(ctx, "comment_data_comment-1"))
	assert.False(t, mr.Exists("pb:comment_data_comment-1"))
}

func TestRedisStoreListenResolvesAcrossProcesses(t *testing.T) {
	_, client := newTestRedis(t)
	waiterSide := NewRedisStore(client, WithStoreLogger(zap.NewNop()))
	reg, _ := newObservedRegistry()

	stop, err := waiterSide.Listen(context.Background(), reg)
	require.NoError(t, err)
	defer stop()

	id := NewID(KindUser)
	h := reg.Register(id)

	// the responder only shares the redis server, not the registry
	responderSide := NewRedisStore(client, WithStoreLogger(zap.NewNop()))
	replier := StoreReplier{Store: responderSide, TTL: time.Minute}
	require.NoError(t, replier.Reply(context.Background(), id, []map[string]string{{"id": "u1"}}))

	res := reg.Await(context.Background(), h, 2*time.Second)
	require.True(t, res.OK)
	got, err := decode[map[string]string](res.Payload)
	require.NoError(t, err)
	assert.Equal(t, "u1", got[0]["id"])
}
