package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infigaming-com/go-channels/layer"
	"github.com/infigaming-com/go-channels/message"
)

func setupLayer(t *testing.T, opts ...Option) (*miniredis.Miniredis, *goredis.Client, *Layer) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client, New(client, opts...)
}

func receiveWithin(t *testing.T, l *Layer, channel string, d time.Duration) (message.Message, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return l.Receive(ctx, channel)
}

func TestNewChannel(t *testing.T) {
	_, _, l := setupLayer(t)
	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		ch, err := l.NewChannel(context.Background())
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(ch, channelPrefix))
		require.NoError(t, layer.ValidateName("channel", ch))
		seen[ch] = struct{}{}
	}
	assert.Len(t, seen, 50)
}

func TestGroupSend(t *testing.T) {
	ctx := context.Background()
	mr, client, l := setupLayer(t)

	require.NoError(t, l.GroupAdd(ctx, "room", "a"))
	require.NoError(t, l.GroupAdd(ctx, "room", "b"))
	require.NoError(t, l.GroupAdd(ctx, "room", "b"))
	assert.True(t, mr.Exists("asgi:group:room"))

	require.NoError(t, l.GroupSend(ctx, "room", message.Message{"type": "chat.message", "message": "hello"}))

	for _, ch := range []string{"a", "b"} {
		n, err := client.LLen(ctx, "asgi:"+ch).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), n, "one copy for %s", ch)

		msg, err := receiveWithin(t, l, ch, 3*time.Second)
		require.NoError(t, err)
		assert.Equal(t, "chat.message", msg.Type())
		assert.Equal(t, "hello", msg["message"])
	}
	assert.False(t, mr.Exists("asgi:outsider"))
}

func TestGroupDiscard(t *testing.T) {
	ctx := context.Background()
	_, client, l := setupLayer(t)

	require.NoError(t, l.GroupAdd(ctx, "room", "a"))
	require.NoError(t, l.GroupDiscard(ctx, "room", "a"))
	require.NoError(t, l.GroupDiscard(ctx, "room", "a"))
	require.NoError(t, l.GroupDiscard(ctx, "other", "a"))
	require.NoError(t, l.GroupSend(ctx, "room", message.Message{"type": "x"}))

	n, err := client.LLen(ctx, "asgi:a").Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGroupSend_PrunesExpiredMembers(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	_, client, l := setupLayer(t,
		WithGroupExpiry(time.Minute),
		WithNowFunc(func() time.Time { return now }),
	)

	require.NoError(t, l.GroupAdd(ctx, "room", "stale"))
	now = now.Add(2 * time.Minute)
	require.NoError(t, l.GroupAdd(ctx, "room", "fresh"))
	require.NoError(t, l.GroupSend(ctx, "room", message.Message{"type": "x"}))

	members, err := client.ZRange(ctx, "asgi:group:room", 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, members)

	n, err := client.LLen(ctx, "asgi:stale").Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCapacity(t *testing.T) {
	ctx := context.Background()
	_, client, l := setupLayer(t, WithCapacity(1))

	require.NoError(t, l.Send(ctx, "a", message.Message{"type": "x"}))
	assert.ErrorIs(t, l.Send(ctx, "a", message.Message{"type": "x"}), layer.ErrChannelFull)

	require.NoError(t, l.GroupAdd(ctx, "room", "a"))
	require.NoError(t, l.GroupAdd(ctx, "room", "b"))
	require.NoError(t, l.GroupSend(ctx, "room", message.Message{"type": "y"}))

	n, err := client.LLen(ctx, "asgi:a").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = client.LLen(ctx, "asgi:b").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestInboxExpiry(t *testing.T) {
	ctx := context.Background()
	mr, _, l := setupLayer(t, WithExpiry(10*time.Second))

	require.NoError(t, l.Send(ctx, "a", message.Message{"type": "x"}))
	assert.Equal(t, 10*time.Second, mr.TTL("asgi:a"))
	mr.FastForward(11 * time.Second)
	assert.False(t, mr.Exists("asgi:a"))
}

func TestReceive_Cancellation(t *testing.T) {
	ctx := context.Background()
	_, client, l := setupLayer(t)

	cctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		_, err := l.Receive(cctx, "a")
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("receive did not return after cancellation")
	}

	// A message sent afterwards is still there for the next receiver.
	require.NoError(t, l.Send(ctx, "a", message.Message{"type": "x"}))
	n, err := client.LLen(ctx, "asgi:a").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	msg, err := receiveWithin(t, l, "a", 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "x", msg.Type())
}

func TestReceive_CancelledDuringPopRequeues(t *testing.T) {
	ctx := context.Background()
	_, client, l := setupLayer(t, WithPollTimeout(5*time.Second))

	cctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		_, err := l.Receive(cctx, "a")
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, l.Send(ctx, "a", message.Message{"type": "first"}))
	require.NoError(t, l.Send(ctx, "a", message.Message{"type": "second"}))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("receive did not return after cancellation")
	}

	n, err := client.LLen(ctx, "asgi:a").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	for _, want := range []string{"first", "second"} {
		msg, err := receiveWithin(t, l, "a", 3*time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, msg.Type())
	}
}

func TestReceive_SkipsUndecodablePayload(t *testing.T) {
	ctx := context.Background()
	_, client, l := setupLayer(t)

	require.NoError(t, client.RPush(ctx, "asgi:a", "not json").Err())
	require.NoError(t, l.Send(ctx, "a", message.Message{"type": "x", "code": 1000}))

	msg, err := receiveWithin(t, l, "a", 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "x", msg.Type())
	assert.Equal(t, 1000, msg.Code(0))
}

func TestFlush(t *testing.T) {
	ctx := context.Background()
	mr, client, l := setupLayer(t, WithPrefix("chat"))
	require.NoError(t, client.Set(ctx, "unrelated", "1", 0).Err())

	require.NoError(t, l.GroupAdd(ctx, "room", "a"))
	require.NoError(t, l.Send(ctx, "a", message.Message{"type": "x"}))
	require.NoError(t, l.Flush(ctx))

	assert.False(t, mr.Exists("chat:a"))
	assert.False(t, mr.Exists("chat:group:room"))
	assert.True(t, mr.Exists("unrelated"))
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	_, client, l := setupLayer(t)

	require.NoError(t, l.Close(ctx))
	require.NoError(t, l.Close(ctx))
	assert.ErrorIs(t, l.GroupAdd(ctx, "room", "a"), layer.ErrClosed)
	_, err := l.Receive(ctx, "a")
	assert.ErrorIs(t, err, layer.ErrClosed)

	// The client was injected, so it stays usable.
	assert.NoError(t, client.Ping(ctx).Err())
}

func TestInvalidNames(t *testing.T) {
	ctx := context.Background()
	_, _, l := setupLayer(t)
	assert.ErrorIs(t, l.GroupAdd(ctx, "bad group", "a"), layer.ErrInvalidName)
	assert.ErrorIs(t, l.GroupSend(ctx, strings.Repeat("g", 100), message.Message{"type": "x"}), layer.ErrInvalidName)
	assert.ErrorIs(t, l.Send(ctx, "", message.Message{"type": "x"}), layer.ErrInvalidName)
}

func TestRegisteredFactory(t *testing.T) {
	mr := miniredis.RunT(t)
	m := layer.NewManager(nil, layer.Config{
		"default": {Backend: Identifier, Config: map[string]any{"addr": mr.Addr(), "prefix": "room", "capacity": 5}},
		"down":    {Backend: Identifier, Config: map[string]any{"addr": "127.0.0.1:1", "connect_timeout": 1}},
	})
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	b, ok, err := m.Get(context.Background(), "default")
	require.NoError(t, err)
	require.True(t, ok)
	l := b.(*Layer)
	assert.Equal(t, "room", l.opts.prefix)
	assert.Equal(t, int64(5), l.opts.capacity)
	assert.True(t, l.opts.ownsClient)

	_, _, err = m.Get(context.Background(), "down")
	assert.ErrorIs(t, err, layer.ErrInvalidChannelLayer)
}
