// Package redis is a channel layer backed by redis, so that connections
// served by different processes can share groups. Importing it registers the
// "redis" backend identifier.
//
// Every channel has an inbox list under "<prefix>:<channel>" and every group a
// sorted set under "<prefix>:group:<group>" scored by join time. Messages are
// stored as JSON, so numbers come back as float64 and bytes as base64 strings.
package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"sync/atomic"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/infigaming-com/go-channels/errors"
	"github.com/infigaming-com/go-channels/layer"
	"github.com/infigaming-com/go-channels/message"
	"github.com/infigaming-com/go-channels/uid"
	"github.com/infigaming-com/go-channels/util"
)

const Identifier = "redis"

const channelPrefix = "specific."

var (
	groupSendScript = goredis.NewScript(groupSendLua)
	sendScript      = goredis.NewScript(sendLua)
)

func init() {
	layer.Register(Identifier, func(ctx context.Context, lg *zap.Logger, cfg map[string]any) (layer.Backend, error) {
		client, err := util.NewRedisClient(ctx,
			util.GetMapValue(cfg, "addr", defaultAddr),
			util.GetMapInt(cfg, "db", 0),
			util.GetMapSeconds(cfg, "connect_timeout", defaultConnectTimeout),
		)
		if err != nil {
			return nil, err
		}
		return New(client,
			WithLogger(lg),
			WithOwnedClient(),
			WithPrefix(util.GetMapValue(cfg, "prefix", defaultPrefix)),
			WithExpiry(util.GetMapSeconds(cfg, "expiry", defaultExpiry)),
			WithGroupExpiry(util.GetMapSeconds(cfg, "group_expiry", defaultGroupExpiry)),
			WithCapacity(util.GetMapInt(cfg, "capacity", defaultCapacity)),
			WithPollTimeout(util.GetMapSeconds(cfg, "poll_timeout", defaultPollTimeout)),
		), nil
	})
}

type Layer struct {
	client goredis.UniversalClient
	ids    uid.UID
	opts   *options
	closed atomic.Bool
}

var (
	_ layer.Backend       = (*Layer)(nil)
	_ layer.ChannelSender = (*Layer)(nil)
	_ layer.Flusher       = (*Layer)(nil)
	_ layer.Closer        = (*Layer)(nil)
)

// New creates a layer on top of client. The client is left open by Close
// unless WithOwnedClient is given.
func New(client goredis.UniversalClient, opts ...Option) *Layer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Layer{
		client: client,
		ids:    uid.NewRedisUID(client, o.prefix),
		opts:   o,
	}
}

func (l *Layer) NewChannel(ctx context.Context) (string, error) {
	if err := l.guard(); err != nil {
		return "", err
	}
	id, err := l.ids.New(ctx)
	if err != nil {
		return "", err
	}
	return channelPrefix + id, nil
}

func (l *Layer) GroupAdd(ctx context.Context, group, channel string) error {
	if err := validate(group, channel); err != nil {
		return err
	}
	if err := l.guard(); err != nil {
		return err
	}
	key := l.groupKey(group)
	_, err := l.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAdd(ctx, key, goredis.Z{Score: float64(l.opts.now().Unix()), Member: channel})
		pipe.Expire(ctx, key, l.opts.groupExpiry)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis layer: group add %s: %w", group, err)
	}
	return nil
}

func (l *Layer) GroupDiscard(ctx context.Context, group, channel string) error {
	if err := validate(group, channel); err != nil {
		return err
	}
	if err := l.guard(); err != nil {
		return err
	}
	if err := l.client.ZRem(ctx, l.groupKey(group), channel).Err(); err != nil {
		return fmt.Errorf("redis layer: group discard %s: %w", group, err)
	}
	return nil
}

func (l *Layer) GroupSend(ctx context.Context, group string, msg message.Message) error {
	if err := layer.ValidateName("group", group); err != nil {
		return err
	}
	if err := l.guard(); err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redis layer: encode message: %w", err)
	}
	cutoff := l.opts.now().Add(-l.opts.groupExpiry).Unix()
	delivered, err := groupSendScript.Run(ctx, l.client,
		[]string{l.groupKey(group)},
		strconv.FormatInt(cutoff, 10), payload, l.opts.capacity, int(l.opts.expiry.Seconds()), l.opts.prefix+":",
	).Int64()
	if err != nil {
		return fmt.Errorf("redis layer: group send %s: %w", group, err)
	}
	l.opts.lg.Debug("group message sent", zap.String("group", group), zap.Int64("delivered", delivered))
	return nil
}

func (l *Layer) Send(ctx context.Context, channel string, msg message.Message) error {
	if err := layer.ValidateName("channel", channel); err != nil {
		return err
	}
	if err := l.guard(); err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redis layer: encode message: %w", err)
	}
	pushed, err := sendScript.Run(ctx, l.client,
		[]string{l.channelKey(channel)},
		payload, l.opts.capacity, int(l.opts.expiry.Seconds()),
	).Int64()
	if err != nil {
		return fmt.Errorf("redis layer: send %s: %w", channel, err)
	}
	if pushed == 0 {
		return errors.Errorf(layer.ErrCodeChannelFull, layer.ErrChannelFull, "channel %s is full", channel)
	}
	return nil
}

// Receive polls the inbox with BLPOP. The command itself is never cancelled,
// since a reply dropped on the floor would lose a popped message; ctx is
// honoured between polls instead, and a message popped after ctx ended is
// pushed back to the head of the inbox.
func (l *Layer) Receive(ctx context.Context, channel string) (message.Message, error) {
	if err := layer.ValidateName("channel", channel); err != nil {
		return nil, err
	}
	key := l.channelKey(channel)
	pollCtx := context.WithoutCancel(ctx)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := l.guard(); err != nil {
			return nil, err
		}
		res, err := l.client.BLPop(pollCtx, l.opts.pollTimeout, key).Result()
		switch {
		case stderrors.Is(err, goredis.Nil):
			continue
		case stderrors.Is(err, goredis.ErrClosed):
			return nil, errClosed()
		case err != nil:
			return nil, fmt.Errorf("redis layer: receive %s: %w", channel, err)
		}

		// BLPOP replies with [key, value].
		if err := ctx.Err(); err != nil {
			// The caller gave up while the pop was in flight; requeue at the head.
			if perr := l.client.LPush(pollCtx, key, res[1]).Err(); perr != nil {
				l.opts.lg.Error("failed to requeue message after cancellation", zap.String("channel", channel), zap.Error(perr))
			}
			return nil, err
		}
		var msg message.Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			l.opts.lg.Error("dropping undecodable message", zap.String("channel", channel), zap.Error(err))
			continue
		}
		return msg, nil
	}
}

// Flush deletes every key under the layer prefix.
func (l *Layer) Flush(ctx context.Context) error {
	iter := l.client.Scan(ctx, 0, l.opts.prefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis layer: flush: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := l.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis layer: flush: %w", err)
	}
	return nil
}

func (l *Layer) Close(_ context.Context) error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	if l.opts.ownsClient {
		return l.client.Close()
	}
	return nil
}

func (l *Layer) channelKey(channel string) string {
	return l.opts.prefix + ":" + channel
}

func (l *Layer) groupKey(group string) string {
	return l.opts.prefix + ":group:" + group
}

func (l *Layer) guard() error {
	if l.closed.Load() {
		return errClosed()
	}
	return nil
}

func validate(group, channel string) error {
	if err := layer.ValidateName("group", group); err != nil {
		return err
	}
	return layer.ValidateName("channel", channel)
}

func errClosed() error {
	return errors.NewError(layer.ErrCodeClosed, "redis channel layer is closed", layer.ErrClosed)
}
