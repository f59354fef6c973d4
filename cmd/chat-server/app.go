package main

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/infigaming-com/go-channels/config"
	"github.com/infigaming-com/go-channels/consumer"
	"github.com/infigaming-com/go-channels/layer"
	"github.com/infigaming-com/go-channels/message"
)

const chatMessageType = "chat.message"

// newChatEndpoint is a single room chat: every text a client sends is
// broadcast to the room and written back to every member.
func newChatEndpoint(lg *zap.Logger, layers *layer.Manager, chat config.ChatConfig, meter metric.Meter) (*consumer.Endpoint, error) {
	encoding, err := message.ParseEncoding(chat.Encoding)
	if err != nil {
		return nil, err
	}
	group := chat.Group

	return consumer.NewEndpoint(layers,
		consumer.WithLogger(lg),
		consumer.WithChannelLayerAlias(chat.ChannelLayer),
		consumer.WithGroup(group),
		consumer.WithEncoding(encoding),
		consumer.WithMeter(meter),
		consumer.WithReceiveHook(func(ctx context.Context, c *consumer.Conn, data any) error {
			text, ok := data.(string)
			if !ok {
				if b, isBytes := data.([]byte); isBytes {
					text = string(b)
				}
			}
			if c.Layer() == nil {
				// Without a channel layer there is no room; echo instead.
				return c.SendText(ctx, text)
			}
			return c.GroupSend(ctx, group, message.New(chatMessageType, map[string]any{"message": text}))
		}),
		consumer.WithHandler(chatMessageType, func(ctx context.Context, c *consumer.Conn, msg message.Message) error {
			text, _ := msg["message"].(string)
			c.Logger().Debug("got new chat message")
			return c.SendText(ctx, text)
		}),
		consumer.WithDisconnectHook(func(_ context.Context, c *consumer.Conn, code int) error {
			c.Logger().Info("chat member left", zap.Int("code", code))
			return nil
		}),
	)
}
