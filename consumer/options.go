package consumer

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/infigaming-com/go-channels/layer"
	"github.com/infigaming-com/go-channels/message"
)

// DefaultGroup is the broadcast group every connection joins.
const DefaultGroup = "chat_asgi_room"

// ConnectHook runs before anything else. The default accepts the connection;
// returning ErrStop rejects it quietly.
type ConnectHook func(ctx context.Context, c *Conn) error

// ReceiveHook gets the decoded payload of every frame the client sends.
type ReceiveHook func(ctx context.Context, c *Conn, data any) error

// DisconnectHook runs when the transport reports the client went away,
// before the connection leaves its groups.
type DisconnectHook func(ctx context.Context, c *Conn, code int) error

type Option func(*options)

type registration struct {
	msgType string
	handler Handler
}

type options struct {
	lg           *zap.Logger
	alias        string
	group        string
	encoding     message.Encoding
	onConnect    ConnectHook
	onReceive    ReceiveHook
	onDisconnect DisconnectHook
	handlers     []registration
	meter        metric.Meter
}

func defaultOptions() *options {
	return &options{
		lg:           zap.L(),
		alias:        layer.DefaultAlias,
		group:        DefaultGroup,
		encoding:     message.EncodingRaw,
		onConnect:    accept,
		onReceive:    func(context.Context, *Conn, any) error { return nil },
		onDisconnect: func(context.Context, *Conn, int) error { return nil },
	}
}

func WithLogger(lg *zap.Logger) Option {
	return func(o *options) {
		if lg != nil {
			o.lg = lg
		}
	}
}

// WithChannelLayerAlias picks the channel layer connections use. Default: "default".
func WithChannelLayerAlias(alias string) Option {
	return func(o *options) {
		o.alias = alias
	}
}

// WithGroup sets the group every connection joins. Default: "chat_asgi_room".
func WithGroup(group string) Option {
	return func(o *options) {
		o.group = group
	}
}

// WithEncoding sets how client frames are decoded before the receive hook. Default: raw.
func WithEncoding(enc message.Encoding) Option {
	return func(o *options) {
		o.encoding = enc
	}
}

func WithConnectHook(h ConnectHook) Option {
	return func(o *options) {
		if h != nil {
			o.onConnect = h
		}
	}
}

func WithReceiveHook(h ReceiveHook) Option {
	return func(o *options) {
		if h != nil {
			o.onReceive = h
		}
	}
}

func WithDisconnectHook(h DisconnectHook) Option {
	return func(o *options) {
		if h != nil {
			o.onDisconnect = h
		}
	}
}

// WithHandler handles messages of msgType, e.g. "chat.message". A handler
// for one of the websocket event types replaces the built-in one.
func WithHandler(msgType string, h Handler) Option {
	return func(o *options) {
		o.handlers = append(o.handlers, registration{msgType: msgType, handler: h})
	}
}

// WithMeter sets the meter for connection metrics. Default: the global meter provider.
func WithMeter(m metric.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}

func accept(ctx context.Context, c *Conn) error {
	return c.Send(ctx, message.New(message.TypeAccept, nil))
}
