// Package consumer serves one connection at a time on behalf of an Endpoint:
// it accepts the connection, gives it a channel on the channel layer, joins
// it to the broadcast group and then routes every message from the client
// or from the layer to the handler registered for its type.
package consumer

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/infigaming-com/go-channels/errors"
	"github.com/infigaming-com/go-channels/layer"
	"github.com/infigaming-com/go-channels/message"
	"github.com/infigaming-com/go-channels/mux"
	"github.com/infigaming-com/go-channels/observability/metrics"
	"github.com/infigaming-com/go-channels/util"
)

// ErrStop ends a connection cleanly when returned by a handler or hook.
var ErrStop = mux.ErrStop

// Transport is the client side of a connection. Receive must return once
// ctx is cancelled without losing a frame.
type Transport interface {
	Receive(ctx context.Context) (message.Message, error)
	Send(ctx context.Context, msg message.Message) error
}

// Handler processes one message on a connection.
type Handler func(ctx context.Context, c *Conn, msg message.Message) error

// Endpoint is a connection type: its configuration and handler table are
// fixed at construction and shared by every connection it serves.
type Endpoint struct {
	lg           *zap.Logger
	layers       *layer.Manager
	alias        string
	group        string
	encoding     message.Encoding
	onConnect    ConnectHook
	onReceive    ReceiveHook
	onDisconnect DisconnectHook
	handlers     map[string]Handler
	instruments  *metrics.Instruments
}

// NewEndpoint builds an endpoint resolving its channel layer through layers.
// A nil manager serves every connection transport-only.
func NewEndpoint(layers *layer.Manager, opts ...Option) (*Endpoint, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if _, err := message.ParseEncoding(string(o.encoding)); err != nil {
		return nil, err
	}
	if err := layer.ValidateName("group", o.group); err != nil {
		return nil, err
	}
	if o.alias == "" {
		return nil, errors.NewError(ErrCodeInvalidOption, "channel layer alias must not be empty", nil)
	}

	instruments, err := metrics.NewInstruments(o.meter)
	if err != nil {
		return nil, errors.NewError(ErrCodeInvalidOption, "failed to create connection metrics", err)
	}

	e := &Endpoint{
		lg:           o.lg,
		layers:       layers,
		alias:        o.alias,
		group:        o.group,
		encoding:     o.encoding,
		onConnect:    o.onConnect,
		onReceive:    o.onReceive,
		onDisconnect: o.onDisconnect,
		instruments:  instruments,
	}
	if e.handlers, err = e.buildHandlers(o.handlers); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Endpoint) buildHandlers(regs []registration) (map[string]Handler, error) {
	handlers := map[string]Handler{
		"websocket_connect":    func(context.Context, *Conn, message.Message) error { return nil },
		"websocket_receive":    e.websocketReceive,
		"websocket_disconnect": e.websocketDisconnect,
	}
	builtin := len(handlers)
	registered := make(map[string]string, len(regs))
	for _, reg := range regs {
		name, err := message.TypeHandlerName(reg.msgType)
		if err != nil {
			return nil, errors.Errorf(ErrCodeInvalidHandler, ErrInvalidHandler, "cannot register handler for %q: %v", reg.msgType, err)
		}
		if reg.handler == nil {
			return nil, errors.Errorf(ErrCodeInvalidHandler, ErrInvalidHandler, "handler for %q is nil", reg.msgType)
		}
		// "chat.message" and "chat_message" land on the same handler.
		if prev, dup := registered[name]; dup {
			return nil, errors.Errorf(ErrCodeDuplicateHandler, ErrInvalidHandler, "handler %s registered for both %q and %q", name, prev, reg.msgType)
		}
		registered[name] = reg.msgType
		handlers[name] = reg.handler
	}
	e.lg.Debug("endpoint handlers built", zap.Int("builtin", builtin), zap.Int("registered", len(regs)))
	return handlers, nil
}

// Serve runs one connection until it stops or fails. It returns nil when a
// handler or hook stopped the connection with ErrStop, the failing error
// otherwise. The transport is left open for the caller to close.
func (e *Endpoint) Serve(ctx context.Context, t Transport) (err error) {
	c := newConn(e, t, e.connLogger(ctx))
	e.instruments.ConnectionOpened(ctx)
	defer func() {
		c.setPhase(Closed)
		outcome := "ok"
		if err != nil {
			outcome = "error"
			c.lg.Warn("connection failed", zap.Error(err))
		} else {
			c.lg.Debug("connection closed")
		}
		e.instruments.ConnectionClosed(ctx, outcome)
	}()

	if err := e.onConnect(ctx, c); err != nil {
		if stderrors.Is(err, ErrStop) {
			return nil
		}
		if cerr := c.Close(ctx, message.CloseInternalError); cerr != nil {
			c.lg.Warn("failed to close rejected connection", zap.Error(cerr))
		}
		return err
	}

	sources := []mux.Source[message.Message]{t.Receive}

	backend, ok, err := e.channelLayer(ctx)
	switch {
	case err != nil:
		return err
	case ok:
		channel, err := backend.NewChannel(ctx)
		if err != nil {
			return err
		}
		c.attach(backend, channel)
		if err := c.GroupAdd(ctx, e.group); err != nil {
			return err
		}
		sources = append(sources, func(ctx context.Context) (message.Message, error) {
			return backend.Receive(ctx, channel)
		})
	default:
		c.lg.Debug("channel layer not configured, serving transport only", zap.String("alias", e.alias))
	}

	c.setPhase(Active)
	c.lg.Debug("connection active", zap.String("channel", c.ChannelName()))
	return mux.Run(ctx, sources, func(ctx context.Context, msg message.Message) error {
		return e.dispatch(ctx, c, msg)
	})
}

func (e *Endpoint) channelLayer(ctx context.Context) (layer.Backend, bool, error) {
	if e.layers == nil {
		return nil, false, nil
	}
	return e.layers.Get(ctx, e.alias)
}

func (e *Endpoint) dispatch(ctx context.Context, c *Conn, msg message.Message) error {
	name, err := message.HandlerName(msg)
	if err != nil {
		e.instruments.MessageDispatched(ctx, "", true)
		return err
	}
	h, ok := e.handlers[name]
	if !ok {
		e.instruments.MessageDispatched(ctx, "", true)
		return errors.Errorf(message.ErrCodeNoHandler, message.ErrRouting, "no handler for message type %s", msg.Type())
	}

	err = h(ctx, c, msg)
	e.instruments.MessageDispatched(ctx, name, err != nil && !stderrors.Is(err, ErrStop))
	return err
}

func (e *Endpoint) websocketReceive(ctx context.Context, c *Conn, msg message.Message) error {
	data, err := message.Decode(e.encoding, msg)
	if err != nil {
		if cerr := c.Close(ctx, message.CloseUnsupportedData); cerr != nil {
			c.lg.Warn("failed to close connection after decode error", zap.Error(cerr))
		}
		return err
	}
	return e.onReceive(ctx, c, data)
}

// websocketDisconnect runs the disconnect hook, leaves every group and stops.
func (e *Endpoint) websocketDisconnect(ctx context.Context, c *Conn, msg message.Message) error {
	code := msg.Code(message.CloseAbnormal)
	c.lg.Debug("client disconnected", zap.Int("code", code))

	var errs []error
	if err := e.onDisconnect(ctx, c, code); err != nil && !stderrors.Is(err, ErrStop) {
		errs = append(errs, err)
	}
	for _, group := range c.Groups() {
		if err := c.GroupDiscard(ctx, group); err != nil {
			errs = append(errs, err)
		}
	}
	if err := stderrors.Join(errs...); err != nil {
		return err
	}
	return ErrStop
}

func (e *Endpoint) connLogger(ctx context.Context) *zap.Logger {
	id, err := util.CorrelationIdFromCtx(ctx)
	if err != nil {
		id = util.NewUUID()
	}
	return e.lg.With(zap.String("connection_id", id))
}
