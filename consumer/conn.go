package consumer

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/infigaming-com/go-channels/errors"
	"github.com/infigaming-com/go-channels/layer"
	"github.com/infigaming-com/go-channels/message"
)

// Phase is where a connection is in its life.
type Phase int32

const (
	Connecting Phase = iota
	Active
	Closed
)

func (p Phase) String() string {
	switch p {
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is the state of one connection. Handlers of a connection never run
// concurrently, but the accessors may be used from other goroutines.
type Conn struct {
	endpoint  *Endpoint
	transport Transport
	lg        *zap.Logger
	phase     atomic.Int32

	backend layer.Backend
	channel string

	mu     sync.Mutex
	groups map[string]struct{}
}

func newConn(e *Endpoint, t Transport, lg *zap.Logger) *Conn {
	return &Conn{
		endpoint:  e,
		transport: t,
		lg:        lg,
		groups:    map[string]struct{}{},
	}
}

func (c *Conn) Phase() Phase {
	return Phase(c.phase.Load())
}

func (c *Conn) setPhase(p Phase) {
	c.phase.Store(int32(p))
}

func (c *Conn) attach(backend layer.Backend, channel string) {
	c.backend = backend
	c.channel = channel
	c.lg = c.lg.With(zap.String("channel", channel))
}

// ChannelName is the connection's own channel, or "" without a channel layer.
func (c *Conn) ChannelName() string {
	return c.channel
}

// Layer returns the channel layer, or nil for a transport-only connection.
func (c *Conn) Layer() layer.Backend {
	return c.backend
}

// Groups returns the groups the connection joined, sorted.
func (c *Conn) Groups() []string {
	c.mu.Lock()
	groups := lo.Keys(c.groups)
	c.mu.Unlock()
	slices.Sort(groups)
	return groups
}

func (c *Conn) Logger() *zap.Logger {
	return c.lg
}

// Send passes msg to the transport.
func (c *Conn) Send(ctx context.Context, msg message.Message) error {
	return c.transport.Send(ctx, msg)
}

func (c *Conn) SendText(ctx context.Context, text string) error {
	return c.Send(ctx, message.New(message.TypeSend, map[string]any{message.FieldText: text}))
}

func (c *Conn) SendBytes(ctx context.Context, data []byte) error {
	return c.Send(ctx, message.New(message.TypeSend, map[string]any{message.FieldBytes: data}))
}

// SendJSON sends v encoded as a JSON text frame.
func (c *Conn) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.SendText(ctx, string(data))
}

// Close asks the transport to close with code.
func (c *Conn) Close(ctx context.Context, code int) error {
	return c.Send(ctx, message.New(message.TypeClose, map[string]any{message.FieldCode: code}))
}

// Stop returns ErrStop so handlers can end the connection with `return c.Stop()`.
func (c *Conn) Stop() error {
	return ErrStop
}

func (c *Conn) GroupAdd(ctx context.Context, group string) error {
	if err := c.requireLayer(); err != nil {
		return err
	}
	if err := c.backend.GroupAdd(ctx, group, c.channel); err != nil {
		return err
	}
	c.mu.Lock()
	c.groups[group] = struct{}{}
	c.mu.Unlock()
	return nil
}

func (c *Conn) GroupDiscard(ctx context.Context, group string) error {
	if err := c.requireLayer(); err != nil {
		return err
	}
	if err := c.backend.GroupDiscard(ctx, group, c.channel); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.groups, group)
	c.mu.Unlock()
	return nil
}

// GroupSend broadcasts msg to group, whether or not this connection is a member.
func (c *Conn) GroupSend(ctx context.Context, group string, msg message.Message) error {
	if err := c.requireLayer(); err != nil {
		return err
	}
	if err := c.backend.GroupSend(ctx, group, msg); err != nil {
		return err
	}
	c.endpoint.instruments.GroupSent(ctx, group)
	return nil
}

// SendTo delivers msg to a single channel, e.g. one learnt from another
// connection's ChannelName.
func (c *Conn) SendTo(ctx context.Context, channel string, msg message.Message) error {
	if err := c.requireLayer(); err != nil {
		return err
	}
	sender, ok := c.backend.(layer.ChannelSender)
	if !ok {
		return errors.NewError(ErrCodeUnsupported, "channel layer cannot address single channels", ErrUnsupported)
	}
	return sender.Send(ctx, channel, msg)
}

func (c *Conn) requireLayer() error {
	if c.backend == nil {
		return errors.NewError(ErrCodeNoChannelLayer, "connection has no channel layer", ErrNoChannelLayer)
	}
	return nil
}
