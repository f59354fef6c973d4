// Package websocket serves consumer endpoints over gorilla websockets.
//
// Frames from the client become websocket.receive events and the end of the
// connection becomes exactly one websocket.disconnect event carrying the close
// code (1006 when the peer vanished without a close frame, the local code
// when the server closed first). Outgoing
// websocket.send events are written as text or binary frames and
// websocket.close closes the connection.
package websocket

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/infigaming-com/go-channels/consumer"
	"github.com/infigaming-com/go-channels/errors"
	"github.com/infigaming-com/go-channels/message"
	"github.com/infigaming-com/go-channels/util"
)

var (
	// ErrUnsupportedMessage is returned by Send for events it cannot write.
	ErrUnsupportedMessage = stderrors.New("unsupported outgoing message")
	// ErrClosed is returned once the connection was closed locally.
	ErrClosed = stderrors.New("websocket closed")
)

const (
	ErrCodeUnsupportedMessage = 50000 + iota
	ErrCodeClosed
	ErrCodeWrite
)

type Option func(*options)

type options struct {
	lg             *zap.Logger
	bufferSize     int
	writeTimeout   time.Duration
	readLimit      int64
	allowedOrigins []string
}

func defaultOptions() *options {
	return &options{
		lg:           zap.L(),
		bufferSize:   64,
		writeTimeout: 10 * time.Second,
		readLimit:    1 << 20,
	}
}

func WithLogger(lg *zap.Logger) Option {
	return func(o *options) {
		if lg != nil {
			o.lg = lg
		}
	}
}

// WithBufferSize bounds the frames read ahead of the consumer. Default: 64.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithWriteTimeout bounds every frame write. Default: 10s.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithReadLimit caps the size of a client frame in bytes. Default: 1MiB.
func WithReadLimit(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.readLimit = n
		}
	}
}

// WithAllowedOrigins restricts the Origin header of upgrade requests, see
// util.MakeAllowedOriginValidator. Without it only same-host origins pass.
func WithAllowedOrigins(origins []string) Option {
	return func(o *options) {
		o.allowedOrigins = origins
	}
}

// Transport adapts a websocket connection to consumer.Transport.
type Transport struct {
	conn         *websocket.Conn
	lg           *zap.Logger
	writeTimeout time.Duration

	frames chan message.Message
	done   chan struct{}

	closeCode    atomic.Int64
	disconnected atomic.Bool

	writeMu   sync.Mutex
	closeOnce sync.Once
}

var _ consumer.Transport = (*Transport)(nil)

// New takes over conn and starts reading from it.
func New(conn *websocket.Conn, opts ...Option) *Transport {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return newTransport(conn, o)
}

func newTransport(conn *websocket.Conn, o *options) *Transport {
	conn.SetReadLimit(o.readLimit)
	t := &Transport{
		conn:         conn,
		lg:           o.lg,
		writeTimeout: o.writeTimeout,
		frames:       make(chan message.Message, o.bufferSize),
		done:         make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// Receive returns the next client event. Cancelling ctx leaves queued frames
// in place. Once the connection was closed locally the first call returns the
// websocket.disconnect event with the local close code and later calls fail
// with ErrClosed.
func (t *Transport) Receive(ctx context.Context) (message.Message, error) {
	select {
	case <-t.done:
		return t.closedLocally()
	default:
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-t.frames:
		if msg.Type() == message.TypeDisconnect && !t.disconnected.CompareAndSwap(false, true) {
			return nil, errors.NewError(ErrCodeClosed, "websocket closed", ErrClosed)
		}
		return msg, nil
	case <-t.done:
		return t.closedLocally()
	}
}

func (t *Transport) closedLocally() (message.Message, error) {
	if t.disconnected.CompareAndSwap(false, true) {
		return message.New(message.TypeDisconnect, map[string]any{message.FieldCode: int(t.closeCode.Load())}), nil
	}
	return nil, errors.NewError(ErrCodeClosed, "websocket closed", ErrClosed)
}

func (t *Transport) Send(_ context.Context, msg message.Message) error {
	switch msg.Type() {
	case message.TypeAccept:
		// The upgrade already accepted the connection.
		return nil

	case message.TypeSend:
		if text, ok := msg.Text(); ok {
			return t.write(websocket.TextMessage, []byte(text))
		}
		if data, ok := msg.Bytes(); ok {
			return t.write(websocket.BinaryMessage, data)
		}
		return errors.NewError(ErrCodeUnsupportedMessage, "websocket.send carries neither text nor bytes", ErrUnsupportedMessage)

	case message.TypeClose:
		return t.CloseWith(msg.Code(message.CloseNormal))

	default:
		return errors.Errorf(ErrCodeUnsupportedMessage, ErrUnsupportedMessage, "cannot send %q over a websocket", msg.Type())
	}
}

// CloseWith sends a close frame with code and closes the connection. Only
// the first call has an effect.
func (t *Transport) CloseWith(code int) error {
	var err error
	t.closeOnce.Do(func() {
		t.closeCode.Store(int64(code))
		close(t.done)
		t.writeMu.Lock()
		werr := t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""),
			time.Now().Add(time.Second),
		)
		t.writeMu.Unlock()
		if werr != nil && !stderrors.Is(werr, websocket.ErrCloseSent) {
			t.lg.Debug("failed to send close frame", zap.Int("code", code), zap.Error(werr))
		}
		err = t.conn.Close()
	})
	return err
}

// Close closes the connection normally.
func (t *Transport) Close() error {
	return t.CloseWith(message.CloseNormal)
}

func (t *Transport) write(messageType int, data []byte) error {
	select {
	case <-t.done:
		return errors.NewError(ErrCodeClosed, "websocket closed", ErrClosed)
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	if err := t.conn.WriteMessage(messageType, data); err != nil {
		return errors.NewError(ErrCodeWrite, "failed to write websocket frame", err)
	}
	return nil
}

func (t *Transport) readLoop() {
	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			code := message.CloseAbnormal
			var closeErr *websocket.CloseError
			if stderrors.As(err, &closeErr) {
				code = closeErr.Code
			}
			t.deliver(message.New(message.TypeDisconnect, map[string]any{message.FieldCode: code}))
			return
		}

		var msg message.Message
		switch messageType {
		case websocket.TextMessage:
			msg = message.New(message.TypeReceive, map[string]any{message.FieldText: string(data)})
		case websocket.BinaryMessage:
			msg = message.New(message.TypeReceive, map[string]any{message.FieldBytes: data})
		default:
			continue
		}
		if !t.deliver(msg) {
			return
		}
	}
}

// deliver blocks until the consumer takes msg or the transport is closed.
func (t *Transport) deliver(msg message.Message) bool {
	select {
	case t.frames <- msg:
		return true
	case <-t.done:
		return false
	}
}

// Handler upgrades requests to websockets and serves them with endpoint
// until the connection ends. The request context, and so its correlation
// id, is handed to the endpoint.
func Handler(endpoint *consumer.Endpoint, opts ...Option) http.Handler {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	upgrader := websocket.Upgrader{}
	if len(o.allowedOrigins) > 0 {
		allowed := util.MakeAllowedOriginValidator(o.allowedOrigins)
		upgrader.CheckOrigin = func(r *http.Request) bool {
			return allowed(r.Header.Get("Origin"))
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already replied with an HTTP error.
			o.lg.Warn("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
			return
		}

		t := newTransport(conn, o)
		code := message.CloseNormal
		if err := endpoint.Serve(r.Context(), t); err != nil {
			code = message.CloseInternalError
		}
		_ = t.CloseWith(code)
	})
}
