// Package inmem is a channel layer that lives inside the process. It is the
// backend of choice for tests and single instance deployments; import it for
// its side effect to make the "inmem" backend identifier available.
package inmem

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/infigaming-com/go-channels/errors"
	"github.com/infigaming-com/go-channels/layer"
	"github.com/infigaming-com/go-channels/message"
	"github.com/infigaming-com/go-channels/uid"
	"github.com/infigaming-com/go-channels/util"
)

const Identifier = "inmem"

const (
	defaultCapacity    = 100
	defaultExpiry      = 60 * time.Second
	defaultGroupExpiry = 24 * time.Hour
	channelPrefix      = "specific.inmem!"
)

func init() {
	layer.Register(Identifier, func(_ context.Context, lg *zap.Logger, cfg map[string]any) (layer.Backend, error) {
		return New(
			WithLogger(lg),
			WithCapacity(int(util.GetMapInt(cfg, "capacity", defaultCapacity))),
			WithExpiry(util.GetMapSeconds(cfg, "expiry", defaultExpiry)),
			WithGroupExpiry(util.GetMapSeconds(cfg, "group_expiry", defaultGroupExpiry)),
		), nil
	})
}

type Option func(*Layer)

func WithLogger(lg *zap.Logger) Option {
	return func(l *Layer) {
		if lg != nil {
			l.lg = lg
		}
	}
}

// WithCapacity bounds the number of queued messages per channel.
func WithCapacity(n int) Option {
	return func(l *Layer) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithExpiry sets how long an inbox nobody is receiving from survives its
// last message. Expired inboxes are dropped with their queued messages.
func WithExpiry(d time.Duration) Option {
	return func(l *Layer) {
		if d > 0 {
			l.expiry = d
		}
	}
}

// WithGroupExpiry sets how long a membership lasts without being renewed by GroupAdd.
func WithGroupExpiry(d time.Duration) Option {
	return func(l *Layer) {
		if d > 0 {
			l.groupExpiry = d
		}
	}
}

type Layer struct {
	lg          *zap.Logger
	ids         uid.UID
	capacity    int
	expiry      time.Duration
	groupExpiry time.Duration
	now         func() time.Time

	mu        sync.RWMutex
	channels  map[string]*inbox
	groups    map[string]map[string]time.Time
	lastSweep time.Time
	done      chan struct{}
	closed    bool
}

// inbox is the queue of one channel. It is removed from the layer once no
// Receive is waiting on it and it is either empty or expired.
type inbox struct {
	q         chan message.Message
	receivers int
	expires   time.Time
}

var (
	_ layer.Backend       = (*Layer)(nil)
	_ layer.ChannelSender = (*Layer)(nil)
	_ layer.Flusher       = (*Layer)(nil)
	_ layer.Closer        = (*Layer)(nil)
)

func New(opts ...Option) *Layer {
	l := &Layer{
		lg:          zap.L(),
		ids:         uid.NewUUIDV7(),
		capacity:    defaultCapacity,
		expiry:      defaultExpiry,
		groupExpiry: defaultGroupExpiry,
		now:         time.Now,
		channels:    map[string]*inbox{},
		groups:      map[string]map[string]time.Time{},
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Layer) NewChannel(ctx context.Context) (string, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return "", errClosed()
	}
	l.sweepLocked()
	l.mu.Unlock()

	id, err := l.ids.New(ctx)
	if err != nil {
		return "", err
	}
	return channelPrefix + id, nil
}

func (l *Layer) GroupAdd(_ context.Context, group, channel string) error {
	if err := validate(group, channel); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errClosed()
	}
	members, ok := l.groups[group]
	if !ok {
		members = map[string]time.Time{}
		l.groups[group] = members
	}
	members[channel] = l.now()
	return nil
}

func (l *Layer) GroupDiscard(_ context.Context, group, channel string) error {
	if err := validate(group, channel); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errClosed()
	}
	members, ok := l.groups[group]
	if !ok {
		return nil
	}
	delete(members, channel)
	if len(members) == 0 {
		delete(l.groups, group)
	}
	return nil
}

func (l *Layer) GroupSend(ctx context.Context, group string, msg message.Message) error {
	if err := layer.ValidateName("group", group); err != nil {
		return err
	}
	members, err := l.members(group)
	if err != nil {
		return err
	}
	for _, channel := range members {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !l.push(channel, msg.Clone()) {
			l.lg.Warn("channel full, dropping group message", zap.String("group", group), zap.String("channel", channel))
		}
	}
	return nil
}

func (l *Layer) Send(_ context.Context, channel string, msg message.Message) error {
	if err := layer.ValidateName("channel", channel); err != nil {
		return err
	}
	if err := l.guard(); err != nil {
		return err
	}
	if !l.push(channel, msg.Clone()) {
		return errors.Errorf(layer.ErrCodeChannelFull, layer.ErrChannelFull, "channel %s is full", channel)
	}
	return nil
}

func (l *Layer) Receive(ctx context.Context, channel string) (message.Message, error) {
	if err := layer.ValidateName("channel", channel); err != nil {
		return nil, err
	}
	// A queued message must stay queued for a caller that already gave up.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ib, err := l.acquire(channel)
	if err != nil {
		return nil, err
	}
	select {
	case msg := <-ib.q:
		l.release(channel, ib, false)
		return msg, nil
	case <-ctx.Done():
		l.release(channel, ib, true)
		return nil, ctx.Err()
	case <-l.done:
		l.release(channel, ib, true)
		return nil, errClosed()
	}
}

// Flush drops every queued message and membership.
func (l *Layer) Flush(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	// Queues with pending receivers are drained rather than replaced so they keep listening.
	for channel, ib := range l.channels {
		if ib.receivers == 0 {
			delete(l.channels, channel)
			continue
		}
		for drained := false; !drained; {
			select {
			case <-ib.q:
			default:
				drained = true
			}
		}
	}
	l.groups = map[string]map[string]time.Time{}
	return nil
}

// Close flushes the layer and wakes every pending Receive with ErrClosed.
func (l *Layer) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.done)
	l.mu.Unlock()
	return l.Flush(ctx)
}

// members snapshots the live members of group, pruning expired ones along
// with expired inboxes.
func (l *Layer) members(group string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, errClosed()
	}
	l.sweepLocked()
	cutoff := l.now().Add(-l.groupExpiry)
	out := make([]string, 0, len(l.groups[group]))
	for channel, joined := range l.groups[group] {
		if joined.Before(cutoff) {
			delete(l.groups[group], channel)
			continue
		}
		out = append(out, channel)
	}
	if len(out) == 0 {
		delete(l.groups, group)
	}
	return out, nil
}

// push queues msg on channel without blocking and reports whether it fit.
// Pushes hold the lock so an inbox cannot be removed while a message goes in.
func (l *Layer) push(channel string, msg message.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	ib := l.inboxLocked(channel)
	select {
	case ib.q <- msg:
		ib.expires = l.now().Add(l.expiry)
		return true
	default:
		return false
	}
}

func (l *Layer) acquire(channel string) (*inbox, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, errClosed()
	}
	ib := l.inboxLocked(channel)
	ib.receivers++
	return ib, nil
}

// release ends a Receive. An inbox left without receivers is removed when the
// Receive came back empty handed and nothing is queued.
func (l *Layer) release(channel string, ib *inbox, idle bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ib.receivers--
	if idle && ib.receivers == 0 && len(ib.q) == 0 && l.channels[channel] == ib {
		delete(l.channels, channel)
	}
}

// inboxLocked returns the inbox of channel, replacing one that expired
// while nobody was receiving. l.mu must be held for writing.
func (l *Layer) inboxLocked(channel string) *inbox {
	now := l.now()
	if ib, ok := l.channels[channel]; ok {
		if ib.receivers > 0 || now.Before(ib.expires) {
			return ib
		}
	}
	ib := &inbox{
		q:       make(chan message.Message, l.capacity),
		expires: now.Add(l.expiry),
	}
	l.channels[channel] = ib
	return ib
}

// sweepLocked drops expired inboxes nobody receives from, at most once per
// expiry period. l.mu must be held for writing.
func (l *Layer) sweepLocked() {
	now := l.now()
	if now.Sub(l.lastSweep) < l.expiry {
		return
	}
	l.lastSweep = now
	for channel, ib := range l.channels {
		if ib.receivers == 0 && !now.Before(ib.expires) {
			delete(l.channels, channel)
		}
	}
}

func (l *Layer) guard() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
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
	return errors.NewError(layer.ErrCodeClosed, "inmem channel layer is closed", layer.ErrClosed)
}
