package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ScopeName is the instrumentation scope of the channel instruments.
const ScopeName = "github.com/infigaming-com/go-channels"

// Instrument names.
const (
	Connections       = "channels.connections"
	ActiveConnections = "channels.connections.active"
	Dispatched        = "channels.dispatched"
	DispatchErrors    = "channels.dispatch.errors"
	GroupSends        = "channels.group.sends"
)

// Instruments records what connections do.
type Instruments struct {
	connections    metric.Int64Counter
	active         metric.Int64UpDownCounter
	dispatched     metric.Int64Counter
	dispatchErrors metric.Int64Counter
	groupSends     metric.Int64Counter
}

// NewInstruments creates the instruments on meter, or on the global meter
// provider when meter is nil.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	if meter == nil {
		meter = otel.Meter(ScopeName)
	}

	var (
		i   Instruments
		err error
	)
	if i.connections, err = meter.Int64Counter(Connections,
		metric.WithDescription("Connections served, by outcome"),
		metric.WithUnit("{connection}"),
	); err != nil {
		return nil, err
	}
	if i.active, err = meter.Int64UpDownCounter(ActiveConnections,
		metric.WithDescription("Connections currently being served"),
		metric.WithUnit("{connection}"),
	); err != nil {
		return nil, err
	}
	if i.dispatched, err = meter.Int64Counter(Dispatched,
		metric.WithDescription("Messages dispatched to a handler"),
		metric.WithUnit("{message}"),
	); err != nil {
		return nil, err
	}
	if i.dispatchErrors, err = meter.Int64Counter(DispatchErrors,
		metric.WithDescription("Messages whose routing or handler failed"),
		metric.WithUnit("{message}"),
	); err != nil {
		return nil, err
	}
	if i.groupSends, err = meter.Int64Counter(GroupSends,
		metric.WithDescription("Messages broadcast to a group"),
		metric.WithUnit("{message}"),
	); err != nil {
		return nil, err
	}
	return &i, nil
}

func (i *Instruments) ConnectionOpened(ctx context.Context) {
	i.active.Add(ctx, 1)
}

// ConnectionClosed records the end of a connection; outcome is "ok" or "error".
func (i *Instruments) ConnectionClosed(ctx context.Context, outcome string) {
	i.active.Add(ctx, -1)
	i.connections.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// MessageDispatched records one dispatch; handler is "" when routing failed.
func (i *Instruments) MessageDispatched(ctx context.Context, handler string, failed bool) {
	attrs := metric.WithAttributes(attribute.String("handler", handler))
	i.dispatched.Add(ctx, 1, attrs)
	if failed {
		i.dispatchErrors.Add(ctx, 1, attrs)
	}
}

func (i *Instruments) GroupSent(ctx context.Context, group string) {
	i.groupSends.Add(ctx, 1, metric.WithAttributes(attribute.String("group", group)))
}
