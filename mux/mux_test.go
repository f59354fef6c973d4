package mux

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feed returns a source that yields the values sent on ch, honoring ctx.
func feed(ch <-chan string) Source[string] {
	return func(ctx context.Context) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case v := <-ch:
			return v, nil
		}
	}
}

// blocked returns a source that only returns on cancellation and records it.
func blocked(cancelled *atomic.Int32) Source[string] {
	return func(ctx context.Context) (string, error) {
		<-ctx.Done()
		cancelled.Add(1)
		return "", ctx.Err()
	}
}

func TestRun_NoSources(t *testing.T) {
	err := Run(context.Background(), nil, func(context.Context, string) error { return nil })
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestRun_DispatchesInArrivalOrderAndStops(t *testing.T) {
	ch := make(chan string, 3)
	ch <- "a"
	ch <- "b"
	ch <- "stop"

	var got []string
	err := Run(context.Background(), []Source[string]{feed(ch)}, func(_ context.Context, v string) error {
		got = append(got, v)
		if v == "stop" {
			return ErrStop
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "stop"}, got)
}

func TestRun_StopCancelsOtherSources(t *testing.T) {
	var cancelled atomic.Int32
	ch := make(chan string, 1)
	ch <- "bye"

	err := Run(context.Background(), []Source[string]{blocked(&cancelled), feed(ch), blocked(&cancelled)},
		func(context.Context, string) error { return ErrStop })

	require.NoError(t, err)
	assert.Equal(t, int32(2), cancelled.Load())
}

func TestRun_WrappedStopIsClean(t *testing.T) {
	ch := make(chan string, 1)
	ch <- "x"
	err := Run(context.Background(), []Source[string]{feed(ch)}, func(context.Context, string) error {
		return errors.Join(errors.New("closing"), ErrStop)
	})
	assert.NoError(t, err)
}

func TestRun_DispatchErrorPropagates(t *testing.T) {
	var cancelled atomic.Int32
	boom := errors.New("boom")
	ch := make(chan string, 1)
	ch <- "x"

	err := Run(context.Background(), []Source[string]{feed(ch), blocked(&cancelled)},
		func(context.Context, string) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), cancelled.Load())
}

func TestRun_SourceErrorPropagates(t *testing.T) {
	var cancelled atomic.Int32
	broken := errors.New("transport broken")
	failing := func(context.Context) (string, error) { return "", broken }

	calls := 0
	err := Run(context.Background(), []Source[string]{blocked(&cancelled), failing},
		func(context.Context, string) error { calls++; return nil })

	assert.ErrorIs(t, err, broken)
	assert.Zero(t, calls)
	assert.Equal(t, int32(1), cancelled.Load())
}

func TestRun_CleanupSurfacesNonCancellationErrors(t *testing.T) {
	leak := errors.New("failed while closing")
	stubborn := func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", leak
	}
	ch := make(chan string, 1)
	ch <- "x"

	err := Run(context.Background(), []Source[string]{stubborn, feed(ch)},
		func(context.Context, string) error { return ErrStop })

	assert.ErrorIs(t, err, leak)
}

func TestRun_CallerCancellation(t *testing.T) {
	var cancelled atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := Run(ctx, []Source[string]{blocked(&cancelled), blocked(&cancelled)},
		func(context.Context, string) error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(2), cancelled.Load())
}

func TestRun_LowerIndexWinsTies(t *testing.T) {
	gate0 := make(chan string)
	gate1 := make(chan string)
	first := make(chan string, 1)
	first <- "x"

	var returned sync.WaitGroup
	returned.Add(2)
	once := func(gate chan string) Source[string] {
		var calls atomic.Int32
		return func(ctx context.Context) (string, error) {
			if calls.Add(1) > 1 {
				<-ctx.Done()
				return "", ctx.Err()
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case v := <-gate:
				returned.Done()
				return v, nil
			}
		}
	}

	var got []string
	err := Run(context.Background(), []Source[string]{once(gate0), once(gate1), feed(first)},
		func(_ context.Context, v string) error {
			got = append(got, v)
			switch v {
			case "x":
				// Both lower slots finish while this dispatch is still running;
				// release the higher one first.
				gate1 <- "from-1"
				gate0 <- "from-0"
				returned.Wait()
				time.Sleep(20 * time.Millisecond)
			case "from-1":
				return ErrStop
			}
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, []string{"x", "from-0", "from-1"}, got)
}

func TestRun_DispatchIsSerialized(t *testing.T) {
	const perSource = 50
	var produced [3]atomic.Int32
	counting := func(i int) Source[int] {
		return func(ctx context.Context) (int, error) {
			if produced[i].Add(1) > perSource {
				<-ctx.Done()
				return 0, ctx.Err()
			}
			return i, nil
		}
	}

	var inFlight, maxInFlight, total atomic.Int32
	err := Run(context.Background(), []Source[int]{counting(0), counting(1), counting(2)},
		func(context.Context, int) error {
			n := inFlight.Add(1)
			if n > maxInFlight.Load() {
				maxInFlight.Store(n)
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
			if total.Add(1) == 3*perSource {
				return ErrStop
			}
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Equal(t, int32(3*perSource), total.Load())
}
