package dispatcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dstainton-labs/gomtproto/mtperrors"
	"github.com/dstainton-labs/gomtproto/schema"
)

func newTestDispatcher() *Dispatcher {
	return New(Config{})
}

// TestDispatchBreaksAfterFirstMatchPerGroup covers spec.md §8 scenario
// (e)'s default case: H1 and H2 both in group 0, H3 in group 1. H1
// matches and returns nil, so H2 never runs, but group 1 is still
// visited.
func TestDispatchBreaksAfterFirstMatchPerGroup(t *testing.T) {
	d := newTestDispatcher()
	var ran []string

	d.AddHandler(&Handler{Filter: All, Callback: func(context.Context, schema.Object) error {
		ran = append(ran, "h1")
		return nil
	}}, 0)
	d.AddHandler(&Handler{Filter: All, Callback: func(context.Context, schema.Object) error {
		ran = append(ran, "h2")
		return nil
	}}, 0)
	d.AddHandler(&Handler{Filter: All, Callback: func(context.Context, schema.Object) error {
		ran = append(ran, "h3")
		return nil
	}}, 1)

	err := d.dispatch(context.Background(), schema.UpdateShortMessage{ID: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"h1", "h3"}, ran)
}

// TestDispatchContinuePropagationRunsRestOfGroup covers the
// ContinuePropagation branch of spec.md §8 scenario (e): H1 raises it,
// so H2 still runs before group 1's H3.
func TestDispatchContinuePropagationRunsRestOfGroup(t *testing.T) {
	d := newTestDispatcher()
	var ran []string

	d.AddHandler(&Handler{Filter: All, Callback: func(context.Context, schema.Object) error {
		ran = append(ran, "h1")
		return mtperrors.ErrContinuePropagation
	}}, 0)
	d.AddHandler(&Handler{Filter: All, Callback: func(context.Context, schema.Object) error {
		ran = append(ran, "h2")
		return nil
	}}, 0)
	d.AddHandler(&Handler{Filter: All, Callback: func(context.Context, schema.Object) error {
		ran = append(ran, "h3")
		return nil
	}}, 1)

	err := d.dispatch(context.Background(), schema.UpdateShortMessage{ID: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"h1", "h2", "h3"}, ran)
}

// TestDispatchStopPropagationAbortsEntireUpdate covers the
// StopPropagation branch: only H1 runs, H3's group is never reached.
func TestDispatchStopPropagationAbortsEntireUpdate(t *testing.T) {
	d := newTestDispatcher()
	var ran []string

	d.AddHandler(&Handler{Filter: All, Callback: func(context.Context, schema.Object) error {
		ran = append(ran, "h1")
		return mtperrors.ErrStopPropagation
	}}, 0)
	d.AddHandler(&Handler{Filter: All, Callback: func(context.Context, schema.Object) error {
		ran = append(ran, "h2")
		return nil
	}}, 0)
	d.AddHandler(&Handler{Filter: All, Callback: func(context.Context, schema.Object) error {
		ran = append(ran, "h3")
		return nil
	}}, 1)

	err := d.dispatch(context.Background(), schema.UpdateShortMessage{ID: 1})
	require.ErrorIs(t, err, mtperrors.ErrStopPropagation)
	require.Equal(t, []string{"h1"}, ran)
}

// TestDispatchSkipsNonMatchingFilter ensures an unrelated constructor
// doesn't trigger a handler's callback at all.
func TestDispatchSkipsNonMatchingFilter(t *testing.T) {
	d := newTestDispatcher()
	ran := false
	d.AddHandler(&Handler{
		Filter:   ConstructorIs(schema.IDUpdatesState),
		Callback: func(context.Context, schema.Object) error { ran = true; return nil },
	}, 0)

	err := d.dispatch(context.Background(), schema.UpdateShortMessage{ID: 1})
	require.NoError(t, err)
	require.False(t, ran)
}

// TestMiddlewareWrapsDispatch verifies the chain built by buildChain
// runs outer-to-inner (first added is outermost) around the terminal
// dispatch.
func TestMiddlewareWrapsDispatch(t *testing.T) {
	d := newTestDispatcher()
	var order []string
	handlerRan := false

	d.AddHandler(&Handler{Filter: All, Callback: func(context.Context, schema.Object) error {
		handlerRan = true
		return nil
	}}, 0)

	d.Use(func(ctx context.Context, obj schema.Object, next func(context.Context, schema.Object) error) error {
		order = append(order, "mw1-before")
		err := next(ctx, obj)
		order = append(order, "mw1-after")
		return err
	})
	d.Use(func(ctx context.Context, obj schema.Object, next func(context.Context, schema.Object) error) error {
		order = append(order, "mw2-before")
		err := next(ctx, obj)
		order = append(order, "mw2-after")
		return err
	})

	d.chain = d.buildChain()
	err := d.chain(context.Background(), schema.UpdateShortMessage{ID: 1}, d.dispatch)
	require.NoError(t, err)
	require.True(t, handlerRan)
	require.Equal(t, []string{"mw1-before", "mw2-before", "mw2-after", "mw1-after"}, order)
}

// TestEnqueueDropsWhenQueueFull exercises the bounded-queue backpressure
// policy: a full queue drops rather than blocks the caller.
func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	d := New(Config{QueueSize: 1})
	d.Enqueue(schema.UpdateShortMessage{ID: 1}, nil, nil)
	d.Enqueue(schema.UpdateShortMessage{ID: 2}, nil, nil)
	require.Len(t, d.queue, 1)
}
