// SPDX-License-Identifier: MIT

package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/snapdog/snapdog/internal/fault"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testCmd struct {
	name   string
	source Source
	target string
	value  int
}

func (c testCmd) CommandName() string   { return c.name }
func (c testCmd) CommandSource() Source { return c.source }
func (c testCmd) TargetKey() string     { return c.target }

type testNote struct {
	name  string
	value int
}

func (n testNote) NotificationName() string { return n.name }

func TestSendDispatchesToHandler(t *testing.T) {
	m := New()
	m.MustRegister("test.echo", func(_ context.Context, cmd Command) (any, error) {
		return cmd.(testCmd).value * 2, nil
	})

	got, err := SendAs[int](context.Background(), m, testCmd{name: "test.echo", value: 21})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestSendUnknownCommandFailsHandlerMissing(t *testing.T) {
	m := New()
	_, err := m.Send(context.Background(), testCmd{name: "test.unknown"})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindHandlerMissing))
}

func TestRegisterDuplicateFails(t *testing.T) {
	m := New()
	noop := func(context.Context, Command) (any, error) { return nil, nil }
	require.NoError(t, m.Register("dup", noop))
	require.Error(t, m.Register("dup", noop))
}

func TestSendAppliesDefaultDeadline(t *testing.T) {
	m := New(WithCommandTimeout(20 * time.Millisecond))
	m.MustRegister("test.slow", func(ctx context.Context, _ Command) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return nil, nil
		}
	})

	_, err := m.Send(context.Background(), testCmd{name: "test.slow"})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindTimeout), "got kind %s", fault.KindOf(err))
}

func TestCommandsToSameTargetSerialize(t *testing.T) {
	m := New()

	var mu sync.Mutex
	active := 0
	maxActive := 0

	m.MustRegister("test.work", func(_ context.Context, _ Command) (any, error) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return nil, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Send(context.Background(), testCmd{name: "test.work", target: "zone/1"})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "commands to the same target must not overlap")
}

func TestCommandsToDistinctTargetsInterleave(t *testing.T) {
	m := New()

	start := make(chan struct{})
	var both sync.WaitGroup
	both.Add(2)

	m.MustRegister("test.parallel", func(_ context.Context, _ Command) (any, error) {
		both.Done()
		both.Wait() // deadlocks unless both targets run concurrently
		<-start
		return nil, nil
	})

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, target := range []string{"zone/1", "zone/2"} {
			wg.Add(1)
			go func(tg string) {
				defer wg.Done()
				_, _ = m.Send(context.Background(), testCmd{name: "test.parallel", target: tg})
			}(target)
		}
		wg.Wait()
		close(done)
	}()

	// Release once both handlers are inside.
	go func() {
		both.Wait()
		close(start)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("distinct targets did not run concurrently")
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	m := New()

	var mu sync.Mutex
	var seen []string

	m.Subscribe("test.changed", "first", func(_ context.Context, n Notification) error {
		mu.Lock()
		seen = append(seen, "first")
		mu.Unlock()
		return nil
	})
	m.Subscribe("test.changed", "second", func(_ context.Context, n Notification) error {
		mu.Lock()
		seen = append(seen, "second")
		mu.Unlock()
		return nil
	})
	m.Subscribe(SubscribeAll, "wildcard", func(_ context.Context, n Notification) error {
		mu.Lock()
		seen = append(seen, "wildcard")
		mu.Unlock()
		return nil
	})

	m.Publish(context.Background(), testNote{name: "test.changed"})

	assert.ElementsMatch(t, []string{"first", "second", "wildcard"}, seen)
}

func TestPublishSwallowsSubscriberErrors(t *testing.T) {
	m := New()

	called := false
	m.Subscribe("test.changed", "failing", func(context.Context, Notification) error {
		return errors.New("subscriber exploded")
	})
	m.Subscribe("test.changed", "healthy", func(context.Context, Notification) error {
		called = true
		return nil
	})

	// Must not panic or abort the fan-out.
	m.Publish(context.Background(), testNote{name: "test.changed"})
	assert.True(t, called)
}

func TestPublishContainsSubscriberPanics(t *testing.T) {
	m := New()

	m.Subscribe("test.changed", "panicking", func(context.Context, Notification) error {
		panic("boom")
	})
	require.NotPanics(t, func() {
		m.Publish(context.Background(), testNote{name: "test.changed"})
	})
}

func TestPublishNoSubscribersIsNoop(t *testing.T) {
	m := New()
	m.Publish(context.Background(), testNote{name: "test.unheard"})
}
