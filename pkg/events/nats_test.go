package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestNATS(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)
	go srv.Start()
	t.Cleanup(srv.Shutdown)
	require.True(t, srv.ReadyForConnections(5*time.Second), "nats server not ready")
	return srv.ClientURL()
}

type continueEvent struct {
	RunID     string `json:"run_id"`
	StartPage int    `json:"start_page"`
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	url := startTestNATS(t)

	bus, err := Connect(url, nil)
	require.NoError(t, err)
	defer bus.Close() //nolint:errcheck

	got := make(chan continueEvent, 1)
	unsubscribe, err := bus.Subscribe("gatepass.sync.continue", "workers", func(_ context.Context, data []byte) error {
		var ev continueEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		got <- ev
		return nil
	})
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, bus.Publish(context.Background(), "gatepass.sync.continue", continueEvent{RunID: "run-1", StartPage: 5}))

	select {
	case ev := <-got:
		assert.Equal(t, continueEvent{RunID: "run-1", StartPage: 5}, ev)
	case <-time.After(5 * time.Second):
		t.Fatal("event not received")
	}
}

func TestQueueGroupDeliversOnce(t *testing.T) {
	url := startTestNATS(t)

	var deliveries int32
	handler := func(context.Context, []byte) error {
		atomic.AddInt32(&deliveries, 1)
		return nil
	}

	for i := 0; i < 2; i++ {
		consumer, err := Connect(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = consumer.Close() })
		_, err = consumer.Subscribe("gatepass.sync.continue", "workers", handler)
		require.NoError(t, err)
	}

	publisher, err := Connect(url, nil)
	require.NoError(t, err)
	defer publisher.Close() //nolint:errcheck
	require.NoError(t, publisher.Publish(context.Background(), "gatepass.sync.continue", continueEvent{RunID: "r"}))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&deliveries) == 1 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&deliveries))
}

func TestHandlerErrorDoesNotStopSubscription(t *testing.T) {
	url := startTestNATS(t)
	bus, err := Connect(url, nil)
	require.NoError(t, err)
	defer bus.Close() //nolint:errcheck

	var calls int32
	_, err = bus.Subscribe("s", "q", func(context.Context, []byte) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "s", 1))
	require.NoError(t, bus.Publish(context.Background(), "s", 2))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, 5*time.Second, 10*time.Millisecond)
}

func TestConnectFailure(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:1", nil)
	require.Error(t, err)
}
