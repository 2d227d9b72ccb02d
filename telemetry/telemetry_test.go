package telemetry

import (
	"io"
	"net/http/httptest"
	"testing"

	"livelink/core"
	"livelink/events/live"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCountsEvents(t *testing.T) {
	bus := core.NewEventBus()
	c := NewCollector()
	c.Bind(bus)

	bus.Emit(&live.OpenEvent{})
	bus.Emit(&live.AudioEvent{Data: make([]byte, 10)})
	bus.Emit(&live.AudioEvent{Data: make([]byte, 6)})
	bus.Emit(&live.LogEvent{Entry: core.NewLogEntry("client.realtimeInput", "audio + video")})
	bus.Emit(&live.LogEvent{Entry: core.NewLogEntry("client.realtimeInput", "audio")})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.sessionOpen))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.events.WithLabelValues(live.AudioEventID)))
	assert.Equal(t, 16.0, testutil.ToFloat64(c.audioBytes))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.logEntries.WithLabelValues("client.realtimeInput")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.realtimeInputs.WithLabelValues("audio + video")))

	bus.Emit(&live.CloseEvent{Info: live.CloseInfo{Initiator: "server"}})
	assert.Equal(t, 0.0, testutil.ToFloat64(c.sessionOpen))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.closes.WithLabelValues("server")))
}

func TestCollectorUnbind(t *testing.T) {
	bus := core.NewEventBus()
	c := NewCollector()
	c.Bind(bus)
	c.Unbind()

	bus.Emit(&live.TurnCompleteEvent{})

	assert.Equal(t, 0.0, testutil.ToFloat64(c.events.WithLabelValues(live.TurnCompleteEventID)))
	assert.False(t, bus.HasSubscribers(live.TurnCompleteEventID))
}

func TestHandler(t *testing.T) {
	bus := core.NewEventBus()
	c := NewCollector()
	c.Bind(bus)
	bus.Emit(&live.InterruptedEvent{})

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `livelink_events_total{event="live.interrupted"} 1`)
}
