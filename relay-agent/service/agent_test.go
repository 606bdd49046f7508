package service

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cadiot/hub/commands"
	"github.com/cadiot/hub/relay-agent/actuator"
)

type publishedMessage struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeConnection struct {
	password    string
	subscribed  []string
	published   []publishedMessage
	disconnects int
}

func (c *fakeConnection) Subscribe(filter string, _ byte, _ func(string, []byte)) error {
	c.subscribed = append(c.subscribed, filter)
	return nil
}

func (c *fakeConnection) Publish(topic string, qos byte, _ bool, payload []byte) error {
	c.published = append(c.published, publishedMessage{topic: topic, qos: qos, payload: payload})
	return nil
}

func (c *fakeConnection) Disconnect() {
	c.disconnects++
}

type recordingPin struct {
	activations int
}

func (p *recordingPin) Set(active bool) error {
	if active {
		p.activations++
	}
	return nil
}

func testConfig() Config {
	cfg := Config{
		Broker: BrokerConfig{
			URL:            "tcp://broker.example.com:8883",
			Host:           "broker.example.com",
			ConnectTimeout: time.Second,
		},
		Device: DeviceConfig{
			ID:            "relay-1",
			Key:           "c2VjcmV0LWRldmljZS1rZXk=",
			TokenLifetime: time.Hour,
			RenewBefore:   time.Minute * 5,
		},
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

type testAgent struct {
	*Agent
	pin    *recordingPin
	conns  []*fakeConnection
	states []State
	clock  time.Time
}

func newTestAgent(t *testing.T, cfg Config) *testAgent {
	t.Helper()
	pin := &recordingPin{}
	ta := &testAgent{
		Agent: New(cfg, actuator.New(pin, 0)),
		pin:   pin,
		clock: time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC),
	}
	ta.now = func() time.Time { return ta.clock }
	ta.token.SetClock(ta.Agent.now)
	ta.dial = func(password string) (Connection, error) {
		conn := &fakeConnection{password: password}
		ta.conns = append(ta.conns, conn)
		return conn, nil
	}
	ta.SetStateChangeHandler(func(s State) { ta.states = append(ta.states, s) })
	return ta
}

func (ta *testAgent) lastConn() *fakeConnection {
	return ta.conns[len(ta.conns)-1]
}

func TestAgentConnectSubscribesAndReportsState(t *testing.T) {
	ta := newTestAgent(t, testConfig())

	require.NoError(t, ta.connect())
	require.Equal(t, StateConnected, ta.State())
	require.Equal(t, []State{StateConnecting, StateConnected}, ta.states)
	require.Equal(t, []string{
		commands.MethodFilter("relay-1"),
		commands.DeviceboundTopic("relay-1"),
	}, ta.lastConn().subscribed)
	require.NotEmpty(t, ta.lastConn().password)
}

func TestAgentMethodActivates(t *testing.T) {
	ta := newTestAgent(t, testConfig())
	require.NoError(t, ta.connect())

	ta.handleMessage(inboundMessage{
		topic:   commands.MethodTopic("relay-1", commands.ActivateRelay, "rid-1"),
		payload: []byte(`{"subject":"open gate-1"}`),
	})

	require.Equal(t, 1, ta.pin.activations)
	require.Len(t, ta.lastConn().published, 2)

	response := ta.lastConn().published[1]
	require.Equal(t, commands.ResponseTopic("relay-1", 200, "rid-1"), response.topic)
	var body commands.MethodResponse
	require.NoError(t, json.Unmarshal(response.payload, &body))
	require.Equal(t, "activated", body.Message)

	telemetry := ta.lastConn().published[0]
	require.Equal(t, commands.TelemetryTopic("relay-1"), telemetry.topic)
	var event commands.Telemetry
	require.NoError(t, json.Unmarshal(telemetry.payload, &event))
	require.Equal(t, "relayActivated", event.Event)
	require.Equal(t, ta.clock.Format(timestampLayout), event.Timestamp)

	require.Equal(t, []State{StateConnecting, StateConnected, StateActuating, StateConnected}, ta.states)
}

func TestAgentUnknownMethodRespondsNotFound(t *testing.T) {
	ta := newTestAgent(t, testConfig())
	require.NoError(t, ta.connect())

	ta.handleMessage(inboundMessage{
		topic: commands.MethodTopic("relay-1", "reboot", "rid-9"),
	})

	require.Zero(t, ta.pin.activations)
	require.Len(t, ta.lastConn().published, 1)
	require.Equal(t, commands.ResponseTopic("relay-1", 404, "rid-9"), ta.lastConn().published[0].topic)
}

func TestAgentDeviceboundActivatesWithoutResponse(t *testing.T) {
	ta := newTestAgent(t, testConfig())
	require.NoError(t, ta.connect())

	expiresAt := ta.clock.Add(time.Minute).Unix()
	ta.handleMessage(inboundMessage{
		topic:   commands.DeviceboundTopic("relay-1"),
		payload: []byte(`{"cmd":"activateRelay","expiresAt":` + strconv.FormatInt(expiresAt, 10) + `}`),
	})

	require.Equal(t, 1, ta.pin.activations)
	// telemetry only, no method response
	require.Len(t, ta.lastConn().published, 1)
	require.Equal(t, commands.TelemetryTopic("relay-1"), ta.lastConn().published[0].topic)
}

func TestAgentDeviceboundDropsExpiredEnvelope(t *testing.T) {
	ta := newTestAgent(t, testConfig())
	require.NoError(t, ta.connect())

	expiresAt := ta.clock.Add(-time.Minute).Unix()
	ta.handleMessage(inboundMessage{
		topic:   commands.DeviceboundTopic("relay-1"),
		payload: []byte(`{"cmd":"activateRelay","expiresAt":` + strconv.FormatInt(expiresAt, 10) + `}`),
	})

	require.Zero(t, ta.pin.activations)
	require.Empty(t, ta.lastConn().published)
}

func TestAgentDeviceboundIgnoresUnknownCommand(t *testing.T) {
	ta := newTestAgent(t, testConfig())
	require.NoError(t, ta.connect())

	ta.handleMessage(inboundMessage{
		topic:   commands.DeviceboundTopic("relay-1"),
		payload: []byte(`{"cmd":"selfDestruct"}`),
	})

	require.Zero(t, ta.pin.activations)
}

func TestAgentRenewalReconnectsWithFreshCredential(t *testing.T) {
	ta := newTestAgent(t, testConfig())
	ta.inbound <- inboundMessage{topic: "noise"}
	require.NoError(t, ta.tick())
	require.Len(t, ta.conns, 1)
	first := ta.lastConn().password

	// 5 minutes before the 1h expiry the deadline is reached
	ta.clock = ta.clock.Add(time.Minute * 56)
	ta.inbound <- inboundMessage{topic: "noise"}
	require.NoError(t, ta.tick())

	require.Len(t, ta.conns, 2)
	require.Equal(t, 1, ta.conns[0].disconnects)
	require.NotEqual(t, first, ta.lastConn().password)
}

func TestAgentConnectFailsWithoutUsableCredential(t *testing.T) {
	cfg := testConfig()
	cfg.Device.Key = "%%% not base64 %%%"
	ta := newTestAgent(t, cfg)

	require.Error(t, ta.connect())
	require.Empty(t, ta.conns)
}
