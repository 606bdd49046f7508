// Package service runs the relay-agent: a single control loop that keeps
// the broker connection alive, renews the connection credential before it
// expires and executes incoming activation commands.
package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/atomic"

	"github.com/cadiot/hub/commands"
	"github.com/cadiot/hub/pkg/log"
	"github.com/cadiot/hub/relay-agent/actuator"
	"github.com/cadiot/hub/relay-agent/sas"
)

// State is the agent's connectivity state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateActuating    State = "actuating"
)

// Connection is the broker surface the control loop needs. Satisfied by
// the paho-backed session and by test fakes.
type Connection interface {
	Subscribe(filter string, qos byte, callback func(topic string, payload []byte)) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Disconnect()
}

type inboundMessage struct {
	topic   string
	payload []byte
}

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Agent drives the relay device. All state is owned by the control loop;
// broker callbacks only feed the inbound channel.
type Agent struct {
	config Config
	token  *sas.Token
	relay  *actuator.Relay

	// state is written by the control loop only; the atomic lets other
	// goroutines observe it through State.
	state         atomic.String
	onStateChange func(State)

	dial func(password string) (Connection, error)
	conn Connection

	inbound chan inboundMessage
	lost    chan struct{}
	done    chan struct{}

	renewAt time.Time
	started time.Time
	now     func() time.Time
	sleep   func(time.Duration)
}

// New creates the agent. The broker connection is established by Serve.
func New(config Config, relay *actuator.Relay) *Agent {
	a := &Agent{
		config:  config,
		token:   sas.New(config.Broker.Host+"/devices/"+config.Device.ID, config.Device.Key),
		relay:   relay,
		inbound: make(chan inboundMessage, 16),
		lost:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		started: time.Now(),
		now:     time.Now,
		sleep:   time.Sleep,
	}
	a.dial = a.dialBroker
	a.state.Store(string(StateDisconnected))
	return a
}

// State returns the agent's current connectivity state.
func (a *Agent) State() State {
	return State(a.state.Load())
}

// SetStateChangeHandler registers a connectivity status observer. Must be
// called before Serve.
func (a *Agent) SetStateChangeHandler(handler func(State)) {
	a.onStateChange = handler
}

func (a *Agent) setState(state State) {
	if a.State() == state {
		return
	}
	a.state.Store(string(state))
	log.Debugf("agent state: %v", state)
	if a.onStateChange != nil {
		a.onStateChange(state)
	}
}

// Serve runs the control loop until Close. Each iteration checks the
// credential renewal deadline, restores connectivity and processes at most
// one inbound command. Commands execute synchronously within the loop.
func (a *Agent) Serve() error {
	for {
		select {
		case <-a.done:
			a.teardown()
			return nil
		default:
		}
		if err := a.tick(); err != nil {
			log.Errorf("agent: %v", err)
			a.sleep(time.Second * 5)
		}
	}
}

// Close stops the control loop.
func (a *Agent) Close() error {
	select {
	case <-a.done:
	default:
		close(a.done)
	}
	return nil
}

func (a *Agent) tick() error {
	if a.conn != nil && !a.now().Before(a.renewAt) {
		// Credentials are bound at connect time; renewal means a full
		// teardown and reconnect with the fresh token.
		log.Infof("credential renewal due, reconnecting")
		a.teardown()
	}
	if a.conn == nil {
		if err := a.connect(); err != nil {
			a.setState(StateDisconnected)
			return err
		}
	}
	select {
	case m := <-a.inbound:
		a.handleMessage(m)
	case <-a.lost:
		log.Infof("broker connection lost")
		a.teardown()
	case <-a.done:
	case <-time.After(time.Second):
	}
	return nil
}

func (a *Agent) teardown() {
	if a.conn != nil {
		a.conn.Disconnect()
		a.conn = nil
	}
	a.setState(StateDisconnected)
}

func (a *Agent) connect() error {
	a.setState(StateConnecting)

	if a.token.IsExpired() || !a.now().Before(a.renewAt) {
		if err := a.token.Generate(a.config.Device.TokenLifetime); err != nil {
			// Keep going with the previous token if one exists; the broker
			// will reject it and the next iteration retries generation.
			log.Errorf("cannot generate credential: %v", err)
		}
	}
	password, err := a.token.Password()
	if err != nil {
		return fmt.Errorf("no usable credential: %w", err)
	}
	a.renewAt = a.token.Expiry().Add(-a.config.Device.RenewBefore)

	conn, err := a.dial(password)
	if err != nil {
		return fmt.Errorf("cannot connect to broker: %w", err)
	}

	forward := func(topic string, payload []byte) {
		select {
		case a.inbound <- inboundMessage{topic: topic, payload: payload}:
		default:
			log.Errorf("inbound queue full, dropping message on %v", topic)
		}
	}
	if err := conn.Subscribe(commands.MethodFilter(a.config.Device.ID), 0, forward); err != nil {
		conn.Disconnect()
		return fmt.Errorf("cannot subscribe to method requests: %w", err)
	}
	if err := conn.Subscribe(commands.DeviceboundTopic(a.config.Device.ID), 1, forward); err != nil {
		conn.Disconnect()
		return fmt.Errorf("cannot subscribe to addressed messages: %w", err)
	}

	a.conn = conn
	a.setState(StateConnected)
	return nil
}

func (a *Agent) dialBroker(password string) (Connection, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(a.config.Broker.URL).
		SetClientID(a.config.Device.ID).
		SetUsername(a.config.Broker.Host + "/" + a.config.Device.ID).
		SetPassword(password).
		SetConnectTimeout(a.config.Broker.ConnectTimeout).
		// The loop owns reconnection; a persistent session keeps addressed
		// messages queued across the credential-renewal gap.
		SetAutoReconnect(false).
		SetCleanSession(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			select {
			case a.lost <- struct{}{}:
			default:
			}
		})
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(a.config.Broker.ConnectTimeout) {
		return nil, fmt.Errorf("connect to broker %v timed out", a.config.Broker.URL)
	}
	if err := token.Error(); err != nil {
		return nil, err
	}
	return &pahoConnection{client: client, timeout: a.config.Broker.ConnectTimeout}, nil
}

func (a *Agent) handleMessage(m inboundMessage) {
	if method, rid, err := commands.ParseMethodTopic(m.topic); err == nil {
		a.handleMethod(method, rid)
		return
	}
	if m.topic == commands.DeviceboundTopic(a.config.Device.ID) {
		a.handleDevicebound(m.payload)
		return
	}
	log.Debugf("ignoring message on %v", m.topic)
}

// handleMethod executes a synchronous invocation. A response is always
// published, unknown method names included.
func (a *Agent) handleMethod(method, rid string) {
	if method != commands.ActivateRelay {
		log.Debugf("unknown method %v", method)
		a.respond(http.StatusNotFound, rid, commands.MethodResponse{Message: "unknown method: " + method})
		return
	}
	if err := a.activate(); err != nil {
		log.Errorf("actuation failed: %v", err)
		a.respond(http.StatusInternalServerError, rid, commands.MethodResponse{Message: err.Error(), Uptime: a.uptimeMs()})
		return
	}
	a.respond(http.StatusOK, rid, commands.MethodResponse{Message: "activated", Uptime: a.uptimeMs()})
}

// handleDevicebound executes an addressed asynchronous command. No
// response channel exists; stale envelopes are dropped.
func (a *Agent) handleDevicebound(payload []byte) {
	var envelope commands.Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		log.Errorf("cannot decode addressed message: %v", err)
		return
	}
	if envelope.Cmd != commands.ActivateRelay {
		log.Debugf("ignoring addressed message with cmd %v", envelope.Cmd)
		return
	}
	if envelope.ExpiresAt > 0 && a.now().Unix() > envelope.ExpiresAt {
		log.Infof("dropping expired addressed command (expired %v)", time.Unix(envelope.ExpiresAt, 0))
		return
	}
	if err := a.activate(); err != nil {
		log.Errorf("actuation failed: %v", err)
	}
}

func (a *Agent) activate() error {
	a.setState(StateActuating)
	defer a.setState(StateConnected)
	if err := a.relay.Activate(); err != nil {
		return err
	}
	a.publishTelemetry()
	return nil
}

func (a *Agent) respond(status int, rid string, body commands.MethodResponse) {
	data, err := json.Marshal(body)
	if err != nil {
		log.Errorf("cannot encode method response: %v", err)
		return
	}
	if err := a.conn.Publish(commands.ResponseTopic(a.config.Device.ID, status, rid), 0, false, data); err != nil {
		log.Errorf("cannot publish method response: %v", err)
	}
}

func (a *Agent) publishTelemetry() {
	data, err := json.Marshal(commands.Telemetry{
		Event:     "relayActivated",
		Timestamp: a.now().Format(timestampLayout),
		UptimeMs:  a.uptimeMs(),
	})
	if err != nil {
		log.Errorf("cannot encode telemetry: %v", err)
		return
	}
	if err := a.conn.Publish(commands.TelemetryTopic(a.config.Device.ID), 0, false, data); err != nil {
		log.Errorf("cannot publish telemetry: %v", err)
	}
}

func (a *Agent) uptimeMs() int64 {
	return time.Since(a.started).Milliseconds()
}

type pahoConnection struct {
	client  mqtt.Client
	timeout time.Duration
}

func (p *pahoConnection) wait(token mqtt.Token, op string) error {
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("%v timed out", op)
	}
	return token.Error()
}

func (p *pahoConnection) Subscribe(filter string, qos byte, callback func(topic string, payload []byte)) error {
	return p.wait(p.client.Subscribe(filter, qos, func(_ mqtt.Client, m mqtt.Message) {
		callback(m.Topic(), m.Payload())
	}), "subscribe")
}

func (p *pahoConnection) Publish(topic string, qos byte, retained bool, payload []byte) error {
	return p.wait(p.client.Publish(topic, qos, retained, payload), "publish")
}

func (p *pahoConnection) Disconnect() {
	p.client.Disconnect(250)
}
