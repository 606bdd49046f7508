// Package relaygw invokes commands on relay devices through the transport
// broker: a synchronous direct method first, with a durable addressed
// message as fallback.
package relaygw

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/cadiot/hub/commands"
	"github.com/cadiot/hub/pkg/log"
)

// Transport identifies which tier delivered a command.
type Transport string

const (
	TransportDirect   Transport = "direct"
	TransportFallback Transport = "fallback"
)

// Result is the outcome of a TriggerCommand call. Retryable classifies the
// direct-tier failure that forced the fallback; it stays false on the
// direct path.
type Result struct {
	Transport Transport
	Status    int
	Retryable bool
}

// Connection is the broker surface the client needs. Satisfied by the
// paho-backed connection and by test fakes.
type Connection interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(filter string, qos byte, callback func(topic string, payload []byte)) error
	Unsubscribe(filter string) error
}

// Client delivers commands to devices. The broker connection is created
// lazily on first use; the single mutex below is the only acquisition
// point, so concurrent first use cannot create two connections.
type Client struct {
	config  Config
	mutex   sync.Mutex
	conn    Connection
	connect func() (Connection, error)
}

// New creates a command client. The broker connection is not established
// until the first TriggerCommand call.
func New(config Config) *Client {
	c := &Client{config: config}
	c.connect = c.dialBroker
	return c
}

// NewWithConnection creates a client over an existing connection. Intended
// for tests.
func NewWithConnection(config Config, conn Connection) *Client {
	return &Client{config: config, conn: conn}
}

func (c *Client) connection() (Connection, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := c.connect()
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return conn, nil
}

func (c *Client) dialBroker() (Connection, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(c.config.BrokerURL).
		SetClientID(c.config.ClientID).
		SetUsername(c.config.Username).
		SetPassword(c.config.Password).
		SetConnectTimeout(c.config.DirectTimeout).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(c.config.DirectTimeout) {
		return nil, fmt.Errorf("connect to broker %v timed out", c.config.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("cannot connect to broker %v: %w", c.config.BrokerURL, err)
	}
	return &pahoConnection{client: client, timeout: c.config.DirectTimeout}, nil
}

// TriggerCommand invokes the named command on the device. It attempts the
// synchronous tier first and falls back to the durable addressed channel on
// any transport-level failure. The returned error is non-nil only when both
// tiers failed.
func (c *Client) TriggerCommand(ctx context.Context, deviceID string, payload commands.Envelope) (Result, error) {
	conn, err := c.connection()
	if err != nil {
		return Result{}, fmt.Errorf("cannot reach broker: %w", err)
	}

	status, err := c.invokeDirect(ctx, conn, deviceID, payload)
	if err == nil {
		return Result{Transport: TransportDirect, Status: status}, nil
	}
	log.Debugf("direct invocation on %v failed, falling back: %v", deviceID, err)

	if err := c.publishFallback(conn, deviceID, payload); err != nil {
		return Result{}, fmt.Errorf("fallback publish to %v: %w", deviceID, err)
	}
	return Result{Transport: TransportFallback, Status: http.StatusAccepted, Retryable: true}, nil
}

func (c *Client) invokeDirect(ctx context.Context, conn Connection, deviceID string, payload commands.Envelope) (int, error) {
	rid := uuid.NewString()
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("cannot encode payload: %w", err)
	}

	responses := make(chan int, 1)
	filter := commands.ResponseFilter(deviceID)
	err = conn.Subscribe(filter, 0, func(topic string, _ []byte) {
		status, responseRid, err := commands.ParseResponseTopic(topic)
		if err != nil || responseRid != rid {
			return
		}
		select {
		case responses <- status:
		default:
		}
	})
	if err != nil {
		return 0, fmt.Errorf("cannot subscribe to method responses: %w", err)
	}
	defer func() {
		if err := conn.Unsubscribe(filter); err != nil {
			log.Debugf("cannot unsubscribe from %v: %v", filter, err)
		}
	}()

	if err := conn.Publish(commands.MethodTopic(deviceID, commands.ActivateRelay, rid), 0, false, data); err != nil {
		return 0, fmt.Errorf("cannot publish method request: %w", err)
	}

	select {
	case status := <-responses:
		if status >= http.StatusBadRequest {
			return 0, fmt.Errorf("device responded with status %v", status)
		}
		return status, nil
	case <-time.After(c.config.DirectTimeout):
		return 0, fmt.Errorf("no method response within %v", c.config.DirectTimeout)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (c *Client) publishFallback(conn Connection, deviceID string, payload commands.Envelope) error {
	payload.Cmd = commands.ActivateRelay
	payload.ExpiresAt = time.Now().Add(c.config.FallbackExpiry).Unix()
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("cannot encode payload: %w", err)
	}
	// QoS 1: the broker holds the message for the device's persistent
	// session and delivers it on next reconnect.
	return conn.Publish(commands.DeviceboundTopic(deviceID), 1, false, data)
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

func (p *pahoConnection) Publish(topic string, qos byte, retained bool, payload []byte) error {
	return p.wait(p.client.Publish(topic, qos, retained, payload), "publish")
}

func (p *pahoConnection) Subscribe(filter string, qos byte, callback func(topic string, payload []byte)) error {
	return p.wait(p.client.Subscribe(filter, qos, func(_ mqtt.Client, m mqtt.Message) {
		callback(m.Topic(), m.Payload())
	}), "subscribe")
}

func (p *pahoConnection) Unsubscribe(filter string) error {
	return p.wait(p.client.Unsubscribe(filter), "unsubscribe")
}
