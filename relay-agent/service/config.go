package service

import (
	"fmt"
	"time"

	"github.com/cadiot/hub/pkg/config"
	"github.com/cadiot/hub/pkg/log"
	"github.com/cadiot/hub/relay-agent/actuator"
)

// BrokerConfig configures the agent's broker connection.
type BrokerConfig struct {
	URL string `yaml:"url" json:"url"`
	// Host names the broker endpoint inside the signed credential resource.
	Host           string        `yaml:"host" json:"host"`
	ConnectTimeout time.Duration `yaml:"connectTimeout" json:"connectTimeout"`
}

func (c *BrokerConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url('%v')", c.URL)
	}
	if c.Host == "" {
		return fmt.Errorf("host('%v')", c.Host)
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = time.Second * 10
	}
	return nil
}

// DeviceConfig identifies the device and its shared key.
type DeviceConfig struct {
	ID string `yaml:"id" json:"id"`
	// Key is the base64-encoded shared device key the credential is signed
	// with.
	Key string `yaml:"key" json:"-"`
	// TokenLifetime is the validity window of each generated credential.
	TokenLifetime time.Duration `yaml:"tokenLifetime" json:"tokenLifetime"`
	// RenewBefore schedules renewal this long before expiry. The transport
	// is torn down and reconnected with the fresh credential.
	RenewBefore time.Duration `yaml:"renewBefore" json:"renewBefore"`
}

func (c *DeviceConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id('%v')", c.ID)
	}
	if c.Key == "" {
		return fmt.Errorf("key")
	}
	if c.TokenLifetime <= 0 {
		c.TokenLifetime = time.Hour
	}
	if c.RenewBefore <= 0 {
		c.RenewBefore = time.Minute * 5
	}
	if c.RenewBefore >= c.TokenLifetime {
		return fmt.Errorf("renewBefore('%v') must be below tokenLifetime('%v')", c.RenewBefore, c.TokenLifetime)
	}
	return nil
}

// Config represents the relay-agent application configuration.
type Config struct {
	Log      log.Config      `yaml:"log" json:"log"`
	Broker   BrokerConfig    `yaml:"broker" json:"broker"`
	Device   DeviceConfig    `yaml:"device" json:"device"`
	Actuator actuator.Config `yaml:"actuator" json:"actuator"`
}

func (c *Config) Validate() error {
	if err := c.Broker.Validate(); err != nil {
		return fmt.Errorf("broker.%w", err)
	}
	if err := c.Device.Validate(); err != nil {
		return fmt.Errorf("device.%w", err)
	}
	if err := c.Actuator.Validate(); err != nil {
		return fmt.Errorf("actuator.%w", err)
	}
	return nil
}

// String return string representation of Config
func (c Config) String() string {
	return config.ToString(c)
}
