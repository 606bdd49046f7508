package relaygw

import (
	"fmt"
	"net/url"
	"time"
)

type Config struct {
	// BrokerURL is the command-transport broker endpoint, e.g.
	// "tls://broker.example.com:8883".
	BrokerURL string `yaml:"brokerURL" json:"brokerUrl"`
	ClientID  string `yaml:"clientID" json:"clientId"`
	Username  string `yaml:"username" json:"username"`
	Password  string `yaml:"password" json:"password"`

	// DirectTimeout bounds the synchronous method invocation, connect
	// included.
	DirectTimeout time.Duration `yaml:"directTimeout" json:"directTimeout"`
	// FallbackExpiry bounds how long a fallback message stays deliverable.
	FallbackExpiry time.Duration `yaml:"fallbackExpiry" json:"fallbackExpiry"`
}

func (c *Config) Validate() error {
	if _, err := url.Parse(c.BrokerURL); err != nil || c.BrokerURL == "" {
		return fmt.Errorf("brokerURL('%v')", c.BrokerURL)
	}
	if c.ClientID == "" {
		return fmt.Errorf("clientID('%v')", c.ClientID)
	}
	if c.DirectTimeout <= 0 {
		c.DirectTimeout = time.Second * 6
	}
	if c.FallbackExpiry <= 0 {
		c.FallbackExpiry = time.Second * 60
	}
	return nil
}
