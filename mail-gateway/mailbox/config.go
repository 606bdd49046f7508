package mailbox

import (
	"fmt"
	"net/url"
	"time"
)

type AuthConfig struct {
	TokenURL     string   `yaml:"tokenURL" json:"tokenUrl"`
	ClientID     string   `yaml:"clientID" json:"clientId"`
	ClientSecret string   `yaml:"clientSecret" json:"clientSecret"`
	Scopes       []string `yaml:"scopes" json:"scopes"`
}

func (c *AuthConfig) Validate() error {
	if _, err := url.ParseRequestURI(c.TokenURL); err != nil {
		return fmt.Errorf("tokenURL('%v') - %w", c.TokenURL, err)
	}
	if c.ClientID == "" {
		return fmt.Errorf("clientID('%v')", c.ClientID)
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("clientSecret")
	}
	return nil
}

type Config struct {
	// BaseURL is the provider API root, without a trailing slash.
	BaseURL string `yaml:"baseURL" json:"baseUrl"`
	// Auth is empty when the provider does not require authentication
	// (tests, local emulators).
	Auth           *AuthConfig   `yaml:"auth,omitempty" json:"auth,omitempty"`
	RequestTimeout time.Duration `yaml:"requestTimeout" json:"requestTimeout"`
}

func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return fmt.Errorf("baseURL('%v') - %w", c.BaseURL, err)
	}
	if c.Auth != nil {
		if err := c.Auth.Validate(); err != nil {
			return fmt.Errorf("auth.%w", err)
		}
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = time.Second * 10
	}
	return nil
}
