package service

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cadiot/hub/mail-gateway/mailbox"
	"github.com/cadiot/hub/mail-gateway/relaygw"
	"github.com/cadiot/hub/pkg/config"
	"github.com/cadiot/hub/pkg/log"
	"github.com/cadiot/hub/pkg/net/listener"
)

type AuthorizationConfig struct {
	// APIToken is the static bearer token guarding the management API. The
	// webhook endpoint is exempt; the provider authenticates by the
	// clientState echo instead.
	APIToken string `yaml:"apiToken" json:"apiToken"`
}

func (c *AuthorizationConfig) Validate() error {
	if c.APIToken == "" {
		return fmt.Errorf("apiToken")
	}
	return nil
}

type HTTPConfig struct {
	Connection    listener.Config     `yaml:"connection" json:"connection"`
	Authorization AuthorizationConfig `yaml:"authorization" json:"authorization"`
}

func (c *HTTPConfig) Validate() error {
	if err := c.Connection.Validate(); err != nil {
		return fmt.Errorf("connection.%w", err)
	}
	if err := c.Authorization.Validate(); err != nil {
		return fmt.Errorf("authorization.%w", err)
	}
	return nil
}

type APIsConfig struct {
	HTTP HTTPConfig `yaml:"http" json:"http"`
}

func (c *APIsConfig) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http.%w", err)
	}
	return nil
}

// SubscriptionConfig drives the subscription lifecycle manager.
type SubscriptionConfig struct {
	// WatchedMailbox is the mailbox user whose inbox is watched.
	WatchedMailbox  string `yaml:"watchedMailbox" json:"watchedMailbox"`
	NotificationURL string `yaml:"notificationURL" json:"notificationUrl"`
	LifecycleURL    string `yaml:"lifecycleURL" json:"lifecycleUrl"`
	// IncludeResourceData requests enriched payload delivery. Providers cap
	// the lifetime more tightly when resource data is included.
	IncludeResourceData     bool          `yaml:"includeResourceData" json:"includeResourceData"`
	EncryptionCertificateID string        `yaml:"encryptionCertificateID" json:"encryptionCertificateId"`
	ClientState             string        `yaml:"clientState" json:"clientState"`
	Lifetime                time.Duration `yaml:"lifetime" json:"lifetime"`
	Interval                time.Duration `yaml:"interval" json:"interval"`
}

func (c *SubscriptionConfig) Validate() error {
	if c.WatchedMailbox == "" {
		return fmt.Errorf("watchedMailbox('%v')", c.WatchedMailbox)
	}
	if c.Interval <= 0 {
		c.Interval = time.Minute * 30
	}
	if c.Lifetime <= 0 {
		if c.IncludeResourceData {
			c.Lifetime = time.Minute * 60
		} else {
			c.Lifetime = time.Hour * 24
		}
	}
	if c.Lifetime <= c.renewThreshold() {
		return fmt.Errorf("lifetime('%v') must exceed the renewal threshold('%v')", c.Lifetime, c.renewThreshold())
	}
	// The notification URL is validated on every manager run, fail-closed,
	// so a bad value surfaces as an audit record rather than a crash here.
	return nil
}

func (c *SubscriptionConfig) renewThreshold() time.Duration {
	if c.IncludeResourceData {
		return time.Minute * 30
	}
	return time.Minute * 120
}

// Resource is the watched resource path registered with the provider.
func (c *SubscriptionConfig) Resource() string {
	return "/users/" + c.WatchedMailbox + "/mailFolders('Inbox')/messages"
}

// RouteEntry maps a subject-substring pattern to a device.
type RouteEntry struct {
	Pattern  string `yaml:"pattern" json:"pattern"`
	DeviceID string `yaml:"deviceID" json:"deviceId"`
}

// DispatchConfig drives the dispatch executor.
type DispatchConfig struct {
	// Enabled is the kill switch. When off, devices are still resolved but
	// no transport call is made and the message is left untouched.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// DefaultMailbox resolves notifications that carry only a message
	// identifier.
	DefaultMailbox  string `yaml:"defaultMailbox" json:"defaultMailbox"`
	ProcessedFolder string `yaml:"processedFolder" json:"processedFolder"`
	// Routes is consulted first-match against the message subject.
	Routes []RouteEntry `yaml:"routes" json:"routes"`
	// FallbackDevices are the three numeric-suffix fallback targets for
	// subjects ending in -1, -2, -3.
	FallbackDevices []string `yaml:"fallbackDevices" json:"fallbackDevices"`
	// TestEndpointEnabled gates the test-dispatch endpoint.
	TestEndpointEnabled bool `yaml:"testEndpointEnabled" json:"testEndpointEnabled"`
	// MaxParallel bounds concurrent per-item dispatches within one webhook
	// batch.
	MaxParallel int64 `yaml:"maxParallel" json:"maxParallel"`
	// DuplicateWindow is the best-effort suppression window for repeated
	// deliveries of the same message.
	DuplicateWindow time.Duration `yaml:"duplicateWindow" json:"duplicateWindow"`
}

func (c *DispatchConfig) Validate() error {
	for i, r := range c.Routes {
		if r.Pattern == "" || r.DeviceID == "" {
			return fmt.Errorf("routes[%v]('%v' -> '%v')", i, r.Pattern, r.DeviceID)
		}
	}
	if len(c.FallbackDevices) != 0 && len(c.FallbackDevices) != 3 {
		return fmt.Errorf("fallbackDevices: want 3 entries, got %v", len(c.FallbackDevices))
	}
	if c.ProcessedFolder == "" {
		c.ProcessedFolder = "Processed"
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = 4
	}
	if c.DuplicateWindow <= 0 {
		c.DuplicateWindow = time.Second * 30
	}
	return nil
}

type ClientsConfig struct {
	Mailbox mailbox.Config `yaml:"mailbox" json:"mailbox"`
	Relay   relaygw.Config `yaml:"relay" json:"relay"`
}

func (c *ClientsConfig) Validate() error {
	if err := c.Mailbox.Validate(); err != nil {
		return fmt.Errorf("mailbox.%w", err)
	}
	if err := c.Relay.Validate(); err != nil {
		return fmt.Errorf("relay.%w", err)
	}
	return nil
}

// Config represents the mail-gateway application configuration.
type Config struct {
	Log          log.Config         `yaml:"log" json:"log"`
	APIs         APIsConfig         `yaml:"apis" json:"apis"`
	Clients      ClientsConfig      `yaml:"clients" json:"clients"`
	Subscription SubscriptionConfig `yaml:"subscription" json:"subscription"`
	Dispatch     DispatchConfig     `yaml:"dispatch" json:"dispatch"`
}

func (c *Config) Validate() error {
	if err := c.APIs.Validate(); err != nil {
		return fmt.Errorf("apis.%w", err)
	}
	if err := c.Clients.Validate(); err != nil {
		return fmt.Errorf("clients.%w", err)
	}
	if err := c.Subscription.Validate(); err != nil {
		return fmt.Errorf("subscription.%w", err)
	}
	if err := c.Dispatch.Validate(); err != nil {
		return fmt.Errorf("dispatch.%w", err)
	}
	return nil
}

// String return string representation of Config
func (c Config) String() string {
	return config.ToString(c)
}

// validNotificationURL checks that the webhook target is an absolute HTTPS
// URL with a non-empty host.
func validNotificationURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("notificationURL('%v') - %w", raw, err)
	}
	if !u.IsAbs() || !strings.EqualFold(u.Scheme, "https") || u.Host == "" {
		return fmt.Errorf("notificationURL('%v') - must be an absolute https URL", raw)
	}
	return nil
}
