package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/cadiot/hub/mail-gateway/mailbox"
	"github.com/cadiot/hub/pkg/audit"
	"github.com/cadiot/hub/pkg/log"
)

const (
	auditSubscriptionConfigInvalid = "subscription_config_invalid"
	auditSubscriptionCreated       = "subscription_created"
	auditSubscriptionRenewed       = "subscription_renewed"
	auditSubscriptionOK            = "subscription_ok"
)

// subscriptionAPI is the provider surface the manager needs.
type subscriptionAPI interface {
	ListSubscriptions(ctx context.Context) ([]mailbox.Subscription, error)
	CreateSubscription(ctx context.Context, sub mailbox.Subscription) (mailbox.Subscription, error)
	RenewSubscription(ctx context.Context, id string, expiry time.Time) error
}

// SubscriptionManager keeps exactly one live change-notification
// subscription per (watched resource, notification URL) pair, renewing it
// before the provider lets it lapse.
type SubscriptionManager struct {
	config SubscriptionConfig
	client subscriptionAPI
	sink   audit.Sink
	now    func() time.Time
}

func NewSubscriptionManager(config SubscriptionConfig, client subscriptionAPI, sink audit.Sink) *SubscriptionManager {
	return &SubscriptionManager{
		config: config,
		client: client,
		sink:   sink,
		now:    time.Now,
	}
}

// normalizeResource truncates a watched resource path at the first
// "/messages" segment so query-suffix variants of the same resource compare
// equal.
func normalizeResource(resource string) string {
	lower := strings.ToLower(resource)
	if idx := strings.Index(lower, "/messages"); idx >= 0 {
		lower = lower[:idx+len("/messages")]
	}
	return strings.TrimPrefix(lower, "/")
}

func (m *SubscriptionManager) matches(sub mailbox.Subscription) bool {
	return normalizeResource(sub.Resource) == normalizeResource(m.config.Resource()) &&
		strings.EqualFold(sub.NotificationURL, m.config.NotificationURL)
}

// RunOnce performs one reconcile pass: create the subscription when absent,
// extend its expiry when inside the renewal threshold, otherwise report it
// healthy. Fail-closed: configuration problems are audited and no provider
// state is mutated.
func (m *SubscriptionManager) RunOnce(ctx context.Context) error {
	if err := validNotificationURL(m.config.NotificationURL); err != nil {
		m.sink.Record(auditSubscriptionConfigInvalid, map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}

	subs, err := m.client.ListSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("cannot list subscriptions: %w", err)
	}

	var existing *mailbox.Subscription
	for i := range subs {
		if m.matches(subs[i]) {
			existing = &subs[i]
			break
		}
	}

	if existing == nil {
		return m.create(ctx)
	}

	remaining := existing.ExpirationDateTime.Sub(m.now())
	if remaining < m.config.renewThreshold() {
		return m.renew(ctx, existing)
	}

	m.sink.Record(auditSubscriptionOK, map[string]interface{}{
		"subscriptionId": existing.ID,
		"expiresAt":      existing.ExpirationDateTime,
	})
	return nil
}

func (m *SubscriptionManager) create(ctx context.Context) error {
	sub := mailbox.Subscription{
		Resource:                 m.config.Resource(),
		ChangeType:               "created",
		NotificationURL:          m.config.NotificationURL,
		LifecycleNotificationURL: m.config.LifecycleURL,
		IncludeResourceData:      m.config.IncludeResourceData,
		EncryptionCertificateID:  m.config.EncryptionCertificateID,
		ClientState:              m.config.ClientState,
		ExpirationDateTime:       m.now().Add(m.config.Lifetime),
	}
	created, err := m.client.CreateSubscription(ctx, sub)
	if err != nil {
		return fmt.Errorf("cannot create subscription: %w", err)
	}
	m.sink.Record(auditSubscriptionCreated, map[string]interface{}{
		"subscriptionId": created.ID,
		"resource":       sub.Resource,
		"expiresAt":      sub.ExpirationDateTime,
	})
	return nil
}

func (m *SubscriptionManager) renew(ctx context.Context, existing *mailbox.Subscription) error {
	expiry := m.now().Add(m.config.Lifetime)
	if err := m.client.RenewSubscription(ctx, existing.ID, expiry); err != nil {
		return fmt.Errorf("cannot renew subscription %v: %w", existing.ID, err)
	}
	m.sink.Record(auditSubscriptionRenewed, map[string]interface{}{
		"subscriptionId": existing.ID,
		"expiresAt":      expiry,
	})
	return nil
}

// NewSubscriptionChecker schedules RunOnce on a fixed interval, with an
// immediate first run.
func NewSubscriptionChecker(ctx context.Context, m *SubscriptionManager) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("cannot create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(m.config.Interval),
		gocron.NewTask(func() {
			if err := m.RunOnce(ctx); err != nil {
				log.Errorf("subscription reconcile failed: %v", err)
			}
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return nil, fmt.Errorf("cannot create subscription job: %w", err)
	}
	s.Start()
	return s, nil
}
