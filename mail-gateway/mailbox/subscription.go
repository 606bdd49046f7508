package mailbox

import "time"

// Subscription is a change-notification subscription as stored by the
// mailbox provider.
type Subscription struct {
	ID                       string    `json:"id,omitempty"`
	Resource                 string    `json:"resource,omitempty"`
	ChangeType               string    `json:"changeType,omitempty"`
	NotificationURL          string    `json:"notificationUrl,omitempty"`
	LifecycleNotificationURL string    `json:"lifecycleNotificationUrl,omitempty"`
	IncludeResourceData      bool      `json:"includeResourceData,omitempty"`
	EncryptionCertificateID  string    `json:"encryptionCertificateId,omitempty"`
	ExpirationDateTime       time.Time `json:"expirationDateTime,omitempty"`
	ClientState              string    `json:"clientState,omitempty"`
}

type subscriptionList struct {
	Value []Subscription `json:"value"`
}
