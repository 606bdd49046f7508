// Package events defines the change-notification payloads delivered by the
// mailbox provider to the webhook endpoint.
package events

const (
	// LifecycleReauthorizationRequired is sent when the provider wants the
	// subscription reauthorized before it lapses.
	LifecycleReauthorizationRequired = "reauthorizationRequired"
	// LifecycleSubscriptionRemoved is sent when the provider dropped the
	// subscription, e.g. at max lifetime violations.
	LifecycleSubscriptionRemoved = "subscriptionRemoved"
	// LifecycleMissed is sent when the provider could not deliver earlier
	// change notifications.
	LifecycleMissed = "missed"
)

// NotificationBody is the JSON body of a webhook delivery. ValidationToken
// is present on handshake deliveries only.
type NotificationBody struct {
	ValidationToken string         `json:"validationToken,omitempty"`
	Value           []Notification `json:"value"`
}

// Notification is one item of a webhook delivery, either a lifecycle event
// (LifecycleEvent set) or a resource event.
type Notification struct {
	SubscriptionID string        `json:"subscriptionId,omitempty"`
	LifecycleEvent string        `json:"lifecycleEvent,omitempty"`
	ChangeType     string        `json:"changeType,omitempty"`
	ClientState    string        `json:"clientState,omitempty"`
	Resource       string        `json:"resource,omitempty"`
	ResourceData   *ResourceData `json:"resourceData,omitempty"`
}

// ResourceData is the inline payload of an enriched notification.
type ResourceData struct {
	ID     string `json:"id,omitempty"`
	UserID string `json:"userId,omitempty"`
	Type   string `json:"@odata.type,omitempty"`
}
