package uri

const (
	API = "/api"

	// Notifications is the webhook endpoint called by the mailbox provider.
	Notifications = API + "/notifications"

	// Subscriptions lists the provider subscriptions owned by this gateway.
	Subscriptions = API + "/subscriptions"

	// TestDispatch triggers a dispatch without a mailbox event.
	TestDispatch = API + "/test-dispatch"
)

const (
	ValidationTokenQueryKey = "validationToken"
	DeviceIDQueryKey        = "deviceId"
	RelayQueryKey           = "relay"
)
