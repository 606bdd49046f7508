package service

import (
	"context"
	"fmt"

	"github.com/cadiot/hub/commands"
	"github.com/cadiot/hub/mail-gateway/events"
	"github.com/cadiot/hub/mail-gateway/relaygw"
	"github.com/cadiot/hub/pkg/audit"
	"github.com/cadiot/hub/pkg/log"
)

const (
	auditNoDeviceMapping   = "no_device_mapping"
	auditDispatchDisabled  = "dispatch_disabled"
	auditDispatchTriggered = "dispatch_triggered"
	auditDispatchError     = "dispatch_error"
	auditMailStateError    = "mail_state_error"
)

// messageAPI is the provider surface the executor needs for mail-state
// transitions.
type messageAPI interface {
	GetMessageSubject(ctx context.Context, userID, messageID string) (string, error)
	MarkMessageRead(ctx context.Context, userID, messageID string) error
	EnsureFolder(ctx context.Context, userID, displayName string) (string, error)
	MoveMessage(ctx context.Context, userID, messageID, destinationID string) error
}

// commandAPI is the device command surface.
type commandAPI interface {
	TriggerCommand(ctx context.Context, deviceID string, payload commands.Envelope) (relaygw.Result, error)
}

// DispatchExecutor turns a resolved (user, message) pair into a device
// command and transitions the source message's mail state. Side effects are
// idempotent: re-marking read or a failed re-move of an already handled
// message is harmless, so concurrent deliveries of the same message need no
// lock.
type DispatchExecutor struct {
	config DispatchConfig
	mail   messageAPI
	relay  commandAPI
	routes *RouteTable
	sink   audit.Sink
}

func NewDispatchExecutor(config DispatchConfig, mail messageAPI, relay commandAPI, sink audit.Sink) *DispatchExecutor {
	return &DispatchExecutor{
		config: config,
		mail:   mail,
		relay:  relay,
		routes: NewRouteTable(config.Routes, config.FallbackDevices),
		sink:   sink,
	}
}

// Execute handles a single dispatch request end to end. Errors never
// propagate: every failure is audited and the caller proceeds to the next
// notification.
func (e *DispatchExecutor) Execute(ctx context.Context, ref events.MessageRef) {
	defer func() {
		if r := recover(); r != nil {
			e.sink.Record(auditDispatchError, map[string]interface{}{
				"messageId": ref.MessageID,
				"error":     fmt.Sprintf("panic: %v", r),
			})
		}
	}()
	if err := e.execute(ctx, ref); err != nil {
		e.sink.Record(auditDispatchError, map[string]interface{}{
			"messageId": ref.MessageID,
			"error":     err.Error(),
		})
	}
}

func (e *DispatchExecutor) execute(ctx context.Context, ref events.MessageRef) error {
	subject, err := e.mail.GetMessageSubject(ctx, ref.UserID, ref.MessageID)
	if err != nil {
		return fmt.Errorf("cannot fetch subject: %w", err)
	}

	deviceID, ok := e.routes.Resolve(subject)
	if !ok {
		e.sink.Record(auditNoDeviceMapping, map[string]interface{}{
			"messageId": ref.MessageID,
			"subject":   subject,
		})
		return nil
	}

	// Kill switch: checked after device resolution, before any transport
	// call. The message stays untouched so re-enabling replays it.
	if !e.config.Enabled {
		e.sink.Record(auditDispatchDisabled, map[string]interface{}{
			"messageId": ref.MessageID,
			"deviceId":  deviceID,
		})
		return nil
	}

	result, err := e.relay.TriggerCommand(ctx, deviceID, commands.Envelope{
		Subject: subject,
		Reason:  "mail",
	})
	if err != nil {
		return fmt.Errorf("cannot trigger %v: %w", deviceID, err)
	}
	e.sink.Record(auditDispatchTriggered, map[string]interface{}{
		"messageId": ref.MessageID,
		"deviceId":  deviceID,
		"via":       string(result.Transport),
		"status":    result.Status,
	})

	// The command is out; mail-state failures below are recorded but never
	// roll the dispatch back, so the command is not re-sent because of a
	// failed move.
	e.finishMessage(ctx, ref)
	return nil
}

func (e *DispatchExecutor) finishMessage(ctx context.Context, ref events.MessageRef) {
	if err := e.mail.MarkMessageRead(ctx, ref.UserID, ref.MessageID); err != nil {
		e.sink.Record(auditMailStateError, map[string]interface{}{
			"messageId": ref.MessageID,
			"op":        "markRead",
			"error":     err.Error(),
		})
	}
	folderID, err := e.mail.EnsureFolder(ctx, ref.UserID, e.config.ProcessedFolder)
	if err != nil {
		e.sink.Record(auditMailStateError, map[string]interface{}{
			"messageId": ref.MessageID,
			"op":        "ensureFolder",
			"error":     err.Error(),
		})
		return
	}
	if err := e.mail.MoveMessage(ctx, ref.UserID, ref.MessageID, folderID); err != nil {
		e.sink.Record(auditMailStateError, map[string]interface{}{
			"messageId": ref.MessageID,
			"op":        "move",
			"error":     err.Error(),
		})
		return
	}
	log.Debugf("message %v processed", ref.MessageID)
}

// TriggerDevice invokes the command on a directly named device. Used by the
// test-dispatch endpoint; no mail state is involved.
func (e *DispatchExecutor) TriggerDevice(ctx context.Context, deviceID string) (relaygw.Result, error) {
	return e.relay.TriggerCommand(ctx, deviceID, commands.Envelope{Reason: "test"})
}

// Routes exposes the route table for device resolution outside the mail
// flow.
func (e *DispatchExecutor) Routes() *RouteTable {
	return e.routes
}
