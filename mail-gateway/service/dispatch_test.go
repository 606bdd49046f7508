package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cadiot/hub/commands"
	"github.com/cadiot/hub/mail-gateway/events"
	"github.com/cadiot/hub/mail-gateway/relaygw"
	"github.com/cadiot/hub/pkg/audit"
)

type fakeMessageAPI struct {
	subject    string
	subjectErr error
	markRead   int
	moved      int
	moveErr    error
	folderErr  error
}

func (f *fakeMessageAPI) GetMessageSubject(context.Context, string, string) (string, error) {
	return f.subject, f.subjectErr
}

func (f *fakeMessageAPI) MarkMessageRead(context.Context, string, string) error {
	f.markRead++
	return nil
}

func (f *fakeMessageAPI) EnsureFolder(context.Context, string, string) (string, error) {
	if f.folderErr != nil {
		return "", f.folderErr
	}
	return "f-processed", nil
}

func (f *fakeMessageAPI) MoveMessage(context.Context, string, string, string) error {
	if f.moveErr != nil {
		return f.moveErr
	}
	f.moved++
	return nil
}

type fakeCommandAPI struct {
	calls   int
	result  relaygw.Result
	err     error
	lastDev string
}

func (f *fakeCommandAPI) TriggerCommand(_ context.Context, deviceID string, _ commands.Envelope) (relaygw.Result, error) {
	f.calls++
	f.lastDev = deviceID
	return f.result, f.err
}

func testDispatchConfig() DispatchConfig {
	cfg := DispatchConfig{
		Enabled:         true,
		ProcessedFolder: "Processed",
		Routes: []RouteEntry{
			{Pattern: "gate-1", DeviceID: "relay-alpha"},
		},
		FallbackDevices: []string{"relay-1", "relay-2", "relay-3"},
	}
	return cfg
}

var testRef = events.MessageRef{UserID: "u-1", MessageID: "m-1"}

func TestDispatchDirectSuccess(t *testing.T) {
	mail := &fakeMessageAPI{subject: "open gate-1 please"}
	relay := &fakeCommandAPI{result: relaygw.Result{Transport: relaygw.TransportDirect, Status: http.StatusOK}}
	sink := audit.NewMemorySink()
	e := NewDispatchExecutor(testDispatchConfig(), mail, relay, sink)

	e.Execute(context.Background(), testRef)

	require.Equal(t, 1, relay.calls)
	require.Equal(t, "relay-alpha", relay.lastDev)
	require.Equal(t, 1, mail.markRead)
	require.Equal(t, 1, mail.moved)

	var triggered *audit.Event
	for _, ev := range sink.Events() {
		ev := ev
		if ev.Type == "dispatch_triggered" {
			triggered = &ev
		}
	}
	require.NotNil(t, triggered)
	require.Equal(t, "direct", triggered.Fields["via"])
	require.Equal(t, http.StatusOK, triggered.Fields["status"])
}

func TestDispatchFallbackRecorded(t *testing.T) {
	mail := &fakeMessageAPI{subject: "open gate-1"}
	relay := &fakeCommandAPI{result: relaygw.Result{Transport: relaygw.TransportFallback, Status: http.StatusAccepted, Retryable: true}}
	sink := audit.NewMemorySink()
	e := NewDispatchExecutor(testDispatchConfig(), mail, relay, sink)

	e.Execute(context.Background(), testRef)

	require.Equal(t, 1, mail.markRead)
	found := false
	for _, ev := range sink.Events() {
		if ev.Type == "dispatch_triggered" {
			found = true
			require.Equal(t, "fallback", ev.Fields["via"])
			require.Equal(t, http.StatusAccepted, ev.Fields["status"])
		}
	}
	require.True(t, found)
}

func TestDispatchNoDeviceMapping(t *testing.T) {
	mail := &fakeMessageAPI{subject: "unrelated newsletter"}
	relay := &fakeCommandAPI{}
	sink := audit.NewMemorySink()
	e := NewDispatchExecutor(testDispatchConfig(), mail, relay, sink)

	e.Execute(context.Background(), testRef)

	require.Zero(t, relay.calls)
	require.Zero(t, mail.markRead)
	require.True(t, sink.Contains("no_device_mapping"))
}

func TestDispatchKillSwitch(t *testing.T) {
	cfg := testDispatchConfig()
	cfg.Enabled = false
	mail := &fakeMessageAPI{subject: "open gate-1"}
	relay := &fakeCommandAPI{}
	sink := audit.NewMemorySink()
	e := NewDispatchExecutor(cfg, mail, relay, sink)

	e.Execute(context.Background(), testRef)

	require.Zero(t, relay.calls)
	require.Zero(t, mail.markRead)
	require.Zero(t, mail.moved)
	require.True(t, sink.Contains("dispatch_disabled"))
}

func TestDispatchNumericSuffixFallback(t *testing.T) {
	mail := &fakeMessageAPI{subject: "door-2"}
	relay := &fakeCommandAPI{result: relaygw.Result{Transport: relaygw.TransportDirect, Status: http.StatusOK}}
	sink := audit.NewMemorySink()
	e := NewDispatchExecutor(testDispatchConfig(), mail, relay, sink)

	e.Execute(context.Background(), testRef)

	require.Equal(t, "relay-2", relay.lastDev)
}

func TestDispatchMoveFailureDoesNotRollBack(t *testing.T) {
	mail := &fakeMessageAPI{subject: "open gate-1", moveErr: errors.New("folder gone")}
	relay := &fakeCommandAPI{result: relaygw.Result{Transport: relaygw.TransportDirect, Status: http.StatusOK}}
	sink := audit.NewMemorySink()
	e := NewDispatchExecutor(testDispatchConfig(), mail, relay, sink)

	e.Execute(context.Background(), testRef)

	require.Equal(t, 1, relay.calls)
	require.Equal(t, 1, mail.markRead)
	require.True(t, sink.Contains("dispatch_triggered"))
	require.True(t, sink.Contains("mail_state_error"))
	require.False(t, sink.Contains("dispatch_error"))
}

func TestDispatchTransportErrorAudited(t *testing.T) {
	mail := &fakeMessageAPI{subject: "open gate-1"}
	relay := &fakeCommandAPI{err: errors.New("broker unreachable")}
	sink := audit.NewMemorySink()
	e := NewDispatchExecutor(testDispatchConfig(), mail, relay, sink)

	e.Execute(context.Background(), testRef)

	require.True(t, sink.Contains("dispatch_error"))
	require.Zero(t, mail.markRead)
}

func TestDispatchSubjectFetchErrorAudited(t *testing.T) {
	mail := &fakeMessageAPI{subjectErr: errors.New("not found")}
	relay := &fakeCommandAPI{}
	sink := audit.NewMemorySink()
	e := NewDispatchExecutor(testDispatchConfig(), mail, relay, sink)

	e.Execute(context.Background(), testRef)

	require.True(t, sink.Contains("dispatch_error"))
	require.Zero(t, relay.calls)
}
