// Package commands defines the command envelope and the broker topic
// conventions shared by the mail-gateway and the relay-agent.
package commands

import (
	"fmt"
	"strconv"
	"strings"
)

// ActivateRelay is the only command the relay-agent executes.
const ActivateRelay = "activateRelay"

// Envelope is the payload of a command, either as the body of a direct
// method invocation or as an addressed device-bound message. For the
// device-bound channel Cmd identifies the command; for a direct method the
// method name does.
type Envelope struct {
	Cmd     string `json:"cmd,omitempty"`
	Subject string `json:"subject,omitempty"`
	Reason  string `json:"reason,omitempty"`
	// ExpiresAt bounds the delivery window of a device-bound message,
	// seconds since epoch. The device drops envelopes past their expiry.
	ExpiresAt int64 `json:"expiresAt,omitempty"`
}

// MethodResponse is the body the device publishes on the method response
// topic.
type MethodResponse struct {
	Message string `json:"message"`
	Uptime  int64  `json:"uptimeMs,omitempty"`
}

// Telemetry is published by the device after each actuation.
type Telemetry struct {
	Event     string `json:"event"`
	Timestamp string `json:"ts"`
	UptimeMs  int64  `json:"uptimeMs"`
}

const (
	methodRequestSegment  = "/methods/POST/"
	methodResponseSegment = "/methods/res/"
	ridQuery              = "/?rid="
)

// MethodTopic builds the topic for a synchronous invocation of the named
// method on a device.
func MethodTopic(deviceID, method, rid string) string {
	return "devices/" + deviceID + methodRequestSegment + method + ridQuery + rid
}

// MethodFilter is the subscription filter covering all method invocations
// addressed to a device.
func MethodFilter(deviceID string) string {
	return "devices/" + deviceID + "/methods/POST/#"
}

// ResponseTopic builds the topic a device responds on, derived from the
// request correlation identifier.
func ResponseTopic(deviceID string, status int, rid string) string {
	return "devices/" + deviceID + methodResponseSegment + strconv.Itoa(status) + ridQuery + rid
}

// ResponseFilter is the subscription filter covering all method responses of
// a device.
func ResponseFilter(deviceID string) string {
	return "devices/" + deviceID + "/methods/res/#"
}

// DeviceboundTopic is the per-device addressed asynchronous channel.
func DeviceboundTopic(deviceID string) string {
	return "devices/" + deviceID + "/messages/devicebound"
}

// TelemetryTopic is the per-device telemetry channel.
func TelemetryTopic(deviceID string) string {
	return "devices/" + deviceID + "/messages/events"
}

// ParseMethodTopic extracts the method name and the request correlation
// identifier from an inbound method topic.
func ParseMethodTopic(topic string) (method string, rid string, err error) {
	idx := strings.Index(topic, methodRequestSegment)
	if idx < 0 {
		return "", "", fmt.Errorf("not a method topic: %v", topic)
	}
	rest := topic[idx+len(methodRequestSegment):]
	ridIdx := strings.Index(rest, ridQuery)
	if ridIdx < 0 {
		return "", "", fmt.Errorf("method topic without request id: %v", topic)
	}
	method = rest[:ridIdx]
	rid = rest[ridIdx+len(ridQuery):]
	if method == "" || rid == "" {
		return "", "", fmt.Errorf("malformed method topic: %v", topic)
	}
	return method, rid, nil
}

// ParseResponseTopic extracts the status and the request correlation
// identifier from a method response topic.
func ParseResponseTopic(topic string) (status int, rid string, err error) {
	idx := strings.Index(topic, methodResponseSegment)
	if idx < 0 {
		return 0, "", fmt.Errorf("not a method response topic: %v", topic)
	}
	rest := topic[idx+len(methodResponseSegment):]
	ridIdx := strings.Index(rest, ridQuery)
	if ridIdx < 0 {
		return 0, "", fmt.Errorf("method response topic without request id: %v", topic)
	}
	status, err = strconv.Atoi(rest[:ridIdx])
	if err != nil {
		return 0, "", fmt.Errorf("malformed status in method response topic %v: %w", topic, err)
	}
	rid = rest[ridIdx+len(ridQuery):]
	if rid == "" {
		return 0, "", fmt.Errorf("malformed method response topic: %v", topic)
	}
	return status, rid, nil
}
