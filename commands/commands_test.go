package commands

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMethodTopicRoundTrip(t *testing.T) {
	topic := MethodTopic("relay-1", ActivateRelay, "42")
	require.Equal(t, "devices/relay-1/methods/POST/activateRelay/?rid=42", topic)

	method, rid, err := ParseMethodTopic(topic)
	require.NoError(t, err)
	require.Equal(t, ActivateRelay, method)
	require.Equal(t, "42", rid)
}

func TestResponseTopicRoundTrip(t *testing.T) {
	topic := ResponseTopic("relay-1", 200, "abc-def")
	require.Equal(t, "devices/relay-1/methods/res/200/?rid=abc-def", topic)

	status, rid, err := ParseResponseTopic(topic)
	require.NoError(t, err)
	require.Equal(t, 200, status)
	require.Equal(t, "abc-def", rid)
}

func TestParseMethodTopicErrors(t *testing.T) {
	for _, topic := range []string{
		"devices/relay-1/messages/devicebound",
		"devices/relay-1/methods/POST/activateRelay",
		"devices/relay-1/methods/POST//?rid=1",
		"devices/relay-1/methods/POST/activateRelay/?rid=",
	} {
		_, _, err := ParseMethodTopic(topic)
		require.Error(t, err, topic)
	}
}

func TestParseResponseTopicErrors(t *testing.T) {
	for _, topic := range []string{
		"devices/relay-1/methods/POST/activateRelay/?rid=1",
		"devices/relay-1/methods/res/abc/?rid=1",
		"devices/relay-1/methods/res/200/?rid=",
	} {
		_, _, err := ParseResponseTopic(topic)
		require.Error(t, err, topic)
	}
}
