package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseResourceGrammars(t *testing.T) {
	want := MessageRef{UserID: "u-1", MessageID: "m-1"}

	for name, resource := range map[string]string{
		"pathStyle":          "/users/u-1/messages/m-1",
		"pathStyleFolder":    "/users/u-1/mailFolders/inbox/messages/m-1",
		"pathStyleNoSlash":   "users/u-1/messages/m-1",
		"callStyle":          "users('u-1')/messages('m-1')",
		"callStyleFolder":    "users('u-1')/mailFolders('inbox')/messages('m-1')",
		"pathStyleUpperCase": "/Users/u-1/Messages/m-1",
	} {
		ref, ok := ParseResource(resource)
		require.True(t, ok, name)
		require.Equal(t, want, ref, name)
	}
}

func TestParseResourceRejects(t *testing.T) {
	for name, resource := range map[string]string{
		"empty":       "",
		"drive":       "/users/u-1/drive/root",
		"teams":       "teams('t-1')/channels('c-1')",
		"messageOnly": "/messages/m-1",
	} {
		_, ok := ParseResource(resource)
		require.False(t, ok, name)
	}
}

func TestResolveInlineResourceData(t *testing.T) {
	n := Notification{
		Resource:     "users('u-9')/messages('ignored')",
		ResourceData: &ResourceData{ID: "m-9", UserID: "u-inline"},
	}
	r := n.Resolve("default-user")
	require.Equal(t, Resolved, r.Status)
	require.Equal(t, MessageRef{UserID: "u-inline", MessageID: "m-9"}, r.Ref)
}

func TestResolveInlineDataUserFromResource(t *testing.T) {
	n := Notification{
		Resource:     "users('u-9')/messages('m-9')",
		ResourceData: &ResourceData{ID: "m-9"},
	}
	r := n.Resolve("default-user")
	require.Equal(t, Resolved, r.Status)
	require.Equal(t, MessageRef{UserID: "u-9", MessageID: "m-9"}, r.Ref)
}

func TestResolveDefaultMailboxFallback(t *testing.T) {
	n := Notification{
		ResourceData: &ResourceData{ID: "m-5"},
	}
	r := n.Resolve("default-user")
	require.Equal(t, Resolved, r.Status)
	require.Equal(t, MessageRef{UserID: "default-user", MessageID: "m-5"}, r.Ref)

	r = n.Resolve("")
	require.Equal(t, MissingIDs, r.Status)
}

func TestResolveNonMessageResource(t *testing.T) {
	n := Notification{Resource: "/users/u-1/events/e-1"}
	require.Equal(t, NonMessage, n.Resolve("").Status)
}

func TestResolveMissingIDs(t *testing.T) {
	n := Notification{Resource: "/messages/m-1"}
	require.Equal(t, MissingIDs, n.Resolve("").Status)
}

func TestGrammarsRoundTripSamePair(t *testing.T) {
	a, ok := ParseResource("/users/AAA/messages/BBB")
	require.True(t, ok)
	b, ok := ParseResource("users('AAA')/messages('BBB')")
	require.True(t, ok)
	require.Equal(t, a, b)
}
