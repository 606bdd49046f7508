package events

import (
	"regexp"
	"strings"
)

// MessageRef identifies a message within a mailbox.
type MessageRef struct {
	UserID    string
	MessageID string
}

// ResolutionStatus tags the outcome of resolving a notification to a
// message reference.
type ResolutionStatus int

const (
	// Resolved carries a complete MessageRef.
	Resolved ResolutionStatus = iota
	// MissingIDs means the resource references a message but no (user,
	// message) pair could be recovered.
	MissingIDs
	// NonMessage means the resource does not reference a message at all.
	NonMessage
)

// Resolution is the tagged result of resolving a notification item.
type Resolution struct {
	Status ResolutionStatus
	Ref    MessageRef
}

// Two textual conventions for the watched resource path. Both recover the
// same (user, message) pair.
var (
	// pathStyle: /users/{id}/.../messages/{id}
	pathStyle = regexp.MustCompile(`(?i)^/?users/([^/(]+)/(?:.*/)?messages/([^/?]+)`)
	// callStyle: users('{id}')/.../messages('{id}')
	callStyle = regexp.MustCompile(`(?i)users\('([^']+)'\)/(?:.*/)?messages\('([^']+)'\)`)
)

// ParseResource tries both resource-path grammars in a fixed order.
func ParseResource(resource string) (MessageRef, bool) {
	if m := callStyle.FindStringSubmatch(resource); m != nil {
		return MessageRef{UserID: m[1], MessageID: m[2]}, true
	}
	if m := pathStyle.FindStringSubmatch(resource); m != nil {
		return MessageRef{UserID: m[1], MessageID: m[2]}, true
	}
	return MessageRef{}, false
}

// referencesMessage reports whether the resource path mentions a message at
// all. Notifications for other resource types must not trigger a dispatch.
func referencesMessage(resource string) bool {
	return strings.Contains(strings.ToLower(resource), "messages")
}

// Resolve resolves a notification item to a message reference, trying in
// order: inline resource data, the two resource-path grammars, and the
// configured default mailbox when only a message identifier is available.
func (n *Notification) Resolve(defaultUserID string) Resolution {
	if n.ResourceData != nil && n.ResourceData.ID != "" {
		userID := n.ResourceData.UserID
		if userID == "" {
			if ref, ok := ParseResource(n.Resource); ok {
				userID = ref.UserID
			} else {
				userID = defaultUserID
			}
		}
		if userID == "" {
			return Resolution{Status: MissingIDs}
		}
		return Resolution{Status: Resolved, Ref: MessageRef{UserID: userID, MessageID: n.ResourceData.ID}}
	}
	if ref, ok := ParseResource(n.Resource); ok {
		return Resolution{Status: Resolved, Ref: ref}
	}
	if !referencesMessage(n.Resource) {
		return Resolution{Status: NonMessage}
	}
	return Resolution{Status: MissingIDs}
}
