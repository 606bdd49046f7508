package service

import (
	"strings"
)

// RouteTable resolves a message subject to a target device. The ordered
// pattern table is authoritative; the numeric-suffix conventions are a
// last-resort default.
type RouteTable struct {
	entries  []RouteEntry
	fallback []string
}

func NewRouteTable(entries []RouteEntry, fallbackDevices []string) *RouteTable {
	return &RouteTable{entries: entries, fallback: fallbackDevices}
}

// Resolve returns the device for the first pattern contained in the
// subject. When no pattern matches, subjects carrying a -1/-2/-3 suffix
// resolve to the corresponding fallback device.
func (t *RouteTable) Resolve(subject string) (string, bool) {
	lower := strings.ToLower(subject)
	for _, e := range t.entries {
		if strings.Contains(lower, strings.ToLower(e.Pattern)) {
			return e.DeviceID, true
		}
	}
	return t.resolveSuffix(lower)
}

func (t *RouteTable) resolveSuffix(subject string) (string, bool) {
	if len(t.fallback) != 3 {
		return "", false
	}
	for i, suffix := range []string{"-1", "-2", "-3"} {
		if strings.HasSuffix(strings.TrimSpace(subject), suffix) {
			return t.fallback[i], true
		}
	}
	return "", false
}

// ResolveRelayNumber maps the test endpoint's relay=1|2|3 shorthand to the
// fallback devices.
func (t *RouteTable) ResolveRelayNumber(n int) (string, bool) {
	if len(t.fallback) != 3 || n < 1 || n > 3 {
		return "", false
	}
	return t.fallback[n-1], true
}
