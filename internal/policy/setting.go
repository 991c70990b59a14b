// Package policy stores per-origin permission decisions.
//
// Every origin has eight independent decisions, one per PermissionKind.
// An origin that was never written resolves to Ask for every kind.
package policy

import (
	"fmt"
	"strings"
)

// PermissionKind is the kind of permission a page requested.
type PermissionKind uint8

const (
	Clipboard PermissionKind = iota
	DeviceInfo
	Geolocation
	CDM
	Notification
	PointerLock
	UserMedia
	DataAccess

	kindCount
)

var kindNames = [kindCount]string{
	Clipboard:    "clipboard",
	DeviceInfo:   "device_info",
	Geolocation:  "geolocation",
	CDM:          "cdm",
	Notification: "notification",
	PointerLock:  "pointer_lock",
	UserMedia:    "user_media",
	DataAccess:   "data_access",
}

// Kinds returns every permission kind in declaration order.
func Kinds() []PermissionKind {
	out := make([]PermissionKind, kindCount)
	for i := range out {
		out[i] = PermissionKind(i)
	}
	return out
}

func (k PermissionKind) String() string {
	if k >= kindCount {
		return fmt.Sprintf("PermissionKind(%d)", k)
	}
	return kindNames[k]
}

func (k PermissionKind) valid() bool { return k < kindCount }

// ParseKind maps a name such as "geolocation" to its kind.
func ParseKind(s string) (PermissionKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range kindNames {
		if name == s {
			return PermissionKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown permission kind %q", s)
}

// Decision is what the browser does with a permission request.
type Decision uint8

const (
	// Ask prompts the user. It is the zero value.
	Ask Decision = iota
	Allow
	Deny
)

func (d Decision) String() string {
	switch d {
	case Ask:
		return "ask"
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return fmt.Sprintf("Decision(%d)", d)
	}
}

// ParseDecision maps "ask", "allow" or "deny" to a Decision.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ask":
		return Ask, nil
	case "allow":
		return Allow, nil
	case "deny":
		return Deny, nil
	}
	return Ask, fmt.Errorf("unknown decision %q", s)
}

// Setting holds the decisions for one security origin.
type Setting struct {
	Origin    string
	Decisions [kindCount]Decision
}

// Get returns the decision for kind. Unknown kinds resolve to Ask.
func (s Setting) Get(kind PermissionKind) Decision {
	if !kind.valid() {
		return Ask
	}
	return s.Decisions[kind]
}

// Set changes the decision for kind.
func (s *Setting) Set(kind PermissionKind, d Decision) {
	if kind.valid() {
		s.Decisions[kind] = d
	}
}

// IsDefault reports whether every decision is Ask.
func (s Setting) IsDefault() bool {
	return s.Decisions == [kindCount]Decision{}
}
