package omnifocus

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an automation failure.
type Kind string

const (
	KindPermission Kind = "permission"
	KindTimeout    Kind = "timeout"
	KindScript     Kind = "script"
	KindApp        Kind = "app"
)

// Error is the expected failure of an automation call. It is never cached.
type Error struct {
	Kind    Kind
	Script  Script
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Script != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Script, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Kind == kind
}

// permissionHint is appended to permission failures.
const permissionHint = "Grant access in System Settings > Privacy & Security > Automation, " +
	"allowing your terminal or client to control OmniFocus."

// classify maps osascript stderr to a Kind.
func classify(stderr string) Kind {
	s := strings.ToLower(stderr)
	switch {
	case strings.Contains(s, "-1743"), strings.Contains(s, "not authorized"), strings.Contains(s, "not allowed"):
		return KindPermission
	case strings.Contains(s, "-600"), strings.Contains(s, "isn't running"), strings.Contains(s, "can't get application"):
		return KindApp
	case strings.Contains(s, "-1712"), strings.Contains(s, "timed out"):
		return KindTimeout
	default:
		return KindScript
	}
}
