package structural

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFatalBuild is matched by every fatal BuildError. A fatal error aborts
// the whole build.
var ErrFatalBuild = errors.New("structural: fatal build error")

// Severity classifies a build error.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityFatal:
		return "FATAL"
	default:
		return fmt.Sprintf("SEVERITY(%d)", int(s))
	}
}

// BuildError is a problem met while building the tree. Non-fatal errors are
// collected on the layer; fatal ones are also returned from Build.
type BuildError struct {
	Message  string
	Line     int
	Index    int // position of the offending token in the input sequence
	Severity Severity
	Recovery string // what the builder did about it, if anything
}

func (e *BuildError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: line %d, token %d: %s", e.Severity, e.Line, e.Index, e.Message)
	if e.Recovery != "" {
		fmt.Fprintf(&sb, " (recovery: %s)", e.Recovery)
	}
	return sb.String()
}

// Unwrap lets errors.Is(err, ErrFatalBuild) identify fatal errors.
func (e *BuildError) Unwrap() error {
	if e.Severity == SeverityFatal {
		return ErrFatalBuild
	}
	return nil
}

// RecoveryStrategy is the policy for tokens the builder cannot place.
type RecoveryStrategy int

const (
	RecoverSkip RecoveryStrategy = iota
	RecoverAttachToParent
	RecoverCreatePlaceholder
)

// DefaultRecovery is used when no strategy is configured.
const DefaultRecovery = RecoverAttachToParent

var recoveryNames = map[RecoveryStrategy]string{
	RecoverSkip:              "skip",
	RecoverAttachToParent:    "attach_to_parent",
	RecoverCreatePlaceholder: "create_placeholder",
}

func (r RecoveryStrategy) String() string {
	if name, ok := recoveryNames[r]; ok {
		return name
	}
	return fmt.Sprintf("recovery(%d)", int(r))
}

// Valid reports whether r is one of the known strategies.
func (r RecoveryStrategy) Valid() bool {
	_, ok := recoveryNames[r]
	return ok
}

// ParseRecoveryStrategy accepts "skip", "attach_to_parent" and
// "create_placeholder", case-insensitively, with '-' allowed for '_'.
func ParseRecoveryStrategy(s string) (RecoveryStrategy, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for r, name := range recoveryNames {
		if name == norm {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown recovery strategy %q (want skip, attach_to_parent or create_placeholder)", s)
}
