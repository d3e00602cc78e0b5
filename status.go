package pipeflow

import "fmt"

// StatusKind is the tag of a Status.
type StatusKind int

const (
	StatusSuccess StatusKind = iota
	StatusPending
	StatusError
)

func (k StatusKind) String() string {
	switch k {
	case StatusSuccess:
		return "success"
	case StatusPending:
		return "pending"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is the outcome attached to a FlowState: success (optionally with an
// informational text), pending with a reason, or error with a message.
type Status struct {
	Kind StatusKind
	Text string
}

// Success is a plain successful status.
func Success() Status { return Status{Kind: StatusSuccess} }

// Info is a success carrying a non-error message for the user.
func Info(text string) Status { return Status{Kind: StatusSuccess, Text: text} }

// Pending reports a result that is still being computed.
func Pending(reason string) Status { return Status{Kind: StatusPending, Text: reason} }

// Errorf builds an error status from a formatted message.
func Errorf(format string, args ...any) Status {
	return Status{Kind: StatusError, Text: fmt.Sprintf(format, args...)}
}

// ErrorStatus converts err into an error status.
func ErrorStatus(err error) Status {
	return Status{Kind: StatusError, Text: err.Error()}
}

// IsSuccess reports whether s is a success, informational or not.
func (s Status) IsSuccess() bool { return s.Kind == StatusSuccess }

// IsPending reports whether s waits for a background computation.
func (s Status) IsPending() bool { return s.Kind == StatusPending }

// IsError reports whether s carries an error.
func (s Status) IsError() bool { return s.Kind == StatusError }

func (s Status) String() string {
	if s.Text == "" {
		return s.Kind.String()
	}
	return s.Kind.String() + ": " + s.Text
}

// MergeStatus combines the running status a of a chain with the status b of
// the next stage. Pending dominates everything, including errors reported
// upstream of a stage that is still computing. Otherwise errors dominate
// success. For two errors or two pending statuses the upstream text is kept.
func MergeStatus(a, b Status) Status {
	switch {
	case a.IsPending() && b.IsPending():
		return a
	case a.IsPending():
		return a
	case b.IsPending():
		return b
	case a.IsError():
		return a
	case b.IsError():
		return b
	case b.Text != "":
		return b
	default:
		return a
	}
}
