package appliance

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies why the appliance rejected an operation.
type Code int

const (
	CodeUnknown Code = iota
	// CodeInterfaceNotFound: a referenced interface is not (yet) known.
	CodeInterfaceNotFound
	// CodeInterfaceAssigned: a device cannot be deleted while assigned.
	CodeInterfaceAssigned
	// CodeDuplicate: a unique field (tag, description) is already used.
	CodeDuplicate
	// CodeNotFound: the addressed object does not exist.
	CodeNotFound
)

func (c Code) String() string {
	switch c {
	case CodeInterfaceNotFound:
		return "interface_not_found"
	case CodeInterfaceAssigned:
		return "interface_assigned"
	case CodeDuplicate:
		return "duplicate"
	case CodeNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// ResourceError is returned when the appliance rejected an operation.
type ResourceError struct {
	Op      OperationName
	Path    string
	Status  int
	Code    Code
	Message string
	Payload map[string]any
}

func (e *ResourceError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Op))
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	b.WriteString(": ")
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString("rejected by appliance")
	}
	return b.String()
}

// NewResourceError builds a ResourceError and classifies its message.
func NewResourceError(op OperationName, path, message string, payload map[string]any) *ResourceError {
	return &ResourceError{
		Op:      op,
		Path:    path,
		Code:    classifyMessage(message),
		Message: message,
		Payload: payload,
	}
}

// ConnectionError is returned when the appliance cannot be reached.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot reach appliance %s: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsCode reports whether err is a ResourceError with the given code.
func IsCode(err error, code Code) bool {
	var re *ResourceError
	if !errors.As(err, &re) {
		return false
	}
	return re.Code == code
}

// IsConnection reports whether err is a ConnectionError.
func IsConnection(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// classifyMessage is the only place appliance message text is interpreted.
// The appliance reports validation failures as free text; every caller
// branches on the resulting Code instead.
func classifyMessage(msg string) Code {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "assigned as an interface"),
		strings.Contains(m, "currently assigned"),
		strings.Contains(m, "in use"):
		return CodeInterfaceAssigned
	case strings.Contains(m, "interface") && (strings.Contains(m, "was not found") || strings.Contains(m, "not found")):
		return CodeInterfaceNotFound
	case strings.Contains(m, "was not found"):
		return CodeInterfaceNotFound
	case strings.Contains(m, "already exists"),
		strings.Contains(m, "duplicate"),
		strings.Contains(m, "should be unique"),
		strings.Contains(m, "must be unique"):
		return CodeDuplicate
	case strings.Contains(m, "not found"),
		strings.Contains(m, "does not exist"):
		return CodeNotFound
	default:
		return CodeUnknown
	}
}
