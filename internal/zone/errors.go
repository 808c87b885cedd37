package zone

import (
	"fmt"
	"strings"
)

// ValidationError describes one malformed catalog entry. Any validation
// error makes the whole catalog unusable.
type ValidationError struct {
	Zone    string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Zone == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("zone %q: %s: %s", e.Zone, e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}
