package publish

import (
	"fmt"
	"strings"
)

// ConfigurationError reports contradictory or incomplete configuration.
// It is always raised before any network or filesystem side effect and is
// never retried. Fields names the conflicting flags when known.
type ConfigurationError struct {
	Reason string
	Fields []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s (conflicting fields: %s)", e.Reason, strings.Join(e.Fields, ", "))
	}
	return e.Reason
}

func configErr(reason string, fields ...string) error {
	return &ConfigurationError{Reason: reason, Fields: fields}
}
