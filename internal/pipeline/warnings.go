package pipeline

import "fmt"

// Warning records a failure that was logged and swallowed.
type Warning struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Warnf builds a Warning.
func Warnf(kind Kind, format string, args ...any) Warning {
	return Warning{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
