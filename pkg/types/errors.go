package types

import "fmt"

// ManifestError reports a dependency manifest that is missing or malformed.
type ManifestError struct {
	Path string
	Msg  string
	Err  error
}

func (e *ManifestError) Error() string {
	msg := "manifest error"
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	msg += ": " + e.Msg
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ManifestError) Unwrap() error { return e.Err }

// ConnectorError reports a failed call to an external service: the
// vulnerability database or an AI backend.
type ConnectorError struct {
	Service string
	Msg     string
	Err     error
}

func (e *ConnectorError) Error() string {
	msg := fmt.Sprintf("%s connector error: %s", e.Service, e.Msg)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectorError) Unwrap() error { return e.Err }

const FormatErrorMessage = "AI response in invalid format"

// FormatError reports an AI response that does not satisfy the JSON contract.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string {
	if e.Err == nil {
		return FormatErrorMessage
	}
	return FormatErrorMessage + ": " + e.Err.Error()
}

func (e *FormatError) Unwrap() error { return e.Err }
