package cursor

import "fmt"

// TransportError is a failure to obtain a usable event stream: connection
// errors, timeouts, non-200 statuses and non event-stream responses.
// StatusCode is 0 when no response was received.
type TransportError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("cursor transport (status %d): %s: %v", e.StatusCode, e.Message, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("cursor transport (status %d): %s", e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("cursor transport: %s: %v", e.Message, e.Err)
	default:
		return "cursor transport: " + e.Message
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UpstreamError is an error event reported inside an otherwise healthy stream.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("cursor upstream error (status %d): %s", e.StatusCode, e.Message)
}
