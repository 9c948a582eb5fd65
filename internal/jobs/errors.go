package jobs

import "fmt"

// SubmissionError means the remote rejected the diagnostic request for a
// target (unsupported command, bad argument) or answered with a body
// which cannot be parsed. A target failing this way never becomes a
// pool member.
type SubmissionError struct {
	Target string
	Reason string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission rejected for %s: %s", e.Target, e.Reason)
}

// TransportError is a network or connection level failure of a single
// bounded round trip.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a malformed response body, including an inner
// double-encoded envelope which cannot be parsed.
type ProtocolError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: protocol: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: protocol: %s", e.Op, e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
