// Package stream implements the buffer accessor connecting an upstream tuple
// producer to a cooperative, pull based consumer.
package stream

// Result is the signal returned by pull based readers.
type Result uint8

const (
	// Yield means data is available to the caller.
	Yield Result = iota
	// Underflow means no data is available right now. Callers retry later
	// without changing any other state.
	Underflow
	// EOS means upstream is exhausted. It is terminal.
	EOS
	// Error means the scan failed and must be abandoned.
	Error
)

func (r Result) String() string {
	switch r {
	case Yield:
		return "yield"
	case Underflow:
		return "underflow"
	case EOS:
		return "eos"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}
