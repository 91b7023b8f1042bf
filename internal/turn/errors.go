package turn

import "errors"

var (
	// ErrValidation rejects a request with a blank user ID or message.
	ErrValidation = errors.New("turn: user_id and message are required")

	// ErrSummarization fails a turn under SummaryAbort.
	ErrSummarization = errors.New("turn: summarization failed")

	// ErrTransport reports that the client stopped accepting the reply.
	ErrTransport = errors.New("turn: transport failed")

	// ErrTurn wraps every other failure surfaced to transports.
	ErrTurn = errors.New("turn: internal error")
)

// Client-facing texts. Causes are never sent to clients.
const (
	ValidationText = "user_id and message are required"
	InternalText   = "An internal error occurred."
	DoneMarker     = "[DONE]"
	ErrorPrefix    = "[ERROR] "
)

// ClientError maps a turn error to the text shown to the client.
func ClientError(err error) string {
	if errors.Is(err, ErrValidation) {
		return ValidationText
	}
	return InternalText
}
