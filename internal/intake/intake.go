// Package intake turns raw form webhooks into warranty tickets: it
// validates and normalizes the payload, suppresses duplicate submissions,
// assigns the ticket id, appends the record to the workbook and sends the
// confirmation and admin emails. The pipeline steps after the duplicate
// gate run independently so one failed email never loses a submission.
package intake

import "errors"

// eventFormSubmission is the only event type the pipeline processes.
const eventFormSubmission = "form-submission"

var (
	// ErrBadEnvelope marks webhook bodies that fail envelope validation or
	// carry no recognizable field set.
	ErrBadEnvelope = errors.New("intake: malformed webhook payload")

	// ErrWrongEvent marks envelopes whose event type is not a form
	// submission.
	ErrWrongEvent = errors.New("intake: unexpected event type")
)
