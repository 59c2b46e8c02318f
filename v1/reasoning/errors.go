package reasoning

import "errors"

var (
	// ErrEmptyResponse is returned when the model answers with no content.
	ErrEmptyResponse = errors.New("reasoning: empty response")

	// ErrNoStatement is returned when no SQL could be extracted from the
	// model output.
	ErrNoStatement = errors.New("reasoning: no statement in response")
)
