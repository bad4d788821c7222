package upload

import (
	"errors"
	"fmt"
)

// Terminal transfer failures, distinguishable with errors.Is / errors.As.
var (
	// ErrNetwork means the transfer never produced a server reply.
	ErrNetwork = errors.New("network failure")
	// ErrTimeout means the job ceiling elapsed before the server replied.
	ErrTimeout = errors.New("upload timed out")
	// ErrMalformedResponse means the server replied 2xx but the body did
	// not decode as an OCR result.
	ErrMalformedResponse = errors.New("malformed backend response")
)

// ServerError is a non-2xx backend reply.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("backend returned status %d", e.Status)
}
