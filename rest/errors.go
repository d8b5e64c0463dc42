package rest

import (
	"errors"
	"fmt"

	"github.com/briangreenhill/devkit/hal"
)

// ErrNotFound matches every *NotFoundError.
var ErrNotFound = errors.New("resource not found")

// NotFoundError is returned when the API answers a GET with a 404 code.
// Document holds the decoded body.
type NotFoundError struct {
	URL      string
	Document *hal.Document
}

func (e *NotFoundError) Error() string {
	if e.Document != nil && e.Document.Metadata.Message != "" {
		return fmt.Sprintf("GET %s: %s", e.URL, e.Document.Metadata.Message)
	}
	return fmt.Sprintf("GET %s: %s", e.URL, ErrNotFound)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
