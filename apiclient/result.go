package apiclient

import (
	"fmt"
	"net/http"
)

// Result is the uniform outcome of a request. Exactly one of Data or Error
// is meaningful: Error is empty on success, Data is nil on failure or when
// a successful response carried no decodable JSON.
type Result[T any] struct {
	Data   *T
	Error  string
	Status int
}

// OK reports whether the request succeeded.
func (r Result[T]) OK() bool { return r.Error == "" }

// IsTransportFailure reports whether no HTTP response was obtained.
func (r Result[T]) IsTransportFailure() bool { return r.Status == 0 && r.Error != "" }

// IsUnauthorized reports a 401 response.
func (r Result[T]) IsUnauthorized() bool { return r.Status == http.StatusUnauthorized }

// Err returns the failure as a *RequestError, or nil on success.
func (r Result[T]) Err() error {
	if r.OK() {
		return nil
	}
	return &RequestError{Status: r.Status, Message: r.Error}
}

// RequestError is a failed request. Message is display-ready text.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string { return e.Message }

// GenericMessage is the error text used when a failure body has no message.
func GenericMessage(status int) string {
	return fmt.Sprintf("Request failed with status %d", status)
}
