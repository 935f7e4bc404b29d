package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/url"

	"github.com/pkg/errors"
)

// Error kinds shared by every venue adapter. Match them with errors.Is.
var (
	// ErrTransport network or venue-side failure that may succeed on a later attempt.
	ErrTransport = errors.New("venue transport failure")
	// ErrMalformedResponse venue payload is missing expected fields or cannot be parsed.
	ErrMalformedResponse = errors.New("malformed venue response")
	// ErrOrderRejected venue refused an order submission.
	ErrOrderRejected = errors.New("order rejected")
	// ErrCancelFailed cancellation was not confirmed by the venue.
	ErrCancelFailed = errors.New("order cancel failed")
	// ErrRequestRejected venue refused a non-order request (auth, unknown order, bad symbol).
	ErrRequestRejected = errors.New("request rejected by venue")
	// ErrMissingCredentials private call on an adapter built without credentials.
	ErrMissingCredentials = errors.New("missing venue credentials")
	// ErrInvalidOrder order parameters rejected locally before submission.
	ErrInvalidOrder = errors.New("invalid order")
)

// Error venue failure normalized into one of the kinds above. The raw venue
// error stays reachable through errors.As.
type Error struct {
	Venue string
	Op    string
	Kind  error
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Venue, e.Op, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Venue, e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the raw error.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsRetryable reports whether err is a transient transport failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport)
}

func newError(venue, op string, kind, err error) error {
	if err == nil && kind == nil {
		return nil
	}
	var typed *Error
	if err != nil && errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return errors.Wrapf(err, "%s %s", venue, op)
	}
	return &Error{Venue: venue, Op: op, Kind: kind, Err: err}
}

// isNetworkError covers dial, TLS, reset, truncated body and timeout failures of the HTTP stack.
func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
