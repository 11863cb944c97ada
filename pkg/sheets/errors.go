package sheets

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sells-group/leadfetch/internal/resilience"
)

// ErrorKind classifies a failed spreadsheet API response.
type ErrorKind string

const (
	KindTransient  ErrorKind = "transient"
	KindPermission ErrorKind = "permission"
	KindNotFound   ErrorKind = "not_found"
	KindInvalid    ErrorKind = "invalid"
)

// APIError is a non-2xx response from the spreadsheet API.
type APIError struct {
	Op         string
	Kind       ErrorKind
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sheets: %s: %s (status %d): %s", e.Op, e.Kind, e.StatusCode, e.Body)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool { return e.Kind == KindTransient }

func newAPIError(op string, status int, body []byte) *APIError {
	const maxBody = 512
	b := string(body)
	if len(b) > maxBody {
		b = b[:maxBody]
	}
	return &APIError{Op: op, Kind: classifyStatus(status), StatusCode: status, Body: b}
}

func classifyStatus(status int) ErrorKind {
	switch {
	case resilience.IsTransientHTTPStatus(status):
		return KindTransient
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindPermission
	case status == http.StatusNotFound:
		return KindNotFound
	default:
		return KindInvalid
	}
}

// IsPermission reports whether err is an authorization failure. The caller
// has no access to the spreadsheet and retrying will not help.
func IsPermission(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindPermission
}
