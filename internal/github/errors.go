package github

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	apperrors "github.com/alexjbarnes/mdnotes/internal/errors"
	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")

	// ErrNotFound is the workspace not-found error so callers can match
	// either package.
	ErrNotFound = apperrors.ErrNotFound
)

// TransientError wraps an error that is likely temporary and safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError. Nothing in mdnotes retries automatically; callers use
// this to word their messages.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// mapHTTPError converts a non-2xx response into an error carrying the
// status text and the API message. It returns nil for 2xx responses.
func mapHTTPError(op string, resp *resty.Response) error {
	code := resp.StatusCode()
	if code >= http.StatusOK && code < http.StatusMultipleChoices {
		return nil
	}

	msg := gjson.GetBytes(resp.Body(), "message").String()
	if msg == "" {
		msg = sanitizeResponseBody(resp.Body())
	}

	status := http.StatusText(code)
	if status == "" {
		status = "status " + strconv.Itoa(code)
	}

	detail := strings.TrimSpace(fmt.Sprintf("%s: %s %s", op, status, msg))

	switch code {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, detail)
	case http.StatusForbidden:
		err := fmt.Errorf("%w: %s", ErrForbidden, detail)
		if resp.Header().Get("X-RateLimit-Remaining") == "0" {
			return &TransientError{Err: err}
		}

		return err
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, detail)
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrConflict, detail)
	}

	err := fmt.Errorf("%w: %s", apperrors.ErrAPIResponse, detail)
	if isTransientStatus(code) {
		return &TransientError{Err: err}
	}

	return err
}

// isTransientStatus returns true for HTTP status codes that indicate a
// temporary server-side problem.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}

	return false
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return strings.TrimSpace(string(clean))
}
