package http

import (
	"errors"
	"strconv"
)

// RequestError describes a failed outbound request
type RequestError struct {
	URL        string
	StatusCode int
	Body       string
	Timeout    bool
	Err        error
}

func (e *RequestError) Error() string {
	var msg string
	switch {
	case e.Timeout:
		msg = "request to " + e.URL + " timed out"
	case e.StatusCode != 0:
		msg = "request to " + e.URL + " failed (HTTP " + strconv.Itoa(e.StatusCode) + ")"
	default:
		msg = "request to " + e.URL + " failed"
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a RequestError caused by a timeout
func IsTimeout(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Timeout
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}
