package sio

import (
	"errors"
	"strconv"
)

// InvalidDataSourceURL occurs when a data source's URL doesn't
// evaluate to an absolute http or https URL.  No request is made.
type InvalidDataSourceURL struct {
	// Node is the data source's node id.
	Node string

	// Template is the URL as written in the document.
	Template string

	// URL is the result of evaluation, if evaluation succeeded.
	URL string

	Err error
}

func (e *InvalidDataSourceURL) Error() string {
	s := "invalid data source URL at " + e.Node + " (" + strconv.Quote(e.Template) + ")"
	if e.URL != "" {
		s += " evaluated to " + strconv.Quote(e.URL)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *InvalidDataSourceURL) Unwrap() error {
	return e.Err
}

// HTTPStatusError occurs when a data source responds with a status
// other than 2xx.
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	return "HTTP " + e.Status + " from " + e.URL
}

// NotJSON occurs when a data source's response body isn't JSON.
type NotJSON struct {
	URL         string
	ContentType string
	Err         error
}

func (e *NotJSON) Error() string {
	s := "response from " + e.URL + " isn't JSON"
	if e.ContentType != "" {
		s += " (" + e.ContentType + ")"
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *NotJSON) Unwrap() error {
	return e.Err
}

var (
	// Closed occurs when a Session is used after Close.
	Closed = errors.New("session closed")

	// UnknownScreen occurs when Navigate is given an id that
	// isn't a screen.
	UnknownScreen = errors.New("unknown screen")

	// TooLarge occurs when a response body exceeds the client's
	// limit.
	TooLarge = errors.New("response too large")
)
