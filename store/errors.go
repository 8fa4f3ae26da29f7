package store

import (
	"errors"
)

// Reason classifies a FetchError.  Each Reason is itself an error,
// so errors.Is(err, UnauthorizedDomain) works on a *FetchError.
type Reason string

func (r Reason) Error() string {
	return string(r)
}

var (
	FileError                    = Reason("file error")
	NetworkError                 = Reason("network error")
	InvalidExperienceData        = Reason("invalid experience data")
	UnsupportedExperienceVersion = Reason("unsupported experience version")
	UnauthorizedDomain           = Reason("unauthorized domain")
)

// FetchError is what Store.Fetch returns when it fails.
type FetchError struct {
	Reason Reason
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	s := string(e.Reason) + " for " + e.URL
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	r, is := target.(Reason)
	return is && r == e.Reason
}

func fetchErr(reason Reason, url string, err error) *FetchError {
	return &FetchError{
		Reason: reason,
		URL:    url,
		Err:    err,
	}
}

var (
	// ConcurrentUse occurs when Fetch is called while another
	// Fetch is in progress.  A Store is for one goroutine.
	ConcurrentUse = errors.New("store used concurrently")

	// WildcardTooBroad occurs when an authorized domain like
	// "*.co.uk" covers a whole public suffix.
	WildcardTooBroad = errors.New("wildcard covers a public suffix")
)
