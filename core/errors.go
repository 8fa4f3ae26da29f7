package core

// These errors are document errors, not internal errors.

import (
	"errors"
	"strconv"
)

// DecodeError occurs when a document doesn't conform to its schema.
type DecodeError struct {
	// Version is the schema version that the decoder expected.
	Version string

	// Where locates the problem (for example, "nodes[3].url" or
	// a node id).
	Where string

	Msg string

	// Err is the underlying cause, if any.
	Err error
}

func (e *DecodeError) Error() string {
	s := "decode v" + e.Version
	if e.Where != "" {
		s += " at " + e.Where
	}
	s += ": " + e.Msg
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// UnsupportedVersion occurs when a document declares a schema version
// that no decoder handles.
type UnsupportedVersion struct {
	Version string
}

func (e *UnsupportedVersion) Error() string {
	return "unsupported experience version " + strconv.Quote(e.Version)
}

var (
	// MissingCDNConfig occurs when the current schema decoder is
	// called without a CDNConfig.
	MissingCDNConfig = errors.New("CDN config required")

	// InterpreterNotFound occurs when a script names an
	// interpreter that isn't available.
	InterpreterNotFound = errors.New("interpreter not found")

	// UncompiledScript occurs when a script is evaluated before
	// it's compiled.
	UncompiledScript = errors.New("script not compiled")
)

// decodeErr makes a DecodeError.
func decodeErr(version, where, msg string, err error) *DecodeError {
	return &DecodeError{
		Version: version,
		Where:   where,
		Msg:     msg,
		Err:     err,
	}
}

// nodeAt formats a location for the i-th element of an array field.
func nodeAt(field string, i int) string {
	return field + "[" + strconv.Itoa(i) + "]"
}
