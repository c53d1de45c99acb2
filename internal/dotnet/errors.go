package dotnet

import "errors"

var (
	// ErrNotPE is returned when the input is not a readable PE image.
	ErrNotPE = errors.New("input is not a PE image")
	// ErrNotManaged is returned for PE images without a CLI header or metadata root.
	ErrNotManaged = errors.New("PE image has no managed metadata")
	// ErrMalformed is returned when metadata, signatures or IL cannot be decoded.
	ErrMalformed = errors.New("malformed managed metadata")
)
