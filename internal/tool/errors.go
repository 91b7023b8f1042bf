package tool

import "errors"

var (
	// ErrToolNotFound is returned for calls to an unregistered tool.
	ErrToolNotFound = errors.New("tool not found")

	// ErrEmptyToolName is returned when registering a nameless tool.
	ErrEmptyToolName = errors.New("tool name must not be empty")

	// ErrDuplicateTool is returned when a name is registered twice.
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrInvalidArguments is returned by tools whose arguments fail to decode.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)
