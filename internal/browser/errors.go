package browser

import "errors"

// Error taxonomy for the automation core. Only these sentinels and their
// wrapped human-readable messages cross the tool boundary; raw protocol
// error payloads never do.
var (
	ErrValidation          = errors.New("invalid upload parameters")
	ErrAttachmentConflict  = errors.New("tab is already attached by another debugger")
	ErrElementNotFound     = errors.New("no element matches the selector")
	ErrElementTypeMismatch = errors.New("element is not a file input")
	ErrStaging             = errors.New("file staging failed or timed out")
	ErrProtocol            = errors.New("protocol command failed")
)
