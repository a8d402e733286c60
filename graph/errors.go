package graph

import "errors"

// Build-time errors. Build wraps these with the offending pass or attachment name;
// match them with errors.Is.
var (
	ErrUnsupportedFormat   = errors.New("unsupported render attachment format")
	ErrUnsupportedSizeKind = errors.New("unsupported attachment size kind")
	ErrInvalidSize         = errors.New("invalid attachment size")
	ErrAliasMismatch       = errors.New("aliased attachment does not match its input")
	ErrUnknownInput        = errors.New("attachment input not found")
	ErrDuplicateAttachment = errors.New("duplicate attachment name")
	ErrCycle               = errors.New("cycle detected in pass graph")
	ErrNoBackbuffer        = errors.New("backbuffer attachment is not written by any pass")
	ErrExtentMismatch      = errors.New("pass attachments disagree on extent")
	ErrNotBuilt            = errors.New("render graph is not built")
	ErrUnknownInputName    = errors.New("no such buffer or texture input")
	ErrFrameOutOfRange     = errors.New("frame index outside frames in flight")
)
