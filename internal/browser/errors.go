package browser

import "errors"

var (
	ErrBrowserStart   = errors.New("failed to start Chrome")
	ErrNavigateFailed = errors.New("navigation failed")
	ErrNoSnapshot     = errors.New("nothing recorded for page")
	ErrInvalidTarget  = errors.New("invalid trace target")
)
