package notify

import "errors"

// ErrClosed is returned by Hub.Next after Close.
var ErrClosed = errors.New("notify: hub closed")
