package core

import "errors"

// ErrSessionClosed is returned by writes to a closed session.
var ErrSessionClosed = errors.New("session closed")
