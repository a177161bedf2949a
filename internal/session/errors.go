package session

import "errors"

// ErrSessionClosed is returned for operations attempted after the
// session has been shut down.
var ErrSessionClosed = errors.New("session: closed")
