package session

import "errors"

var (
	errManagerStopped   = errors.New("session manager stopped")
	errSendEventTimedOut = errors.New("timed out sending event to session manager")
)
