package models

import "errors"

// Error taxonomy shared by the store, mappers and remote clients.
var (
	ErrUnauthenticated = errors.New("chatsync: no current user")
	ErrTransport       = errors.New("chatsync: remote call failed")
	ErrMalformedRecord = errors.New("chatsync: malformed record")
	ErrNotFound        = errors.New("chatsync: not found")
	ErrInvalidArgument = errors.New("chatsync: invalid argument")
)
