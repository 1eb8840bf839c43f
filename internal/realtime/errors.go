package realtime

import (
	"errors"
	"fmt"
)

// ErrorKind classifies registry failures so callers can map them to a
// transport status without parsing identifiers.
type ErrorKind int

const (
	KindInvalidInput ErrorKind = iota
	KindResourceLimit
	KindNotFound
)

// Error is a registry failure with a stable identifier. Identifiers are part
// of the public API: clients dispatch and localize on them, so they never
// change between releases.
type Error struct {
	ID      string
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.ID, e.Message)
}

// Is makes errors.Is match two *Error values by identifier.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.ID == other.ID
}

// Stable error identifiers.
const (
	IDMissingArgument = "api.assert.missing_argument"
	IDInvalidScope    = "core.realtime.invalid_scope"
	IDInvalidUsers    = "core.realtime.invalid_users"
	IDTooManyTerms    = "core.realtime.too_many_terms"
	IDTooManyRooms    = "core.realtime.too_many_rooms"
	IDRoomNotFound    = "core.realtime.room_not_found"
	IDNotSubscribed   = "core.realtime.not_subscribed"
)

func newMissingArgument(name string) *Error {
	return &Error{
		ID:      IDMissingArgument,
		Kind:    KindInvalidInput,
		Message: fmt.Sprintf("missing argument %q", name),
	}
}

func newInvalidScope(value string) *Error {
	return &Error{
		ID:      IDInvalidScope,
		Kind:    KindInvalidInput,
		Message: fmt.Sprintf("invalid scope value %q", value),
	}
}

func newInvalidUsers(value string) *Error {
	return &Error{
		ID:      IDInvalidUsers,
		Kind:    KindInvalidInput,
		Message: fmt.Sprintf("invalid users value %q", value),
	}
}

func newTooManyTerms(count, limit int) *Error {
	return &Error{
		ID:      IDTooManyTerms,
		Kind:    KindResourceLimit,
		Message: fmt.Sprintf("unable to subscribe: %d minterms exceed the configured limit of %d", count, limit),
	}
}

func newTooManyRooms(limit int) *Error {
	return &Error{
		ID:      IDTooManyRooms,
		Kind:    KindResourceLimit,
		Message: fmt.Sprintf("unable to create a new room: the configured limit of %d rooms has been reached", limit),
	}
}

func newRoomNotFound(roomID string) *Error {
	return &Error{
		ID:      IDRoomNotFound,
		Kind:    KindNotFound,
		Message: fmt.Sprintf("room %q not found", roomID),
	}
}

func newNotSubscribed(connectionID, roomID string) *Error {
	return &Error{
		ID:      IDNotSubscribed,
		Kind:    KindInvalidInput,
		Message: fmt.Sprintf("connection %q is not subscribed to room %q", connectionID, roomID),
	}
}
