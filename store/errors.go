package store

import "errors"

var (
	// ErrNotFound is returned when a mailbox doesn't exist or is deleted (has TTL <= now).
	ErrNotFound = errors.New("mailtree: mailbox not found")

	// ErrParentNotFound is returned when the parent path doesn't exist or is deleted.
	ErrParentNotFound = errors.New("mailtree: parent mailbox not found")

	// ErrAlreadyExists is returned when a live mailbox already owns the path.
	ErrAlreadyExists = errors.New("mailtree: mailbox already exists")

	// ErrNameTooLong is returned when the full mailbox name exceeds the configured limit.
	ErrNameTooLong = errors.New("mailtree: mailbox name too long")

	// ErrInvalidName is returned when a mailbox name is empty or contains an empty segment.
	ErrInvalidName = errors.New("mailtree: invalid mailbox name")

	// ErrHasChildren is returned when attempting to delete a mailbox with active children.
	ErrHasChildren = errors.New("mailtree: mailbox has active children")

	// ErrInvalidID is returned when a string cannot be parsed as a MailboxID.
	ErrInvalidID = errors.New("mailtree: invalid mailbox id")
)
