package realtime

import (
	"errors"
	"unicode/utf8"
)

// Validation constants
const (
	MaxIdentityIDLength  = 64
	MaxDisplayNameLength = 50
	MaxRoomKeyLength     = 100
	MaxActionLength      = 100
	MaxMessageLength     = 5000
)

// Validation errors
var (
	ErrIdentityEmpty      = errors.New("identity id cannot be empty")
	ErrIdentityTooLong    = errors.New("identity id exceeds maximum length")
	ErrIdentityInvalid    = errors.New("identity id contains invalid characters")
	ErrDisplayNameEmpty   = errors.New("display name cannot be empty")
	ErrDisplayNameTooLong = errors.New("display name exceeds maximum length")
	ErrDisplayNameInvalid = errors.New("display name contains invalid characters")
	ErrRoomKeyEmpty       = errors.New("room key cannot be empty")
	ErrRoomKeyTooLong     = errors.New("room key exceeds maximum length")
	ErrMessageEmpty       = errors.New("message content cannot be empty")
	ErrMessageTooLong     = errors.New("message exceeds maximum length")
	ErrMessageInvalid     = errors.New("message contains invalid characters")
)

// ValidateIdentityID validates an identity id.
func ValidateIdentityID(id string) error {
	if id == "" {
		return ErrIdentityEmpty
	}
	if len(id) > MaxIdentityIDLength {
		return ErrIdentityTooLong
	}
	if !utf8.ValidString(id) {
		return ErrIdentityInvalid
	}
	return nil
}

// ValidateDisplayName validates a display name.
func ValidateDisplayName(name string) error {
	if name == "" {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLength {
		return ErrDisplayNameTooLong
	}
	if !utf8.ValidString(name) {
		return ErrDisplayNameInvalid
	}
	return nil
}

// ValidateRoomKey validates a room key (content id, chat id, ...).
func ValidateRoomKey(key string) error {
	if key == "" {
		return ErrRoomKeyEmpty
	}
	if len(key) > MaxRoomKeyLength {
		return ErrRoomKeyTooLong
	}
	return nil
}

// ValidateMessage validates chat message content.
func ValidateMessage(content string) error {
	if content == "" {
		return ErrMessageEmpty
	}
	if len(content) > MaxMessageLength {
		return ErrMessageTooLong
	}
	if !utf8.ValidString(content) {
		return ErrMessageInvalid
	}
	return nil
}
