package chat

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Validation limits.
const (
	MaxUsernameLength = 50
	MaxRoomNameLength = 100
	MaxMessageLength  = 5000
)

// Error taxonomy shared by the coordinator, the stores and the gateway.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNameTaken        = errors.New("username already taken")
	ErrNotAuthenticated = errors.New("username not set")
	ErrTargetOffline    = errors.New("target offline")
	ErrNotFound         = errors.New("not found")

	ErrInvalidName = fmt.Errorf("%w: username cannot be empty", ErrInvalidInput)
	ErrNotInRoom   = fmt.Errorf("%w: not a member of room", ErrInvalidInput)
)

// NormalizeUsername trims and validates a self-asserted username.
func NormalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", ErrInvalidName
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return "", fmt.Errorf("%w: username exceeds %d characters", ErrInvalidInput, MaxUsernameLength)
	}
	if !utf8.ValidString(username) {
		return "", fmt.Errorf("%w: username contains invalid characters", ErrInvalidInput)
	}
	return username, nil
}

// NormalizeRoom trims and validates a room name.
func NormalizeRoom(room string) (string, error) {
	room = strings.TrimSpace(room)
	if room == "" {
		return "", fmt.Errorf("%w: room cannot be empty", ErrInvalidInput)
	}
	if utf8.RuneCountInString(room) > MaxRoomNameLength {
		return "", fmt.Errorf("%w: room name exceeds %d characters", ErrInvalidInput, MaxRoomNameLength)
	}
	if !utf8.ValidString(room) {
		return "", fmt.Errorf("%w: room name contains invalid characters", ErrInvalidInput)
	}
	return room, nil
}

// NormalizeContent trims and validates message content.
func NormalizeContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: message content cannot be empty", ErrInvalidInput)
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return "", fmt.Errorf("%w: message exceeds %d characters", ErrInvalidInput, MaxMessageLength)
	}
	if !utf8.ValidString(content) {
		return "", fmt.Errorf("%w: message contains invalid characters", ErrInvalidInput)
	}
	return content, nil
}

// ErrorCode maps an error onto the code reported in acknowledgements.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNameTaken):
		return "name_taken"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, ErrTargetOffline):
		return "target_offline"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
