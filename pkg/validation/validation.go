package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// RoomNameRegex validates room name format
	RoomNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	reservedRoomNames = map[string]struct{}{
		"create":   {},
		"generate": {},
		"list":     {},
		"api":      {},
	}
)

// ValidateRoomName validates a room name
func ValidateRoomName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("room name is required")
	}
	if len(name) < 3 {
		return fmt.Errorf("room name must be at least 3 characters")
	}
	if len(name) > 32 {
		return fmt.Errorf("room name is too long (max 32 characters)")
	}
	if !RoomNameRegex.MatchString(name) {
		return fmt.Errorf("room name contains invalid characters (only letters, numbers, _, - allowed)")
	}
	if _, reserved := reservedRoomNames[strings.ToLower(name)]; reserved {
		return fmt.Errorf("room name %q is reserved", name)
	}
	return nil
}

// ValidateVisibility validates a room visibility value
func ValidateVisibility(visibility string) error {
	switch visibility {
	case "public", "unlisted", "private":
		return nil
	}
	return fmt.Errorf("invalid visibility %q (must be public, unlisted or private)", visibility)
}

// ValidateChatText validates a chat message body
func ValidateChatText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("chat message must not be empty")
	}
	if len(text) > 2000 {
		return fmt.Errorf("chat message is too long (max 2000 characters)")
	}
	return nil
}

// ValidateNonEmptyString validates that a string is not empty
func ValidateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s must not be empty", fieldName)
	}
	return nil
}
