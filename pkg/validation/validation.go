package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// LanguageRegex matches BCP-47 style language tags ("en", "en-US").
	LanguageRegex = regexp.MustCompile(`^[a-zA-Z]{2,3}(-[a-zA-Z0-9]{2,8})*$`)
)

// ValidateRoomID validates a client-chosen room key. Keys are opaque
// and deliberately lenient; only emptiness and absurd lengths are
// rejected.
func ValidateRoomID(roomID string) error {
	if strings.TrimSpace(roomID) == "" {
		return fmt.Errorf("room ID is required")
	}
	if len(roomID) > 128 {
		return fmt.Errorf("room ID is too long (max 128 characters)")
	}
	return nil
}

// ValidateIdentity validates the client-supplied durable identity
// token. The token is opaque; only its size is bounded.
func ValidateIdentity(identity string) error {
	if strings.TrimSpace(identity) == "" {
		return fmt.Errorf("identity is required")
	}
	if len(identity) > 256 {
		return fmt.Errorf("identity is too long (max 256 characters)")
	}
	return nil
}

// ValidateLanguage validates a speech language tag. Empty is allowed
// (the configured default applies).
func ValidateLanguage(language string) error {
	if language == "" {
		return nil
	}
	if !LanguageRegex.MatchString(language) {
		return fmt.Errorf("invalid language tag %q", language)
	}
	return nil
}
