package chat

import (
	"strings"
	"unicode/utf8"
)

// MaxContentLength is the longest message body accepted, in characters.
const MaxContentLength = 500

// ValidateContent checks a message body before it is submitted.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return &ValidationError{Message: "Message cannot be empty"}
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return &ValidationError{Message: "Message cannot exceed 500 characters"}
	}
	return nil
}
