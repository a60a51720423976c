package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/wavetermdev/waveterm-sub010/internal/shared/errs"
)

// Size limits (in bytes)
const (
	MaxInputDataSize = 1000      // decoded terminal input per feinput/remoteinput frame
	MaxCmdInputText  = 64 * 1024 // draft command-line text
	MaxStateBodySize = 4 << 20   // encoded shell state posted over HTTP
	MaxIDLength      = 128
	MaxNameLength    = 256
)

// SafeIDPattern allows alphanumeric, hyphens, underscores
var SafeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return errs.Validation(fieldName, "is required")
	}
	if value == "" {
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return errs.Validation(fieldName, "must be at least %d characters", minLen)
	}
	if length > maxLen {
		return errs.Validation(fieldName, "must not exceed %d characters", maxLen)
	}
	if strings.Contains(value, "\x00") {
		return errs.Validation(fieldName, "contains invalid characters")
	}
	return nil
}

// ValidateID validates an id field
func ValidateID(id, fieldName string, required bool) error {
	if err := ValidateString(id, fieldName, 1, MaxIDLength, required); err != nil {
		return err
	}
	if id != "" && !SafeIDPattern.MatchString(id) {
		return errs.Validation(fieldName, "contains invalid characters (only alphanumeric, hyphens, and underscores allowed)")
	}
	return nil
}

// ValidateInputSize rejects decoded input larger than MaxInputDataSize.
func ValidateInputSize(data []byte) error {
	if len(data) > MaxInputDataSize {
		return errs.Validation("inputdata", "input too large %d bytes, max %d", len(data), MaxInputDataSize)
	}
	return nil
}

// ValidateCmdInputText validates draft command-line text.
func ValidateCmdInputText(text string) error {
	if len(text) > MaxCmdInputText {
		return errs.Validation("text", "text too large %d bytes, max %d", len(text), MaxCmdInputText)
	}
	return nil
}
