package validation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Limits bounds the size of user-supplied task fields.
type Limits struct {
	TextMaxLength     int
	CategoryMaxLength int
	MaxTags           int
	TagMaxLength      int
}

// DefaultLimits are used by NewValidator.
var DefaultLimits = Limits{
	TextMaxLength:     1000,
	CategoryMaxLength: 32,
	MaxTags:           10,
	TagMaxLength:      32,
}

var (
	categoryPattern = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} _\-]*$`)
	tagPattern      = regexp.MustCompile(`^[\p{L}\p{N}_\-]+$`)
)

// Validator provides common validation utilities
type Validator struct {
	limits Limits
}

// NewValidator creates a validator with DefaultLimits.
func NewValidator() *Validator {
	return &Validator{limits: DefaultLimits}
}

// NewValidatorWithLimits creates a validator with custom limits. Zero fields
// fall back to the defaults.
func NewValidatorWithLimits(limits Limits) *Validator {
	if limits.TextMaxLength <= 0 {
		limits.TextMaxLength = DefaultLimits.TextMaxLength
	}
	if limits.CategoryMaxLength <= 0 {
		limits.CategoryMaxLength = DefaultLimits.CategoryMaxLength
	}
	if limits.MaxTags <= 0 {
		limits.MaxTags = DefaultLimits.MaxTags
	}
	if limits.TagMaxLength <= 0 {
		limits.TagMaxLength = DefaultLimits.TagMaxLength
	}
	return &Validator{limits: limits}
}

// Limits returns the limits in effect.
func (v *Validator) Limits() Limits { return v.limits }

// IsNonEmptyString checks if a string is not empty after trimming whitespace
func (v *Validator) IsNonEmptyString(s string) bool {
	return strings.TrimSpace(s) != ""
}

// IsValidStringLength checks the trimmed length in characters, not bytes.
func (v *Validator) IsValidStringLength(s string, min, max int) bool {
	length := utf8.RuneCountInString(strings.TrimSpace(s))
	return length >= min && length <= max
}

// HasControlCharacters reports whether s contains control characters other
// than newlines and tabs.
func (v *Validator) HasControlCharacters(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return true
		}
	}
	return false
}

// IsValidCategory checks a category name against the allowed characters.
func (v *Validator) IsValidCategory(category string) bool {
	return categoryPattern.MatchString(category)
}

// IsValidTag checks a single tag: letters, digits, underscores and hyphens.
func (v *Validator) IsValidTag(tag string) bool {
	return tagPattern.MatchString(tag)
}

// IsValidTaskID checks that id is non-empty and has no surrounding or
// embedded whitespace.
func (v *Validator) IsValidTaskID(id string) bool {
	return id != "" && !strings.ContainsFunc(id, unicode.IsSpace)
}

// TrimAndValidateString trims whitespace and returns the cleaned string
func (v *Validator) TrimAndValidateString(s string) string {
	return strings.TrimSpace(s)
}
