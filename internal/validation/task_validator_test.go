package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-sync/internal/domain"
	"task-sync/internal/errors"
)

func strPtr(s string) *string { return &s }

func TestTaskValidator_ValidateText(t *testing.T) {
	tv := NewTaskValidator()

	tests := []struct {
		name      string
		input     string
		want      string
		expectErr bool
	}{
		{"Valid text", "Buy milk", "Buy milk", false},
		{"Trimmed", "  Buy milk \n", "Buy milk", false},
		{"Multiline", "Pack:\n\tcharger", "Pack:\n\tcharger", false},
		{"Empty", "", "", true},
		{"Whitespace only", "   ", "", true},
		{"Too long", strings.Repeat("a", 1001), "", true},
		{"Max length", strings.Repeat("a", 1000), strings.Repeat("a", 1000), false},
		{"Control character", "ring\x07", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tv.ValidateText(tt.input)
			if tt.expectErr {
				require.Error(t, err)
				assert.True(t, errors.IsErrorType(err, errors.ErrorTypeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTaskValidator_ValidateTaskForCreation_Defaults(t *testing.T) {
	tv := NewTaskValidator()

	clean, err := tv.ValidateTaskForCreation(" Write report ", "", "", nil)
	require.NoError(t, err)

	assert.Equal(t, "Write report", *clean.Text)
	assert.Equal(t, domain.DefaultCategory, *clean.Category)
	assert.Equal(t, domain.PriorityMedium, *clean.Priority)
	assert.Empty(t, *clean.Tags)
}

func TestTaskValidator_ValidateTaskForCreation(t *testing.T) {
	tv := NewTaskValidator()

	clean, err := tv.ValidateTaskForCreation("Plan trip", " travel ", "HIGH", []string{" japan ", "", "2026"})
	require.NoError(t, err)

	assert.Equal(t, "travel", *clean.Category)
	assert.Equal(t, domain.PriorityHigh, *clean.Priority)
	assert.Equal(t, []string{"japan", "2026"}, *clean.Tags)
}

func TestTaskValidator_ValidateTaskForCreation_Errors(t *testing.T) {
	tv := NewTaskValidator()

	tests := []struct {
		name     string
		text     string
		category string
		priority string
		tags     []string
		field    string
		errType  ValidationErrorType
	}{
		{"Missing text", "", "", "", nil, "text", ErrorTypeRequired},
		{"Unknown priority", "x", "", "urgent", nil, "priority", ErrorTypeInvalidValue},
		{"Category characters", "x", "a/b", "", nil, "category", ErrorTypeInvalidCharacter},
		{"Category too long", "x", strings.Repeat("c", 33), "", nil, "category", ErrorTypeInvalidLength},
		{"Tag characters", "x", "", "", []string{"two words"}, "tag", ErrorTypeInvalidCharacter},
		{"Tag too long", "x", "", "", []string{strings.Repeat("t", 33)}, "tag", ErrorTypeInvalidLength},
		{"Duplicate tag", "x", "", "", []string{"Home", "home"}, "tags", ErrorTypeDuplicate},
		{"Too many tags", "x", "", "", []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"}, "tags", ErrorTypeTooMany},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tv.ValidateTaskForCreation(tt.text, tt.category, tt.priority, tt.tags)
			require.Error(t, err)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			fieldErrs := ve.GetFieldErrors(tt.field)
			require.NotEmpty(t, fieldErrs, "expected an error for field %s, got %v", tt.field, ve.Errors)
			assert.Equal(t, tt.errType, fieldErrs[0].Type)
		})
	}
}

func TestTaskValidator_ReportsAllErrors(t *testing.T) {
	tv := NewTaskValidator()

	_, err := tv.ValidateTaskForCreation("", "a/b", "urgent", nil)
	require.Error(t, err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 3)
}

func TestTaskValidator_CustomLimits(t *testing.T) {
	tv := NewTaskValidatorWithLimits(Limits{MaxTags: 2, TextMaxLength: 5})

	_, err := tv.ValidateTaskForCreation("short", "", "", []string{"a", "b"})
	require.NoError(t, err)

	_, err = tv.ValidateTaskForCreation("too long", "", "", nil)
	require.Error(t, err)

	_, err = tv.ValidateTaskForCreation("ok", "", "", []string{"a", "b", "c"})
	require.Error(t, err)
}

func TestTaskValidator_ValidateTaskForUpdate(t *testing.T) {
	tv := NewTaskValidator()

	t.Run("Only supplied fields are returned", func(t *testing.T) {
		clean, err := tv.ValidateTaskForUpdate("srv-1", TaskFields{Priority: strPtr("low")})
		require.NoError(t, err)

		assert.Nil(t, clean.Text)
		assert.Nil(t, clean.Category)
		assert.Nil(t, clean.Tags)
		require.NotNil(t, clean.Priority)
		assert.Equal(t, domain.PriorityLow, *clean.Priority)
	})

	t.Run("Empty category resets to default", func(t *testing.T) {
		clean, err := tv.ValidateTaskForUpdate("srv-1", TaskFields{Category: strPtr("")})
		require.NoError(t, err)
		assert.Equal(t, domain.DefaultCategory, *clean.Category)
	})

	t.Run("Clearing tags", func(t *testing.T) {
		empty := []string{}
		clean, err := tv.ValidateTaskForUpdate("srv-1", TaskFields{Tags: &empty})
		require.NoError(t, err)
		require.NotNil(t, clean.Tags)
		assert.Empty(t, *clean.Tags)
	})

	t.Run("Nothing to update", func(t *testing.T) {
		_, err := tv.ValidateTaskForUpdate("srv-1", TaskFields{})
		require.Error(t, err)
		assert.True(t, errors.IsErrorType(err, errors.ErrorTypeValidation))
	})

	t.Run("Empty text is rejected", func(t *testing.T) {
		_, err := tv.ValidateTaskForUpdate("srv-1", TaskFields{Text: strPtr("  ")})
		require.Error(t, err)
	})

	t.Run("Invalid id", func(t *testing.T) {
		_, err := tv.ValidateTaskForUpdate("", TaskFields{Text: strPtr("x")})
		require.Error(t, err)
	})
}

func TestTaskValidator_ValidateTaskID(t *testing.T) {
	tv := NewTaskValidator()

	assert.NoError(t, tv.ValidateTaskID("srv-3"))
	assert.NoError(t, tv.ValidateTaskID(domain.NewTemporaryID()))
	assert.Error(t, tv.ValidateTaskID(""))
	assert.Error(t, tv.ValidateTaskID("srv 3"))
}
