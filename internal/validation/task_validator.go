package validation

import (
	"strings"

	"task-sync/internal/domain"
)

// TaskFields is user input for a task. Nil fields were not supplied.
type TaskFields struct {
	Text     *string
	Category *string
	Priority *string
	Tags     *[]string
}

// CleanFields is TaskFields after validation: trimmed, defaulted and typed.
type CleanFields struct {
	Text     *string
	Category *string
	Priority *domain.Priority
	Tags     *[]string
}

// TaskValidator provides validation for Task-related operations
type TaskValidator struct {
	validator *Validator
}

// NewTaskValidator creates a new task validator
func NewTaskValidator() *TaskValidator {
	return &TaskValidator{validator: NewValidator()}
}

// NewTaskValidatorWithLimits creates a task validator with custom limits.
func NewTaskValidatorWithLimits(limits Limits) *TaskValidator {
	return &TaskValidator{validator: NewValidatorWithLimits(limits)}
}

// ValidateText validates task text and returns it trimmed.
func (tv *TaskValidator) ValidateText(text string) (string, error) {
	ve := NewValidationError()
	clean := tv.text(ve, text)
	if ve.HasErrors() {
		return "", ve.AppError()
	}
	return clean, nil
}

func (tv *TaskValidator) text(ve *ValidationError, text string) string {
	trimmed := tv.validator.TrimAndValidateString(text)
	if !tv.validator.IsNonEmptyString(trimmed) {
		ve.AddRequiredError("text")
		return ""
	}
	if limit := tv.validator.limits.TextMaxLength; !tv.validator.IsValidStringLength(trimmed, 1, limit) {
		ve.AddInvalidLengthError("text", len(trimmed), 1, limit)
	}
	if tv.validator.HasControlCharacters(trimmed) {
		ve.AddInvalidCharacterError("text", nil)
	}
	return trimmed
}

func (tv *TaskValidator) category(ve *ValidationError, category string) string {
	trimmed := tv.validator.TrimAndValidateString(category)
	if trimmed == "" {
		return domain.DefaultCategory
	}
	if limit := tv.validator.limits.CategoryMaxLength; !tv.validator.IsValidStringLength(trimmed, 1, limit) {
		ve.AddInvalidLengthError("category", trimmed, 1, limit)
	}
	if !tv.validator.IsValidCategory(trimmed) {
		ve.AddInvalidCharacterError("category", trimmed)
	}
	return trimmed
}

func (tv *TaskValidator) priority(ve *ValidationError, priority string) domain.Priority {
	p, ok := domain.ParsePriority(priority)
	if !ok {
		ve.AddInvalidValueError("priority", priority, "must be one of low, medium, high")
	}
	return p
}

// tags trims each tag and drops empty ones. Tags compare case-insensitively
// for duplicate detection.
func (tv *TaskValidator) tags(ve *ValidationError, tags []string) []string {
	limits := tv.validator.limits
	clean := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = tv.validator.TrimAndValidateString(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if seen[key] {
			ve.AddDuplicateError("tags", tag)
			continue
		}
		seen[key] = true

		if !tv.validator.IsValidStringLength(tag, 1, limits.TagMaxLength) {
			ve.AddInvalidLengthError("tag", tag, 1, limits.TagMaxLength)
		}
		if !tv.validator.IsValidTag(tag) {
			ve.AddInvalidCharacterError("tag", tag)
		}
		clean = append(clean, tag)
	}
	if len(clean) > limits.MaxTags {
		ve.AddTooManyError("tags", len(clean), limits.MaxTags)
	}
	return clean
}

// ValidateTaskForCreation validates a new task. Text is required; an empty
// category or priority takes its default.
func (tv *TaskValidator) ValidateTaskForCreation(text, category, priority string, tags []string) (CleanFields, error) {
	return tv.ValidateFields(TaskFields{
		Text:     &text,
		Category: &category,
		Priority: &priority,
		Tags:     &tags,
	})
}

// ValidateTaskForUpdate validates a partial update of the task id.
func (tv *TaskValidator) ValidateTaskForUpdate(id string, fields TaskFields) (CleanFields, error) {
	if err := tv.ValidateTaskID(id); err != nil {
		return CleanFields{}, err
	}
	if fields.Text == nil && fields.Category == nil && fields.Priority == nil && fields.Tags == nil {
		ve := NewValidationError()
		ve.AddRequiredError("update")
		return CleanFields{}, ve.AppError()
	}
	return tv.ValidateFields(fields)
}

// ValidateFields validates every supplied field and reports all problems at
// once.
func (tv *TaskValidator) ValidateFields(fields TaskFields) (CleanFields, error) {
	ve := NewValidationError()
	var out CleanFields

	if fields.Text != nil {
		text := tv.text(ve, *fields.Text)
		out.Text = &text
	}
	if fields.Category != nil {
		category := tv.category(ve, *fields.Category)
		out.Category = &category
	}
	if fields.Priority != nil {
		priority := tv.priority(ve, *fields.Priority)
		out.Priority = &priority
	}
	if fields.Tags != nil {
		tags := tv.tags(ve, *fields.Tags)
		out.Tags = &tags
	}

	if ve.HasErrors() {
		return CleanFields{}, ve.AppError()
	}
	return out, nil
}

// ValidateTaskID validates a task ID
func (tv *TaskValidator) ValidateTaskID(id string) error {
	if !tv.validator.IsValidTaskID(id) {
		ve := NewValidationError()
		ve.AddInvalidValueError("task_id", id, "must be a non-empty id without whitespace")
		return ve.AppError()
	}
	return nil
}
