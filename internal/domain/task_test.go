package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePriority(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Priority
		ok       bool
	}{
		{name: "empty defaults to medium", input: "", expected: PriorityMedium, ok: true},
		{name: "lowercase", input: "high", expected: PriorityHigh, ok: true},
		{name: "mixed case with spaces", input: " Low ", expected: PriorityLow, ok: true},
		{name: "unknown", input: "urgent", expected: Priority("urgent"), ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := ParsePriority(tt.input)
			assert.Equal(t, tt.expected, p)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestTemporaryIDs(t *testing.T) {
	id := NewTemporaryID()

	assert.True(t, IsTemporaryID(id))
	assert.True(t, Task{ID: id}.IsTemporary())
	assert.False(t, IsTemporaryID("42"))
	assert.NotEqual(t, id, NewTemporaryID())
}

func TestTask_Clone(t *testing.T) {
	original := Task{ID: "1", Tags: []string{"home"}}

	clone := original.Clone()
	clone.Tags[0] = "work"

	assert.Equal(t, "home", original.Tags[0])
}

func TestTaskView_String(t *testing.T) {
	assert.Equal(t, "buy milk", TaskView{Text: "buy milk"}.String())
	assert.Equal(t, "[locked]", TaskView{Locked: true}.String())
}

func TestPositions(t *testing.T) {
	tasks := []Task{{ID: "a", Position: 1}, {ID: "b", Position: 0}}

	assert.Equal(t, []PositionUpdate{{ID: "a", Position: 1}, {ID: "b", Position: 0}}, Positions(tasks))
}
