// Package ordering keeps task positions a total order: unique, and dense
// (0..n-1) after normalization, ascending meaning top of the list.
package ordering

import (
	"cmp"
	"slices"

	"task-sync/internal/domain"
	"task-sync/internal/errors"
)

// Compare orders tasks by position, then creation time, then id.
func Compare(a, b domain.Task) int {
	if c := cmp.Compare(a.Position, b.Position); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Sort sorts tasks in place by Compare.
func Sort(tasks []domain.Task) {
	slices.SortFunc(tasks, Compare)
}

// Sorted returns a sorted copy of tasks.
func Sorted(tasks []domain.Task) []domain.Task {
	out := slices.Clone(tasks)
	Sort(out)
	return out
}

// NextPosition returns the position for a task appended to tasks: one past
// the current maximum, or 0 for an empty list.
func NextPosition(tasks []domain.Task) int64 {
	if len(tasks) == 0 {
		return 0
	}
	highest := tasks[0].Position
	for _, t := range tasks[1:] {
		highest = max(highest, t.Position)
	}
	return highest + 1
}

// Normalize renumbers tasks to 0..n-1 in sorted order. It returns every task
// in its new order and, separately, the tasks whose position changed.
func Normalize(tasks []domain.Task) (all, changed []domain.Task) {
	all = Sorted(tasks)
	for i := range all {
		if all[i].Position != int64(i) {
			all[i].Position = int64(i)
			changed = append(changed, all[i])
		}
	}
	return all, changed
}

// ApplyOrder assigns position = index for the given ids. ids must name every
// task exactly once.
func ApplyOrder(tasks []domain.Task, ids []string) ([]domain.Task, error) {
	if len(ids) != len(tasks) {
		return nil, errors.NewInvalidInputError("order", len(ids),
			"expected a full ordering of all tasks")
	}

	index := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, dup := index[id]; dup {
			return nil, errors.NewInvalidInputError("order", id, "duplicate task id")
		}
		index[id] = i
	}

	out := make([]domain.Task, len(tasks))
	for _, t := range tasks {
		i, ok := index[t.ID]
		if !ok {
			return nil, errors.NewInvalidInputError("order", t.ID, "task missing from ordering")
		}
		t.Position = int64(i)
		out[i] = t
	}
	return out, nil
}

// DetectCollisions returns an order collision error for the lowest position
// held by more than one task, or nil.
func DetectCollisions(tasks []domain.Task) error {
	sorted := Sorted(tasks)
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Position != sorted[i-1].Position {
			continue
		}
		position := sorted[i].Position
		var ids []string
		for _, t := range sorted {
			if t.Position == position {
				ids = append(ids, t.ID)
			}
		}
		return errors.NewOrderCollisionError(position, ids)
	}
	return nil
}

// ResolveCollisions makes positions unique. Of two tasks sharing a position
// the one created later moves to position+1, and keeps moving while that
// position is taken, so older tasks never move for newer ones. Tasks are
// placed oldest first: a newer task skips over an older one already sitting
// at position+1 instead of pushing it down.
func ResolveCollisions(tasks []domain.Task) (all, changed []domain.Task) {
	all = slices.Clone(tasks)
	slices.SortFunc(all, func(a, b domain.Task) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if c := cmp.Compare(a.ID, b.ID); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})

	taken := make(map[int64]bool, len(all))
	for i := range all {
		p := all[i].Position
		for taken[p] {
			p++
		}
		taken[p] = true
		if p != all[i].Position {
			all[i].Position = p
			changed = append(changed, all[i])
		}
	}
	Sort(all)
	return all, changed
}
