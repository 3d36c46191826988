package syncer

import (
	"context"

	"task-sync/internal/domain"
	"task-sync/internal/errors"
	"task-sync/internal/repository"
	"task-sync/internal/validation"
)

// Tasks returns every local task in display order. It works while locked:
// tasks whose text cannot be decrypted come back Locked with empty text.
func (c *Coordinator) Tasks(ctx context.Context) ([]domain.TaskView, error) {
	tasks, err := c.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.TaskView, len(tasks))
	for i, t := range tasks {
		views[i] = c.view(t)
	}
	return views, nil
}

func (c *Coordinator) view(t domain.Task) domain.TaskView {
	v := domain.TaskView{Task: t}
	codec := c.currentCodec()
	if codec == nil {
		v.Locked = true
		return v
	}
	text, err := codec.Decrypt(t.EncryptedText)
	if err != nil {
		c.log.WithField("task", t.ID).Debug("task text could not be decrypted")
		v.Locked = true
		return v
	}
	v.Text = text
	return v
}

// AddTask stores a new task at the end of the list and queues its creation.
func (c *Coordinator) AddTask(ctx context.Context, in NewTask) (domain.TaskView, error) {
	codec, err := c.requireCodec("adding a task")
	if err != nil {
		return domain.TaskView{}, err
	}
	clean, err := c.validator.ValidateTaskForCreation(in.Text, in.Category, in.Priority, in.Tags)
	if err != nil {
		return domain.TaskView{}, err
	}
	encrypted, err := codec.Encrypt(*clean.Text)
	if err != nil {
		return domain.TaskView{}, err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	position, err := c.reconciler.Next(ctx)
	if err != nil {
		return domain.TaskView{}, err
	}
	now := c.now().UTC()
	task := domain.Task{
		ID:            domain.NewTemporaryID(),
		EncryptedText: encrypted,
		Category:      *clean.Category,
		Priority:      *clean.Priority,
		Tags:          *clean.Tags,
		Position:      position,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m, err := c.queue.Prepare(task.ID, domain.CreatePayload{
		EncryptedText: task.EncryptedText,
		Category:      task.Category,
		Priority:      task.Priority,
		Tags:          task.Tags,
		Position:      task.Position,
		CreatedAt:     task.CreatedAt,
	})
	if err != nil {
		return domain.TaskView{}, err
	}
	if err := c.store.Commit(ctx, repository.ChangeSet{
		PutTasks:        []domain.Task{task},
		AppendMutations: []domain.Mutation{m},
	}); err != nil {
		return domain.TaskView{}, err
	}

	c.log.WithField("task", task.ID).Debug("task added")
	c.changed()
	return domain.TaskView{Task: task, Text: *clean.Text}, nil
}

// UpdateTask edits the supplied fields of a task and queues the update. The
// key is only needed when the text changes.
func (c *Coordinator) UpdateTask(ctx context.Context, id string, upd TaskUpdate) (domain.TaskView, error) {
	fields := validation.TaskFields{
		Text:     upd.Text,
		Category: upd.Category,
		Priority: upd.Priority,
		Tags:     upd.Tags,
	}
	var clean validation.CleanFields
	if upd.Completed == nil || fields != (validation.TaskFields{}) {
		var err error
		if clean, err = c.validator.ValidateTaskForUpdate(id, fields); err != nil {
			return domain.TaskView{}, err
		}
	} else if err := c.validator.ValidateTaskID(id); err != nil {
		return domain.TaskView{}, err
	}

	payload := domain.UpdatePayload{
		Completed: upd.Completed,
		Category:  clean.Category,
		Priority:  clean.Priority,
		Tags:      clean.Tags,
	}
	if clean.Text != nil {
		codec, err := c.requireCodec("editing a task")
		if err != nil {
			return domain.TaskView{}, err
		}
		encrypted, err := codec.Encrypt(*clean.Text)
		if err != nil {
			return domain.TaskView{}, err
		}
		payload.EncryptedText = &encrypted
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	task, err := c.get(ctx, id)
	if err != nil {
		return domain.TaskView{}, err
	}
	return c.commitUpdate(ctx, task, payload)
}

// ToggleTask flips the completed flag of a task.
func (c *Coordinator) ToggleTask(ctx context.Context, id string) (domain.TaskView, error) {
	if err := c.validator.ValidateTaskID(id); err != nil {
		return domain.TaskView{}, err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	task, err := c.get(ctx, id)
	if err != nil {
		return domain.TaskView{}, err
	}
	completed := !task.Completed
	return c.commitUpdate(ctx, task, domain.UpdatePayload{Completed: &completed})
}

func (c *Coordinator) get(ctx context.Context, id string) (domain.Task, error) {
	task, ok, err := c.store.Get(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if !ok {
		return domain.Task{}, errors.NewNotFoundError("task", id)
	}
	return task, nil
}

// commitUpdate must be called with writeMu held.
func (c *Coordinator) commitUpdate(ctx context.Context, task domain.Task, payload domain.UpdatePayload) (domain.TaskView, error) {
	payload.UpdatedAt = c.now().UTC()
	payload.Apply(&task)

	m, err := c.queue.Prepare(task.ID, payload)
	if err != nil {
		return domain.TaskView{}, err
	}
	if err := c.store.Commit(ctx, repository.ChangeSet{
		PutTasks:        []domain.Task{task},
		AppendMutations: []domain.Mutation{m},
	}); err != nil {
		return domain.TaskView{}, err
	}

	c.log.WithField("task", task.ID).Debug("task updated")
	c.changed()
	return c.view(task), nil
}

// DeleteTask removes a task, closes the gap it leaves, and queues the delete
// followed by the new order.
func (c *Coordinator) DeleteTask(ctx context.Context, id string) error {
	if err := c.validator.ValidateTaskID(id); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	change, err := c.reconciler.Remove(ctx, id)
	if err != nil {
		return err
	}
	del, err := c.queue.Prepare(id, domain.DeletePayload{})
	if err != nil {
		return err
	}
	extra := repository.ChangeSet{AppendMutations: []domain.Mutation{del}}
	if change.Order != nil {
		reorder, err := c.queue.Prepare("", domain.ReorderPayload{Order: change.Order})
		if err != nil {
			return err
		}
		extra.AppendMutations = append(extra.AppendMutations, reorder)
	}
	if err := c.reconciler.Commit(ctx, change, extra); err != nil {
		return err
	}

	c.log.WithField("task", id).Debug("task deleted")
	c.changed()
	return nil
}

// ReorderTasks sets the order of the whole list. ids must name every task
// exactly once.
func (c *Coordinator) ReorderTasks(ctx context.Context, ids []string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	change, err := c.reconciler.Reorder(ctx, ids)
	if err != nil {
		return err
	}
	m, err := c.queue.Prepare("", domain.ReorderPayload{Order: change.Order})
	if err != nil {
		return err
	}
	if err := c.reconciler.Commit(ctx, change, repository.ChangeSet{AppendMutations: []domain.Mutation{m}}); err != nil {
		return err
	}

	c.log.WithField("tasks", len(ids)).Debug("tasks reordered")
	c.changed()
	return nil
}
