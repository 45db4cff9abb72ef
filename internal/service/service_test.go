package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/youngoldiamond/lifetracker/internal/notify"
	"github.com/youngoldiamond/lifetracker/internal/store"
	"github.com/youngoldiamond/lifetracker/internal/types"
)

type published struct {
	user  string
	event notify.Event
}

type fakePub struct {
	mu     sync.Mutex
	events []published
}

func (f *fakePub) Publish(userID string, event notify.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, published{userID, event})
}

func (f *fakePub) all() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.events...)
}

func newTaskService() (*Service[*types.Task], *fakePub) {
	pub := &fakePub{}
	return Tasks(store.NewMemory(), pub), pub
}

func TestCreateAppliesDefaults(t *testing.T) {
	ctx := context.Background()
	svc, pub := newTaskService()

	task, err := svc.Create(ctx, "alice", &types.Task{Title: "write tests"})
	assert.Equal(t, nil, err)
	assert.Equal(t, types.StatusTodo, task.Status)
	assert.Equal(t, "alice", task.Owner)
	assert.NotEqual(t, "", task.ID)
	assert.Equal(t, []types.Subtask{}, task.Subtasks)
	if task.CreatedAt.IsZero() {
		t.Fatal("created task has no timestamp")
	}

	events := pub.all()
	assert.Equal(t, 1, len(events))
	assert.Equal(t, "alice", events[0].user)
	assert.Equal(t, "task_updated", events[0].event.Name())
	assert.Equal(t, notify.ActionCreate, events[0].event.Action)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc, pub := newTaskService()

	_, err := svc.Create(ctx, "alice", &types.Task{})
	assert.Equal(t, true, errors.Is(err, ErrValidation))

	_, err = svc.Create(ctx, "alice", &types.Task{Title: "x", Status: "archived"})
	assert.Equal(t, true, errors.Is(err, ErrValidation))

	// Failed creates publish nothing.
	assert.Equal(t, 0, len(pub.all()))
}

func TestUpdateIsPartialMerge(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTaskService()

	task, err := svc.Create(ctx, "alice", &types.Task{
		Title:       "original",
		Description: "keep me",
		Priority:    3,
		Subtasks:    []types.Subtask{{Title: "sub", Done: false}},
	})
	assert.Equal(t, nil, err)

	title := "renamed"
	updated, err := svc.Update(ctx, "alice", task.ID, &types.TaskPatch{Title: &title})
	assert.Equal(t, nil, err)

	assert.Equal(t, "renamed", updated.Title)
	assert.Equal(t, "keep me", updated.Description)
	assert.Equal(t, 3, updated.Priority)
	assert.Equal(t, 1, len(updated.Subtasks))
	assert.Equal(t, types.StatusTodo, updated.Status)
}

func TestOwnershipEnforced(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTaskService()

	task, err := svc.Create(ctx, "alice", &types.Task{Title: "mine"})
	assert.Equal(t, nil, err)

	title := "stolen"
	_, err = svc.Update(ctx, "mallory", task.ID, &types.TaskPatch{Title: &title})
	assert.Equal(t, true, errors.Is(err, ErrForbidden))

	err = svc.Delete(ctx, "mallory", task.ID)
	assert.Equal(t, true, errors.Is(err, ErrForbidden))

	_, err = svc.Get(ctx, "mallory", task.ID)
	assert.Equal(t, true, errors.Is(err, ErrForbidden))

	// The failed attempts left the resource unmodified and in place.
	got, err := svc.Get(ctx, "alice", task.ID)
	assert.Equal(t, nil, err)
	assert.Equal(t, "mine", got.Title)
}

func TestListIsOwnerScoped(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTaskService()

	mine, err := svc.Create(ctx, "alice", &types.Task{Title: "mine"})
	assert.Equal(t, nil, err)
	_, err = svc.Create(ctx, "bob", &types.Task{Title: "bobs"})
	assert.Equal(t, nil, err)

	tasks, err := svc.List(ctx, "alice")
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(tasks))
	assert.Equal(t, mine.ID, tasks[0].ID)

	// Repeated lists with no mutation are identical.
	again, err := svc.List(ctx, "alice")
	assert.Equal(t, nil, err)
	a, _ := json.Marshal(tasks)
	b, _ := json.Marshal(again)
	assert.Equal(t, a, b)
}

func TestDeleteThenList(t *testing.T) {
	ctx := context.Background()
	svc, pub := newTaskService()

	task, err := svc.Create(ctx, "alice", &types.Task{Title: "doomed"})
	assert.Equal(t, nil, err)

	assert.Equal(t, nil, svc.Delete(ctx, "alice", task.ID))

	tasks, err := svc.List(ctx, "alice")
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(tasks))

	// Second delete fails loudly, not silently.
	err = svc.Delete(ctx, "alice", task.ID)
	assert.Equal(t, true, errors.Is(err, ErrNotFound))

	events := pub.all()
	assert.Equal(t, 2, len(events)) // create + delete, no event for the failed delete
	last := events[1].event
	assert.Equal(t, notify.ActionDelete, last.Action)

	var deletedID string
	assert.Equal(t, nil, json.Unmarshal(last.Payload, &deletedID))
	assert.Equal(t, task.ID, deletedID)
}

func TestEventRangeQuery(t *testing.T) {
	ctx := context.Background()
	svc := Events(store.NewMemory(), &fakePub{})

	at := func(s string) time.Time {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			t.Fatal(err)
		}
		return ts
	}

	second, err := svc.Create(ctx, "alice", &types.Event{Title: "later", StartTime: at("2024-03-05T10:00:00Z")})
	assert.Equal(t, nil, err)
	first, err := svc.Create(ctx, "alice", &types.Event{Title: "earlier", StartTime: at("2024-03-01T10:00:00Z")})
	assert.Equal(t, nil, err)

	events, err := svc.ListRange(ctx, "alice", at("2024-03-02T00:00:00Z"), at("2024-03-04T23:59:59Z"))
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(events))

	events, err = svc.ListRange(ctx, "alice", at("2024-03-01T00:00:00Z"), at("2024-03-05T23:59:59Z"))
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, len(events))
	assert.Equal(t, first.ID, events[0].ID)
	assert.Equal(t, second.ID, events[1].ID)
}

func TestRangeUnsupportedKind(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTaskService()

	_, err := svc.ListRange(ctx, "alice", time.Now(), time.Now())
	assert.Equal(t, true, errors.Is(err, ErrValidation))
}

func TestHabitDayKeyContract(t *testing.T) {
	ctx := context.Background()
	svc := Habits(store.NewMemory(), &fakePub{})

	habit, err := svc.Create(ctx, "alice", &types.Habit{Name: "read"})
	assert.Equal(t, nil, err)
	assert.NotEqual(t, nil, habit.History)

	good := map[string]bool{"2024-01-01": true, "2024-01-02": true}
	updated, err := svc.Update(ctx, "alice", habit.ID, &types.HabitPatch{History: &good})
	assert.Equal(t, nil, err)
	assert.Equal(t, good, updated.History)

	bad := map[string]bool{"Jan 2, 2024": true}
	_, err = svc.Update(ctx, "alice", habit.ID, &types.HabitPatch{History: &bad})
	assert.Equal(t, true, errors.Is(err, ErrValidation))

	// Toggling a day off is a plain history replacement.
	toggled := map[string]bool{"2024-01-01": true}
	updated, err = svc.Update(ctx, "alice", habit.ID, &types.HabitPatch{History: &toggled})
	assert.Equal(t, nil, err)
	assert.Equal(t, toggled, updated.History)
}

func TestChallengeActionIDs(t *testing.T) {
	ctx := context.Background()
	svc := Challenges(store.NewMemory(), &fakePub{})

	challenge, err := svc.Create(ctx, "alice", &types.Challenge{
		Name:         "hydrate",
		DailyActions: []types.DailyAction{{Title: "drink water"}, {ID: "keep", Title: "no soda"}},
	})
	assert.Equal(t, nil, err)
	assert.NotEqual(t, "", challenge.DailyActions[0].ID)
	assert.Equal(t, "keep", challenge.DailyActions[1].ID)
}

func TestUpdateMissing(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTaskService()

	title := "x"
	_, err := svc.Update(ctx, "alice", "no-such-id", &types.TaskPatch{Title: &title})
	assert.Equal(t, true, errors.Is(err, ErrNotFound))
}
