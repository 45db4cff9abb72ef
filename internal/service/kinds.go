package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/youngoldiamond/lifetracker/internal/gamify"
	"github.com/youngoldiamond/lifetracker/internal/store"
	"github.com/youngoldiamond/lifetracker/internal/types"
)

// One constructor per resource kind. The behavior differences between kinds
// live entirely in these configs; everything else is the shared core.

func Tasks(st store.Store, pub Publisher) *Service[*types.Task] {
	return New(Config[*types.Task]{
		Kind:     store.KindTask,
		New:      func() *types.Task { return &types.Task{} },
		NewPatch: func() Patch[*types.Task] { return &types.TaskPatch{} },
		Defaults: func(t *types.Task) {
			if t.Status == "" {
				t.Status = types.StatusTodo
			}
			if t.Subtasks == nil {
				t.Subtasks = []types.Subtask{}
			}
		},
		Validate: func(t *types.Task) error {
			if t.Title == "" {
				return fmt.Errorf("title is required")
			}
			if !types.ValidStatus(t.Status) {
				return fmt.Errorf("invalid status %q", t.Status)
			}
			return nil
		},
	}, st, pub)
}

func Habits(st store.Store, pub Publisher) *Service[*types.Habit] {
	return New(Config[*types.Habit]{
		Kind:     store.KindHabit,
		New:      func() *types.Habit { return &types.Habit{} },
		NewPatch: func() Patch[*types.Habit] { return &types.HabitPatch{} },
		Defaults: func(h *types.Habit) {
			if h.History == nil {
				h.History = map[string]bool{}
			}
		},
		Validate: func(h *types.Habit) error {
			if h.Name == "" {
				return fmt.Errorf("name is required")
			}
			return validDayKeys(h.History)
		},
	}, st, pub)
}

func Challenges(st store.Store, pub Publisher) *Service[*types.Challenge] {
	return New(Config[*types.Challenge]{
		Kind:     store.KindChallenge,
		New:      func() *types.Challenge { return &types.Challenge{} },
		NewPatch: func() Patch[*types.Challenge] { return &types.ChallengePatch{} },
		Defaults: func(c *types.Challenge) {
			if c.History == nil {
				c.History = map[string][]string{}
			}
			if c.DailyActions == nil {
				c.DailyActions = []types.DailyAction{}
			}
			for i := range c.DailyActions {
				if c.DailyActions[i].ID == "" {
					c.DailyActions[i].ID = uuid.NewString()
				}
			}
		},
		Validate: func(c *types.Challenge) error {
			if c.Name == "" {
				return fmt.Errorf("name is required")
			}
			return validDayKeys(c.History)
		},
	}, st, pub)
}

func FocusSessions(st store.Store, pub Publisher) *Service[*types.FocusSession] {
	return New(Config[*types.FocusSession]{
		Kind:     store.KindFocusSession,
		New:      func() *types.FocusSession { return &types.FocusSession{} },
		NewPatch: func() Patch[*types.FocusSession] { return &types.FocusSessionPatch{} },
		Validate: func(s *types.FocusSession) error {
			if s.StartTime.IsZero() {
				return fmt.Errorf("startTime is required")
			}
			return nil
		},
		PrimaryTS: func(s *types.FocusSession) *time.Time {
			ts := s.StartTime
			return &ts
		},
	}, st, pub)
}

func Projects(st store.Store, pub Publisher) *Service[*types.Project] {
	return New(Config[*types.Project]{
		Kind:     store.KindProject,
		New:      func() *types.Project { return &types.Project{} },
		NewPatch: func() Patch[*types.Project] { return &types.ProjectPatch{} },
		Validate: func(p *types.Project) error {
			if p.Name == "" {
				return fmt.Errorf("name is required")
			}
			return nil
		},
	}, st, pub)
}

func Events(st store.Store, pub Publisher) *Service[*types.Event] {
	return New(Config[*types.Event]{
		Kind:     store.KindEvent,
		New:      func() *types.Event { return &types.Event{} },
		NewPatch: func() Patch[*types.Event] { return &types.EventPatch{} },
		Validate: func(e *types.Event) error {
			if e.Title == "" {
				return fmt.Errorf("title is required")
			}
			if e.StartTime.IsZero() {
				return fmt.Errorf("startTime is required")
			}
			return nil
		},
		PrimaryTS: func(e *types.Event) *time.Time {
			ts := e.StartTime
			return &ts
		},
	}, st, pub)
}

func validDayKeys[V any](history map[string]V) error {
	for key := range history {
		if _, err := gamify.ParseDayKey(key); err != nil {
			return err
		}
	}
	return nil
}
